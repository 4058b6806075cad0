package agent

import (
	"context"
	"encoding/json"
	"fmt"
)

// stuckCheckFrom is the first iteration at which stuck detection runs.
// Earlier iterations have too little history to judge.
const stuckCheckFrom = 3

// StuckDetector inspects the scratchpad for lack of progress. Firing is
// not an error: it produces a terminal, reportable state for escalation.
type StuckDetector interface {
	Check(pad *Scratchpad) (stuck bool, reason string)
}

// RepetitionDetector fires when the recent window repeats the same action
// with the same input, or produces identical observations, suggesting the
// loop is spinning without progress.
type RepetitionDetector struct {
	Window int // entries compared, default 3
}

func (d RepetitionDetector) Check(pad *Scratchpad) (bool, string) {
	window := d.Window
	if window <= 0 {
		window = 3
	}
	entries := pad.Entries()
	if len(entries) < window {
		return false, ""
	}
	recent := entries[len(entries)-window:]

	sameAction := true
	sameObservation := true
	first := recent[0]
	firstInput, _ := json.Marshal(first.ActionInput)
	for _, e := range recent[1:] {
		input, _ := json.Marshal(e.ActionInput)
		if e.Action != first.Action || string(input) != string(firstInput) {
			sameAction = false
		}
		if e.Observation != first.Observation || e.Observation == "" {
			sameObservation = false
		}
	}

	if sameAction && first.Action != "" {
		return true, fmt.Sprintf("repeated action %q with identical input %d times", first.Action, window)
	}
	if sameObservation {
		return true, fmt.Sprintf("identical observation for the last %d steps", window)
	}
	return false, ""
}

// Escalation is the payload handed to the escalation channel when a loop
// or pipeline reaches a non-terminal failure state.
type Escalation struct {
	Goal        string         `json:"goal"`
	StuckReason string         `json:"stuckReason"`
	Scratchpad  []Entry        `json:"scratchpad"`
	Context     map[string]any `json:"context,omitempty"`
}

// Advice is what comes back from the escalation channel.
type Advice struct {
	Suggestions         []string `json:"suggestions"`
	Reasoning           string   `json:"reasoning"`
	AlternativeApproach string   `json:"alternativeApproach,omitempty"`
}

// Escalator is the external channel (human or higher-tier model) consulted
// on stuck states.
type Escalator interface {
	Escalate(ctx context.Context, e Escalation) (*Advice, error)
}
