package agent

import (
	"math/rand"
	"strings"
)

// Termination parameterizes when a loop run stops. The ReAct loop uses a
// completion predicate; dreamer-style generators use a weighted coin flip
// per iteration. Both share one loop implementation.
type Termination interface {
	// Complete reports whether the observation (or the plan itself)
	// signals successful completion.
	Complete(step *PlanStep, observation string) bool
	// Continue reports whether another iteration may start. Reason is
	// informational and surfaces in the result when Continue is false.
	Continue(iteration int) (bool, string)
}

// CompletionTermination stops when the planner emits a final answer or an
// observation carries one of the markers.
type CompletionTermination struct {
	Markers []string
}

// DefaultMarkers are the observation substrings treated as completion
// signals by the stock ReAct loop.
var DefaultMarkers = []string{"TASK_COMPLETE", "GOAL_ACHIEVED"}

func (c CompletionTermination) Complete(step *PlanStep, observation string) bool {
	if step != nil && step.IsFinal {
		return true
	}
	markers := c.Markers
	if len(markers) == 0 {
		markers = DefaultMarkers
	}
	for _, m := range markers {
		if strings.Contains(observation, m) {
			return true
		}
	}
	return false
}

func (c CompletionTermination) Continue(int) (bool, string) { return true, "" }

// StochasticTermination continues each iteration with probability P.
// A final-answer plan still completes; there is no observation predicate.
type StochasticTermination struct {
	P    float64
	Rand *rand.Rand
}

func (s StochasticTermination) Complete(step *PlanStep, _ string) bool {
	return step != nil && step.IsFinal
}

func (s StochasticTermination) Continue(iteration int) (bool, string) {
	if iteration <= 1 {
		return true, ""
	}
	roll := rand.Float64()
	if s.Rand != nil {
		roll = s.Rand.Float64()
	}
	if roll < s.P {
		return true, ""
	}
	return false, "continuation coin flip ended the sequence"
}
