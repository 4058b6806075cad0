package agent

import (
	"fmt"
	"strings"
)

// DefaultScratchpadCap bounds the working memory carried between loop
// iterations, which in turn bounds prompt size.
const DefaultScratchpadCap = 10

// Entry is one recorded plan/act/observe step. Iterations are numbered
// from 1 in append order.
type Entry struct {
	Iteration   int            `json:"iteration"`
	Thought     string         `json:"thought"`
	Action      string         `json:"action,omitempty"`
	ActionInput map[string]any `json:"actionInput,omitempty"`
	Observation string         `json:"observation,omitempty"`
	Complete    bool           `json:"complete"`
}

// Scratchpad is the bounded, append-only log of loop steps. When the cap
// is exceeded the oldest entries are evicted.
type Scratchpad struct {
	cap     int
	entries []Entry
}

// NewScratchpad creates a scratchpad; cap <= 0 uses DefaultScratchpadCap.
func NewScratchpad(cap int) *Scratchpad {
	if cap <= 0 {
		cap = DefaultScratchpadCap
	}
	return &Scratchpad{cap: cap}
}

// Append records an entry, evicting the oldest beyond the cap.
func (s *Scratchpad) Append(e Entry) {
	s.entries = append(s.entries, e)
	if len(s.entries) > s.cap {
		s.entries = s.entries[len(s.entries)-s.cap:]
	}
}

// Len returns the number of retained entries.
func (s *Scratchpad) Len() int { return len(s.entries) }

// Entries returns the retained entries in append order.
func (s *Scratchpad) Entries() []Entry { return s.entries }

// Last returns the most recent entry, or a zero Entry when empty.
func (s *Scratchpad) Last() Entry {
	if len(s.entries) == 0 {
		return Entry{}
	}
	return s.entries[len(s.entries)-1]
}

// Render formats the scratchpad for inclusion in a planner prompt.
func (s *Scratchpad) Render() string {
	if len(s.entries) == 0 {
		return "(no prior steps)"
	}
	var b strings.Builder
	for _, e := range s.entries {
		fmt.Fprintf(&b, "Step %d:\n", e.Iteration)
		if e.Thought != "" {
			fmt.Fprintf(&b, "  Thought: %s\n", e.Thought)
		}
		if e.Action != "" {
			fmt.Fprintf(&b, "  Action: %s\n", e.Action)
		}
		if e.Observation != "" {
			fmt.Fprintf(&b, "  Observation: %s\n", e.Observation)
		}
	}
	return b.String()
}
