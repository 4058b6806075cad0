package graph

import (
	"time"

	"github.com/google/uuid"

	"volition/internal/llm"
)

// Mode is the cognitive operating mode of a run. Autonomous mode is the
// only mode in which desires may be auto-approved.
type Mode string

const (
	ModeAssisted   Mode = "assisted"
	ModeAutonomous Mode = "autonomous"
	ModeDreaming   Mode = "dreaming"
)

// RunContext is the run-scoped blackboard shared by every node invocation
// in one execution. It has a closed schema: fixed identity fields, the
// conversation history, the last routing decision, and two documented maps.
// Vars carries declared node-to-node fields (keyed "node.port" by the
// executor); Meta is caller-supplied request metadata. A RunContext is
// owned by exactly one in-flight run and is discarded when the run ends.
type RunContext struct {
	UserID    string
	SessionID string
	RunID     string
	Mode      Mode
	StartedAt time.Time

	History []llm.Message
	Route   string

	Vars map[string]any
	Meta map[string]any
}

// NewRunContext creates a blackboard for one run with a fresh run id.
func NewRunContext(userID, sessionID string, mode Mode) *RunContext {
	return &RunContext{
		UserID:    userID,
		SessionID: sessionID,
		RunID:     uuid.NewString(),
		Mode:      mode,
		StartedAt: time.Now().UTC(),
		Vars:      make(map[string]any),
		Meta:      make(map[string]any),
	}
}

// Set records a named field for downstream nodes to read.
func (rc *RunContext) Set(key string, value any) {
	if rc.Vars == nil {
		rc.Vars = make(map[string]any)
	}
	rc.Vars[key] = value
}

// Get reads a named field set by an earlier node or the caller.
func (rc *RunContext) Get(key string) (any, bool) {
	v, ok := rc.Vars[key]
	return v, ok
}

// GetString reads a named field as a string, or "" when absent.
func (rc *RunContext) GetString(key string) string {
	s, _ := rc.Vars[key].(string)
	return s
}

// AppendHistory appends one turn to the conversation history.
func (rc *RunContext) AppendHistory(role, content string) {
	rc.History = append(rc.History, llm.Message{Role: role, Content: content})
}

// RecentHistory returns up to the last n turns.
func (rc *RunContext) RecentHistory(n int) []llm.Message {
	if n <= 0 || len(rc.History) <= n {
		return rc.History
	}
	return rc.History[len(rc.History)-n:]
}
