// Package llm is the bridge to language-model providers. The runtime never
// talks to a provider directly: every planner, reviewer, and generator goes
// through the Bridge interface so tests can substitute a scripted stub and
// deployments can route roles to different models.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the provider could not be reached or refused the
// call (transport, quota). It is an infrastructure failure: callers convert
// it into a terminal stuck/escalate state, never into a silent retry.
var ErrUnavailable = errors.New("llm: provider unavailable")

// Message is one turn of a conversation sent to the model.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options tunes a single call. Zero values defer to the provider defaults.
// Format "json" asks the provider for a JSON-object response when supported.
type Options struct {
	Temperature float64
	MaxTokens   int
	Format      string
}

// Reply is the provider's answer plus attribution and accounting.
type Reply struct {
	Content  string
	Model    string
	Provider string
	Usage    *Usage
}

// Usage is token accounting when the provider reports it.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Bridge is the single entry point for model calls. The role names the
// caller's function ("planner", "safety-reviewer", "dreamer") and selects
// the model per deployment config; it is not the chat role of any message.
// Output is never deterministic; callers must not assume it is.
type Bridge interface {
	Call(ctx context.Context, role string, messages []Message, opts Options) (*Reply, error)
}
