// Package skill executes registered capabilities on behalf of the agent
// loop and the desire pipeline. Every execution is trust-gated: a skill
// whose required trust exceeds the caller's fails closed with an in-band
// denial, never a silent no-op.
package skill

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// TrustLevel orders how much autonomy a caller has been granted.
type TrustLevel string

const (
	TrustNone   TrustLevel = "none"
	TrustLow    TrustLevel = "low"
	TrustMedium TrustLevel = "medium"
	TrustHigh   TrustLevel = "high"
	TrustFull   TrustLevel = "full"
)

var trustRank = map[TrustLevel]int{
	TrustNone:   0,
	TrustLow:    1,
	TrustMedium: 2,
	TrustHigh:   3,
	TrustFull:   4,
}

// Rank returns the ordinal of a trust level. Unknown levels rank lowest.
func (t TrustLevel) Rank() int { return trustRank[t] }

// AtLeast reports whether t grants at least as much trust as other.
func (t TrustLevel) AtLeast(other TrustLevel) bool { return t.Rank() >= other.Rank() }

// Result is the uniform outcome of one skill execution.
type Result struct {
	Success bool   `json:"success"`
	Output  any    `json:"output,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Executor runs skills. Denials (unknown skill, insufficient trust) are
// reported in the Result; a returned error means the skill's transport or
// handler failed and the caller should treat the run as degraded.
type Executor interface {
	Execute(ctx context.Context, skillID string, args map[string]any, trust TrustLevel, autoApprove bool) (*Result, error)
}

// Handler is the implementation of one skill.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Skill couples a handler with its gate: the minimum trust to run it and
// whether it may run without explicit approval.
type Skill struct {
	ID               string
	Description      string
	RequiredTrust    TrustLevel
	RequiresApproval bool
	Handler          Handler
}

// Registry is an in-process Executor over registered skills.
type Registry struct {
	mu     sync.RWMutex
	skills map[string]Skill
}

// NewRegistry creates an empty skill registry.
func NewRegistry() *Registry {
	return &Registry{skills: make(map[string]Skill)}
}

// Register adds or replaces a skill.
func (r *Registry) Register(s Skill) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.skills[s.ID] = s
}

// IDs lists registered skill ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.skills))
	for id := range r.skills {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Execute implements Executor.
func (r *Registry) Execute(ctx context.Context, skillID string, args map[string]any, trust TrustLevel, autoApprove bool) (*Result, error) {
	r.mu.RLock()
	s, ok := r.skills[skillID]
	r.mu.RUnlock()

	if !ok {
		return &Result{Success: false, Error: fmt.Sprintf("unknown skill %q", skillID)}, nil
	}
	if !trust.AtLeast(s.RequiredTrust) {
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("skill %q requires trust %s, caller has %s", skillID, s.RequiredTrust, trust),
		}, nil
	}
	if s.RequiresApproval && !autoApprove {
		return &Result{
			Success: false,
			Error:   fmt.Sprintf("skill %q requires approval", skillID),
		}, nil
	}

	out, err := s.Handler(ctx, args)
	if err != nil {
		return nil, fmt.Errorf("skill %s: %w", skillID, err)
	}
	return &Result{Success: true, Output: out}, nil
}
