// Package desire implements the lifecycle of autonomously generated
// goals: generate, plan, review, verdict, execute, and outcome review,
// gated by a risk/trust approval policy. Every stage degrades to a safe
// terminal state; nothing in this package panics the host run.
package desire

import (
	"math"
	"time"

	"volition/internal/skill"
)

// RiskLevel estimates the blast radius of executing a plan.
type RiskLevel string

const (
	RiskNone     RiskLevel = "none"
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// KnownRisk reports whether r is one of the five defined levels.
func KnownRisk(r RiskLevel) bool {
	switch r {
	case RiskNone, RiskLow, RiskMedium, RiskHigh, RiskCritical:
		return true
	}
	return false
}

// Verdict is the plan-review decision.
type Verdict string

const (
	VerdictApprove Verdict = "approve"
	VerdictReject  Verdict = "reject"
	VerdictRevise  Verdict = "revise"
)

// OutcomeVerdict classifies an execution after the fact.
type OutcomeVerdict string

const (
	OutcomeCompleted OutcomeVerdict = "completed"
	OutcomeContinue  OutcomeVerdict = "continue"
	OutcomeRetry     OutcomeVerdict = "retry"
	OutcomeEscalate  OutcomeVerdict = "escalate"
	OutcomeAbandon   OutcomeVerdict = "abandon"
)

// Status tracks a desire through its lifecycle. Terminal states are
// StatusCompleted, StatusRejected, and StatusAbandoned.
type Status string

const (
	StatusProposed  Status = "proposed"
	StatusPlanned   Status = "planned"
	StatusQueued    Status = "queued" // awaiting human approval
	StatusApproved  Status = "approved"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusRejected  Status = "rejected"
	StatusAbandoned Status = "abandoned"
)

// Terminal reports whether a status ends the lifecycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected || s == StatusAbandoned
}

// Desire is a candidate autonomous goal and everything the pipeline has
// produced for it so far.
type Desire struct {
	ID            string           `json:"id"`
	User          string           `json:"user"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	Strength      float64          `json:"strength"` // 0..1, decays over time
	Reason        string           `json:"reason"`
	RequiredTrust skill.TrustLevel `json:"requiredTrust"`
	Status        Status           `json:"status"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`

	Plan      *Plan          `json:"plan,omitempty"`
	Alignment *ReviewResult  `json:"alignment,omitempty"`
	Safety    *ReviewResult  `json:"safety,omitempty"`
	Review    *Review        `json:"review,omitempty"`
	Execution *Execution     `json:"execution,omitempty"`
	Outcome   *OutcomeReview `json:"outcome,omitempty"`
}

// Decay applies exponential strength decay with the given half-life.
// Desires that nobody acts on fade instead of accumulating forever.
func (d *Desire) Decay(halfLife time.Duration, now time.Time) {
	if halfLife <= 0 || d.UpdatedAt.IsZero() || !now.After(d.UpdatedAt) {
		return
	}
	elapsed := now.Sub(d.UpdatedAt)
	d.Strength *= math.Exp2(-float64(elapsed) / float64(halfLife))
	if d.Strength < 0 {
		d.Strength = 0
	}
}

// Plan is the one-shot execution plan for a desire. A revise verdict
// produces a new Plan via a fresh planning pass; an existing Plan is
// never mutated.
type Plan struct {
	OperatorGoal  string     `json:"operatorGoal"`
	Steps         []PlanStep `json:"steps"`
	EstimatedRisk RiskLevel  `json:"estimatedRisk"`
}

// PlanStep is one executable step of a plan.
type PlanStep struct {
	Description string         `json:"description"`
	SkillID     string         `json:"skill"`
	Args        map[string]any `json:"args,omitempty"`
}

// ReviewResult is one reviewer's judgment (alignment or safety).
type ReviewResult struct {
	Approved  bool     `json:"approved"`
	Score     float64  `json:"score"` // 0..1
	Concerns  []string `json:"concerns,omitempty"`
	Reasoning string   `json:"reasoning"`
}

// Review is the synthesized verdict for one plan evaluation cycle.
type Review struct {
	ID             string    `json:"id"`
	Verdict        Verdict   `json:"verdict"`
	Reasoning      string    `json:"reasoning"`
	Concerns       []string  `json:"concerns,omitempty"`
	Risk           RiskLevel `json:"risk"`
	AlignmentScore float64   `json:"alignmentScore"`
	CombinedScore  float64   `json:"combinedScore"`
	AutoApproved   bool      `json:"autoApproved"`
}

// ExecStatus is the coarse execution state.
type ExecStatus string

const (
	ExecStart   ExecStatus = "start"
	ExecSuccess ExecStatus = "success"
	ExecFailure ExecStatus = "failure"
)

// StepResult is the durable record of one executed plan step.
type StepResult struct {
	Index       int       `json:"index"`
	Description string    `json:"description"`
	SkillID     string    `json:"skill"`
	Success     bool      `json:"success"`
	Output      any       `json:"output,omitempty"`
	Error       string    `json:"error,omitempty"`
	At          time.Time `json:"at"`
}

// Execution accumulates step results append-only. Status transitions
// start -> (success | failure).
type Execution struct {
	Status         ExecStatus   `json:"status"`
	StepsCompleted int          `json:"stepsCompleted"`
	StepResults    []StepResult `json:"stepResults"`
	StartedAt      time.Time    `json:"startedAt"`
	CompletedAt    *time.Time   `json:"completedAt,omitempty"`
	Error          string       `json:"error,omitempty"`
}

// OutcomeReview is the final judgment of an execution.
type OutcomeReview struct {
	Verdict          OutcomeVerdict `json:"verdict"`
	SuccessScore     float64        `json:"successScore"` // 0..1
	Reasoning        string         `json:"reasoning"`
	LessonsLearned   []string       `json:"lessonsLearned,omitempty"`
	AdjustedStrength *float64       `json:"adjustedStrength,omitempty"`
	NotifyUser       bool           `json:"notifyUser"`
}
