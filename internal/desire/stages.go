package desire

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"volition/internal/llm"
)

// Planner produces a Plan for a desire. prior carries an earlier review
// when the verdict was revise, so the new pass can address its concerns.
type Planner interface {
	Plan(ctx context.Context, d *Desire, prior *Review) (*Plan, error)
}

// Reviewer judges a plan from one perspective (alignment or safety).
type Reviewer interface {
	Review(ctx context.Context, d *Desire, plan *Plan) (*ReviewResult, error)
}

// OutcomeReviewer judges what execution achieved.
type OutcomeReviewer interface {
	ReviewOutcome(ctx context.Context, d *Desire) (*OutcomeReview, error)
}

// --- LLM-backed stages ---

// LLMPlanner plans through the model bridge, asking for strict JSON.
type LLMPlanner struct {
	Bridge llm.Bridge
	Skills []string
}

const planSystemPrompt = `You plan how an autonomous assistant could fulfil a desire.
Reply with JSON only:
{"operatorGoal": "...", "steps": [{"description": "...", "skill": "<skill id>", "args": {}}], "estimatedRisk": "none|low|medium|high|critical"}
Estimate risk honestly; overstating is safe, understating is not.`

// Plan implements Planner.
func (p *LLMPlanner) Plan(ctx context.Context, d *Desire, prior *Review) (*Plan, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Desire: %s\nDescription: %s\nReason: %s\nStrength: %.2f\n",
		d.Title, d.Description, d.Reason, d.Strength)
	if len(p.Skills) > 0 {
		fmt.Fprintf(&b, "Available skills: %s\n", strings.Join(p.Skills, ", "))
	}
	if prior != nil {
		fmt.Fprintf(&b, "A previous plan was sent back for revision: %s\n", prior.Reasoning)
	}

	reply, err := p.Bridge.Call(ctx, "desire-planner", []llm.Message{
		{Role: "system", Content: planSystemPrompt},
		{Role: "user", Content: b.String()},
	}, llm.Options{Format: "json", Temperature: 0.3})
	if err != nil {
		return nil, err
	}

	var plan Plan
	if err := json.Unmarshal([]byte(reply.Content), &plan); err != nil {
		return nil, fmt.Errorf("unparseable plan for desire %s: %w", d.ID, err)
	}
	if plan.EstimatedRisk == "" {
		plan.EstimatedRisk = RiskHigh
	}
	return &plan, nil
}

// LLMReviewer judges a plan through the bridge. Role distinguishes the
// alignment reviewer from the safety reviewer; the perspective prompt
// differs, the parsing does not.
type LLMReviewer struct {
	Bridge      llm.Bridge
	Role        string // "alignment-reviewer" or "safety-reviewer"
	Perspective string
}

// Review implements Reviewer. A reply the model refuses to structure is
// treated as disapproval with score zero: reviewers fail closed.
func (r *LLMReviewer) Review(ctx context.Context, d *Desire, plan *Plan) (*ReviewResult, error) {
	payload, err := json.Marshal(map[string]any{
		"desire": map[string]any{"title": d.Title, "description": d.Description, "reason": d.Reason},
		"plan":   plan,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal review payload: %w", err)
	}

	system := fmt.Sprintf(`You review a plan from the %s perspective.
Reply with JSON only: {"approved": true|false, "score": 0.0-1.0, "concerns": ["..."], "reasoning": "..."}`,
		r.Perspective)

	reply, err := r.Bridge.Call(ctx, r.Role, []llm.Message{
		{Role: "system", Content: system},
		{Role: "user", Content: string(payload)},
	}, llm.Options{Format: "json"})
	if err != nil {
		return nil, err
	}

	var res ReviewResult
	if err := json.Unmarshal([]byte(reply.Content), &res); err != nil {
		return &ReviewResult{
			Approved:  false,
			Score:     0,
			Reasoning: fmt.Sprintf("unparseable review reply: %s", clip(reply.Content, 200)),
		}, nil
	}
	res.Score = clamp01(res.Score)
	return &res, nil
}

// LLMOutcomeReviewer classifies an execution through the bridge.
type LLMOutcomeReviewer struct {
	Bridge llm.Bridge
}

const outcomeSystemPrompt = `You judge what an autonomous execution achieved.
Reply with JSON only:
{"verdict": "completed|continue|retry|escalate|abandon", "successScore": 0.0-1.0, "reasoning": "...", "lessonsLearned": ["..."], "adjustedStrength": null, "notifyUser": false}
completed: goal achieved. continue: recurring desire, reset for next cycle.
retry: incomplete, try again with adjustments. escalate: needs human attention.
abandon: unachievable or irrelevant.`

// ReviewOutcome implements OutcomeReviewer. Every failure path returns
// the safe default: escalate with notifyUser set, never a silent failure.
func (r *LLMOutcomeReviewer) ReviewOutcome(ctx context.Context, d *Desire) (*OutcomeReview, error) {
	if d.Execution == nil {
		return escalateDefault("no execution recorded for this desire"), nil
	}

	payload, err := json.Marshal(map[string]any{
		"desire":    map[string]any{"title": d.Title, "description": d.Description},
		"plan":      d.Plan,
		"execution": d.Execution,
	})
	if err != nil {
		return escalateDefault(fmt.Sprintf("could not serialize execution: %v", err)), nil
	}

	reply, err := r.Bridge.Call(ctx, "outcome-reviewer", []llm.Message{
		{Role: "system", Content: outcomeSystemPrompt},
		{Role: "user", Content: string(payload)},
	}, llm.Options{Format: "json"})
	if err != nil {
		return escalateDefault(fmt.Sprintf("outcome review call failed: %v", err)), nil
	}

	var out OutcomeReview
	if err := json.Unmarshal([]byte(reply.Content), &out); err != nil {
		return escalateDefault(fmt.Sprintf("unparseable outcome judgment: %s", clip(reply.Content, 200))), nil
	}

	switch out.Verdict {
	case OutcomeCompleted, OutcomeContinue, OutcomeRetry, OutcomeEscalate, OutcomeAbandon:
	default:
		return escalateDefault(fmt.Sprintf("unknown outcome verdict %q", out.Verdict)), nil
	}
	out.SuccessScore = clamp01(out.SuccessScore)
	if out.Reasoning == "" {
		out.Reasoning = "outcome reviewer gave no reasoning"
	}
	return &out, nil
}

func escalateDefault(reason string) *OutcomeReview {
	return &OutcomeReview{
		Verdict:      OutcomeEscalate,
		SuccessScore: 0,
		Reasoning:    reason,
		NotifyUser:   true,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// touch refreshes the desire's update timestamp.
func touch(d *Desire) { d.UpdatedAt = time.Now().UTC() }
