package desire

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"volition/internal/audit"
	"volition/internal/llm"
	"volition/internal/logging"
	"volition/internal/skill"
)

// Pipeline drives one desire through plan, parallel reviews, verdict,
// execution, and outcome review. All collaborators are injected; one
// Pipeline serves concurrent desires for different users.
type Pipeline struct {
	Planner   Planner
	Alignment Reviewer
	Safety    Reviewer
	Outcome   OutcomeReviewer
	Policy    Policy
	Skills    skill.Executor
	Store     Store
	Audit     audit.Sink

	log *slog.Logger
}

// NewPipeline wires the standard LLM-backed stages.
func NewPipeline(bridge llm.Bridge, skills skill.Executor, store Store, policy Policy, sink audit.Sink, skillIDs []string) *Pipeline {
	if sink == nil {
		sink = audit.Discard{}
	}
	return &Pipeline{
		Planner:   &LLMPlanner{Bridge: bridge, Skills: skillIDs},
		Alignment: &LLMReviewer{Bridge: bridge, Role: "alignment-reviewer", Perspective: "alignment with the user's values and interests"},
		Safety:    &LLMReviewer{Bridge: bridge, Role: "safety-reviewer", Perspective: "safety and potential for harm"},
		Outcome:   &LLMOutcomeReviewer{Bridge: bridge},
		Policy:    policy,
		Skills:    skills,
		Store:     store,
		Audit:     sink,
		log:       logging.New("desire"),
	}
}

// Run advances a desire through the lifecycle until it reaches a resting
// state: completed, rejected, abandoned, queued for human approval, or
// reset for its next cycle. The returned desire is the same value,
// mutated and persisted along the way.
//
// The pipeline never returns pipeline-stage failures as errors: missing
// or failed artifacts degrade to reject/escalate verdicts with diagnostic
// reasons. The error return covers persistence and cancellation only.
func (p *Pipeline) Run(ctx context.Context, d *Desire) (*Desire, error) {
	d.Decay(p.Policy.StrengthHalfLife, time.Now().UTC())

	var prior *Review
	for revision := 0; ; revision++ {
		if err := ctx.Err(); err != nil {
			return d, err
		}

		plan, err := p.Planner.Plan(ctx, d, prior)
		if err != nil {
			// No plan is a safe terminal state, not a crash: the verdict
			// stage rejects with the diagnostic.
			p.log.Warn("planning failed", "desire", d.ID, "err", err)
			plan = nil
		}
		d.Plan = plan
		d.Status = StatusPlanned
		touch(d)

		p.review(ctx, d)

		rev := Synthesize(p.Policy, d.Plan, d.Alignment, d.Safety)
		rev.AutoApproved = p.Policy.AutoApprove(d, rev)
		d.Review = rev
		touch(d)

		p.Audit.Record(audit.Entry{
			Level: "info", Category: "desire", Event: "verdict", Actor: "system",
			Details: map[string]any{
				"desire": d.ID, "verdict": string(rev.Verdict),
				"risk": string(rev.Risk), "combined": rev.CombinedScore,
				"autoApproved": rev.AutoApproved,
			},
		})

		switch rev.Verdict {
		case VerdictReject:
			d.Status = StatusRejected
			return d, p.save(ctx, d)

		case VerdictRevise:
			if revision < p.Policy.MaxRevisions {
				prior = rev
				continue
			}
			// Revision budget exhausted: reject rather than loop forever.
			d.Status = StatusRejected
			d.Review.Reasoning = fmt.Sprintf("revision budget exhausted after %d passes; %s",
				revision+1, d.Review.Reasoning)
			return d, p.save(ctx, d)

		case VerdictApprove:
			if !rev.AutoApproved {
				d.Status = StatusQueued
				return d, p.save(ctx, d)
			}
			d.Status = StatusApproved
			if err := p.save(ctx, d); err != nil {
				return d, err
			}
			return p.ExecuteApproved(ctx, d)
		}
	}
}

// review runs the alignment and safety reviewers concurrently. A failed
// reviewer leaves a nil result; the verdict stage rejects on it.
func (p *Pipeline) review(ctx context.Context, d *Desire) {
	d.Alignment, d.Safety = nil, nil
	if d.Plan == nil {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := p.Alignment.Review(gctx, d, d.Plan)
		if err != nil {
			p.log.Warn("alignment review failed", "desire", d.ID, "err", err)
			return nil
		}
		d.Alignment = res
		return nil
	})
	g.Go(func() error {
		res, err := p.Safety.Review(gctx, d, d.Plan)
		if err != nil {
			p.log.Warn("safety review failed", "desire", d.ID, "err", err)
			return nil
		}
		d.Safety = res
		return nil
	})
	_ = g.Wait()
}

// ExecuteApproved runs an approved desire's plan and reviews the outcome.
// It is also the entry point for the human approval path: a queued desire
// the user approves re-enters here.
func (p *Pipeline) ExecuteApproved(ctx context.Context, d *Desire) (*Desire, error) {
	if d.Plan == nil {
		d.Outcome = escalateDefault("approved desire has no plan")
		d.Status = StatusQueued
		return d, p.save(ctx, d)
	}

	d.Status = StatusExecuting
	exec := &Execution{Status: ExecStart, StartedAt: time.Now().UTC()}
	d.Execution = exec
	if err := p.save(ctx, d); err != nil {
		return d, err
	}

	for i, step := range d.Plan.Steps {
		result := StepResult{
			Index:       i,
			Description: step.Description,
			SkillID:     step.SkillID,
			At:          time.Now().UTC(),
		}

		// Execution only happens after approval (auto or human), so the
		// skill-level approval gate is satisfied by construction.
		res, err := p.Skills.Execute(ctx, step.SkillID, step.Args, d.RequiredTrust, true)
		switch {
		case err != nil:
			result.Error = err.Error()
		case res.Success:
			result.Success = true
			result.Output = res.Output
		default:
			result.Error = res.Error
		}

		// Step results are durable before the next step starts, so a
		// crash mid-run cannot lose the record of an applied side effect.
		exec.StepResults = append(exec.StepResults, result)
		if result.Success {
			exec.StepsCompleted++
		}
		if err := p.save(ctx, d); err != nil {
			return d, err
		}

		if !result.Success {
			exec.Status = ExecFailure
			exec.Error = result.Error
			break
		}
	}

	if exec.Status != ExecFailure {
		exec.Status = ExecSuccess
	}
	now := time.Now().UTC()
	exec.CompletedAt = &now

	outcome, err := p.Outcome.ReviewOutcome(ctx, d)
	if err != nil {
		// OutcomeReviewer implementations fail soft, but honor the
		// contract even for ones that do not.
		outcome = escalateDefault(fmt.Sprintf("outcome reviewer error: %v", err))
	}
	d.Outcome = outcome
	p.applyOutcome(d, outcome)
	touch(d)

	p.Audit.Record(audit.Entry{
		Level: "info", Category: "desire", Event: "outcome", Actor: "system",
		Details: map[string]any{
			"desire": d.ID, "verdict": string(outcome.Verdict),
			"successScore": outcome.SuccessScore, "notifyUser": outcome.NotifyUser,
		},
	})

	return d, p.save(ctx, d)
}

// applyOutcome maps the outcome verdict onto the desire's resting state.
func (p *Pipeline) applyOutcome(d *Desire, out *OutcomeReview) {
	if out.AdjustedStrength != nil {
		d.Strength = clamp01(*out.AdjustedStrength)
	}
	switch out.Verdict {
	case OutcomeCompleted:
		d.Status = StatusCompleted
	case OutcomeContinue, OutcomeRetry:
		// Back to the pool for another cycle; artifacts stay attached as
		// history until the next planning pass replaces them.
		d.Status = StatusProposed
	case OutcomeEscalate:
		d.Status = StatusQueued
	case OutcomeAbandon:
		d.Status = StatusAbandoned
	}
}

func (p *Pipeline) save(ctx context.Context, d *Desire) error {
	if p.Store == nil {
		return nil
	}
	if err := p.Store.Save(ctx, d); err != nil {
		return fmt.Errorf("persist desire %s: %w", d.ID, err)
	}
	return nil
}
