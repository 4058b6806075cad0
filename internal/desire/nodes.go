package desire

import (
	"context"
	"encoding/json"
	"errors"

	"volition/internal/graph"
	"volition/internal/memory"
)

// Register exposes the lifecycle stages as graph nodes so plans can wire
// the desire machinery like any other unit of work. Every node follows
// the shared contract: missing artifacts are in-band failures, only
// persistence and cancellation abort the run.
func Register(reg *graph.Registry, p *Pipeline) {
	reg.Register(loadDef(p))
	reg.Register(planDef(p))
	reg.Register(reviewDef(p, "desire.review_alignment", "alignment", func(pl *Pipeline) Reviewer { return pl.Alignment }))
	reg.Register(reviewDef(p, "desire.review_safety", "safety", func(pl *Pipeline) Reviewer { return pl.Safety }))
	reg.Register(verdictDef(p))
	reg.Register(executeDef(p))
	reg.Register(outcomeDef(p))
}

// desireFromInput decodes the "desire" input, which arrives either as a
// *Desire (in-process wiring) or a JSON object (legacy graphs).
func desireFromInput(in graph.Inputs) (*Desire, bool) {
	switch v := in["desire"].(type) {
	case *Desire:
		return v, true
	case map[string]any:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, false
		}
		var d Desire
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, false
		}
		return &d, true
	}
	return nil, false
}

func loadDef(p *Pipeline) *graph.Definition {
	return &graph.Definition{
		ID:       "desire.load",
		Category: "desire",
		Inputs: []graph.Port{
			{Name: "desireId", Type: graph.TypeString},
		},
		Outputs: []graph.Port{
			{Name: "desire", Type: graph.TypeObject},
		},
		Exec: func(ctx context.Context, in graph.Inputs, rc *graph.RunContext, props graph.Properties) (graph.Outputs, error) {
			id := in.String("desireId")
			if id == "" {
				return graph.Fail("desireId input is required"), nil
			}
			d, err := p.Store.Get(ctx, rc.UserID, id)
			if err != nil {
				if memoryNotFound(err) {
					return graph.Fail("desire %s not found for user %s", id, rc.UserID), nil
				}
				return nil, err
			}
			return graph.OK("desire", d), nil
		},
	}
}

func memoryNotFound(err error) bool {
	return errors.Is(err, memory.ErrNotFound)
}

func planDef(p *Pipeline) *graph.Definition {
	return &graph.Definition{
		ID:       "desire.plan",
		Category: "desire",
		Inputs: []graph.Port{
			{Name: "desire", Type: graph.TypeObject},
		},
		Outputs: []graph.Port{
			{Name: "desire", Type: graph.TypeObject},
			{Name: "plan", Type: graph.TypeObject},
		},
		Exec: func(ctx context.Context, in graph.Inputs, rc *graph.RunContext, props graph.Properties) (graph.Outputs, error) {
			d, ok := desireFromInput(in)
			if !ok {
				return graph.Fail("desire input is required"), nil
			}
			plan, err := p.Planner.Plan(ctx, d, d.Review)
			if err != nil {
				return graph.Fail("planning failed: %v", err), nil
			}
			d.Plan = plan
			d.Status = StatusPlanned
			touch(d)
			return graph.OK("desire", d, "plan", plan), nil
		},
	}
}

func reviewDef(p *Pipeline, id, kind string, pick func(*Pipeline) Reviewer) *graph.Definition {
	return &graph.Definition{
		ID:       id,
		Category: "desire",
		Inputs: []graph.Port{
			{Name: "desire", Type: graph.TypeObject},
		},
		Outputs: []graph.Port{
			{Name: "desire", Type: graph.TypeObject},
			{Name: "review", Type: graph.TypeObject},
		},
		Exec: func(ctx context.Context, in graph.Inputs, rc *graph.RunContext, props graph.Properties) (graph.Outputs, error) {
			d, ok := desireFromInput(in)
			if !ok {
				return graph.Fail("desire input is required"), nil
			}
			if d.Plan == nil {
				return graph.Fail("desire %s has no plan to review", d.ID), nil
			}
			res, err := pick(p).Review(ctx, d, d.Plan)
			if err != nil {
				return graph.Fail("%s review failed: %v", kind, err), nil
			}
			if kind == "alignment" {
				d.Alignment = res
			} else {
				d.Safety = res
			}
			touch(d)
			return graph.OK("desire", d, "review", res), nil
		},
	}
}

func verdictDef(p *Pipeline) *graph.Definition {
	return &graph.Definition{
		ID:       "desire.verdict",
		Category: "desire",
		Inputs: []graph.Port{
			{Name: "desire", Type: graph.TypeObject},
		},
		Outputs: []graph.Port{
			{Name: "desire", Type: graph.TypeObject},
			{Name: "verdict", Type: graph.TypeString},
			{Name: "autoApproved", Type: graph.TypeBoolean},
			{Name: "_branch", Type: graph.TypeString},
		},
		Exec: func(ctx context.Context, in graph.Inputs, rc *graph.RunContext, props graph.Properties) (graph.Outputs, error) {
			d, ok := desireFromInput(in)
			if !ok {
				return graph.Fail("desire input is required"), nil
			}
			rev := Synthesize(p.Policy, d.Plan, d.Alignment, d.Safety)
			rev.AutoApproved = p.Policy.AutoApprove(d, rev)
			d.Review = rev
			touch(d)

			out := graph.OK(
				"desire", d,
				"verdict", string(rev.Verdict),
				"autoApproved", rev.AutoApproved,
			)
			out["_branch"] = string(rev.Verdict)
			return out, nil
		},
	}
}

func executeDef(p *Pipeline) *graph.Definition {
	return &graph.Definition{
		ID:       "desire.execute",
		Category: "desire",
		Inputs: []graph.Port{
			{Name: "desire", Type: graph.TypeObject},
		},
		Outputs: []graph.Port{
			{Name: "desire", Type: graph.TypeObject},
			{Name: "execStatus", Type: graph.TypeString},
		},
		Exec: func(ctx context.Context, in graph.Inputs, rc *graph.RunContext, props graph.Properties) (graph.Outputs, error) {
			d, ok := desireFromInput(in)
			if !ok {
				return graph.Fail("desire input is required"), nil
			}
			if d.Review == nil || d.Review.Verdict != VerdictApprove {
				return graph.Fail("desire %s is not approved for execution", d.ID), nil
			}
			d, err := p.ExecuteApproved(ctx, d)
			if err != nil {
				return nil, err
			}
			status := ""
			if d.Execution != nil {
				status = string(d.Execution.Status)
			}
			return graph.OK("desire", d, "execStatus", status), nil
		},
	}
}

func outcomeDef(p *Pipeline) *graph.Definition {
	return &graph.Definition{
		ID:       "desire.review_outcome",
		Category: "desire",
		Inputs: []graph.Port{
			{Name: "desire", Type: graph.TypeObject},
		},
		Outputs: []graph.Port{
			{Name: "desire", Type: graph.TypeObject},
			{Name: "outcome", Type: graph.TypeString},
			{Name: "_branch", Type: graph.TypeString},
		},
		Exec: func(ctx context.Context, in graph.Inputs, rc *graph.RunContext, props graph.Properties) (graph.Outputs, error) {
			d, ok := desireFromInput(in)
			if !ok {
				return graph.Fail("desire input is required"), nil
			}
			outcome, err := p.Outcome.ReviewOutcome(ctx, d)
			if err != nil {
				outcome = escalateDefault(err.Error())
			}
			d.Outcome = outcome
			p.applyOutcome(d, outcome)
			touch(d)

			out := graph.OK("desire", d, "outcome", string(outcome.Verdict))
			out["_branch"] = string(outcome.Verdict)
			return out, nil
		},
	}
}
