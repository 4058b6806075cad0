package agent

import (
	"context"

	"volition/internal/graph"
	"volition/internal/skill"
)

// Register exposes the loop as graph nodes so plans can wire it like any
// other unit of work. agent.react runs bounded goal pursuit; agent.dream
// runs the same loop with a stochastic continuation predicate.
func Register(reg *graph.Registry, loop *Loop, dreamer *Loop) {
	reg.Register(reactDef(loop))
	if dreamer != nil {
		reg.Register(dreamDef(dreamer))
	}
}

// NewDreamer builds a loop that continues on a weighted coin flip with
// probability p instead of a completion predicate.
func NewDreamer(planner Planner, skills skill.Executor, p float64, cfg Config) *Loop {
	loop := NewLoop(planner, skills, cfg)
	loop.Terminate = StochasticTermination{P: p}
	loop.Detector = nil // dreams may wander; repetition is not stuckness
	return loop
}

func reactDef(loop *Loop) *graph.Definition {
	return &graph.Definition{
		ID:       "agent.react",
		Category: "agent",
		Aliases:  []string{"react", "agent_loop"},
		Inputs: []graph.Port{
			{Name: "goal", Type: graph.TypeString},
			{Name: "conversational", Type: graph.TypeBoolean, Optional: true},
		},
		Outputs: []graph.Port{
			{Name: "response", Type: graph.TypeString},
			{Name: "completed", Type: graph.TypeBoolean},
			{Name: "stuck", Type: graph.TypeBoolean},
			{Name: "stuckReason", Type: graph.TypeString},
			{Name: "iterations", Type: graph.TypeNumber},
			{Name: "_branch", Type: graph.TypeString},
		},
		Exec: func(ctx context.Context, in graph.Inputs, rc *graph.RunContext, props graph.Properties) (graph.Outputs, error) {
			goal := in.String("goal")
			if goal == "" {
				return graph.Fail("goal input is required"), nil
			}

			res, err := loop.Run(ctx, rc, goal, in.Bool("conversational"))
			if err != nil {
				return nil, err
			}

			branch := "completed"
			if res.Stuck {
				branch = "stuck"
			}
			out := graph.OK(
				"response", res.FinalAnswer,
				"completed", res.Completed,
				"stuck", res.Stuck,
				"stuckReason", res.StuckReason,
				"iterations", res.Iterations,
			)
			out["_branch"] = branch
			return out, nil
		},
	}
}

func dreamDef(loop *Loop) *graph.Definition {
	return &graph.Definition{
		ID:       "agent.dream",
		Category: "agent",
		Aliases:  []string{"dream", "dreamer"},
		Inputs: []graph.Port{
			{Name: "theme", Type: graph.TypeString, Optional: true},
		},
		Outputs: []graph.Port{
			{Name: "sequence", Type: graph.TypeArray},
			{Name: "iterations", Type: graph.TypeNumber},
		},
		Exec: func(ctx context.Context, in graph.Inputs, rc *graph.RunContext, props graph.Properties) (graph.Outputs, error) {
			theme := in.String("theme")
			if theme == "" {
				theme = "free association"
			}

			res, err := loop.Run(ctx, rc, theme, false)
			if err != nil {
				return nil, err
			}

			sequence := make([]any, 0, len(res.Log))
			for _, e := range res.Log {
				sequence = append(sequence, map[string]any{
					"iteration":   e.Iteration,
					"thought":     e.Thought,
					"observation": e.Observation,
				})
			}
			return graph.OK("sequence", sequence, "iterations", res.Iterations), nil
		},
	}
}
