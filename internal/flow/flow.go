// Package flow provides the control-flow primitive nodes: conditional
// router, switch, for-each, and loop counter. Together with executor
// routes they let a plan express branching and bounded iteration purely
// through data-flow wiring.
package flow

import (
	"context"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"

	"volition/internal/graph"
)

// Register adds all flow nodes to the registry. The for-each body lookup
// closes over the same registry.
func Register(reg *graph.Registry) {
	reg.Register(ifDef())
	reg.Register(switchDef())
	reg.Register(forEachDef(reg))
	reg.Register(loopDef())
}

// Truthy evaluates the loose condition contract shared by the router and
// legacy graphs: booleans, "true"/"1" strings, non-zero numbers, and
// objects that carry an isComplete/isDone/shouldContinue/value field.
func Truthy(v any) bool {
	switch c := v.(type) {
	case nil:
		return false
	case bool:
		return c
	case string:
		s := strings.TrimSpace(strings.ToLower(c))
		return s == "true" || s == "1"
	case int:
		return c != 0
	case int64:
		return c != 0
	case float64:
		return c != 0
	case float32:
		return c != 0
	case map[string]any:
		for _, field := range []string{"isComplete", "isDone", "shouldContinue", "value"} {
			if inner, ok := c[field]; ok {
				return Truthy(inner)
			}
		}
		return len(c) > 0
	}
	return true
}

func ifDef() *graph.Definition {
	return &graph.Definition{
		ID:       "flow.if",
		Category: "flow",
		Aliases:  []string{"conditional", "if"},
		Inputs: []graph.Port{
			{Name: "condition", Type: graph.TypeAny},
			{Name: "trueData", Type: graph.TypeAny, Optional: true},
			{Name: "falseData", Type: graph.TypeAny, Optional: true},
		},
		Outputs: []graph.Port{
			{Name: "routedData", Type: graph.TypeAny},
			{Name: "branch", Type: graph.TypeString},
			{Name: "_branch", Type: graph.TypeString},
		},
		Defaults: graph.Properties{"expression": ""},
		Exec: func(ctx context.Context, in graph.Inputs, rc *graph.RunContext, props graph.Properties) (graph.Outputs, error) {
			cond, hasCond := in["condition"]

			var truth bool
			if exprSrc := props.String("expression", ""); exprSrc != "" {
				v, err := evalExpression(exprSrc, in, rc)
				if err != nil {
					return graph.Fail("condition expression: %v", err), nil
				}
				truth = Truthy(v)
			} else {
				if !hasCond {
					return graph.Fail("condition input is required"), nil
				}
				truth = Truthy(cond)
			}

			branch := "false"
			data := in["falseData"]
			if truth {
				branch = "true"
				data = in["trueData"]
			}
			rc.Route = branch

			out := graph.OK("routedData", data, "branch", branch)
			out["_branch"] = branch
			return out, nil
		},
	}
}

// evalExpression compiles and runs an expr-lang expression against the
// node's inputs plus the run context vars.
func evalExpression(src string, in graph.Inputs, rc *graph.RunContext) (any, error) {
	env := map[string]any{
		"inputs":  map[string]any(in),
		"context": rc.Vars,
		"mode":    string(rc.Mode),
	}
	program, err := expr.Compile(src, expr.Env(env))
	if err != nil {
		return nil, fmt.Errorf("compile %q: %w", src, err)
	}
	return expr.Run(program, env)
}

func switchDef() *graph.Definition {
	return &graph.Definition{
		ID:       "flow.switch",
		Category: "flow",
		Aliases:  []string{"switch"},
		Inputs: []graph.Port{
			{Name: "value", Type: graph.TypeAny},
			{Name: "data", Type: graph.TypeAny, Optional: true},
		},
		Outputs: []graph.Port{
			{Name: "matched", Type: graph.TypeString},
			{Name: "output_default", Type: graph.TypeAny},
			{Name: "_branch", Type: graph.TypeString},
		},
		Defaults: graph.Properties{"cases": []string{}, "field": ""},
		Exec: func(ctx context.Context, in graph.Inputs, rc *graph.RunContext, props graph.Properties) (graph.Outputs, error) {
			value := in["value"]
			if field := props.String("field", ""); field != "" {
				if obj := in.Map("value"); obj != nil {
					value = obj[field]
				}
			}

			payload, hasPayload := in["data"]
			if !hasPayload {
				payload = value
			}

			cases := props.Strings("cases")
			if len(cases) == 0 {
				return graph.Fail("switch needs a non-empty cases property"), nil
			}

			key := fmt.Sprintf("%v", value)
			matched := "default"
			// Every declared case output is always populated so downstream
			// wiring never has to guess which keys exist.
			out := graph.OK()
			for _, c := range cases {
				out["output_"+c] = nil
			}
			out["output_default"] = nil

			for _, c := range cases {
				if c == key {
					matched = c
					out["output_"+c] = payload
					break
				}
			}
			if matched == "default" {
				out["output_default"] = payload
			}

			out["matched"] = matched
			out["_branch"] = matched
			rc.Route = matched
			return out, nil
		},
	}
}

func forEachDef(reg *graph.Registry) *graph.Definition {
	return &graph.Definition{
		ID:       "flow.foreach",
		Category: "flow",
		Aliases:  []string{"foreach", "for_each"},
		Inputs: []graph.Port{
			{Name: "items", Type: graph.TypeArray},
		},
		Outputs: []graph.Port{
			{Name: "results", Type: graph.TypeArray},
			{Name: "count", Type: graph.TypeNumber},
		},
		Defaults: graph.Properties{"node": ""},
		Exec: func(ctx context.Context, in graph.Inputs, rc *graph.RunContext, props graph.Properties) (graph.Outputs, error) {
			items := in.Slice("items")
			if items == nil {
				return graph.Fail("items input must be an array"), nil
			}

			bodyID := props.String("node", "")
			var body *graph.Definition
			if bodyID != "" {
				def, ok := reg.Lookup(bodyID)
				if !ok {
					return graph.Fail("for-each body node %q not registered", bodyID), nil
				}
				body = def
			}

			// Sequential, one result record per element. No per-element
			// concurrency: iteration order is part of the contract.
			results := make([]any, 0, len(items))
			for i, item := range items {
				record := map[string]any{"index": i, "item": item}
				if body != nil {
					out, err := body.Exec(ctx, graph.Inputs{"item": item, "index": i}, rc, body.Defaults)
					if err != nil {
						return nil, fmt.Errorf("for-each element %d: %w", i, err)
					}
					record["output"] = map[string]any(out)
				}
				results = append(results, record)
			}

			return graph.OK("results", results, "count", len(items)), nil
		},
	}
}

func loopDef() *graph.Definition {
	return &graph.Definition{
		ID:       "flow.loop",
		Category: "flow",
		Aliases:  []string{"loop"},
		Inputs: []graph.Port{
			{Name: "reset", Type: graph.TypeBoolean, Optional: true},
		},
		Outputs: []graph.Port{
			{Name: "iteration", Type: graph.TypeNumber},
			{Name: "done", Type: graph.TypeBoolean},
			{Name: "_branch", Type: graph.TypeString},
		},
		Defaults: graph.Properties{"max": 10, "key": "loop.iteration"},
		Exec: func(ctx context.Context, in graph.Inputs, rc *graph.RunContext, props graph.Properties) (graph.Outputs, error) {
			key := props.String("key", "loop.iteration")
			max := props.Int("max", 10)

			iteration := 0
			if !in.Bool("reset") {
				if v, ok := rc.Get(key); ok {
					iteration, _ = v.(int)
				}
			}
			iteration++
			rc.Set(key, iteration)

			done := iteration >= max
			branch := "continue"
			if done {
				branch = "done"
			}

			out := graph.OK("iteration", iteration, "done", done)
			out["_branch"] = branch
			return out, nil
		},
	}
}
