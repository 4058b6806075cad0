package flow

import (
	"context"
	"testing"

	"volition/internal/graph"
)

func exec(t *testing.T, id string, in graph.Inputs, props graph.Properties) graph.Outputs {
	t.Helper()
	reg := graph.NewRegistry()
	Register(reg)
	def, ok := reg.Lookup(id)
	if !ok {
		t.Fatalf("node %q not registered", id)
	}
	merged := graph.Properties{}
	for k, v := range def.Defaults {
		merged[k] = v
	}
	for k, v := range props {
		merged[k] = v
	}
	rc := graph.NewRunContext("u", "s", graph.ModeAssisted)
	out, err := def.Exec(context.Background(), in, rc, merged)
	if err != nil {
		t.Fatalf("exec %s: %v", id, err)
	}
	return out
}

func TestTruthy(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want bool
	}{
		{"nil", nil, false},
		{"bool true", true, true},
		{"bool false", false, false},
		{"string true", "true", true},
		{"string one", "1", true},
		{"string TRUE", "TRUE", true},
		{"string false", "false", false},
		{"string other", "yes", false},
		{"int zero", 0, false},
		{"int nonzero", 7, true},
		{"float nonzero", 0.5, true},
		{"isComplete", map[string]any{"isComplete": true}, true},
		{"isDone false", map[string]any{"isDone": false}, false},
		{"shouldContinue", map[string]any{"shouldContinue": "1"}, true},
		{"value nested", map[string]any{"value": map[string]any{"isComplete": true}}, true},
		{"bare object", map[string]any{"x": 1}, true},
		{"empty object", map[string]any{}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Truthy(tc.in); got != tc.want {
				t.Fatalf("Truthy(%v) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestIf_RoutesObjectCondition(t *testing.T) {
	out := exec(t, "flow.if", graph.Inputs{
		"condition": map[string]any{"isComplete": true},
		"trueData":  "A",
		"falseData": "B",
	}, nil)

	if out["routedData"] != "A" || out["branch"] != "true" {
		t.Fatalf("routedData=%v branch=%v, want A/true", out["routedData"], out["branch"])
	}
}

func TestIf_FalseBranch(t *testing.T) {
	out := exec(t, "flow.if", graph.Inputs{
		"condition": "0",
		"trueData":  "A",
		"falseData": "B",
	}, nil)

	if out["routedData"] != "B" || out["branch"] != "false" {
		t.Fatalf("routedData=%v branch=%v, want B/false", out["routedData"], out["branch"])
	}
}

func TestIf_MissingConditionIsInBandFailure(t *testing.T) {
	out := exec(t, "flow.if", graph.Inputs{"trueData": "A"}, nil)
	if !graph.Failed(out) {
		t.Fatalf("out = %v, want in-band failure", out)
	}
}

func TestIf_Expression(t *testing.T) {
	out := exec(t, "flow.if", graph.Inputs{
		"condition": "ignored",
		"trueData":  "picked",
	}, graph.Properties{"expression": `inputs.condition == "ignored"`})

	if out["branch"] != "true" || out["routedData"] != "picked" {
		t.Fatalf("expression route = %v/%v, want true/picked", out["branch"], out["routedData"])
	}
}

func TestSwitch_MutualExclusivity(t *testing.T) {
	cases := []string{"chat", "task", "desire"}
	inputs := []any{"chat", "task", "desire", "unknown", 42}

	for _, value := range inputs {
		out := exec(t, "flow.switch", graph.Inputs{"value": value}, graph.Properties{"cases": cases})

		nonNil := 0
		for _, c := range cases {
			key := "output_" + c
			if _, ok := out[key]; !ok {
				t.Fatalf("value %v: %s missing from outputs", value, key)
			}
			if out[key] != nil {
				nonNil++
			}
		}
		if out["output_default"] != nil {
			nonNil++
		}
		if nonNil != 1 {
			t.Fatalf("value %v: %d non-nil case outputs, want exactly 1 (%v)", value, nonNil, out)
		}
	}
}

func TestSwitch_DefaultFallback(t *testing.T) {
	out := exec(t, "flow.switch", graph.Inputs{"value": "nope"}, graph.Properties{"cases": []string{"a", "b"}})

	if out["matched"] != "default" || out["output_default"] != "nope" {
		t.Fatalf("matched=%v default=%v, want default/nope", out["matched"], out["output_default"])
	}
}

func TestForEach_SequentialResults(t *testing.T) {
	out := exec(t, "flow.foreach", graph.Inputs{"items": []any{"x", "y", "z"}}, nil)

	if out["count"] != 3 {
		t.Fatalf("count = %v, want 3", out["count"])
	}
	results, _ := out["results"].([]any)
	if len(results) != 3 {
		t.Fatalf("results = %v, want 3 records", results)
	}
	first, _ := results[0].(map[string]any)
	if first["index"] != 0 || first["item"] != "x" {
		t.Fatalf("first record = %v", first)
	}
}

func TestForEach_NonArrayInput(t *testing.T) {
	out := exec(t, "flow.foreach", graph.Inputs{"items": "not an array"}, nil)
	if !graph.Failed(out) {
		t.Fatalf("out = %v, want in-band failure", out)
	}
}

func TestLoop_BoundedIteration(t *testing.T) {
	reg := graph.NewRegistry()
	Register(reg)
	def, _ := reg.Lookup("flow.loop")
	rc := graph.NewRunContext("u", "s", graph.ModeAssisted)
	props := graph.Properties{"max": 3, "key": "loop.iteration"}

	var last graph.Outputs
	for i := 0; i < 3; i++ {
		out, err := def.Exec(context.Background(), nil, rc, props)
		if err != nil {
			t.Fatalf("loop exec: %v", err)
		}
		last = out
	}

	if last["iteration"] != 3 || last["done"] != true || last["_branch"] != "done" {
		t.Fatalf("final loop output = %v, want iteration=3 done=true", last)
	}
}
