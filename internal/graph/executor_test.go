package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// --- test helpers ---

func newTestRegistry() *Registry {
	reg := NewRegistry()

	reg.Register(&Definition{
		ID:      "emit",
		Aliases: []string{"test.emit"},
		Outputs: []Port{{Name: "value", Type: TypeAny}},
		Exec: func(ctx context.Context, in Inputs, rc *RunContext, props Properties) (Outputs, error) {
			return OK("value", props["value"]), nil
		},
	})

	reg.Register(&Definition{
		ID:     "upper",
		Inputs: []Port{{Name: "value", Type: TypeString}},
		Outputs: []Port{
			{Name: "value", Type: TypeString},
		},
		Exec: func(ctx context.Context, in Inputs, rc *RunContext, props Properties) (Outputs, error) {
			s := in.String("value")
			if s == "" {
				return Fail("value is required"), nil
			}
			out := ""
			for _, r := range s {
				if r >= 'a' && r <= 'z' {
					r -= 'a' - 'A'
				}
				out += string(r)
			}
			return OK("value", out), nil
		},
	})

	reg.Register(&Definition{
		ID: "boom",
		Exec: func(ctx context.Context, in Inputs, rc *RunContext, props Properties) (Outputs, error) {
			return nil, errors.New("infrastructure down")
		},
	})

	reg.Register(&Definition{
		ID:     "counter",
		Inputs: []Port{{Name: "limit", Type: TypeNumber}},
		Outputs: []Port{
			{Name: "count", Type: TypeNumber},
			{Name: "_branch", Type: TypeString},
		},
		Exec: func(ctx context.Context, in Inputs, rc *RunContext, props Properties) (Outputs, error) {
			n, _ := rc.Get("count")
			count, _ := n.(int)
			count++
			rc.Set("count", count)
			limit, _ := in.Number("limit")
			branch := "again"
			if float64(count) >= limit {
				branch = "done"
			}
			return Outputs{"success": true, "count": count, "_branch": branch}, nil
		},
	})

	return reg
}

func runPlan(t *testing.T, reg *Registry, plan *Plan, seed Inputs) (*Result, *RunContext) {
	t.Helper()
	rc := NewRunContext("user-1", "session-1", ModeAssisted)
	res, err := NewExecutor(reg).Run(context.Background(), plan, rc, seed)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res, rc
}

// --- tests ---

func TestExecutor_NamedFallthrough(t *testing.T) {
	reg := newTestRegistry()
	plan := &Plan{
		Name: "linear",
		Steps: []Step{
			{NodeID: "emit", Properties: Properties{"value": "hello"}},
			{NodeID: "upper"},
		},
	}

	res, _ := runPlan(t, reg, plan, nil)

	if got := res.Final["value"]; got != "HELLO" {
		t.Fatalf("final value = %v, want HELLO", got)
	}
}

func TestExecutor_SlotBinding(t *testing.T) {
	reg := newTestRegistry()

	// renamer declares a differently named input; only the slot wires it.
	reg.Register(&Definition{
		ID:      "renamer",
		Inputs:  []Port{{Name: "text", Type: TypeString}},
		Outputs: []Port{{Name: "text", Type: TypeString}},
		Exec: func(ctx context.Context, in Inputs, rc *RunContext, props Properties) (Outputs, error) {
			return OK("text", in.String("text")), nil
		},
	})

	plan := &Plan{
		Name: "slots",
		Steps: []Step{
			{NodeID: "emit", Properties: Properties{"value": "positional"}},
			{NodeID: "renamer", Bindings: []Binding{{Input: "text", Slot: 1}}},
		},
	}

	res, _ := runPlan(t, reg, plan, nil)
	if got := res.Final["text"]; got != "positional" {
		t.Fatalf("slot-bound text = %v, want positional", got)
	}
}

func TestExecutor_ContextAndLiteralBindings(t *testing.T) {
	reg := newTestRegistry()
	plan := &Plan{
		Name: "bindings",
		Steps: []Step{
			{NodeID: "upper", Bindings: []Binding{{Input: "value", ContextKey: "greeting"}}},
		},
	}

	rc := NewRunContext("user-1", "session-1", ModeAssisted)
	rc.Set("greeting", "hi")
	res, err := NewExecutor(reg).Run(context.Background(), plan, rc, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := res.Final["value"]; got != "HI" {
		t.Fatalf("context-bound value = %v, want HI", got)
	}

	plan.Steps[0].Bindings = []Binding{{Input: "value", Literal: "bye"}}
	res, _ = runPlan(t, reg, plan, nil)
	if got := res.Final["value"]; got != "BYE" {
		t.Fatalf("literal-bound value = %v, want BYE", got)
	}
}

func TestExecutor_SeedFeedsFirstStep(t *testing.T) {
	reg := newTestRegistry()
	plan := &Plan{Name: "seeded", Steps: []Step{{NodeID: "upper"}}}

	res, _ := runPlan(t, reg, plan, Inputs{"value": "seeded"})
	if got := res.Final["value"]; got != "SEEDED" {
		t.Fatalf("seeded value = %v, want SEEDED", got)
	}
}

func TestExecutor_InBandFailureDoesNotAbort(t *testing.T) {
	reg := newTestRegistry()
	plan := &Plan{
		Name: "validation",
		Steps: []Step{
			{NodeID: "upper"}, // no input anywhere: in-band failure
			{NodeID: "emit", Properties: Properties{"value": "after"}},
		},
	}

	res, _ := runPlan(t, reg, plan, nil)

	first := res.StepOutputs["upper"]
	if !Failed(first) {
		t.Fatalf("upper output = %v, want in-band failure", first)
	}
	if got := res.Final["value"]; got != "after" {
		t.Fatalf("run did not continue past validation failure: final=%v", res.Final)
	}
}

func TestExecutor_InfrastructureErrorAborts(t *testing.T) {
	reg := newTestRegistry()
	plan := &Plan{Name: "abort", Steps: []Step{{NodeID: "boom"}, {NodeID: "emit"}}}

	rc := NewRunContext("user-1", "session-1", ModeAssisted)
	_, err := NewExecutor(reg).Run(context.Background(), plan, rc, nil)
	if err == nil || err.Error() == "" {
		t.Fatal("expected run abort on infrastructure error")
	}
}

func TestExecutor_RoutesFormLoop(t *testing.T) {
	reg := newTestRegistry()
	plan := &Plan{
		Name: "loop",
		Steps: []Step{
			{
				Name:       "tick",
				NodeID:     "counter",
				Bindings:   []Binding{{Input: "limit", Literal: 3}},
				Routes:     map[string]string{"again": "tick", "done": DoneStep},
				Properties: nil,
			},
			{NodeID: "boom"}, // unreachable: the loop exits via _done
		},
	}

	res, rc := runPlan(t, reg, plan, nil)

	count, _ := rc.Get("count")
	if count != 3 {
		t.Fatalf("loop ran %v times, want 3", count)
	}
	if res.Hops != 3 {
		t.Fatalf("hops = %d, want 3", res.Hops)
	}
}

func TestExecutor_HopBudget(t *testing.T) {
	reg := newTestRegistry()
	plan := &Plan{
		Name: "unbounded",
		Steps: []Step{
			{
				Name:     "tick",
				NodeID:   "counter",
				Bindings: []Binding{{Input: "limit", Literal: 1 << 30}},
				Routes:   map[string]string{"again": "tick"},
			},
		},
	}

	rc := NewRunContext("user-1", "session-1", ModeAssisted)
	_, err := NewExecutor(reg, WithMaxHops(10)).Run(context.Background(), plan, rc, nil)
	if !errors.Is(err, ErrHopBudget) {
		t.Fatalf("err = %v, want ErrHopBudget", err)
	}
}

func TestExecutor_UnknownNode(t *testing.T) {
	reg := newTestRegistry()
	plan := &Plan{Name: "missing", Steps: []Step{{NodeID: "nope"}}}

	rc := NewRunContext("user-1", "session-1", ModeAssisted)
	_, err := NewExecutor(reg).Run(context.Background(), plan, rc, nil)
	if !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("err = %v, want ErrNodeNotFound", err)
	}
}

func TestExecutor_PublishesStepOutputsToContext(t *testing.T) {
	reg := newTestRegistry()
	plan := &Plan{
		Name:  "publish",
		Steps: []Step{{Name: "first", NodeID: "emit", Properties: Properties{"value": "v"}}},
	}

	_, rc := runPlan(t, reg, plan, nil)
	got, ok := rc.Get("first.value")
	if !ok || got != "v" {
		t.Fatalf("rc[first.value] = %v (%v), want v", got, ok)
	}
}

func TestMergeProperties(t *testing.T) {
	defaults := Properties{"a": 1, "b": 2}
	overrides := Properties{"b": 3}

	got := mergeProperties(defaults, overrides)
	want := Properties{"a": 1, "b": 3}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("mergeProperties mismatch (-want +got):\n%s", diff)
	}
}
