package graph

import (
	"context"
	"fmt"
	"log/slog"

	"volition/internal/logging"
)

// DoneStep is the pseudo-step a route may target to finish the run early.
const DoneStep = "_done"

// branchPort is the reserved output consumed by Step.Routes.
const branchPort = "_branch"

// Binding wires one input port of a step. Exactly one source field is
// consulted, checked in this order: Literal, ContextKey, FromStep, Slot.
type Binding struct {
	Input string // target input port name

	Literal    any    // fixed value
	ContextKey string // read rc.Vars[key]
	FromStep   string // read a named upstream step's output...
	FromPort   string // ...at this port (defaults to Input)
	Slot       int    // positional: 1-based declared output of the previous step (0 = unset)
}

// Step is one node invocation in a plan. Name must be unique within the
// plan (defaults to NodeID). Routes maps a "_branch" output value to the
// next step name, letting control-flow nodes re-enter earlier steps; the
// empty-string key is an unconditional override. Absent a matching route,
// execution falls through to the next step in order.
type Step struct {
	Name       string
	NodeID     string
	Properties Properties
	Bindings   []Binding
	Routes     map[string]string
}

// Plan is an ordered wiring of steps. Cycles are expressed via Routes and
// bounded by the executor's hop budget.
type Plan struct {
	Name  string
	Steps []Step
}

// Result collects per-step outputs (last invocation wins for re-entered
// steps) plus the outputs of the final step executed.
type Result struct {
	StepOutputs map[string]Outputs
	Final       Outputs
	Hops        int
}

// Executor drives plans against a registry. One executor serves many
// concurrent runs; all per-run state lives in the RunContext and locals.
type Executor struct {
	reg     *Registry
	maxHops int
	log     *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithMaxHops overrides the hop budget (default 256 step invocations).
func WithMaxHops(n int) ExecutorOption {
	return func(e *Executor) { e.maxHops = n }
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(reg *Registry, opts ...ExecutorOption) *Executor {
	e := &Executor{
		reg:     reg,
		maxHops: 256,
		log:     logging.New("graph"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the plan. seed feeds unbound inputs of the first step.
//
// Input resolution per declared port, in order: an explicit Binding, the
// upstream step's same-named output, the upstream step's positional slot
// (nth declared output feeds nth declared input), a context var of the
// same name, and for the first step the seed map. An unresolved optional
// port stays absent and never fails the run; an unresolved required port
// is also passed through absent — detecting and reporting it in-band is
// the consuming node's contract, not the executor's.
//
// A node returning an error aborts the run (infrastructure failure); an
// in-band {success:false} output is ordinary data that routes may branch on.
func (e *Executor) Run(ctx context.Context, plan *Plan, rc *RunContext, seed Inputs) (*Result, error) {
	index := make(map[string]int, len(plan.Steps))
	for i := range plan.Steps {
		name := plan.Steps[i].Name
		if name == "" {
			name = plan.Steps[i].NodeID
			plan.Steps[i].Name = name
		}
		index[name] = i
	}

	res := &Result{StepOutputs: make(map[string]Outputs, len(plan.Steps))}

	var (
		prevName string
		prevDef  *Definition
	)

	pos := 0
	for pos < len(plan.Steps) {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if res.Hops >= e.maxHops {
			return res, fmt.Errorf("%w: plan %s after %d hops", ErrHopBudget, plan.Name, res.Hops)
		}
		res.Hops++

		step := &plan.Steps[pos]
		def, ok := e.reg.Lookup(step.NodeID)
		if !ok {
			return res, fmt.Errorf("%w: %q in plan %s", ErrNodeNotFound, step.NodeID, plan.Name)
		}

		in := e.resolveInputs(step, def, rc, res, prevName, prevDef, seed, pos == 0)
		props := mergeProperties(def.Defaults, step.Properties)

		out, err := def.Exec(ctx, in, rc, props)
		if err != nil {
			return res, fmt.Errorf("step %s (node %s): %w", step.Name, def.ID, err)
		}
		if out == nil {
			out = Outputs{}
		}

		res.StepOutputs[step.Name] = out
		res.Final = out
		for _, port := range def.Outputs {
			if v, ok := out[port.Name]; ok {
				rc.Set(step.Name+"."+port.Name, v)
			}
		}

		prevName, prevDef = step.Name, def

		next, err := e.route(step, out, index)
		if err != nil {
			return res, err
		}
		switch next {
		case -1:
			pos++
		case -2:
			return res, nil
		default:
			pos = next
		}
	}

	return res, nil
}

// route returns the next step index, -1 for sequential fall-through, or
// -2 when a route targets the done pseudo-step.
func (e *Executor) route(step *Step, out Outputs, index map[string]int) (int, error) {
	if len(step.Routes) == 0 {
		return -1, nil
	}
	branch, _ := out[branchPort].(string)
	target, ok := step.Routes[branch]
	if !ok {
		target, ok = step.Routes[""]
	}
	if !ok {
		return -1, nil
	}
	if target == DoneStep {
		return -2, nil
	}
	i, ok := index[target]
	if !ok {
		return 0, fmt.Errorf("%w: route %q -> %q from step %s", ErrStepNotFound, branch, target, step.Name)
	}
	return i, nil
}

func (e *Executor) resolveInputs(step *Step, def *Definition, rc *RunContext, res *Result, prevName string, prevDef *Definition, seed Inputs, first bool) Inputs {
	bound := make(map[string]Binding, len(step.Bindings))
	for _, b := range step.Bindings {
		bound[b.Input] = b
	}

	var prevOut Outputs
	if prevName != "" {
		prevOut = res.StepOutputs[prevName]
	}

	in := make(Inputs, len(def.Inputs))
	for i, port := range def.Inputs {
		if b, ok := bound[port.Name]; ok {
			if v, ok := e.resolveBinding(b, port, rc, res, prevDef, prevOut); ok {
				in[port.Name] = v
			}
			continue
		}
		// Named fall-through from the previous step.
		if v, ok := prevOut[port.Name]; ok {
			in[port.Name] = v
			continue
		}
		// Positional slot: nth upstream output feeds nth input.
		if prevDef != nil && i < len(prevDef.Outputs) {
			if v, ok := prevOut[prevDef.Outputs[i].Name]; ok {
				in[port.Name] = v
				continue
			}
		}
		if v, ok := rc.Get(port.Name); ok {
			in[port.Name] = v
			continue
		}
		if first {
			if v, ok := seed[port.Name]; ok {
				in[port.Name] = v
			}
		}
	}
	return in
}

func (e *Executor) resolveBinding(b Binding, port Port, rc *RunContext, res *Result, prevDef *Definition, prevOut Outputs) (any, bool) {
	switch {
	case b.Literal != nil:
		return b.Literal, true
	case b.ContextKey != "":
		return rc.Get(b.ContextKey)
	case b.FromStep != "":
		out, ok := res.StepOutputs[b.FromStep]
		if !ok {
			return nil, false
		}
		fromPort := b.FromPort
		if fromPort == "" {
			fromPort = port.Name
		}
		v, ok := out[fromPort]
		return v, ok
	case b.Slot > 0:
		if prevDef == nil || b.Slot > len(prevDef.Outputs) {
			return nil, false
		}
		v, ok := prevOut[prevDef.Outputs[b.Slot-1].Name]
		return v, ok
	}
	return nil, false
}

func mergeProperties(defaults, overrides Properties) Properties {
	if len(defaults) == 0 && len(overrides) == 0 {
		return Properties{}
	}
	merged := make(Properties, len(defaults)+len(overrides))
	for k, v := range defaults {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
