package graph

import "errors"

var (
	// ErrNodeNotFound is returned when a plan references an unregistered node.
	ErrNodeNotFound = errors.New("node not found")
	// ErrStepNotFound is returned when a route targets a nonexistent step.
	ErrStepNotFound = errors.New("step not found")
	// ErrHopBudget is returned when a run exceeds its hop budget. Loops in
	// a plan are legal; unbounded ones are not.
	ErrHopBudget = errors.New("hop budget exhausted")
)
