package qao

import "errors"

// Sentinel errors returned by the scheduler. They classify failures the way
// the engine's error kinds table does: InvalidArgument and PreconditionNotMet
// are fail-fast caller errors, never silent corruption.
var (
	// ErrInvalidArgument is returned when a caller-supplied argument violates
	// an API precondition (e.g. a nil constructor, or a constructor that
	// returns a nil object).
	ErrInvalidArgument = errors.New("qao: invalid argument")

	// ErrAlreadyAttached is returned by Create when the constructed object
	// already has a non-nil Scheduler.
	ErrAlreadyAttached = errors.New("qao: object is already attached to a scheduler")

	// ErrNotAttached is returned by Detach/lookup operations when the object
	// or id is not currently attached to this scheduler.
	ErrNotAttached = errors.New("qao: object is not attached to this scheduler")

	// ErrCyclicDependencies is returned by PriorityResolver.Resolve when the
	// declared precedence/dependency graph contains a cycle.
	ErrCyclicDependencies = errors.New("qao: cyclic dependencies among priority categories")

	// ErrUndefinedCategory is returned by PriorityResolver.CategoryDependsOn
	// when either category it names has not been declared.
	ErrUndefinedCategory = errors.New("qao: undefined priority category")
)
