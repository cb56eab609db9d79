package qao

// Token authorizes construction of an object that is about to be attached to
// a Scheduler. Scheduler.Create is the only way to obtain one, and the
// interface's method is unexported, so no type outside this package can
// implement Token -- a plain exported marker struct would not do this, since
// an empty composite literal of an exported zero-field struct compiles from
// any importing package regardless of unexported fields.
type Token interface {
	sealed()
}

type token struct{}

func (token) sealed() {}

// Constructor builds a T given a construction Token, the name and initial
// priority Create was called with, and the Scheduler it is being attached
// to. Implementations embed Base and must not retain tok.
type Constructor[T Object] func(tok Token, sched *Scheduler, name string, priority int32) (T, error)
