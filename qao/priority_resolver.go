package qao

// PriorityResolver assigns stepping priorities to a set of named categories
// from a declared dependency graph, the way QAO_PriorityResolver2 resolves
// its engine's fixed category list: every category that some other category
// "depends on" must receive a numerically higher priority (it steps first).
type PriorityResolver struct {
	step     int32
	counter  int32
	started  bool
	order    []string
	index    map[string]int
	priority map[string]int32
	assigned map[string]bool
	dependsOn map[string]map[string]struct{}
}

// NewPriorityResolver creates a resolver that assigns descending priorities
// starting at startPriority and decreasing by step for each category
// resolved, matching the original's _priorityCounter/_priorityStep fields.
func NewPriorityResolver(startPriority, step int32) *PriorityResolver {
	if step <= 0 {
		step = 1
	}
	return &PriorityResolver{
		step:      step,
		counter:   startPriority,
		index:     map[string]int{},
		priority:  map[string]int32{},
		assigned:  map[string]bool{},
		dependsOn: map[string]map[string]struct{}{},
	}
}

// Category declares a category by name. Declaring the same name twice is a
// no-op. Categories must be declared before Resolve is called.
func (r *PriorityResolver) Category(name string) {
	if _, ok := r.index[name]; ok {
		return
	}
	r.index[name] = len(r.order)
	r.order = append(r.order, name)
	r.dependsOn[name] = map[string]struct{}{}
}

// CategoryDependsOn records that `name` is assigned its priority only after
// `dependency` has been, so `dependency` gets the higher priority and steps
// before `name`. Both must already be declared via
// Category; referencing an undeclared category returns ErrUndefinedCategory.
func (r *PriorityResolver) CategoryDependsOn(name, dependency string) error {
	if _, ok := r.index[name]; !ok {
		return ErrUndefinedCategory
	}
	if _, ok := r.index[dependency]; !ok {
		return ErrUndefinedCategory
	}
	r.dependsOn[name][dependency] = struct{}{}
	return nil
}

// Resolve runs the two-phase assignment: repeatedly scan all categories for
// one with an unassigned priority whose dependencies (the categories that
// must step before it) are all already assigned, give it the next priority
// value, and repeat. If a full scan assigns nothing while categories remain
// unassigned, the remainder forms a cycle and Resolve fails with
// ErrCyclicDependencies -- mirroring resolveAll's own "no progress this
// pass" cycle check rather than per-node cycle detection. The error does
// not name the categories involved.
func (r *PriorityResolver) Resolve() error {
	remaining := append([]string(nil), r.order...)
	for len(remaining) > 0 {
		progressed := false
		var next []string
		for _, name := range remaining {
			if r.assigned[name] {
				continue
			}
			if r.dependenciesSatisfied(name) {
				r.priority[name] = r.counter
				r.counter -= r.step
				r.assigned[name] = true
				progressed = true
			} else {
				next = append(next, name)
			}
		}
		if !progressed {
			return ErrCyclicDependencies
		}
		remaining = next
	}
	r.started = true
	return nil
}

func (r *PriorityResolver) dependenciesSatisfied(name string) bool {
	for dep := range r.dependsOn[name] {
		if !r.assigned[dep] {
			return false
		}
	}
	return true
}

// Priority returns the priority assigned to name by the last successful
// Resolve call. ok is false if name was never declared or Resolve has not
// been run.
func (r *PriorityResolver) Priority(name string) (priority int32, ok bool) {
	if !r.started {
		return 0, false
	}
	p, ok := r.priority[name]
	return p, ok
}
