package qao

import "container/list"

// schedEntry is the payload stored in the orderer's list.List. el is set to
// nil when the entry is unlinked, which lets forEachEligible tell whether
// the element it was holding a reference to was unlinked by a callback (the
// object self-detached, or detached a sibling that happened to be next)
// during the very call that was stepping it -- container/list's own Element
// carries no such signal once Remove has been called on it.
type schedEntry struct {
	id   ObjectId
	ctx  *Context
	el   *list.Element
}

// orderer keeps attached objects sorted by descending priority, breaking
// ties by a stable per-object token assigned at attach time, and supports
// inserting/removing while a pass over it is in progress.
type orderer struct {
	l *list.List
}

func newOrderer() *orderer {
	return &orderer{l: list.New()}
}

func less(a, b *schedEntry) bool {
	if a.ctx.priority != b.ctx.priority {
		return a.ctx.priority > b.ctx.priority
	}
	return a.ctx.token < b.ctx.token
}

// insert places e in priority order, walking from the front. Scheduler sizes
// are small enough in practice (one per chunk/connection/replicated entity,
// not per-cell) that O(n) insertion is the right tradeoff for simplicity,
// matching the original's own std::set-based ordering.
func (o *orderer) insert(e *schedEntry) {
	for el := o.l.Front(); el != nil; el = el.Next() {
		if less(e, el.Value.(*schedEntry)) {
			e.el = o.l.InsertBefore(e, el)
			return
		}
	}
	e.el = o.l.PushBack(e)
}

func (o *orderer) remove(e *schedEntry) {
	if e.el == nil {
		return
	}
	o.l.Remove(e.el)
	e.el = nil
}

// updatePriority re-homes e after its priority changed.
func (o *orderer) updatePriority(e *schedEntry) {
	o.remove(e)
	o.insert(e)
}

func (o *orderer) len() int {
	return o.l.Len()
}

// forEachEligible walks the ordered list once, invoking fn for every entry
// not yet visited during this walk and stamping its stepOrdinal to target
// first.
//
// fn is free to attach, detach, or reprioritize arbitrary objects, including
// the one currently being stepped -- the exact mid-callback mutation the
// original runtime's memcmp-on-iterator trick guards against. Rather than
// track list.Element identity across an arbitrary mutation (container/list's
// Element exposes no "was this unlinked" signal once something else has
// touched the list), the walk restarts from the front whenever the entry it
// was about to resume from is gone, and relies on a per-walk visited set to
// skip entries it has already stepped: restarting never re-invokes fn for
// an entry visited earlier in the same walk. The visited set, not the
// stepOrdinal stamp, decides eligibility because one Context is shared by
// all twelve event orderers and every event's target is the same within a
// Step.
func (o *orderer) forEachEligible(target int64, fn func(e *schedEntry)) {
	visited := make(map[*schedEntry]struct{}, o.l.Len())
	curr := o.l.Front()
	for curr != nil {
		e := curr.Value.(*schedEntry)
		if _, done := visited[e]; done {
			curr = curr.Next()
			continue
		}
		visited[e] = struct{}{}
		e.ctx.stepOrdinal = target
		next := curr.Next()
		fn(e)
		if e.el == nil || next == nil || next.Value.(*schedEntry).el == nil {
			curr = o.l.Front()
			continue
		}
		curr = next
	}
}

// first returns the first entry in priority order, or nil if empty.
func (o *orderer) first() *schedEntry {
	if el := o.l.Front(); el != nil {
		return el.Value.(*schedEntry)
	}
	return nil
}
