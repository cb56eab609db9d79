package qao

import (
	"log/slog"

	"github.com/segmentio/fasthash/fnv1a"
)

// minStepOrdinal is the sentinel every newly attached object starts at. It
// is far enough behind any live step counter that a freshly attached object
// is always eligible for the event pass currently in progress, the same
// guarantee QAO_Runtime gives a handle attached mid-step.
const minStepOrdinal = int64(-1) << 62

// RuntimeConfig configures a Scheduler. Zero value is usable; Logger
// defaults to slog.Default().
type RuntimeConfig struct {
	Logger *slog.Logger
}

// Scheduler attaches, orders, and steps Objects through a fixed sequence of
// twelve events per Step call, in strictly descending-priority order within
// each event, the way QAO_Runtime drives its attached objects.
type Scheduler struct {
	log      *slog.Logger
	arena    arena
	orderers [eventCount]*orderer
	handlers map[ObjectId]*eventTable
	entries  map[ObjectId]map[EventID]*schedEntry
	counters [eventCount]int64
	userData any
}

// eventTable caches, per attached object and per event, whether the object
// implements that event's optional interface -- computed once at attach
// time so stepping never repeats a type assertion.
type eventTable [eventCount]func()

func NewScheduler(cfg RuntimeConfig) *Scheduler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Scheduler{
		log:      log.With("subsystem", "qao"),
		handlers: map[ObjectId]*eventTable{},
		entries:  map[ObjectId]map[EventID]*schedEntry{},
	}
	for i := range s.orderers {
		s.orderers[i] = newOrderer()
		s.counters[i] = minStepOrdinal + 1
	}
	return s
}

// SetUserData stashes an opaque value on the scheduler for host code to
// retrieve from within object callbacks, e.g. a sibling gridgoblin.World or
// rigelnet.Server the objects need to reach without a package-level global.
func (s *Scheduler) SetUserData(v any) {
	s.userData = v
}

// UserData returns the value last passed to SetUserData, or nil.
func (s *Scheduler) UserData() any {
	return s.userData
}

// Create builds and attaches a new object of type T using ctor, assigning it
// name and priority. It returns an OwningHandle the caller is responsible
// for eventually Destroy-ing (or explicitly Releasing to another owner).
func Create[T Object](s *Scheduler, ctor Constructor[T], name string, priority int32) (OwningHandle[T], error) {
	if ctor == nil {
		return OwningHandle[T]{}, ErrInvalidArgument
	}
	obj, err := ctor(token{}, s, name, priority)
	if err != nil {
		var zero OwningHandle[T]
		return zero, err
	}
	id, err := s.attach(obj, name, priority)
	if err != nil {
		var zero OwningHandle[T]
		return zero, err
	}
	return NewOwningHandle[T](s, id), nil
}

// attach runs SetUp (if implemented), registers obj with the scheduler, and
// then runs DidAttach (if implemented). A SetUp failure tears the object
// down via TearDown (if implemented) without ever registering it.
func (s *Scheduler) attach(obj Object, name string, priority int32) (ObjectId, error) {
	if obj == nil {
		return NullObjectId, ErrInvalidArgument
	}
	ctx := obj.Context()
	if ctx == nil {
		return NullObjectId, ErrInvalidArgument
	}
	if ctx.isAttached() {
		return NullObjectId, ErrAlreadyAttached
	}

	if v, ok := obj.(SetUpper); ok {
		if err := v.SetUp(); err != nil {
			if t, ok := obj.(TearDowner); ok {
				t.TearDown()
			}
			return NullObjectId, err
		}
	}

	id := s.arena.alloc(obj)
	ctx.id = id
	ctx.scheduler = s
	ctx.name = name
	ctx.priority = priority
	ctx.token = fnv1a.HashUint64(uint64(id.Index)<<32 | uint64(id.Serial))
	ctx.stepOrdinal = minStepOrdinal

	table := buildEventTable(obj)
	s.handlers[id] = table
	perEvent := make(map[EventID]*schedEntry, eventCount)
	for evt := EventID(0); evt < eventCount; evt++ {
		if table[evt] == nil {
			continue
		}
		e := &schedEntry{id: id, ctx: ctx}
		s.orderers[evt].insert(e)
		perEvent[evt] = e
	}
	s.entries[id] = perEvent
	s.log.Debug("object attached", "id", id, "name", name, "priority", priority)

	if v, ok := obj.(DidAttacher); ok {
		v.DidAttach()
	}
	return id, nil
}

func buildEventTable(obj Object) *eventTable {
	var t eventTable
	if v, ok := obj.(PreUpdater); ok {
		t[EventPreUpdate] = v.PreUpdate
	}
	if v, ok := obj.(BeginUpdater); ok {
		t[EventBeginUpdate] = v.BeginUpdate
	}
	if v, ok := obj.(Update1er); ok {
		t[EventUpdate1] = v.Update1
	}
	if v, ok := obj.(Update2er); ok {
		t[EventUpdate2] = v.Update2
	}
	if v, ok := obj.(EndUpdater); ok {
		t[EventEndUpdate] = v.EndUpdate
	}
	if v, ok := obj.(PostUpdater); ok {
		t[EventPostUpdate] = v.PostUpdate
	}
	if v, ok := obj.(PreDrawer); ok {
		t[EventPreDraw] = v.PreDraw
	}
	if v, ok := obj.(Draw1er); ok {
		t[EventDraw1] = v.Draw1
	}
	if v, ok := obj.(Draw2er); ok {
		t[EventDraw2] = v.Draw2
	}
	if v, ok := obj.(DrawGUIer); ok {
		t[EventDrawGUI] = v.DrawGUI
	}
	if v, ok := obj.(PostDrawer); ok {
		t[EventPostDraw] = v.PostDraw
	}
	if v, ok := obj.(Displayer); ok {
		t[EventDisplay] = v.Display
	}
	return &t
}

// detach removes the object at id from the scheduler -- used by Detach and
// internally by destroy. Runs WillDetach (if implemented), then removes obj from every
// event orderer and resets its Context, then runs TearDown (if
// implemented), then frees its arena slot.
func (s *Scheduler) detach(id ObjectId) error {
	obj, ok := s.arena.get(id)
	if !ok {
		return ErrNotAttached
	}
	ctx := obj.Context()

	if v, ok := obj.(WillDetacher); ok {
		v.WillDetach()
	}

	for evt, e := range s.entries[id] {
		s.orderers[evt].remove(e)
	}
	delete(s.entries, id)
	delete(s.handlers, id)

	ctx.scheduler = nil
	ctx.id = NullObjectId

	if v, ok := obj.(TearDowner); ok {
		v.TearDown()
	}
	s.arena.free(id)
	return nil
}

// destroy detaches and discards the object at id. Errors are swallowed the
// way a double-Destroy on an already-gone handle is a no-op, not a fault.
func (s *Scheduler) destroy(id ObjectId) {
	_ = s.detach(id)
}

// find resolves id to its live Object, or ok=false.
func (s *Scheduler) find(id ObjectId) (Object, bool) {
	return s.arena.get(id)
}

// Count returns the number of currently attached objects.
func (s *Scheduler) Count() int {
	return s.arena.count()
}

// Ids returns the ObjectIds of every currently attached object, for
// tooling (e.g. cmd/engineconsole's "objects" command) that needs to list
// them; scheduling itself never iterates this way.
func (s *Scheduler) Ids() []ObjectId {
	return s.arena.ids()
}

// Find resolves id to its attached object, or ok=false if id is null, stale,
// or belongs to a different scheduler.
func (s *Scheduler) Find(id ObjectId) (obj Object, ok bool) {
	return s.arena.get(id)
}

// Detach removes the object at id from scheduling without destroying it.
// Callers that want the object gone entirely should use OwningHandle.Destroy
// instead; Detach is for handing an object's lifetime to code outside the
// scheduler (e.g. pooling it for reuse).
func (s *Scheduler) Detach(id ObjectId) error {
	return s.detach(id)
}

// SetPriority changes id's priority and re-homes it in every event orderer
// it participates in. It is safe to call from within a Step callback,
// including on the object currently being stepped.
func (s *Scheduler) SetPriority(id ObjectId, priority int32) error {
	obj, ok := s.arena.get(id)
	if !ok {
		return ErrNotAttached
	}
	ctx := obj.Context()
	ctx.priority = priority
	for evt, e := range s.entries[id] {
		s.orderers[evt].updatePriority(e)
	}
	return nil
}

// Step runs exactly one pass of all twelve events, each in strictly
// descending-priority order over the objects implementing that event,
// mirroring QAO_Runtime::startStep+advanceStep: the step counter for an
// event is incremented exactly once per event, before its orderer is
// walked, not once per object, so self-attached objects (attached by a
// callback during this very pass) are eligible immediately and self-detached
// objects are skipped safely regardless of when during the pass they leave.
func (s *Scheduler) Step() {
	for evt := EventID(0); evt < eventCount; evt++ {
		s.counters[evt]++
		target := s.counters[evt]
		s.orderers[evt].forEachEligible(target, func(e *schedEntry) {
			table := s.handlers[e.id]
			if table == nil {
				return
			}
			if fn := table[evt]; fn != nil {
				fn()
			}
		})
	}
}
