package spempe

import (
	"log/slog"

	"github.com/brentp/intintmap"
)

// SyncId is the stable, process-wide identifier remote peers use to
// address a replicated object. The zero value is reserved (SyncIdNew)
// and never assigned to a live object.
type SyncId int64

// SyncIdNew is the sentinel a caller passes (or receives) meaning "no id
// assigned yet" -- RegisterMaster never returns it, RegisterDummy never
// accepts it.
const SyncIdNew SyncId = 0

// RuntimeConfig configures a Registry. The zero value is usable.
type RuntimeConfig struct {
	Logger *slog.Logger
}

type regEntry struct {
	sid SyncId
	obj any
}

// deactKey identifies one (SyncId, client) replication relationship.
type deactKey struct {
	sid    SyncId
	client int
}

// Registry issues SyncIds to masters, accepts dummies under given SyncIds,
// provides id<->object lookup, and tracks per-step created/updated/
// destroyed sets for the sync engine to drain every step.
type Registry struct {
	log *slog.Logger

	nextID int64
	bySid  *intintmap.Map // SyncId -> index into slots
	slots  []regEntry
	free   []int64

	byObj map[any]SyncId

	created   map[SyncId]struct{}
	updated   map[SyncId]struct{}
	destroyed map[SyncId]struct{}

	deactivated map[deactKey]bool
}

// NewRegistry creates an empty Registry.
func NewRegistry(cfg RuntimeConfig) *Registry {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		log:         log.With("subsystem", "spempe.registry"),
		nextID:      1,
		bySid:       intintmap.New(64, 0.6),
		byObj:       map[any]SyncId{},
		created:     map[SyncId]struct{}{},
		updated:     map[SyncId]struct{}{},
		destroyed:   map[SyncId]struct{}{},
		deactivated: map[deactKey]bool{},
	}
}

func (r *Registry) put(sid SyncId, obj any) {
	idx := int64(len(r.slots))
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
		r.slots[idx] = regEntry{sid: sid, obj: obj}
	} else {
		r.slots = append(r.slots, regEntry{sid: sid, obj: obj})
	}
	r.bySid.Put(int64(sid), idx)
	r.byObj[obj] = sid
}

// RegisterMaster assigns obj a fresh SyncId and registers it, the
// server-side half of §4.B's registration operations.
func (r *Registry) RegisterMaster(obj any) (SyncId, error) {
	if obj == nil {
		return SyncIdNew, ErrInvalidArgument
	}
	sid := SyncId(r.nextID)
	r.nextID++
	r.put(sid, obj)
	r.markCreatedLocked(sid)
	return sid, nil
}

// RegisterDummy inserts obj under a SyncId chosen by the master side (the
// client-side half of registration). It fails if sid is already taken.
func (r *Registry) RegisterDummy(obj any, sid SyncId) error {
	if obj == nil || sid == SyncIdNew {
		return ErrInvalidArgument
	}
	if _, ok := r.bySid.Get(int64(sid)); ok {
		return ErrSyncIdTaken
	}
	r.put(sid, obj)
	r.markCreatedLocked(sid)
	return nil
}

// Unregister removes obj's mapping entirely and marks it destroyed for the
// current step's outgoing diff.
func (r *Registry) Unregister(obj any) error {
	sid, ok := r.byObj[obj]
	if !ok {
		return ErrNotRegistered
	}
	idx, _ := r.bySid.Get(int64(sid))
	r.bySid.Del(int64(sid))
	r.slots[idx] = regEntry{}
	r.free = append(r.free, idx)
	delete(r.byObj, obj)
	r.markDestroyedLocked(sid)
	return nil
}

// GetMapping resolves sid to its live object, or ok=false.
func (r *Registry) GetMapping(sid SyncId) (obj any, ok bool) {
	idx, found := r.bySid.Get(int64(sid))
	if !found {
		return nil, false
	}
	return r.slots[idx].obj, true
}

// SyncIdOf returns the SyncId obj is registered under, or ok=false.
func (r *Registry) SyncIdOf(obj any) (sid SyncId, ok bool) {
	sid, ok = r.byObj[obj]
	return sid, ok
}

func (r *Registry) markCreatedLocked(sid SyncId) {
	delete(r.destroyed, sid)
	r.created[sid] = struct{}{}
}

// MarkCreated flags sid as created during the current step.
func (r *Registry) MarkCreated(sid SyncId) { r.markCreatedLocked(sid) }

// MarkUpdated flags sid as updated during the current step.
func (r *Registry) MarkUpdated(sid SyncId) {
	r.updated[sid] = struct{}{}
}

func (r *Registry) markDestroyedLocked(sid SyncId) {
	if _, wasCreated := r.created[sid]; wasCreated {
		// Created and destroyed within the same step: transient
		// birth-death, omitted from the outgoing diff entirely.
		delete(r.created, sid)
		delete(r.updated, sid)
		return
	}
	r.destroyed[sid] = struct{}{}
	delete(r.updated, sid)
}

// MarkDestroyed flags sid as destroyed during the current step.
func (r *Registry) MarkDestroyed(sid SyncId) { r.markDestroyedLocked(sid) }

// StepDiff is the drained set of per-step changes returned by
// FlushStateUpdates.
type StepDiff struct {
	Created   []SyncId
	Updated   []SyncId
	Destroyed []SyncId
}

// FlushStateUpdates drains and clears the created/updated/destroyed sets
// accumulated since the last call, in the Create-before-Update-before-
// Destroy order the sync engine composes updates in.
func (r *Registry) FlushStateUpdates() StepDiff {
	diff := StepDiff{
		Created:   setKeys(r.created),
		Updated:   setKeys(r.updated),
		Destroyed: setKeys(r.destroyed),
	}
	r.created = map[SyncId]struct{}{}
	r.updated = map[SyncId]struct{}{}
	r.destroyed = map[SyncId]struct{}{}
	return diff
}

func setKeys(m map[SyncId]struct{}) []SyncId {
	if len(m) == 0 {
		return nil
	}
	out := make([]SyncId, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// SetDeactivated records whether sid is currently deactivated for client.
func (r *Registry) SetDeactivated(sid SyncId, client int, deactivated bool) {
	key := deactKey{sid: sid, client: client}
	if !deactivated {
		delete(r.deactivated, key)
		return
	}
	r.deactivated[key] = true
}

// IsDeactivated reports whether sid is currently deactivated for client.
func (r *Registry) IsDeactivated(sid SyncId, client int) bool {
	return r.deactivated[deactKey{sid: sid, client: client}]
}
