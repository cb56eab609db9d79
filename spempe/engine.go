package spempe

import (
	"log/slog"

	"github.com/cespare/xxhash/v2"
)

// replicationSlot is per-SyncId, per-recipient state, exactly the shape
// named in spec §3's "Replication slot (D)" data model entry.
type replicationSlot struct {
	deactivated       bool
	lastFullStateStep int64
	pendingFlags      SyncFlags
}

// masterRecord tracks one registered master's last-committed state for
// diffing and its per-recipient replication slots.
type masterRecord struct {
	sid               SyncId
	lastCommitted     VisibleState
	lastCommittedHash uint64
	hasCommitted      bool
	recipients        map[int]*replicationSlot
}

// EngineConfig configures a sync Engine.
type EngineConfig struct {
	// PacemakerInterval is how many steps a diff-replicated master goes
	// between forced full-state pulses, so a late joiner or a peer that
	// lost a packet cannot desync forever.
	PacemakerInterval int64
	Logger            *slog.Logger
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.PacemakerInterval <= 0 {
		c.PacemakerInterval = 60
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Sender is the narrow rigelnet surface the engine composes updates
// through; rigelnet.Server satisfies it via its ComposeToClient method.
type Sender interface {
	ComposeToClient(clientIndex int, rpcID uint32, payload []byte, reliable bool) error
}

// Engine is the server-side half of §4.D: it owns one masterRecord per
// registered master, runs the per-recipient filter, decides full-vs-diff,
// and composes Create/Update/Destroy RPCs through a Sender.
type Engine struct {
	cfg      EngineConfig
	registry *Registry
	filter   FilterFunc
	step     int64
	masters  map[SyncId]*masterRecord
}

// NewEngine creates a server-side Engine bound to registry. filter defaults
// to AlwaysFullSync if nil.
func NewEngine(registry *Registry, filter FilterFunc, cfg EngineConfig) *Engine {
	cfg = cfg.withDefaults()
	if filter == nil {
		filter = AlwaysFullSync
	}
	return &Engine{
		cfg:      cfg,
		registry: registry,
		filter:   filter,
		masters:  map[SyncId]*masterRecord{},
	}
}

func (e *Engine) recordFor(sid SyncId) *masterRecord {
	r, ok := e.masters[sid]
	if !ok {
		r = &masterRecord{sid: sid, recipients: map[int]*replicationSlot{}}
		e.masters[sid] = r
	}
	return r
}

func (e *Engine) slotFor(r *masterRecord, clientIndex int) *replicationSlot {
	s, ok := r.recipients[clientIndex]
	if !ok {
		s = &replicationSlot{}
		r.recipients[clientIndex] = s
	}
	return s
}

// ClientJoined performs the complete-state-sync-on-join behavior: it
// iterates every live master in registry order (ascending SyncId, which is
// assignment order) and composes Create+Update with FULL_STATE to the
// newly connected client.
func (e *Engine) ClientJoined(clientIndex int, sender Sender, stateOf func(sid SyncId) (VisibleState, bool)) error {
	sids := make([]SyncId, 0, len(e.registry.slots))
	for _, entry := range e.registry.slots {
		if entry.sid == SyncIdNew {
			continue
		}
		// A master whose creation is not yet flushed reaches the new
		// client through the next Replicate's Created pass instead.
		if _, pending := e.registry.created[entry.sid]; pending {
			continue
		}
		sids = append(sids, entry.sid)
	}
	sortSyncIds(sids)
	for _, sid := range sids {
		state, ok := stateOf(sid)
		if !ok {
			continue
		}
		r := e.recordFor(sid)
		slot := e.slotFor(r, clientIndex)
		slot.deactivated = false
		slot.lastFullStateStep = e.step
		if err := e.sendFull(sender, clientIndex, sid, state); err != nil {
			return err
		}
	}
	return nil
}

// Step advances the engine's internal step counter. Call once per
// scheduler step, before Replicate.
func (e *Engine) Step() {
	e.step++
}

// Replicate composes and sends this step's Create/Update/Destroy RPCs for
// every master whose registry diff marks it created/updated/destroyed, to
// every connected client named in clients, applying the filter and
// full-vs-diff logic from §4.D.
func (e *Engine) Replicate(diff StepDiff, clients []int, sender Sender, stateOf func(sid SyncId) (VisibleState, bool)) error {
	for _, sid := range diff.Created {
		state, ok := stateOf(sid)
		if !ok {
			continue
		}
		r := e.recordFor(sid)
		for _, clientIndex := range clients {
			slot := e.slotFor(r, clientIndex)
			slot.deactivated = false
			slot.lastFullStateStep = e.step
			if err := e.sendFull(sender, clientIndex, sid, state); err != nil {
				return err
			}
		}
		e.commit(r, state)
	}

	for _, sid := range diff.Updated {
		state, ok := stateOf(sid)
		if !ok {
			continue
		}
		r := e.recordFor(sid)
		full := !r.hasCommitted || e.step-r.lastFullStateStep >= e.cfg.PacemakerInterval
		flags := SyncFlags(0)
		if full {
			flags |= FlagFullState | FlagPacemakerPulse
		}
		for _, clientIndex := range clients {
			switch e.filter(sid, clientIndex) {
			case Skip:
				continue
			case Deactivate:
				slot := e.slotFor(r, clientIndex)
				if slot.deactivated {
					continue
				}
				slot.deactivated = true
				if err := e.sendDeactivate(sender, clientIndex, sid); err != nil {
					return err
				}
			default:
				slot := e.slotFor(r, clientIndex)
				wasDeactivated := slot.deactivated
				slot.deactivated = false
				clientFull := full || wasDeactivated
				if clientFull {
					slot.lastFullStateStep = e.step
					if err := e.sendFull(sender, clientIndex, sid, state); err != nil {
						return err
					}
				} else if err := e.sendDiff(sender, clientIndex, sid, state, r.lastCommitted); err != nil {
					return err
				}
			}
		}
		if full {
			r.lastFullStateStep = e.step
		}
		e.commit(r, state)
	}

	for _, sid := range diff.Destroyed {
		r, ok := e.masters[sid]
		if !ok {
			delete(e.masters, sid)
			continue
		}
		for _, clientIndex := range clients {
			if err := e.sendDestroy(sender, clientIndex, sid); err != nil {
				return err
			}
		}
		delete(e.masters, sid)
	}
	return nil
}

func (e *Engine) commit(r *masterRecord, state VisibleState) {
	r.lastCommitted = state
	r.lastCommittedHash = hashState(state)
	r.hasCommitted = true
}

func (e *Engine) sendCreate(sender Sender, clientIndex int, sid SyncId) error {
	return sender.ComposeToClient(clientIndex, RPCSyncCreate, encodeSid(sid), true)
}

func (e *Engine) sendFull(sender Sender, clientIndex int, sid SyncId, state VisibleState) error {
	if err := e.sendCreate(sender, clientIndex, sid); err != nil {
		return err
	}
	payload := encodeFullState(sid, FlagFullState, state)
	return sender.ComposeToClient(clientIndex, RPCSyncUpdate, payload, true)
}

func (e *Engine) sendDiff(sender Sender, clientIndex int, sid SyncId, state, prev VisibleState) error {
	payload := encodeDiffState(sid, 0, state, prev)
	return sender.ComposeToClient(clientIndex, RPCSyncUpdate, payload, false)
}

func (e *Engine) sendDestroy(sender Sender, clientIndex int, sid SyncId) error {
	return sender.ComposeToClient(clientIndex, RPCSyncDestroy, encodeSid(sid), true)
}

func (e *Engine) sendDeactivate(sender Sender, clientIndex int, sid SyncId) error {
	return sender.ComposeToClient(clientIndex, RPCSyncDeactivate, encodeSid(sid), true)
}

// hashState computes a cheap pre-check hash of a state via xxhash -- the
// DOMAIN STACK's "cheap pre-check hash" use of xxhash. commit stores it as
// lastCommittedHash; the diff encoder does not consult it.
func hashState(s VisibleState) uint64 {
	var buf [48]byte
	putFloat64(buf[0:8], s.Position[0])
	putFloat64(buf[8:16], s.Position[1])
	putFloat64(buf[16:24], s.Position[2])
	putFloat64(buf[24:32], s.Velocity[0])
	putFloat64(buf[32:40], s.Velocity[1])
	putFloat64(buf[40:48], s.Velocity[2])
	return xxhash.Sum64(buf[:])
}

func sortSyncIds(ids []SyncId) {
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}
