package spempe

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

type fakeEntity struct{ name string }

func TestRegistryAssignsDistinctSyncIds(t *testing.T) {
	r := NewRegistry(RuntimeConfig{})
	a := &fakeEntity{"a"}
	b := &fakeEntity{"b"}

	sidA, err := r.RegisterMaster(a)
	if err != nil {
		t.Fatalf("RegisterMaster(a): %v", err)
	}
	sidB, err := r.RegisterMaster(b)
	if err != nil {
		t.Fatalf("RegisterMaster(b): %v", err)
	}
	if sidA == sidB {
		t.Fatalf("expected distinct SyncIds, got %v and %v", sidA, sidB)
	}

	if got, ok := r.GetMapping(sidA); !ok || got != a {
		t.Fatalf("GetMapping(sidA) = %v, %v", got, ok)
	}
	if got, ok := r.GetMapping(sidB); !ok || got != b {
		t.Fatalf("GetMapping(sidB) = %v, %v", got, ok)
	}
}

func TestRegistryRejectsDuplicateDummySyncId(t *testing.T) {
	r := NewRegistry(RuntimeConfig{})
	a := &fakeEntity{"a"}
	b := &fakeEntity{"b"}

	if err := r.RegisterDummy(a, SyncId(5)); err != nil {
		t.Fatalf("RegisterDummy(a): %v", err)
	}
	if err := r.RegisterDummy(b, SyncId(5)); err != ErrSyncIdTaken {
		t.Fatalf("expected ErrSyncIdTaken, got %v", err)
	}
}

func TestRegistryCreateAndDestroySameStepOmitted(t *testing.T) {
	r := NewRegistry(RuntimeConfig{})
	a := &fakeEntity{"a"}

	sid, err := r.RegisterMaster(a)
	if err != nil {
		t.Fatalf("RegisterMaster: %v", err)
	}
	r.MarkUpdated(sid)
	if err := r.Unregister(a); err != nil {
		t.Fatalf("Unregister: %v", err)
	}

	diff := r.FlushStateUpdates()
	if len(diff.Created) != 0 || len(diff.Updated) != 0 || len(diff.Destroyed) != 0 {
		t.Fatalf("expected empty diff for same-step create+destroy, got %+v", diff)
	}
}

func TestRegistryDestroyAfterPriorStepCreateIsReported(t *testing.T) {
	r := NewRegistry(RuntimeConfig{})
	a := &fakeEntity{"a"}

	sid, err := r.RegisterMaster(a)
	if err != nil {
		t.Fatalf("RegisterMaster: %v", err)
	}
	_ = r.FlushStateUpdates() // drains the creation from this step

	if err := r.Unregister(a); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	diff := r.FlushStateUpdates()
	if len(diff.Destroyed) != 1 || diff.Destroyed[0] != sid {
		t.Fatalf("expected destroyed=[%v], got %+v", sid, diff.Destroyed)
	}
}

// recordingSender captures every Compose call made against it, for
// assertions in engine tests.
type recordingSender struct {
	calls []composeCall
}

type composeCall struct {
	clientIndex int
	rpcID       uint32
	payload     []byte
	reliable    bool
}

func (s *recordingSender) ComposeToClient(clientIndex int, rpcID uint32, payload []byte, reliable bool) error {
	s.calls = append(s.calls, composeCall{clientIndex, rpcID, append([]byte(nil), payload...), reliable})
	return nil
}

func (s *recordingSender) countRPC(rpcID uint32) int {
	n := 0
	for _, c := range s.calls {
		if c.rpcID == rpcID {
			n++
		}
	}
	return n
}

func vstate(x float64) VisibleState {
	return VisibleState{Position: mgl64.Vec3{x, 0, 0}, Velocity: mgl64.Vec3{0, 0, 0}}
}

func TestEngineClientJoinedSendsFullStateInAscendingSyncIdOrder(t *testing.T) {
	reg := NewRegistry(RuntimeConfig{})
	a := &fakeEntity{"a"}
	b := &fakeEntity{"b"}
	sidA, _ := reg.RegisterMaster(a)
	sidB, _ := reg.RegisterMaster(b)
	reg.FlushStateUpdates()

	eng := NewEngine(reg, nil, EngineConfig{})
	states := map[SyncId]VisibleState{sidA: vstate(1), sidB: vstate(2)}
	sender := &recordingSender{}

	err := eng.ClientJoined(0, sender, func(sid SyncId) (VisibleState, bool) {
		s, ok := states[sid]
		return s, ok
	})
	if err != nil {
		t.Fatalf("ClientJoined: %v", err)
	}

	var seenSids []SyncId
	for _, c := range sender.calls {
		if c.rpcID != RPCSyncCreate {
			continue
		}
		sid, _, err := decodeSid(c.payload)
		if err != nil {
			t.Fatalf("decodeSid: %v", err)
		}
		seenSids = append(seenSids, sid)
	}
	if len(seenSids) != 2 || seenSids[0] != sidA || seenSids[1] != sidB {
		t.Fatalf("expected create order [%v %v], got %v", sidA, sidB, seenSids)
	}
}

func TestEngineReplicateSendsDeactivateThenSkipsRepeats(t *testing.T) {
	reg := NewRegistry(RuntimeConfig{})
	a := &fakeEntity{"a"}
	sid, _ := reg.RegisterMaster(a)

	verdicts := map[int]FilterVerdict{0: Deactivate}
	filter := func(_ SyncId, clientIndex int) FilterVerdict { return verdicts[clientIndex] }
	eng := NewEngine(reg, filter, EngineConfig{})

	diff := reg.FlushStateUpdates()
	sender := &recordingSender{}
	states := map[SyncId]VisibleState{sid: vstate(1)}
	stateOf := func(s SyncId) (VisibleState, bool) { v, ok := states[s]; return v, ok }

	if err := eng.Replicate(diff, []int{0}, sender, stateOf); err != nil {
		t.Fatalf("Replicate (create): %v", err)
	}

	reg.MarkUpdated(sid)
	diff = reg.FlushStateUpdates()
	if err := eng.Replicate(diff, []int{0}, sender, stateOf); err != nil {
		t.Fatalf("Replicate (update 1): %v", err)
	}
	reg.MarkUpdated(sid)
	diff = reg.FlushStateUpdates()
	if err := eng.Replicate(diff, []int{0}, sender, stateOf); err != nil {
		t.Fatalf("Replicate (update 2): %v", err)
	}

	if got := sender.countRPC(RPCSyncDeactivate); got != 1 {
		t.Fatalf("expected exactly 1 deactivate RPC, got %d", got)
	}
}

func TestEngineReplicateSendsFullStateOnPacemakerInterval(t *testing.T) {
	reg := NewRegistry(RuntimeConfig{})
	a := &fakeEntity{"a"}
	sid, _ := reg.RegisterMaster(a)
	eng := NewEngine(reg, nil, EngineConfig{PacemakerInterval: 2})

	states := map[SyncId]VisibleState{sid: vstate(1)}
	stateOf := func(s SyncId) (VisibleState, bool) { v, ok := states[s]; return v, ok }
	sender := &recordingSender{}

	diff := reg.FlushStateUpdates()
	if err := eng.Replicate(diff, []int{0}, sender, stateOf); err != nil {
		t.Fatalf("create: %v", err)
	}

	fullCountAt := func() int {
		n := 0
		for _, c := range sender.calls {
			if c.rpcID != RPCSyncUpdate {
				continue
			}
			u, err := DecodeUpdate(c.payload)
			if err != nil {
				t.Fatalf("DecodeUpdate: %v", err)
			}
			if u.Flags.FullState() {
				n++
			}
		}
		return n
	}

	baseline := fullCountAt()

	for step := 0; step < 2; step++ {
		eng.Step()
		reg.MarkUpdated(sid)
		states[sid] = vstate(float64(step) + 2)
		diff = reg.FlushStateUpdates()
		if err := eng.Replicate(diff, []int{0}, sender, stateOf); err != nil {
			t.Fatalf("update step %d: %v", step, err)
		}
	}

	if got := fullCountAt(); got <= baseline {
		t.Fatalf("expected at least one additional full-state update by the pacemaker interval, baseline=%d got=%d", baseline, got)
	}
}

func TestDummyBufferChainsAuthoritativeStateAcrossGap(t *testing.T) {
	buf := NewDummyBuffer(DummyBufferConfig{BufferLength: 3})

	// Seed the current slot, then a later update targeting slot 3 should
	// chain-fill slots 1..3 with the new state while leaving the already
	// current slot 0 untouched.
	buf.Ingest(DecodedUpdate{Flags: FlagFullState, State: vstate(5)}, 0)
	buf.Ingest(DecodedUpdate{Flags: FlagFullState, State: vstate(8)}, 3)

	if r := buf.Render(0); r.Position[0] != 5 {
		t.Fatalf("current slot: expected untouched state 5, got %v", r.Position)
	}
	for i := 0; i < 3; i++ {
		buf.Advance()
		r := buf.Render(0)
		if r.Position[0] != 8 {
			t.Fatalf("slot %d: expected chained state 8, got %v", i, r.Position)
		}
	}
}

func TestDummyBufferNoChainHoldsGapFlat(t *testing.T) {
	buf := NewDummyBuffer(DummyBufferConfig{BufferLength: 3})

	// Seed the current slot, then a normal chained update fills slots
	// 1..3 with state 1.
	buf.Ingest(DecodedUpdate{Flags: FlagFullState, State: vstate(1)}, 0)
	buf.Ingest(DecodedUpdate{Flags: FlagFullState, State: vstate(1)}, 3)

	// A NO_CHAIN update targeting slot 2 should not touch slot 1.
	buf.Ingest(DecodedUpdate{Flags: FlagFullState | FlagNoChain, State: vstate(9)}, 2)

	buf.Advance()
	r := buf.Render(0)
	if r.Position[0] != 1 {
		t.Fatalf("expected gap slot to hold flat at 1, got %v", r.Position)
	}
}

func TestDummyBufferRenderInterpolates(t *testing.T) {
	buf := NewDummyBuffer(DummyBufferConfig{BufferLength: 1})
	buf.Ingest(DecodedUpdate{Flags: FlagFullState, State: vstate(0)}, 0)
	buf.Ingest(DecodedUpdate{Flags: FlagFullState, State: vstate(10)}, 1)

	mid := buf.Render(0.5)
	if mid.Position[0] != 5 {
		t.Fatalf("expected interpolated midpoint 5, got %v", mid.Position[0])
	}
}
