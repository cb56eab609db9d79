package spempe

// DummyBufferConfig configures one dummy's state-buffering ring.
type DummyBufferConfig struct {
	// BufferLength is N: the ring holds N+1 scheduled states.
	BufferLength int
}

func (c DummyBufferConfig) withDefaults() DummyBufferConfig {
	if c.BufferLength <= 0 {
		c.BufferLength = 2
	}
	return c
}

// DummyBuffer holds one dummy's ring of scheduled states and renders a
// two-point-interpolated VisibleState between the current slot and the
// next, the client side of §4.D's state-buffering paragraph.
type DummyBuffer struct {
	cfg     DummyBufferConfig
	slots   []VisibleState
	filled  []bool
	current int
	noChain bool
}

// NewDummyBuffer creates an empty buffer; every slot starts unfilled until
// the first Ingest call.
func NewDummyBuffer(cfg DummyBufferConfig) *DummyBuffer {
	cfg = cfg.withDefaults()
	n := cfg.BufferLength + 1
	return &DummyBuffer{
		cfg:    cfg,
		slots:  make([]VisibleState, n),
		filled: make([]bool, n),
	}
}

// Ingest places an incoming update delayInSteps slots ahead of the
// dummy's current position. A delay of 0 overwrites the current slot
// (used by an immediate FULL_STATE update on creation/reactivation).
func (b *DummyBuffer) Ingest(update DecodedUpdate, delayInSteps int) {
	if update.Flags.NoChain() {
		b.noChain = true
	} else {
		b.noChain = false
	}
	target := (b.current + delayInSteps) % len(b.slots)
	state := update.State
	if !update.Flags.FullState() {
		// Diff update: apply only the changed fields on top of the most
		// recent authoritative state.
		base := b.latestAuthoritative()
		if update.FieldMask&diffBitPosition == 0 {
			state.Position = base.Position
		}
		if update.FieldMask&diffBitVelocity == 0 {
			state.Velocity = base.Velocity
		}
	}
	b.fillThrough(target, state)
}

// fillThrough writes state into target. The current slot is the one being
// rendered this instant and is never touched retroactively by an Ingest:
// a target equal to current (delay 0, e.g. a fresh FULL_STATE on creation
// or reactivation) writes it directly; any other target instead chains the
// new state forward from current+1 through target, unless NoChain is set,
// in which case only target itself is written and every slot between is
// left held flat at whatever it already contained -- the "between arrivals,
// intermediate slots are filled by repeating the most recent ... state"
// behavior, since until a further update arrives this is the best guess for
// a slot the dummy hasn't reached yet.
func (b *DummyBuffer) fillThrough(target int, state VisibleState) {
	if target == b.current || b.noChain {
		b.slots[target] = state
		b.filled[target] = true
		return
	}
	for i := (b.current + 1) % len(b.slots); ; i = (i + 1) % len(b.slots) {
		b.slots[i] = state
		b.filled[i] = true
		if i == target {
			break
		}
	}
}

func (b *DummyBuffer) latestAuthoritative() VisibleState {
	i := b.current
	for n := 0; n < len(b.slots); n++ {
		if b.filled[i] {
			return b.slots[i]
		}
		i = (i - 1 + len(b.slots)) % len(b.slots)
	}
	return VisibleState{}
}

// Advance moves the current slot forward by one, called once per dummy
// step.
func (b *DummyBuffer) Advance() {
	b.filled[b.current] = false
	b.current = (b.current + 1) % len(b.slots)
}

// Render returns the two-point interpolation between the current slot and
// the following one, at fraction t in [0, 1] through the current step.
func (b *DummyBuffer) Render(t float64) VisibleState {
	next := (b.current + 1) % len(b.slots)
	return Lerp(b.slots[b.current], b.slots[next], t)
}
