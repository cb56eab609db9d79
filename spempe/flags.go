package spempe

// SyncFlags is the 8-bit bitmask accompanying every Create/Update RPC.
// Meaningful bits are FullState, NoChain, and PacemakerPulse; all other
// bits are reserved zero by this spec, and this implementation round-trips
// them unchanged rather than rejecting a packet that sets one -- an
// unrecognized bit is forward-compatibility slack, not a protocol error,
// matching how the original forwards flag bytes it doesn't itself define.
type SyncFlags uint8

const (
	FlagFullState       SyncFlags = 0x01
	FlagNoChain         SyncFlags = 0x40
	FlagPacemakerPulse  SyncFlags = 0x80
)

func (f SyncFlags) FullState() bool       { return f&FlagFullState != 0 }
func (f SyncFlags) NoChain() bool         { return f&FlagNoChain != 0 }
func (f SyncFlags) PacemakerPulse() bool  { return f&FlagPacemakerPulse != 0 }

// FilterVerdict is what a per-recipient filter predicate returns for one
// (sid, client) pair before the engine composes this step's update.
type FilterVerdict int

const (
	// FullSync means "replicate normally this cycle" -- whether the
	// resulting update carries FULL_STATE or a diff is decided separately
	// by the master's dirty/pacemaker state, not by the filter. A client
	// transitioning back from Deactivated is only reactivated once the
	// filter returns FullSync for it again.
	FullSync FilterVerdict = iota
	// Skip omits this object from this cycle's updates to this client.
	Skip
	// Deactivate sends a deactivate RPC at most once, then is free.
	Deactivate
)

// FilterFunc decides, per object and per recipient client, how this step's
// replication should treat that pair.
type FilterFunc func(sid SyncId, clientIndex int) FilterVerdict

// AlwaysFullSync is the default filter: every recipient is replicated to
// every step.
func AlwaysFullSync(SyncId, int) FilterVerdict { return FullSync }
