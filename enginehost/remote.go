package enginehost

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/rivenoak/engine/rigelnet"
	"github.com/rivenoak/engine/spempe"
)

// RemoteConfig configures a RemoteHost.
type RemoteConfig struct {
	ServerAddress    net.Addr
	Passphrase       string
	HandshakeTimeout time.Duration
	TickInterval     time.Duration
	// DelayInSteps is how far ahead of a dummy's current slot an incoming
	// update is placed, per spec §3's "derived from one-way latency and the
	// server's tick rate". rigelnet exposes no per-connection RTT accessor
	// (only aggregate byte-count telemetry), so this is a fixed estimate a
	// caller tunes for their own network conditions rather than a
	// per-update computed value.
	DelayInSteps int
	BufferLength int
	Logger       *slog.Logger
}

func (c RemoteConfig) withDefaults() RemoteConfig {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Second / 30
	}
	if c.DelayInSteps <= 0 {
		c.DelayInSteps = 2
	}
	if c.BufferLength <= 0 {
		c.BufferLength = 2
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

type dummyEntry struct {
	buf         *spempe.DummyBuffer
	deactivated bool
}

// RemoteHost is the client-side half of the SPeMPE wiring: a rigelnet.Client
// plus a spempe.Registry of dummies, with the four sync RPCs' dispatch
// glue the spempe package itself leaves to host code (mirrors how
// enginehost.Host supplies the server-side ClientJoined/Replicate glue).
type RemoteHost struct {
	cfg RemoteConfig
	log *slog.Logger

	Client   *rigelnet.Client
	Registry *spempe.Registry

	sock    net.PacketConn
	dummies map[spempe.SyncId]*dummyEntry
}

// NewRemoteHost wires a rigelnet.Client connecting to addr and registers
// the sync RPC handlers against a fresh registry.
func NewRemoteHost(sock net.PacketConn, cfg RemoteConfig, userSink rigelnet.EventSink) *RemoteHost {
	cfg = cfg.withDefaults()
	log := cfg.Logger.With("component", "enginehost.remote")

	registry := spempe.NewRegistry(spempe.RuntimeConfig{Logger: log})
	rh := &RemoteHost{
		cfg:      cfg,
		log:      log,
		Registry: registry,
		sock:     sock,
		dummies:  map[spempe.SyncId]*dummyEntry{},
	}

	client := rigelnet.NewClient(rigelnet.NewUDPSocket(sock), cfg.ServerAddress, rigelnet.ClientConfig{
		Passphrase:       cfg.Passphrase,
		HandshakeTimeout: cfg.HandshakeTimeout,
		Logger:           log,
	}, userSink)
	client.Register(spempe.RPCSyncCreate, rh.handleCreate)
	client.Register(spempe.RPCSyncUpdate, rh.handleUpdate)
	client.Register(spempe.RPCSyncDestroy, rh.handleDestroy)
	client.Register(spempe.RPCSyncDeactivate, rh.handleDeactivate)
	rh.Client = client
	return rh
}

func (rh *RemoteHost) entryFor(sid spempe.SyncId) *dummyEntry {
	e, ok := rh.dummies[sid]
	if !ok {
		e = &dummyEntry{buf: spempe.NewDummyBuffer(spempe.DummyBufferConfig{BufferLength: rh.cfg.BufferLength})}
		rh.dummies[sid] = e
	}
	return e
}

func (rh *RemoteHost) handleCreate(_ int, payload []byte) error {
	sid, err := spempe.DecodeSyncId(payload)
	if err != nil {
		return err
	}
	e := rh.entryFor(sid)
	e.deactivated = false
	if _, ok := rh.Registry.GetMapping(sid); !ok {
		if err := rh.Registry.RegisterDummy(e, sid); err != nil {
			return err
		}
	}
	return nil
}

func (rh *RemoteHost) handleUpdate(_ int, payload []byte) error {
	update, err := spempe.DecodeUpdate(payload)
	if err != nil {
		return err
	}
	e := rh.entryFor(update.Sid)
	delay := rh.cfg.DelayInSteps
	if update.Flags.FullState() {
		delay = 0
	}
	e.buf.Ingest(update, delay)
	return nil
}

func (rh *RemoteHost) handleDestroy(_ int, payload []byte) error {
	sid, err := spempe.DecodeSyncId(payload)
	if err != nil {
		return err
	}
	if e, ok := rh.dummies[sid]; ok {
		_ = rh.Registry.Unregister(e)
		delete(rh.dummies, sid)
	}
	return nil
}

func (rh *RemoteHost) handleDeactivate(_ int, payload []byte) error {
	sid, err := spempe.DecodeSyncId(payload)
	if err != nil {
		return err
	}
	if e, ok := rh.dummies[sid]; ok {
		e.deactivated = true
	}
	return nil
}

// Dummies returns the SyncIds currently registered as live dummies, for a
// caller (e.g. cmd/engineconsole) that wants to list them.
func (rh *RemoteHost) Dummies() []spempe.SyncId {
	out := make([]spempe.SyncId, 0, len(rh.dummies))
	for sid := range rh.dummies {
		out = append(out, sid)
	}
	return out
}

// Render returns the two-point-interpolated VisibleState for sid's dummy at
// fraction t through the current step, or ok=false if sid has no dummy.
func (rh *RemoteHost) Render(sid spempe.SyncId, t float64) (spempe.VisibleState, bool) {
	e, ok := rh.dummies[sid]
	if !ok || e.deactivated {
		return spempe.VisibleState{}, false
	}
	return e.buf.Render(t), true
}

// Step advances the client transport and every live dummy buffer by one
// slot.
func (rh *RemoteHost) Step() error {
	if err := rh.Client.Update(); err != nil {
		return err
	}
	for _, e := range rh.dummies {
		e.buf.Advance()
	}
	return nil
}

// Close disconnects gracefully and releases the underlying socket.
func (rh *RemoteHost) Close() error {
	rh.Client.Disconnect()
	return rh.sock.Close()
}

// Run drives Step on cfg.TickInterval until ctx is cancelled, the same
// ticker-plus-select shape as Host.Run.
func (rh *RemoteHost) Run(ctx context.Context) error {
	ticker := time.NewTicker(rh.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := rh.Step(); err != nil {
				rh.log.Error("step failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
