package enginehost

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rivenoak/engine/gridgoblin"
	"github.com/rivenoak/engine/qao"
	"github.com/rivenoak/engine/rigelnet"
	"github.com/rivenoak/engine/spempe"
)

// VisibleStateProvider is implemented by a registered master object that
// wants to participate in replication. Host resolves it via the registry
// by type-asserting the object returned from Registry.GetMapping, the same
// optional-interface idiom qao.buildEventTable uses for scheduler events.
type VisibleStateProvider interface {
	VisibleState() spempe.VisibleState
}

// Host wires a qao.Scheduler, a rigelnet.Server, a spempe.Registry+Engine,
// and a gridgoblin.World into one process: the "host application" layer
// the spec's five components are deliberately silent about, the way
// server.Config wires Dragonfly's world/session/player packages together.
type Host struct {
	cfg Config
	log *slog.Logger
	id  uuid.UUID

	Scheduler  *qao.Scheduler
	Registry   *spempe.Registry
	SyncEngine *spempe.Engine
	World      *gridgoblin.World
	Net        *rigelnet.Server
	AllowList  *rigelnet.PeerAllowList

	sock    net.PacketConn
	clients map[int]struct{}
	step    int64

	closing chan struct{}
}

// NewHost builds every component from cfg and binds the UDP socket, but
// does not start the step loop; call Run for that.
func NewHost(cfg Config, binder gridgoblin.Binder, userSink rigelnet.EventSink) (*Host, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	id := uuid.New()
	log = log.With("instance", cfg.InstanceName, "instance_id", id)

	world, err := gridgoblin.NewWorld(cfg.Contents, cfg.Storage, binder, gridgoblin.RuntimeConfig{Logger: log})
	if err != nil {
		return nil, fmt.Errorf("enginehost: open world: %w", err)
	}

	allowList, err := rigelnet.LoadPeerAllowList(cfg.AllowListFile)
	if err != nil {
		_ = world.Close()
		return nil, fmt.Errorf("enginehost: load allow-list: %w", err)
	}
	allowList.SetEnabled(cfg.AllowListEnabled)

	scheduler := qao.NewScheduler(qao.RuntimeConfig{Logger: log})
	registry := spempe.NewRegistry(spempe.RuntimeConfig{Logger: log})
	syncEngine := spempe.NewEngine(registry, nil, spempe.EngineConfig{
		PacemakerInterval: cfg.PacemakerInterval,
		Logger:            log,
	})

	h := &Host{
		cfg:        cfg,
		log:        log,
		id:         id,
		Scheduler:  scheduler,
		Registry:   registry,
		SyncEngine: syncEngine,
		World:      world,
		AllowList:  allowList,
		clients:    map[int]struct{}{},
		closing:    make(chan struct{}),
	}
	scheduler.SetUserData(h)

	pc, err := net.ListenPacket("udp", cfg.NetworkAddress)
	if err != nil {
		_ = world.Close()
		return nil, fmt.Errorf("enginehost: listen: %w", err)
	}
	h.sock = pc

	h.Net = rigelnet.NewServer(rigelnet.NewUDPSocket(pc), rigelnet.ServerConfig{
		Passphrase: cfg.Passphrase,
		MaxClients: cfg.MaxClients,
		Connection: rigelnet.ConnectionConfig{Timeout: cfg.ConnectionTimeout},
		AllowList:  allowList,
		Logger:     log,
	}, &hostEventSink{host: h, user: userSink})

	return h, nil
}

// ID is this host's stable, process-lifetime instance identifier.
func (h *Host) ID() uuid.UUID { return h.id }

// ClientIndices returns the currently connected client slot indices,
// tracked from EventSink.OnConnected/OnDisconnected since rigelnet.Server
// exposes no such accessor itself.
func (h *Host) ClientIndices() []int {
	out := make([]int, 0, len(h.clients))
	for idx := range h.clients {
		out = append(out, idx)
	}
	return out
}

// Step performs exactly one step: drain the network, advance the object
// scheduler, drain the spooler, and replicate the resulting registry diff
// to every connected client. This is the unit cmd/engineconsole's "step"
// command and the Run loop both call.
func (h *Host) Step() error {
	if err := h.Net.Update(); err != nil {
		return fmt.Errorf("enginehost: network update: %w", err)
	}
	h.Scheduler.Step()
	h.World.PollSpooler()
	h.SyncEngine.Step()

	diff := h.Registry.FlushStateUpdates()
	if err := h.SyncEngine.Replicate(diff, h.ClientIndices(), h.Net, h.stateOf); err != nil {
		return fmt.Errorf("enginehost: replicate: %w", err)
	}
	h.step++
	return nil
}

func (h *Host) stateOf(sid spempe.SyncId) (spempe.VisibleState, bool) {
	obj, ok := h.Registry.GetMapping(sid)
	if !ok {
		return spempe.VisibleState{}, false
	}
	provider, ok := obj.(VisibleStateProvider)
	if !ok {
		return spempe.VisibleState{}, false
	}
	return provider.VisibleState(), true
}

// Run drives Step on cfg.TickInterval until ctx is cancelled or Close is
// called, mirroring the teacher's world ticker.tickLoop: a ticker channel
// plus a closing channel in the same select.
func (h *Host) Run(ctx context.Context) error {
	ticker := time.NewTicker(h.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := h.Step(); err != nil {
				h.log.Error("step failed", "step", h.step, "error", err)
			}
		case <-h.closing:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close shuts down every component. The world's spooler and the network
// socket are independent subsystems, so they're torn down concurrently via
// errgroup the way the DOMAIN STACK table calls for "parallel component
// shutdown".
func (h *Host) Close() error {
	select {
	case <-h.closing:
		return nil
	default:
		close(h.closing)
	}

	var eg errgroup.Group
	eg.Go(h.World.Close)
	eg.Go(h.sock.Close)
	return eg.Wait()
}

// hostEventSink tracks connected client indices and drives
// Engine.ClientJoined's complete-state-sync-on-join behavior, then
// forwards every event to an optional user-supplied sink.
type hostEventSink struct {
	host *Host
	user rigelnet.EventSink
}

func (s *hostEventSink) OnBadPassphrase(addr net.Addr) {
	if s.user != nil {
		s.user.OnBadPassphrase(addr)
	}
}

func (s *hostEventSink) OnConnectAttemptFailed(reason rigelnet.DisconnectReason) {
	if s.user != nil {
		s.user.OnConnectAttemptFailed(reason)
	}
}

func (s *hostEventSink) OnConnected(idx int) {
	s.host.clients[idx] = struct{}{}
	if err := s.host.SyncEngine.ClientJoined(idx, s.host.Net, s.host.stateOf); err != nil {
		s.host.log.Error("client-joined full sync failed", "client", idx, "error", err)
	}
	if s.user != nil {
		s.user.OnConnected(idx)
	}
}

func (s *hostEventSink) OnDisconnected(idx int, reason rigelnet.DisconnectReason) {
	delete(s.host.clients, idx)
	if s.user != nil {
		s.user.OnDisconnected(idx, reason)
	}
}
