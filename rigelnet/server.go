package rigelnet

import (
	"errors"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"
)

// defaultMaxPacketPayload is the default fragmentation threshold: messages
// larger than this are split across DataMore/.../DataTail packets.
const defaultMaxPacketPayload = 1200

// ProtocolVersion is stamped into every Connect handshake payload. A client
// presenting a different version is rejected the same way a bad passphrase
// is: the server has no forward/backward compatibility story, matching the
// spec's silence on versioned wire negotiation.
const ProtocolVersion uint32 = 1

var (
	// ErrNoFreeSlot names the condition where MaxClients connections are
	// already active. The server does not return it: such a Connect attempt
	// is logged and dropped without a reply.
	ErrNoFreeSlot = errors.New("rigelnet: no free client slot")
	// ErrUnknownPeer is returned by Compose when the recipient is an empty
	// or out-of-range client slot, or a recipient kind the server cannot
	// address. Packets from an address with no established Connection are
	// dropped without an error.
	ErrUnknownPeer = errors.New("rigelnet: packet from unknown peer")
)

// ServerConfig configures a Server.
type ServerConfig struct {
	Passphrase       string
	MaxClients       int
	MaxPacketPayload int
	Connection       ConnectionConfig
	TelemetryWindow  int
	Logger           *slog.Logger

	// AllowList retains a timed-out connection's slot for one extra Timeout
	// period when its session id is on the list, instead of disconnecting it
	// immediately. Nil treats every peer as retained.
	AllowList *PeerAllowList
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.MaxClients <= 0 {
		c.MaxClients = 16
	}
	if c.MaxPacketPayload <= 0 {
		c.MaxPacketPayload = defaultMaxPacketPayload
	}
	if c.TelemetryWindow <= 0 {
		c.TelemetryWindow = 60
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Server accepts up to MaxClients client connections over one socket.
type Server struct {
	cfg      ServerConfig
	sock     socket
	log      *slog.Logger
	sink     EventSink
	handlers *handlerTable

	clients   []*Connection // index = clientIndex; nil marks a free slot
	addrIndex map[string]int

	recvBuf []byte
}

// NewServer wraps sock (a real UDP socket obtained via NewUDPSocket, or a
// loopback socket from NewLoopbackPair) as a Server.
func NewServer(sock socket, cfg ServerConfig, sink EventSink) *Server {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = NopEventSink{}
	}
	return &Server{
		cfg:       cfg,
		sock:      sock,
		log:       cfg.Logger.With("subsystem", "rigelnet", "role", "server"),
		sink:      sink,
		handlers:  newHandlerTable(),
		clients:   make([]*Connection, cfg.MaxClients),
		addrIndex: map[string]int{},
		recvBuf:   make([]byte, 65536),
	}
}

// Register binds an RPC id to a handler function for incoming client data.
func (s *Server) Register(rpcID uint32, handler RPCHandler) {
	s.handlers.Register(rpcID, handler)
}

// ClientCount returns how many client slots are currently occupied.
func (s *Server) ClientCount() int {
	n := 0
	for _, c := range s.clients {
		if c != nil {
			n++
		}
	}
	return n
}

// Telemetry returns the last-update and rolling-window telemetry for one
// client, or zero values if the slot is empty.
func (s *Server) Telemetry(clientIndex int) (last, rolling Telemetry) {
	if clientIndex < 0 || clientIndex >= len(s.clients) || s.clients[clientIndex] == nil {
		return Telemetry{}, Telemetry{}
	}
	c := s.clients[clientIndex]
	return c.telemetry.Last(), c.telemetry.Rolling()
}

// Update performs one receive+dispatch+send cycle: drains all currently
// available datagrams, dispatches complete messages to registered handlers,
// emits due retransmits and heartbeats, and disconnects timed-out peers.
func (s *Server) Update() error {
	now := time.Now()
	if err := s.receiveAll(now); err != nil {
		return err
	}
	for idx, c := range s.clients {
		if c == nil {
			continue
		}
		if c.timedOut(now) {
			if s.cfg.AllowList.Allowed(c.SessionID.String()) && c.grace(now) {
				s.log.Info("retaining timed-out peer on allow-list", "client", idx, "session", c.SessionID)
				continue
			}
			s.disconnectClient(idx, TimedOut, false)
			continue
		}
		for _, seg := range c.dueForRetransmit(now) {
			s.sendRaw(c, seg.sequence, seg.typ, seg.flags, seg.payload, now)
		}
		if c.needsHeartbeat(now) {
			s.sendControl(c, TypeHeartbeat, nil, now)
		}
	}
	return nil
}

func (s *Server) receiveAll(now time.Time) error {
	for {
		n, addr, err := s.sock.ReadFrom(s.recvBuf)
		if err != nil {
			if errors.Is(err, ErrWouldBlock) {
				return nil
			}
			return err
		}
		s.handlePacket(addr, s.recvBuf[:n], now)
	}
}

func (s *Server) handlePacket(addr net.Addr, raw []byte, now time.Time) {
	h, payload, err := Decode(raw)
	if err != nil {
		s.log.Debug("dropping malformed packet", "from", addr, "error", err)
		return
	}

	if h.Type == TypeConnect {
		s.handleConnect(addr, payload, now)
		return
	}

	idx, ok := s.addrIndex[addr.String()]
	if !ok {
		s.log.Debug("dropping packet from unknown peer", "from", addr, "type", h.Type)
		return
	}
	c := s.clients[idx]
	c.touch(now)
	c.recordAck(h.AckCeiling, h.AckBitmap)
	if !c.Loopback {
		c.telemetry.push(Telemetry{DownloadByteCount: uint64(len(raw))})
	}

	switch h.Type {
	case TypeHeartbeat:
		// touch() above already refreshed the deadline.
	case TypeDisconnect:
		reason, _, _ := parseDisconnectPayload(payload)
		s.disconnectClient(idx, reason, true)
	case TypeData, TypeDataMore, TypeDataTail:
		s.handleData(idx, c, h, payload)
	default:
		s.log.Debug("unexpected packet type from established peer", "type", h.Type)
	}
}

func (s *Server) handleData(idx int, c *Connection, h Header, payload []byte) {
	if h.reliable() && !c.observeIncomingSequence(h.Sequence) {
		return // duplicate reliable packet, discard per spec
	}
	var message []byte
	switch h.Type {
	case TypeData:
		message = payload
	case TypeDataMore:
		c.feedFragment(h.Sequence, false, payload)
		return
	case TypeDataTail:
		msg, complete := c.feedFragment(h.Sequence, true, payload)
		if !complete {
			return
		}
		message = msg
	}
	if len(message) < 4 {
		return
	}
	rpcID, body, err := GetUint32(message)
	if err != nil {
		return
	}
	_ = s.handlers.dispatch(idx, rpcID, body)
}

func (s *Server) handleConnect(addr net.Addr, payload []byte, now time.Time) {
	passphrase, rest, err := GetString(payload)
	if err != nil {
		s.log.Debug("malformed connect payload", "from", addr, "error", err)
		return
	}
	version, _, err := GetUint32(rest)
	if err != nil {
		s.log.Debug("malformed connect payload", "from", addr, "error", err)
		return
	}
	if passphrase != s.cfg.Passphrase || version != ProtocolVersion {
		s.sink.OnBadPassphrase(addr)
		rejection := Encode(nil, Header{Type: TypeDisconnect}, disconnectPayload(Error, "bad passphrase"))
		_, _ = s.sock.WriteTo(rejection, addr)
		return
	}

	idx := -1
	for i, c := range s.clients {
		if c == nil {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.log.Warn("rejecting connect: no free client slot", "from", addr)
		return
	}

	c := NewConnection(s.cfg.Connection, s.cfg.TelemetryWindow)
	c.RemoteAddr = addr
	c.LocalAddr = s.sock.LocalAddr()
	c.Loopback = isLoopbackAddr(addr)
	c.clientIndex = idx
	c.phase = Connected
	c.SessionID = uuid.New()
	c.touch(now)

	s.clients[idx] = c
	s.addrIndex[addr.String()] = idx

	resp := PutUint32(nil, uint32(idx))
	s.sendControl(c, TypeConnectResponse, resp, now)
	s.sink.OnConnected(idx)
}

func (s *Server) disconnectClient(idx int, reason DisconnectReason, peerInitiated bool) {
	c := s.clients[idx]
	if c == nil {
		return
	}
	if !peerInitiated {
		s.sendControl(c, TypeDisconnect, disconnectPayload(reason, ""), time.Now())
	}
	delete(s.addrIndex, c.RemoteAddr.String())
	s.clients[idx] = nil
	s.sink.OnDisconnected(idx, reason)
}

// Disconnect gracefully disconnects a connected client.
func (s *Server) Disconnect(clientIndex int) {
	if clientIndex < 0 || clientIndex >= len(s.clients) || s.clients[clientIndex] == nil {
		return
	}
	s.disconnectClient(clientIndex, Graceful, false)
}

// Compose sends an RPC message to recipient, optionally fragmenting it
// across multiple packets and, if reliable is set, tracking it in the send
// window for retransmission until acked.
func (s *Server) Compose(recipient Recipient, rpcID uint32, payload []byte, reliable bool) error {
	message := PutUint32(make([]byte, 0, 4+len(payload)), rpcID)
	message = append(message, payload...)

	switch recipient.kind {
	case recipientClient:
		if recipient.idx < 0 || recipient.idx >= len(s.clients) || s.clients[recipient.idx] == nil {
			return ErrUnknownPeer
		}
		return s.composeTo(s.clients[recipient.idx], message, reliable)
	case recipientAllClients:
		for _, c := range s.clients {
			if c == nil {
				continue
			}
			if err := s.composeTo(c, message, reliable); err != nil {
				return err
			}
		}
		return nil
	default:
		return ErrUnknownPeer
	}
}

// ComposeToClient sends an RPC to a single client by index. It exists
// alongside Compose so types needing only single-recipient addressing
// (e.g. the spempe sync engine) can depend on a narrower method set.
func (s *Server) ComposeToClient(clientIndex int, rpcID uint32, payload []byte, reliable bool) error {
	return s.Compose(ToClient(clientIndex), rpcID, payload, reliable)
}

func (s *Server) composeTo(c *Connection, message []byte, reliable bool) error {
	now := time.Now()
	chunks := splitChunks(message, s.cfg.MaxPacketPayload)
	for i, chunk := range chunks {
		seq := c.nextSequence()
		typ := TypeData
		var flags uint8
		if reliable {
			flags |= FlagReliable
		}
		if len(chunks) > 1 {
			flags |= FlagFragmented
			if i == len(chunks)-1 {
				typ = TypeDataTail
				flags |= FlagFinalFrag
			} else {
				typ = TypeDataMore
			}
		}
		s.sendRaw(c, seq, typ, flags, chunk, now)
		if reliable {
			c.sendWindow = append(c.sendWindow, pendingSegment{
				sequence: seq, payload: chunk, typ: typ, flags: flags,
				firstSentAt: now, lastSentAt: now,
			})
		}
	}
	return nil
}

func (s *Server) sendControl(c *Connection, typ PacketType, payload []byte, now time.Time) {
	seq := c.nextSequence()
	s.sendRaw(c, seq, typ, 0, payload, now)
}

func (s *Server) sendRaw(c *Connection, seq uint32, typ PacketType, flags uint8, payload []byte, now time.Time) {
	ceiling, bitmap := c.ackFields()
	h := Header{Sequence: seq, Type: typ, Flags: flags, AckCeiling: ceiling, AckBitmap: bitmap}
	raw := Encode(nil, h, payload)
	if _, err := s.sock.WriteTo(raw, c.RemoteAddr); err != nil {
		s.log.Warn("write failed", "to", c.RemoteAddr, "error", err)
		return
	}
	c.lastSent = now
	if !c.Loopback {
		c.telemetry.push(Telemetry{UploadByteCount: uint64(len(raw))})
	}
}

func splitChunks(message []byte, maxLen int) [][]byte {
	if len(message) <= maxLen {
		return [][]byte{message}
	}
	var chunks [][]byte
	for len(message) > 0 {
		n := maxLen
		if n > len(message) {
			n = len(message)
		}
		chunks = append(chunks, message[:n])
		message = message[n:]
	}
	return chunks
}

func disconnectPayload(reason DisconnectReason, message string) []byte {
	buf := []byte{byte(reason)}
	return PutString(buf, message)
}

func parseDisconnectPayload(payload []byte) (DisconnectReason, string, error) {
	if len(payload) < 1 {
		return Error, "", errors.New("rigelnet: short disconnect payload")
	}
	reason := DisconnectReason(payload[0])
	msg, _, err := GetString(payload[1:])
	return reason, msg, err
}

func isLoopbackAddr(addr net.Addr) bool {
	_, ok := addr.(loopbackAddr)
	if ok {
		return true
	}
	if udpAddr, ok := addr.(*net.UDPAddr); ok {
		return udpAddr.IP.IsLoopback()
	}
	return false
}
