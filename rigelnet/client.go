package rigelnet

import (
	"errors"
	"log/slog"
	"net"
	"time"
)

// ErrNotConnected is returned by Compose when the client has not completed
// its handshake yet.
var ErrNotConnected = errors.New("rigelnet: not connected")

// ClientConfig configures a Client.
type ClientConfig struct {
	Passphrase       string
	MaxPacketPayload int
	Connection       ConnectionConfig
	TelemetryWindow  int
	HandshakeTimeout time.Duration
	Logger           *slog.Logger
}

func (c ClientConfig) withDefaults() ClientConfig {
	if c.MaxPacketPayload <= 0 {
		c.MaxPacketPayload = defaultMaxPacketPayload
	}
	if c.TelemetryWindow <= 0 {
		c.TelemetryWindow = 60
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

// Client connects to exactly one Server over one socket.
type Client struct {
	cfg      ClientConfig
	sock     socket
	log      *slog.Logger
	sink     EventSink
	handlers *handlerTable

	serverAddr net.Addr
	conn       *Connection
	clientIndex int

	connectSentAt time.Time
	recvBuf       []byte
}

// NewClient wraps sock as a Client that will connect to serverAddr.
func NewClient(sock socket, serverAddr net.Addr, cfg ClientConfig, sink EventSink) *Client {
	cfg = cfg.withDefaults()
	if sink == nil {
		sink = NopEventSink{}
	}
	return &Client{
		cfg:         cfg,
		sock:        sock,
		log:         cfg.Logger.With("subsystem", "rigelnet", "role", "client"),
		sink:        sink,
		handlers:    newHandlerTable(),
		serverAddr:  serverAddr,
		clientIndex: -1,
		recvBuf:     make([]byte, 65536),
	}
}

// Register binds an RPC id to a handler function for incoming server data.
func (cl *Client) Register(rpcID uint32, handler RPCHandler) {
	cl.handlers.Register(rpcID, handler)
}

// Phase returns the client's connection phase.
func (cl *Client) Phase() Phase {
	if cl.conn == nil {
		return Disconnected
	}
	return cl.conn.phase
}

// ClientIndex returns the slot index the server assigned on handshake, or
// -1 if not yet connected.
func (cl *Client) ClientIndex() int {
	return cl.clientIndex
}

// Telemetry returns the last-update and rolling-window telemetry for the
// connection to the server.
func (cl *Client) Telemetry() (last, rolling Telemetry) {
	if cl.conn == nil {
		return Telemetry{}, Telemetry{}
	}
	return cl.conn.telemetry.Last(), cl.conn.telemetry.Rolling()
}

// Connect sends a Connect handshake packet. The outcome (Connected or
// ConnectAttemptFailed) is delivered asynchronously through the EventSink
// during a subsequent Update call.
func (cl *Client) Connect() error {
	cl.conn = NewConnection(cl.cfg.Connection, cl.cfg.TelemetryWindow)
	cl.conn.RemoteAddr = cl.serverAddr
	cl.conn.LocalAddr = cl.sock.LocalAddr()
	cl.conn.Loopback = isLoopbackAddr(cl.serverAddr)
	cl.conn.phase = Connecting
	now := time.Now()
	cl.connectSentAt = now

	payload := PutString(nil, cl.cfg.Passphrase)
	payload = PutUint32(payload, ProtocolVersion)

	seq := cl.conn.nextSequence()
	h := Header{Sequence: seq, Type: TypeConnect}
	raw := Encode(nil, h, payload)
	_, err := cl.sock.WriteTo(raw, cl.serverAddr)
	if err == nil {
		cl.conn.lastSent = now
		if !cl.conn.Loopback {
			cl.conn.telemetry.push(Telemetry{UploadByteCount: uint64(len(raw))})
		}
	}
	return err
}

// Disconnect gracefully leaves the server.
func (cl *Client) Disconnect() {
	if cl.conn == nil || cl.conn.phase != Connected {
		return
	}
	cl.sendControl(TypeDisconnect, disconnectPayload(Graceful, ""))
	cl.conn.phase = Disconnected
	cl.clientIndex = -1
}

// Update performs one receive+dispatch+send cycle: drains available
// datagrams, advances the handshake, dispatches complete messages, and
// emits due retransmits/heartbeats.
func (cl *Client) Update() error {
	now := time.Now()
	if err := cl.receiveAll(now); err != nil {
		return err
	}
	if cl.conn == nil {
		return nil
	}
	if cl.conn.phase == Connecting && now.Sub(cl.connectSentAt) > cl.cfg.HandshakeTimeout {
		cl.conn.phase = Disconnected
		cl.sink.OnConnectAttemptFailed(TimedOut)
		return nil
	}
	if cl.conn.phase != Connected {
		return nil
	}
	if cl.conn.timedOut(now) {
		prevIdx := cl.clientIndex
		cl.conn.phase = Disconnected
		cl.clientIndex = -1
		cl.sink.OnDisconnected(prevIdx, TimedOut)
		return nil
	}
	for _, seg := range cl.conn.dueForRetransmit(now) {
		cl.sendRaw(seg.sequence, seg.typ, seg.flags, seg.payload, now)
	}
	if cl.conn.needsHeartbeat(now) {
		cl.sendControl(TypeHeartbeat, nil)
	}
	return nil
}

func (cl *Client) receiveAll(now time.Time) error {
	for {
		n, addr, err := cl.sock.ReadFrom(cl.recvBuf)
		if err != nil {
			if errors.Is(err, ErrWouldBlock) {
				return nil
			}
			return err
		}
		cl.handlePacket(addr, cl.recvBuf[:n], now)
	}
}

func (cl *Client) handlePacket(addr net.Addr, raw []byte, now time.Time) {
	if cl.conn == nil {
		return
	}
	h, payload, err := Decode(raw)
	if err != nil {
		cl.log.Debug("dropping malformed packet", "error", err)
		return
	}

	if cl.conn.phase == Connecting {
		switch h.Type {
		case TypeConnectResponse:
			idx, _, err := GetUint32(payload)
			if err != nil {
				return
			}
			cl.clientIndex = int(idx)
			cl.conn.phase = Connected
			cl.conn.touch(now)
			cl.sink.OnConnected(cl.clientIndex)
		case TypeDisconnect:
			reason, _, _ := parseDisconnectPayload(payload)
			cl.conn.phase = Disconnected
			cl.sink.OnConnectAttemptFailed(reason)
		}
		return
	}

	cl.conn.touch(now)
	cl.conn.recordAck(h.AckCeiling, h.AckBitmap)
	if !cl.conn.Loopback {
		cl.conn.telemetry.push(Telemetry{DownloadByteCount: uint64(len(raw))})
	}

	switch h.Type {
	case TypeHeartbeat:
	case TypeDisconnect:
		reason, _, _ := parseDisconnectPayload(payload)
		prevIdx := cl.clientIndex
		cl.conn.phase = Disconnected
		cl.clientIndex = -1
		cl.sink.OnDisconnected(prevIdx, reason)
	case TypeData, TypeDataMore, TypeDataTail:
		cl.handleData(h, payload)
	}
}

func (cl *Client) handleData(h Header, payload []byte) {
	if h.reliable() && !cl.conn.observeIncomingSequence(h.Sequence) {
		return
	}
	var message []byte
	switch h.Type {
	case TypeData:
		message = payload
	case TypeDataMore:
		cl.conn.feedFragment(h.Sequence, false, payload)
		return
	case TypeDataTail:
		msg, complete := cl.conn.feedFragment(h.Sequence, true, payload)
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
	_ = cl.handlers.dispatch(ServerSenderIndex, rpcID, body)
}

// Compose sends an RPC message to the server.
func (cl *Client) Compose(rpcID uint32, payload []byte, reliable bool) error {
	if cl.conn == nil || cl.conn.phase != Connected {
		return ErrNotConnected
	}
	message := PutUint32(make([]byte, 0, 4+len(payload)), rpcID)
	message = append(message, payload...)

	now := time.Now()
	chunks := splitChunks(message, cl.cfg.MaxPacketPayload)
	for i, chunk := range chunks {
		seq := cl.conn.nextSequence()
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
		cl.sendRaw(seq, typ, flags, chunk, now)
		if reliable {
			cl.conn.sendWindow = append(cl.conn.sendWindow, pendingSegment{
				sequence: seq, payload: chunk, typ: typ, flags: flags,
				firstSentAt: now, lastSentAt: now,
			})
		}
	}
	return nil
}

func (cl *Client) sendControl(typ PacketType, payload []byte) {
	seq := cl.conn.nextSequence()
	cl.sendRaw(seq, typ, 0, payload, time.Now())
}

func (cl *Client) sendRaw(seq uint32, typ PacketType, flags uint8, payload []byte, now time.Time) {
	ceiling, bitmap := cl.conn.ackFields()
	h := Header{Sequence: seq, Type: typ, Flags: flags, AckCeiling: ceiling, AckBitmap: bitmap}
	raw := Encode(nil, h, payload)
	if _, err := cl.sock.WriteTo(raw, cl.serverAddr); err != nil {
		cl.log.Warn("write failed", "error", err)
		return
	}
	cl.conn.lastSent = now
	if !cl.conn.Loopback {
		cl.conn.telemetry.push(Telemetry{UploadByteCount: uint64(len(raw))})
	}
}
