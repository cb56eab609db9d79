package rigelnet

import (
	"net"
	"time"

	"github.com/google/uuid"
)

// Phase is a connection's position in its handshake/session state machine.
type Phase int

const (
	Disconnected Phase = iota
	Connecting
	Connected
	Disconnecting
)

func (p Phase) String() string {
	switch p {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Connected:
		return "Connected"
	case Disconnecting:
		return "Disconnecting"
	default:
		return "Unknown"
	}
}

// DisconnectReason classifies why a connection left Connected.
type DisconnectReason uint8

const (
	Graceful DisconnectReason = iota
	Error
	TimedOut
)

func (r DisconnectReason) String() string {
	switch r {
	case Graceful:
		return "Graceful"
	case Error:
		return "Error"
	case TimedOut:
		return "TimedOut"
	default:
		return "Unknown"
	}
}

// RetransmitPredicate decides, for a reliable segment awaiting ack, whether
// it should be resent given how many times it has already been sent, how
// long it has been outstanding, and the connection's current RTT estimate.
type RetransmitPredicate func(attemptCount int, elapsed, rtt time.Duration) bool

// DefaultRetransmitPredicate resends up to 8 times, backing off by RTT, and
// gives up beyond that: the segment stays in the send window but is no
// longer resent.
func DefaultRetransmitPredicate(attemptCount int, elapsed, rtt time.Duration) bool {
	if attemptCount >= 8 {
		return false
	}
	backoff := rtt * time.Duration(attemptCount+1)
	if backoff <= 0 {
		backoff = 50 * time.Millisecond
	}
	return elapsed >= backoff
}

type pendingSegment struct {
	sequence    uint32
	payload     []byte
	typ         PacketType
	flags       uint8
	firstSentAt time.Time
	lastSentAt  time.Time
	attempts    int
}

// ConnectionConfig configures a single peer connection's timers.
type ConnectionConfig struct {
	Timeout           time.Duration
	HeartbeatFraction float64 // fraction of Timeout; heartbeat sent after this much silence
	Retransmit        RetransmitPredicate
}

func (c ConnectionConfig) withDefaults() ConnectionConfig {
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.HeartbeatFraction <= 0 || c.HeartbeatFraction >= 1 {
		c.HeartbeatFraction = 0.3
	}
	if c.Retransmit == nil {
		c.Retransmit = DefaultRetransmitPredicate
	}
	return c
}

// Connection is per-peer transport state: handshake phase, reliable send
// window, receive reassembly, RTT estimate, and timing deadlines.
type Connection struct {
	cfg ConnectionConfig

	LocalAddr  net.Addr
	RemoteAddr net.Addr
	Loopback   bool

	SessionID uuid.UUID

	phase       Phase
	nextSeqOut  uint32
	highestSeen uint32
	seenMask    uint32 // bit i set => sequence (highestSeen-1-i) was seen

	sendWindow []pendingSegment

	reassembling bool
	fragNext     uint32
	fragBuf      []byte

	rtt time.Duration

	sawAny      bool
	lastHeard   time.Time
	lastSent    time.Time
	timeoutAt   time.Time
	clientIndex int
	gracedOnce  bool

	telemetry *telemetryWindow
}

// NewConnection creates a connection in the Disconnected phase.
func NewConnection(cfg ConnectionConfig, telemetryWindowSize int) *Connection {
	cfg = cfg.withDefaults()
	return &Connection{
		cfg:       cfg,
		telemetry: newTelemetryWindow(telemetryWindowSize),
	}
}

// Phase returns the connection's current state.
func (c *Connection) Phase() Phase { return c.phase }

// touch records that a packet was just received from this peer, resetting
// the timeout deadline.
func (c *Connection) touch(now time.Time) {
	c.lastHeard = now
	c.timeoutAt = now.Add(c.cfg.Timeout)
	c.gracedOnce = false
}

// timedOut reports whether now is past this connection's timeout deadline.
func (c *Connection) timedOut(now time.Time) bool {
	return c.phase == Connected && !c.timeoutAt.IsZero() && now.After(c.timeoutAt)
}

// grace extends the timeout deadline by one more Timeout period, once. It
// reports whether the extension was granted; a connection already graced
// once times out for good on its next expiry, so a retained peer that never
// comes back is still eventually dropped.
func (c *Connection) grace(now time.Time) bool {
	if c.gracedOnce {
		return false
	}
	c.gracedOnce = true
	c.timeoutAt = now.Add(c.cfg.Timeout)
	return true
}

// needsHeartbeat reports whether enough silence has passed since the last
// send that a heartbeat should go out to keep the peer's timer fresh.
func (c *Connection) needsHeartbeat(now time.Time) bool {
	if c.phase != Connected {
		return false
	}
	quiet := time.Duration(float64(c.cfg.Timeout) * c.cfg.HeartbeatFraction)
	return now.Sub(c.lastSent) >= quiet
}

// nextSequence allocates and returns the next outgoing sequence number.
func (c *Connection) nextSequence() uint32 {
	seq := c.nextSeqOut
	c.nextSeqOut++
	return seq
}

// recordAck applies an ack ceiling + bitmap (covering the 32 sequences
// below the ceiling) received from the peer, dropping every acked segment
// from the send window.
func (c *Connection) recordAck(ceiling, bitmap uint32) {
	if len(c.sendWindow) == 0 {
		return
	}
	acked := func(seq uint32) bool {
		if seq == ceiling-1 {
			return true
		}
		if seq >= ceiling {
			return false
		}
		shift := ceiling - 1 - seq
		if shift > 32 {
			return false
		}
		return bitmap&(1<<(shift-1)) != 0
	}
	kept := c.sendWindow[:0]
	for _, seg := range c.sendWindow {
		if !acked(seg.sequence) {
			kept = append(kept, seg)
		}
	}
	c.sendWindow = kept
}

// ackFields computes this connection's current (ceiling, bitmap) pair to
// stamp on an outgoing packet, from the sequences it has seen from the peer.
func (c *Connection) ackFields() (ceiling, bitmap uint32) {
	return c.highestSeen + 1, c.seenMask
}

// observeIncomingSequence updates the seen-bitmap for a freshly received
// peer sequence number, discarding duplicates. It returns false for a
// sequence already seen (a duplicate reliable packet, which the caller must
// not re-dispatch).
func (c *Connection) observeIncomingSequence(seq uint32) (isNew bool) {
	if !c.sawAny {
		c.sawAny = true
		c.highestSeen = seq
		return true
	}
	switch {
	case seq > c.highestSeen:
		shift := seq - c.highestSeen
		if shift >= 32 {
			c.seenMask = 0
		} else {
			c.seenMask = (c.seenMask << shift) | (1 << (shift - 1))
		}
		c.highestSeen = seq
		return true
	case seq == c.highestSeen:
		return false
	default:
		shift := c.highestSeen - seq
		if shift > 32 {
			return true
		}
		bit := uint32(1) << (shift - 1)
		if c.seenMask&bit != 0 {
			return false
		}
		c.seenMask |= bit
		return true
	}
}

// feedFragment appends a DataMore/DataTail chunk to the in-progress
// reassembly buffer. Reassembly is keyed on ordinal contiguity: a fragment
// whose sequence does not immediately continue the one being assembled
// resets the buffer to just that fragment, discarding whatever was being
// reassembled (a lost leading fragment makes the rest undecodable anyway).
// complete is true once a DataTail has been fed, in which case the returned
// slice is the full reassembled message and the buffer is reset.
func (c *Connection) feedFragment(seq uint32, final bool, payload []byte) (message []byte, complete bool) {
	if !c.reassembling || seq != c.fragNext {
		c.reassembling = true
		c.fragBuf = append([]byte(nil), payload...)
	} else {
		c.fragBuf = append(c.fragBuf, payload...)
	}
	c.fragNext = seq + 1
	if final {
		msg := c.fragBuf
		c.reassembling = false
		c.fragBuf = nil
		return msg, true
	}
	return nil, false
}

// dueForRetransmit scans the send window and returns the segments whose
// retransmit predicate currently says "resend", bumping their attempt
// counters and lastSentAt to now.
func (c *Connection) dueForRetransmit(now time.Time) []pendingSegment {
	var due []pendingSegment
	for i := range c.sendWindow {
		seg := &c.sendWindow[i]
		elapsed := now.Sub(seg.lastSentAt)
		if c.cfg.Retransmit(seg.attempts, elapsed, c.rtt) {
			seg.attempts++
			seg.lastSentAt = now
			due = append(due, *seg)
		}
	}
	return due
}
