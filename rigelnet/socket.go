package rigelnet

import (
	"errors"
	"net"
	"time"
)

// ErrWouldBlock is returned by socket.ReadFrom when no datagram is
// immediately available -- update() polls rather than blocks, per the
// spec's concurrency model for the net transport.
var ErrWouldBlock = errors.New("rigelnet: read would block")

// socket is the minimal surface rigelnet needs from a UDP transport,
// narrowed from net.PacketConn the way the teacher's packetConn wraps
// net.PacketConn for its own query listener. A loopbackSocket implements
// this same interface without touching the kernel network stack at all, so
// Server and Client can treat a same-process peer identically to a remote
// one except for the telemetry exclusion the spec calls for.
type socket interface {
	ReadFrom(p []byte) (n int, addr net.Addr, err error)
	WriteTo(p []byte, addr net.Addr) (n int, err error)
	Close() error
	LocalAddr() net.Addr
}

// loopbackAddr is the net.Addr used by in-process loopback sockets.
type loopbackAddr string

func (a loopbackAddr) Network() string { return "rigelnet-loopback" }
func (a loopbackAddr) String() string  { return string(a) }

// loopbackSocket delivers datagrams directly to a paired loopbackSocket's
// channel, bypassing the kernel entirely, per the spec's topology note that
// local connections "bypass sockets (direct in-process packet handoff)".
type loopbackSocket struct {
	addr loopbackAddr
	in   chan loopbackDatagram
	peer *loopbackSocket
}

type loopbackDatagram struct {
	payload []byte
	from    net.Addr
}

// NewLoopbackPair returns two connected in-process sockets, as if a and b
// had dialed each other over UDP.
func NewLoopbackPair(nameA, nameB string) (a, b socket) {
	sa := &loopbackSocket{addr: loopbackAddr(nameA), in: make(chan loopbackDatagram, 256)}
	sb := &loopbackSocket{addr: loopbackAddr(nameB), in: make(chan loopbackDatagram, 256)}
	sa.peer = sb
	sb.peer = sa
	return sa, sb
}

func (s *loopbackSocket) ReadFrom(p []byte) (int, net.Addr, error) {
	select {
	case dg, ok := <-s.in:
		if !ok {
			return 0, nil, net.ErrClosed
		}
		n := copy(p, dg.payload)
		return n, dg.from, nil
	default:
		return 0, nil, ErrWouldBlock
	}
}

func (s *loopbackSocket) WriteTo(p []byte, _ net.Addr) (int, error) {
	cp := make([]byte, len(p))
	copy(cp, p)
	select {
	case s.peer.in <- loopbackDatagram{payload: cp, from: s.addr}:
	default:
	}
	return len(p), nil
}

func (s *loopbackSocket) Close() error {
	close(s.in)
	return nil
}

func (s *loopbackSocket) LocalAddr() net.Addr { return s.addr }

// udpSocket adapts a real net.PacketConn to the non-blocking socket
// interface by giving every read an immediate deadline, the way the
// teacher's packetConn narrows net.PacketConn to what its listener needs.
type udpSocket struct {
	net.PacketConn
}

// NewUDPSocket wraps an already-bound net.PacketConn (typically a
// *net.UDPConn from net.ListenPacket("udp", addr)) for non-blocking use.
func NewUDPSocket(pc net.PacketConn) socket {
	return &udpSocket{PacketConn: pc}
}

func (s *udpSocket) ReadFrom(p []byte) (int, net.Addr, error) {
	_ = s.PacketConn.SetReadDeadline(time.Now())
	n, addr, err := s.PacketConn.ReadFrom(p)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, nil, ErrWouldBlock
		}
		return 0, nil, err
	}
	return n, addr, nil
}
