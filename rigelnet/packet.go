// Package rigelnet implements the engine's reliable/unreliable UDP
// transport: packet framing, fragmentation, connection handshake, and
// retransmit/heartbeat state machines.
package rigelnet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic identifies this protocol family on the wire. Packets with a
// different magic are silently discarded as foreign traffic.
const Magic uint32 = 0x52474e31 // "RGN1"

// PacketType names the fixed set of packet kinds carried in the header.
type PacketType uint8

const (
	TypeData PacketType = iota
	TypeDataMore
	TypeDataTail
	TypeHeartbeat
	TypeConnect
	TypeConnectResponse
	TypeDisconnect
)

func (t PacketType) String() string {
	switch t {
	case TypeData:
		return "Data"
	case TypeDataMore:
		return "DataMore"
	case TypeDataTail:
		return "DataTail"
	case TypeHeartbeat:
		return "Heartbeat"
	case TypeConnect:
		return "Connect"
	case TypeConnectResponse:
		return "ConnectResponse"
	case TypeDisconnect:
		return "Disconnect"
	default:
		return "Unknown"
	}
}

// Flag bits, packed into the header's single flags byte.
const (
	FlagReliable    uint8 = 1 << 0
	FlagFragmented  uint8 = 1 << 1
	FlagFinalFrag   uint8 = 1 << 2
)

// headerSize is the fixed on-wire header length in bytes:
// magic(4) + sequence(4) + type(1) + flags(1) + ackCeiling(4) + ackBitmap(4) + payloadLen(4).
const headerSize = 22

var (
	// ErrShortPacket is returned when a received datagram is too small to
	// contain a full header.
	ErrShortPacket = errors.New("rigelnet: packet shorter than header")
	// ErrBadMagic is returned when a datagram's magic does not match Magic.
	ErrBadMagic = errors.New("rigelnet: bad magic")
	// ErrTruncatedPayload is returned when payloadLen exceeds the bytes
	// actually present after the header.
	ErrTruncatedPayload = errors.New("rigelnet: truncated payload")
)

// Header is the fixed framing that precedes every packet's payload. All
// integers are little-endian on the wire.
type Header struct {
	Sequence   uint32
	Type       PacketType
	Flags      uint8
	AckCeiling uint32
	AckBitmap  uint32
	PayloadLen uint32
}

func (h Header) reliable() bool   { return h.Flags&FlagReliable != 0 }
func (h Header) fragmented() bool { return h.Flags&FlagFragmented != 0 }
func (h Header) finalFrag() bool  { return h.Flags&FlagFinalFrag != 0 }

// Encode appends the wire encoding of h and payload to dst and returns the
// extended slice.
func Encode(dst []byte, h Header, payload []byte) []byte {
	var buf [headerSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Sequence)
	buf[8] = byte(h.Type)
	buf[9] = h.Flags
	binary.LittleEndian.PutUint32(buf[10:14], h.AckCeiling)
	binary.LittleEndian.PutUint32(buf[14:18], h.AckBitmap)
	binary.LittleEndian.PutUint32(buf[18:22], uint32(len(payload)))
	dst = append(dst, buf[:]...)
	dst = append(dst, payload...)
	return dst
}

// Decode parses a raw datagram into its Header and payload slice (a
// sub-slice of raw, not copied).
func Decode(raw []byte) (Header, []byte, error) {
	if len(raw) < headerSize {
		return Header{}, nil, ErrShortPacket
	}
	if binary.LittleEndian.Uint32(raw[0:4]) != Magic {
		return Header{}, nil, ErrBadMagic
	}
	h := Header{
		Sequence:   binary.LittleEndian.Uint32(raw[4:8]),
		Type:       PacketType(raw[8]),
		Flags:      raw[9],
		AckCeiling: binary.LittleEndian.Uint32(raw[10:14]),
		AckBitmap:  binary.LittleEndian.Uint32(raw[14:18]),
		PayloadLen: binary.LittleEndian.Uint32(raw[18:22]),
	}
	payload := raw[headerSize:]
	if uint32(len(payload)) < h.PayloadLen {
		return Header{}, nil, ErrTruncatedPayload
	}
	return h, payload[:h.PayloadLen], nil
}

// PutString appends a length-prefixed (uint32 byte length) UTF-8 string to
// dst, matching the wire format used for passphrases, disconnect messages,
// and RPC string arguments.
func PutString(dst []byte, s string) []byte {
	var n [4]byte
	binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
	dst = append(dst, n[:]...)
	dst = append(dst, s...)
	return dst
}

// GetString reads a length-prefixed string from the front of b, returning
// the remainder.
func GetString(b []byte) (string, []byte, error) {
	if len(b) < 4 {
		return "", nil, fmt.Errorf("rigelnet: short string length prefix")
	}
	n := binary.LittleEndian.Uint32(b[0:4])
	b = b[4:]
	if uint64(len(b)) < uint64(n) {
		return "", nil, fmt.Errorf("rigelnet: truncated string (want %d have %d)", n, len(b))
	}
	return string(b[:n]), b[n:], nil
}

// PutUint32/GetUint32 are small helpers for RPC argument packing in
// declaration order, as the wire format requires.
func PutUint32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func GetUint32(b []byte) (uint32, []byte, error) {
	if len(b) < 4 {
		return 0, nil, fmt.Errorf("rigelnet: short uint32")
	}
	return binary.LittleEndian.Uint32(b[0:4]), b[4:], nil
}
