package spempe

import (
	"encoding/binary"
	"math"
)

// RPC ids the sync engine registers its handlers under. These are
// internal to this package's wire contract, not user-assignable.
const (
	RPCSyncCreate     uint32 = 0x5000_0001
	RPCSyncUpdate     uint32 = 0x5000_0002
	RPCSyncDestroy    uint32 = 0x5000_0003
	RPCSyncDeactivate uint32 = 0x5000_0004
)

const (
	diffBitPosition = 1 << 0
	diffBitVelocity = 1 << 1
)

func putFloat64(dst []byte, v float64) {
	binary.LittleEndian.PutUint64(dst, math.Float64bits(v))
}

func getFloat64(src []byte) float64 {
	return math.Float64frombits(binary.LittleEndian.Uint64(src))
}

func encodeSid(sid SyncId) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(sid))
	return b[:]
}

func decodeSid(b []byte) (SyncId, []byte, error) {
	if len(b) < 8 {
		return 0, nil, ErrInvalidArgument
	}
	return SyncId(binary.LittleEndian.Uint64(b[0:8])), b[8:], nil
}

// DecodeSyncId parses the bare SyncId payload carried by the Create,
// Destroy and Deactivate RPCs (Update's richer payload is parsed by
// DecodeUpdate instead), for host code implementing the client-side dummy
// lifecycle the engine leaves up to the caller.
func DecodeSyncId(payload []byte) (SyncId, error) {
	sid, _, err := decodeSid(payload)
	return sid, err
}

func encodeVec3(dst []byte, x, y, z float64) []byte {
	var b [24]byte
	putFloat64(b[0:8], x)
	putFloat64(b[8:16], y)
	putFloat64(b[16:24], z)
	return append(dst, b[:]...)
}

func decodeVec3(b []byte) (x, y, z float64, rest []byte, err error) {
	if len(b) < 24 {
		return 0, 0, 0, nil, ErrInvalidArgument
	}
	return getFloat64(b[0:8]), getFloat64(b[8:16]), getFloat64(b[16:24]), b[24:], nil
}

// encodeFullState packs a sid + flags + full VisibleState payload.
func encodeFullState(sid SyncId, flags SyncFlags, s VisibleState) []byte {
	buf := encodeSid(sid)
	buf = append(buf, byte(flags))
	buf = encodeVec3(buf, s.Position[0], s.Position[1], s.Position[2])
	buf = encodeVec3(buf, s.Velocity[0], s.Velocity[1], s.Velocity[2])
	return buf
}

// encodeDiffState packs a sid + flags + a changed-fields bitmask followed
// by only the fields of s that differ from prev.
func encodeDiffState(sid SyncId, flags SyncFlags, s, prev VisibleState) []byte {
	var mask byte
	if s.Position != prev.Position {
		mask |= diffBitPosition
	}
	if s.Velocity != prev.Velocity {
		mask |= diffBitVelocity
	}
	buf := encodeSid(sid)
	buf = append(buf, byte(flags), mask)
	if mask&diffBitPosition != 0 {
		buf = encodeVec3(buf, s.Position[0], s.Position[1], s.Position[2])
	}
	if mask&diffBitVelocity != 0 {
		buf = encodeVec3(buf, s.Velocity[0], s.Velocity[1], s.Velocity[2])
	}
	return buf
}

// DecodedUpdate is a parsed Update RPC payload, sufficient for a dummy to
// apply it against its own last-known state.
type DecodedUpdate struct {
	Sid   SyncId
	Flags SyncFlags
	// FieldMask is meaningless when Flags.FullState() is set (the payload
	// carries every field); otherwise bit 0 = Position present, bit 1 =
	// Velocity present.
	FieldMask byte
	State     VisibleState
}

// DecodeUpdate parses an Update RPC payload produced by either
// encodeFullState or encodeDiffState.
func DecodeUpdate(payload []byte) (DecodedUpdate, error) {
	sid, rest, err := decodeSid(payload)
	if err != nil {
		return DecodedUpdate{}, err
	}
	if len(rest) < 1 {
		return DecodedUpdate{}, ErrInvalidArgument
	}
	flags := SyncFlags(rest[0])
	rest = rest[1:]

	var out DecodedUpdate
	out.Sid = sid
	out.Flags = flags

	if flags.FullState() {
		px, py, pz, rest2, err := decodeVec3(rest)
		if err != nil {
			return DecodedUpdate{}, err
		}
		vx, vy, vz, _, err := decodeVec3(rest2)
		if err != nil {
			return DecodedUpdate{}, err
		}
		out.State.Position = [3]float64{px, py, pz}
		out.State.Velocity = [3]float64{vx, vy, vz}
		out.FieldMask = diffBitPosition | diffBitVelocity
		return out, nil
	}

	if len(rest) < 1 {
		return DecodedUpdate{}, ErrInvalidArgument
	}
	mask := rest[0]
	rest = rest[1:]
	out.FieldMask = mask
	if mask&diffBitPosition != 0 {
		px, py, pz, r2, err := decodeVec3(rest)
		if err != nil {
			return DecodedUpdate{}, err
		}
		out.State.Position = [3]float64{px, py, pz}
		rest = r2
	}
	if mask&diffBitVelocity != 0 {
		vx, vy, vz, _, err := decodeVec3(rest)
		if err != nil {
			return DecodedUpdate{}, err
		}
		out.State.Velocity = [3]float64{vx, vy, vz}
	}
	return out, nil
}
