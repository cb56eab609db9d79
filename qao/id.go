package qao

import "fmt"

// ObjectId identifies an object attached to a Scheduler. It is a generational
// id: Index names a slot in the scheduler's object arena and Serial is the
// generation that slot was allocated under, so a stale id referring to a
// freed-and-reused slot is distinguishable from the live object and fails
// lookups safely rather than dereferencing unrelated memory.
type ObjectId struct {
	Index  uint32
	Serial uint32
}

// NullObjectId is the zero value of ObjectId. Serial 0 is reserved and never
// assigned by the arena (generations start at 1), so it doubles as the null
// marker.
var NullObjectId = ObjectId{}

// IsNull reports whether id names no object.
func (id ObjectId) IsNull() bool {
	return id.Serial == 0
}

func (id ObjectId) String() string {
	if id.IsNull() {
		return "ObjectId(null)"
	}
	return fmt.Sprintf("ObjectId(%d/%d)", id.Index, id.Serial)
}
