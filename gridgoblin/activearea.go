package gridgoblin

// ActiveArea is a caller-owned set of chunk coordinates plus a required
// building-block mask. While registered with a World, every chunk it lists
// is guaranteed loaded and pinned (not evictable). The World holds only a
// weak reference: dropping an ActiveArea (calling Close) releases its pins.
type ActiveArea struct {
	world  *World
	chunks []ChunkId
	mask   BuildingBlockMask
	closed bool
}

// Chunks returns the chunk coordinates this area pins.
func (a *ActiveArea) Chunks() []ChunkId { return append([]ChunkId(nil), a.chunks...) }

// Close releases this area's pin on every chunk it lists. Safe to call
// more than once.
func (a *ActiveArea) Close() {
	if a.closed {
		return
	}
	a.closed = true
	a.world.releaseActiveArea(a)
}
