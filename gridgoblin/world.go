package gridgoblin

import (
	"container/list"
	"fmt"
	"log/slog"

	"github.com/brentp/intintmap"
)

// LoadMode selects the blocking behavior of GetChunkAtIdUnchecked.
type LoadMode int

const (
	DoNotLoad LoadMode = iota
	LoadIfMissing
)

// worldSlot is one entry of the in-RAM chunk index.
type worldSlot struct {
	id            ChunkId
	chunk         Chunk
	loaded        bool
	usage         int
	freeElement   *list.Element // non-nil while usage == 0 and loaded
	inFlight      bool          // a spooler request is outstanding for this slot
}

// RuntimeConfig configures a World. The zero value is usable.
type RuntimeConfig struct {
	Logger *slog.Logger
}

// World is the chunk engine's in-RAM index plus active-area pinning,
// eviction, and (through its Spooler) background disk IO, per §4.E.
type World struct {
	log      *slog.Logger
	contents ContentsConfig
	storage  StorageConfig
	binder   Binder
	io       diskIOHandler

	slots   []*worldSlot
	bySid   *intintmap.Map // packed ChunkId -> index into slots
	free    *list.List     // worldSlot entries with usage == 0, oldest-free at front

	activeAreas map[*ActiveArea]struct{}

	editToken    uint64
	editing      bool
	pendingEdits []CellEditInfo

	spooler *Spooler
	pending []pendingChunkLoad
}

// pendingChunkLoad tracks an outstanding async RequestChunkLoad so
// PollSpooler can install its result into the RAM index once the spooler
// completes it, keeping index mutation confined to the main thread.
type pendingChunkLoad struct {
	slot *worldSlot
	req  *ChunkRequest
}

// NewWorld validates contents, opens (or initializes) storage, and starts
// the chunk engine's background spooler.
func NewWorld(contents ContentsConfig, storage StorageConfig, binder Binder, cfg RuntimeConfig) (*World, error) {
	if err := contents.Validate(); err != nil {
		return nil, err
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	if binder == nil {
		binder = NopBinder{}
	}

	io := newDefaultDiskIOHandler(log)
	if err := io.checkOrInitWorldFiles(contents, storage); err != nil {
		return nil, err
	}

	w := &World{
		log:         log.With("subsystem", "gridgoblin.world"),
		contents:    contents,
		storage:     storage,
		binder:      binder,
		io:          io,
		bySid:       intintmap.New(256, 0.6),
		free:        list.New(),
		activeAreas: map[*ActiveArea]struct{}{},
	}
	w.spooler = newSpooler(w, log)
	return w, nil
}

// Close shuts down the spooler. The runtime cache is left in place; callers
// wanting a clean shutdown's "runtime cache is emptied" behavior should
// call EmptyRuntimeCache explicitly after Close.
func (w *World) Close() error {
	return w.spooler.close()
}

// EmptyRuntimeCache deletes every file in the runtime cache, matching
// "the runtime cache is emptied on clean shutdown" from §4.E.
func (w *World) EmptyRuntimeCache() error {
	return w.io.emptyRuntimeCache()
}

func (w *World) slotFor(id ChunkId) *worldSlot {
	idx, ok := w.bySid.Get(id.packed())
	if ok {
		return w.slots[idx]
	}
	slot := &worldSlot{id: id}
	w.slots = append(w.slots, slot)
	w.bySid.Put(id.packed(), int64(len(w.slots)-1))
	return slot
}

// GetChunkAtIdUnchecked returns the chunk at id. With DoNotLoad it returns
// a nil chunk and a nil error if the chunk is not currently in the RAM
// index. With
// LoadIfMissing it synchronously drives the same load path the spooler
// uses (RAM hit -> runtime cache -> persistent cache -> synthesized
// default), per §5's "may block the caller ... for exactly one chunk".
func (w *World) GetChunkAtIdUnchecked(id ChunkId, mode LoadMode) (*Chunk, error) {
	slot := w.slotFor(id)
	if slot.loaded {
		return &slot.chunk, nil
	}
	if mode == DoNotLoad {
		return nil, nil
	}
	return w.loadSynchronously(slot)
}

func (w *World) loadSynchronously(slot *worldSlot) (*Chunk, error) {
	mask := w.contents.BuildingBlocks
	cx, cy := w.contents.CellsPerChunkX, w.contents.CellsPerChunkY

	if c, ok, err := w.io.loadChunk(slot.id, runtimeCache, mask, cx, cy); err != nil {
		return nil, err
	} else if ok {
		return w.installLoadedChunk(slot, c), nil
	}
	if c, ok, err := w.io.loadChunk(slot.id, persistentCache, mask, cx, cy); err != nil {
		return nil, err
	} else if ok {
		return w.installLoadedChunk(slot, c), nil
	}

	c := NewChunk(mask, cx, cy)
	fillDefaultOpenness(&c, w.contents.MaxCellOpenness)
	return w.installLoadedChunk(slot, c), nil
}

func (w *World) installLoadedChunk(slot *worldSlot, c Chunk) *Chunk {
	c.Extension = w.binder.CreateChunkExtension(slot.id, &c)
	slot.chunk = c
	slot.loaded = true
	if slot.usage == 0 {
		slot.freeElement = w.free.PushBack(slot)
	}
	return &slot.chunk
}

// RequestChunkLoad submits an asynchronous load request to the spooler,
// returning a handle the caller can poll or cancel. If the chunk is
// already in the RAM index, the handle completes immediately. Otherwise the
// result is installed into the RAM index by PollSpooler, once the caller's
// main loop drains it.
func (w *World) RequestChunkLoad(id ChunkId, priority int) *ChunkRequest {
	slot := w.slotFor(id)
	if slot.loaded {
		req := newChunkRequest(id)
		req.complete(&slot.chunk, nil)
		return req
	}
	req := w.spooler.submit(id, priority)
	slot.inFlight = true
	w.pending = append(w.pending, pendingChunkLoad{slot: slot, req: req})
	return req
}

// PollSpooler installs the results of any completed async RequestChunkLoad
// requests into the RAM index. Callers that use RequestChunkLoad should
// call this once per step from the main thread.
func (w *World) PollSpooler() {
	if len(w.pending) == 0 {
		return
	}
	remaining := w.pending[:0]
	for _, p := range w.pending {
		chunk, done, err := p.req.Poll()
		if !done {
			remaining = append(remaining, p)
			continue
		}
		p.slot.inFlight = false
		if err == nil && chunk != nil && !p.slot.loaded {
			w.installLoadedChunk(p.slot, *chunk)
		}
	}
	w.pending = remaining
}

// PinActiveArea registers area with w: every chunk it lists is loaded (if
// not already) and pinned against eviction for as long as the area stays
// open.
func (w *World) PinActiveArea(chunks []ChunkId, mask BuildingBlockMask) (*ActiveArea, error) {
	area := &ActiveArea{world: w, chunks: append([]ChunkId(nil), chunks...), mask: mask}
	for _, id := range area.chunks {
		slot := w.slotFor(id)
		if err := w.pin(slot); err != nil {
			// roll back partial pins
			for _, done := range area.chunks {
				if done == id {
					break
				}
				w.unpin(w.slotFor(done))
			}
			return nil, err
		}
	}
	w.activeAreas[area] = struct{}{}
	return area, nil
}

func (w *World) pin(slot *worldSlot) error {
	if slot.usage == 0 {
		if !slot.loaded {
			if _, err := w.loadSynchronously(slot); err != nil {
				return err
			}
		}
		if slot.freeElement != nil {
			w.free.Remove(slot.freeElement)
			slot.freeElement = nil
		}
	}
	slot.usage++
	return nil
}

func (w *World) unpin(slot *worldSlot) {
	if slot.usage == 0 {
		return
	}
	slot.usage--
	if slot.usage == 0 && slot.loaded {
		slot.freeElement = w.free.PushBack(slot)
	}
}

func (w *World) releaseActiveArea(area *ActiveArea) {
	delete(w.activeAreas, area)
	for _, id := range area.chunks {
		w.unpin(w.slotFor(id))
	}
}

// Prune evicts the oldest free (unpinned) chunks, serializing each to the
// runtime cache, until at most maxLoadedNonessentialChunks remain free,
// per §4.E's "Eviction" paragraph.
func (w *World) Prune() error {
	max := w.contents.MaxLoadedNonessentialChunks
	for w.free.Len() > max {
		front := w.free.Front()
		slot := front.Value.(*worldSlot)
		if err := w.io.storeChunk(slot.id, runtimeCache, &slot.chunk, w.contents.BuildingBlocks); err != nil {
			return fmt.Errorf("gridgoblin: evicting %v: %w", slot.id, err)
		}
		w.free.Remove(front)
		slot.freeElement = nil
		slot.loaded = false
		slot.chunk = Chunk{}
	}
	return nil
}

// PromoteToPersistent copies a chunk currently in the runtime cache (or in
// RAM) into the persistent cache. Chunks are never promoted implicitly.
func (w *World) PromoteToPersistent(id ChunkId) error {
	slot := w.slotFor(id)
	if !slot.loaded {
		c, ok, err := w.io.loadChunk(id, runtimeCache, w.contents.BuildingBlocks, w.contents.CellsPerChunkX, w.contents.CellsPerChunkY)
		if err != nil {
			return err
		}
		if !ok {
			return ErrStorageNotFound
		}
		return w.io.storeChunk(id, persistentCache, &c, w.contents.BuildingBlocks)
	}
	return w.io.storeChunk(id, persistentCache, &slot.chunk, w.contents.BuildingBlocks)
}

// BeginEditWindow mints a fresh edit permit for this step and opens the
// pending-edit batch that OnCellsEdited will be called with at
// EndEditWindow.
func (w *World) BeginEditWindow() EditPermit {
	w.editToken++
	w.editing = true
	w.pendingEdits = w.pendingEdits[:0]
	return EditPermit{token: w.editToken, world: w}
}

// EndEditWindow closes the edit window opened by BeginEditWindow and
// delivers every edit made during it to the binder in one batched call.
func (w *World) EndEditWindow() {
	w.editing = false
	if len(w.pendingEdits) > 0 {
		w.binder.OnCellsEdited(w.pendingEdits)
	}
}

// EditSpatial applies a SPATIAL_INFO edit to one cell and recomputes
// openness around it, bounded by maxCellOpenness rings. permit must come
// from the current step's BeginEditWindow.
func (w *World) EditSpatial(permit EditPermit, gx, gy int, info SpatialInfo) error {
	if !permit.valid() {
		return ErrEditNotPermitted
	}
	chunkX, chunkY, localX, localY := cellToChunk(gx, gy, w.contents.CellsPerChunkX, w.contents.CellsPerChunkY)
	id := ChunkId{X: uint16(chunkX), Y: uint16(chunkY)}
	chunk, err := w.GetChunkAtIdUnchecked(id, LoadIfMissing)
	if err != nil {
		return err
	}
	if err := chunk.SetSpatial(localX, localY, info); err != nil {
		return err
	}
	w.pendingEdits = append(w.pendingEdits, CellEditInfo{ChunkId: id, LocalX: localX, LocalY: localY, Block: BlockSpatialInfo})
	w.recomputeOpennessAround(gx, gy)
	return nil
}

// getSpatial resolves a global cell coordinate to its chunk's SPATIAL_INFO
// entry, treating an unloaded or out-of-range chunk as obstructed (same as
// the world edge), for the openness recomputation in openness.go.
func (w *World) getSpatial(gx, gy int) (SpatialInfo, bool) {
	chunkX, chunkY, localX, localY := cellToChunk(gx, gy, w.contents.CellsPerChunkX, w.contents.CellsPerChunkY)
	if chunkX < 0 || chunkY < 0 || chunkX >= w.contents.ChunkCountX || chunkY >= w.contents.ChunkCountY {
		return SpatialInfo{}, false
	}
	id := ChunkId{X: uint16(chunkX), Y: uint16(chunkY)}
	idx, ok := w.bySid.Get(id.packed())
	if !ok {
		return SpatialInfo{}, false
	}
	slot := w.slots[idx]
	if !slot.loaded {
		return SpatialInfo{}, false
	}
	info, err := slot.chunk.Spatial(localX, localY)
	if err != nil {
		return SpatialInfo{}, false
	}
	return info, true
}

func (w *World) setOpenness(gx, gy int, openness uint8) {
	chunkX, chunkY, localX, localY := cellToChunk(gx, gy, w.contents.CellsPerChunkX, w.contents.CellsPerChunkY)
	if chunkX < 0 || chunkY < 0 || chunkX >= w.contents.ChunkCountX || chunkY >= w.contents.ChunkCountY {
		return
	}
	id := ChunkId{X: uint16(chunkX), Y: uint16(chunkY)}
	idx, ok := w.bySid.Get(id.packed())
	if !ok {
		return
	}
	slot := w.slots[idx]
	if !slot.loaded {
		return
	}
	info, err := slot.chunk.Spatial(localX, localY)
	if err != nil {
		return
	}
	info.Openness = openness
	slot.chunk.SetSpatial(localX, localY, info)
}

// FreeChunkCount reports how many chunks are currently unpinned and
// resident, for tests and diagnostics.
func (w *World) FreeChunkCount() int { return w.free.Len() }

// LoadedChunkCount reports the total number of chunks currently resident
// in RAM, pinned or not.
func (w *World) LoadedChunkCount() int {
	n := 0
	for _, s := range w.slots {
		if s.loaded {
			n++
		}
	}
	return n
}
