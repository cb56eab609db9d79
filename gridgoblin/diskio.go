package gridgoblin

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cespare/xxhash/v2"
)

const (
	chunksDirName         = "dcio_chunks"
	runtimeCacheSubdir    = "runtime_cache"
	persistentCacheSubdir = "persistent_cache"
)

// cacheKind selects which on-disk cache a chunk request targets.
type cacheKind int

const (
	runtimeCache cacheKind = iota
	persistentCache
)

func (k cacheKind) subdir() string {
	if k == persistentCache {
		return persistentCacheSubdir
	}
	return runtimeCacheSubdir
}

// chunkFileJSON is one chunk's on-disk shape: a "buildingBlocks" tag, one
// array per present block (row-major, length cellsPerChunkX*cellsPerChunkY),
// a checksum over those arrays (an enrichment beyond the bare spec format,
// always written, and verified on load: a mismatch is an error), and an
// optional extension payload.
type chunkFileJSON struct {
	BuildingBlocks string             `json:"buildingBlocks"`
	CellKindId     []uint16           `json:"CELL_KIND_ID,omitempty"`
	FloorSprite    []uint16           `json:"FLOOR_SPRITE,omitempty"`
	WallSprite     []WallSprite       `json:"WALL_SPRITE,omitempty"`
	SpatialInfo    []SpatialInfo      `json:"SPATIAL_INFO,omitempty"`
	RendererAux    []RendererAuxData  `json:"RENDERER_AUX_DATA,omitempty"`
	UserData       []uint64           `json:"USER_DATA,omitempty"`
	Checksum       uint64             `json:"checksum"`
	Extension      json.RawMessage    `json:"extension,omitempty"`
}

func chunkContentChecksum(j *chunkFileJSON) uint64 {
	h := xxhash.New()
	enc := json.NewEncoder(h)
	enc.Encode(j.CellKindId)
	enc.Encode(j.FloorSprite)
	enc.Encode(j.WallSprite)
	enc.Encode(j.SpatialInfo)
	enc.Encode(j.RendererAux)
	enc.Encode(j.UserData)
	return h.Sum64()
}

// chunkToJSON serializes a chunk to its exact on-disk form, writing only
// the blocks present in mask (which should match c.BuildingBlocks()).
func chunkToJSON(c *Chunk, mask BuildingBlockMask) ([]byte, error) {
	j := chunkFileJSON{BuildingBlocks: mask.String()}
	if mask.Has(BlockCellKindId) {
		j.CellKindId = c.cellKindId
	}
	if mask.Has(BlockFloorSprite) {
		j.FloorSprite = c.floorSprite
	}
	if mask.Has(BlockWallSprite) {
		j.WallSprite = c.wallSprite
	}
	if mask.Has(BlockSpatialInfo) {
		j.SpatialInfo = c.spatialInfo
	}
	if mask.Has(BlockRendererAuxData) {
		j.RendererAux = c.rendererAux
	}
	if mask.Has(BlockUserData) {
		j.UserData = c.userData
	}
	j.Checksum = chunkContentChecksum(&j)
	if c.Extension != nil {
		if enc, ok := c.Extension.(ChunkExtensionEncoder); ok {
			raw, err := enc.EncodeExtension()
			if err != nil {
				return nil, err
			}
			j.Extension = raw
		}
	}
	return json.MarshalIndent(j, "", "  ")
}

// ChunkExtensionEncoder is implemented by a chunk extension object that
// wants to be persisted alongside its owning chunk, choosing its own
// payload shape (raw JSON value or a base64-wrapped binary stream, at the
// implementation's discretion) under the outer object's "extension" member.
type ChunkExtensionEncoder interface {
	EncodeExtension() (json.RawMessage, error)
}

// chunkFromJSON parses data (as produced by chunkToJSON) back into a Chunk
// sized cellsPerChunkX x cellsPerChunkY, validating that the stored
// buildingBlocks tag matches expectMask exactly -- a mismatch is fatal per
// §4.E's serialization paragraph.
func chunkFromJSON(data []byte, expectMask BuildingBlockMask, cellsPerChunkX, cellsPerChunkY int) (Chunk, error) {
	var j chunkFileJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return Chunk{}, err
	}
	stored := ParseBuildingBlockMask(j.BuildingBlocks)
	if stored != expectMask {
		return Chunk{}, fmt.Errorf("%w: stored=%q configured=%q", ErrBuildingBlockMismatch, j.BuildingBlocks, expectMask.String())
	}

	cellCount := cellsPerChunkX * cellsPerChunkY
	for block, got := range map[BuildingBlockMask]int{
		BlockCellKindId:      len(j.CellKindId),
		BlockFloorSprite:     len(j.FloorSprite),
		BlockWallSprite:      len(j.WallSprite),
		BlockSpatialInfo:     len(j.SpatialInfo),
		BlockRendererAuxData: len(j.RendererAux),
		BlockUserData:        len(j.UserData),
	} {
		if (got != 0 || expectMask.Has(block)) && got != cellCount {
			return Chunk{}, fmt.Errorf("%w: block %s has %d entries, want %d", ErrMissingMember, block.String(), got, cellCount)
		}
	}

	if checksum := chunkContentChecksum(&j); checksum != j.Checksum {
		return Chunk{}, fmt.Errorf("gridgoblin: chunk content checksum mismatch (corrupted file)")
	}

	c := NewChunk(expectMask, cellsPerChunkX, cellsPerChunkY)
	if expectMask.Has(BlockCellKindId) {
		copy(c.cellKindId, j.CellKindId)
	}
	if expectMask.Has(BlockFloorSprite) {
		copy(c.floorSprite, j.FloorSprite)
	}
	if expectMask.Has(BlockWallSprite) {
		copy(c.wallSprite, j.WallSprite)
	}
	if expectMask.Has(BlockSpatialInfo) {
		copy(c.spatialInfo, j.SpatialInfo)
	}
	if expectMask.Has(BlockRendererAuxData) {
		copy(c.rendererAux, j.RendererAux)
	}
	if expectMask.Has(BlockUserData) {
		copy(c.userData, j.UserData)
	}
	return c, nil
}

// diskIOHandler is the interface the spooler calls into for chunk loads and
// stores; defaultDiskIOHandler is the only implementation but the seam
// exists so a test or alternate host can swap in an in-memory one.
type diskIOHandler interface {
	checkOrInitWorldFiles(contents ContentsConfig, storage StorageConfig) error
	loadChunk(id ChunkId, kind cacheKind, mask BuildingBlockMask, cellsX, cellsY int) (Chunk, bool, error)
	storeChunk(id ChunkId, kind cacheKind, c *Chunk, mask BuildingBlockMask) error
	emptyRuntimeCache() error
}

type defaultDiskIOHandler struct {
	log      *slog.Logger
	storageDirectory string
}

func newDefaultDiskIOHandler(log *slog.Logger) *defaultDiskIOHandler {
	return &defaultDiskIOHandler{log: log.With("subsystem", "gridgoblin.diskio")}
}

func (h *defaultDiskIOHandler) checkOrInitWorldFiles(contents ContentsConfig, storage StorageConfig) error {
	dir := storage.StorageDirectory
	h.storageDirectory = dir

	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if !storage.AllowCreateNew {
			return fmt.Errorf("%w: %s", ErrStorageNotFound, dir)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		if err := saveContentsConfig(dir, contents); err != nil {
			return err
		}
	case err != nil:
		return err
	case !info.IsDir():
		return fmt.Errorf("%w: %s", ErrStorageNotADir, dir)
	default:
		existing, err := loadContentsConfig(dir)
		if err != nil {
			if !storage.AllowCreateNew {
				return err
			}
			if err := saveContentsConfig(dir, contents); err != nil {
				return err
			}
		} else if !existing.Equal(contents) {
			if !storage.AllowOverwriteConfig {
				return ErrConfigMismatch
			}
			if err := saveContentsConfig(dir, contents); err != nil {
				return err
			}
		}
	}

	for _, sub := range []string{
		filepath.Join(dir, chunksDirName),
		filepath.Join(dir, chunksDirName, runtimeCacheSubdir),
		filepath.Join(dir, chunksDirName, persistentCacheSubdir),
	} {
		if err := os.MkdirAll(sub, 0o755); err != nil {
			return err
		}
	}

	return h.emptyRuntimeCache()
}

func (h *defaultDiskIOHandler) emptyRuntimeCache() error {
	dir := filepath.Join(h.storageDirectory, chunksDirName, runtimeCacheSubdir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}
	h.log.Warn("non-empty runtime cache at startup, emptying", "dir", dir)
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(dir, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (h *defaultDiskIOHandler) chunkPath(id ChunkId, kind cacheKind) string {
	return filepath.Join(h.storageDirectory, chunksDirName, kind.subdir(),
		fmt.Sprintf("chunk_%d_%d", id.X, id.Y))
}

func (h *defaultDiskIOHandler) loadChunk(id ChunkId, kind cacheKind, mask BuildingBlockMask, cellsX, cellsY int) (Chunk, bool, error) {
	path := h.chunkPath(id, kind)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Chunk{}, false, nil
	}
	if err != nil {
		return Chunk{}, false, err
	}
	c, err := chunkFromJSON(data, mask, cellsX, cellsY)
	if err != nil {
		return Chunk{}, false, err
	}
	return c, true, nil
}

func (h *defaultDiskIOHandler) storeChunk(id ChunkId, kind cacheKind, c *Chunk, mask BuildingBlockMask) error {
	data, err := chunkToJSON(c, mask)
	if err != nil {
		return err
	}
	return os.WriteFile(h.chunkPath(id, kind), data, 0o644)
}
