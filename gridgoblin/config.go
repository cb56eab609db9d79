package gridgoblin

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const contentsConfigFileName = "contents_config.json"

// ContentsConfig is the portion of a world's configuration that must match exactly
// between a storage directory's on-disk record and a newly opened world,
// per §3's World config (E) data model entry.
type ContentsConfig struct {
	ChunkCountX                int               `json:"chunkCountX"`
	ChunkCountY                int               `json:"chunkCountY"`
	CellsPerChunkX             int               `json:"cellsPerChunkX"`
	CellsPerChunkY             int               `json:"cellsPerChunkY"`
	CellResolution             float64           `json:"cellResolution"`
	BuildingBlocks             BuildingBlockMask `json:"-"`
	MaxCellOpenness            uint8             `json:"maxCellOpenness"`
	MaxLoadedNonessentialChunks int              `json:"maxLoadedNonessentialChunks"`
}

// contentsConfigJSON is ContentsConfig's on-disk JSON shape: the building
// block mask is stored as the pipe-separated tag string, not its numeric
// value, so the file stays readable and forward-tolerant of new blocks.
type contentsConfigJSON struct {
	ChunkCountX                 int    `json:"chunkCountX"`
	ChunkCountY                 int    `json:"chunkCountY"`
	CellsPerChunkX               int    `json:"cellsPerChunkX"`
	CellsPerChunkY               int    `json:"cellsPerChunkY"`
	CellResolution               float64 `json:"cellResolution"`
	BuildingBlocks               string `json:"buildingBlocks"`
	MaxCellOpenness              uint8  `json:"maxCellOpenness"`
	MaxLoadedNonessentialChunks  int    `json:"maxLoadedNonessentialChunks"`
}

func (c ContentsConfig) toJSON() contentsConfigJSON {
	return contentsConfigJSON{
		ChunkCountX:                 c.ChunkCountX,
		ChunkCountY:                 c.ChunkCountY,
		CellsPerChunkX:              c.CellsPerChunkX,
		CellsPerChunkY:              c.CellsPerChunkY,
		CellResolution:              c.CellResolution,
		BuildingBlocks:              c.BuildingBlocks.String(),
		MaxCellOpenness:             c.MaxCellOpenness,
		MaxLoadedNonessentialChunks: c.MaxLoadedNonessentialChunks,
	}
}

func (c *ContentsConfig) fromJSON(j contentsConfigJSON) {
	c.ChunkCountX = j.ChunkCountX
	c.ChunkCountY = j.ChunkCountY
	c.CellsPerChunkX = j.CellsPerChunkX
	c.CellsPerChunkY = j.CellsPerChunkY
	c.CellResolution = j.CellResolution
	c.BuildingBlocks = ParseBuildingBlockMask(j.BuildingBlocks)
	c.MaxCellOpenness = j.MaxCellOpenness
	c.MaxLoadedNonessentialChunks = j.MaxLoadedNonessentialChunks
}

// Equal compares the significant fields of two configs, ignoring nothing:
// every field here is part of the on-disk contract.
func (c ContentsConfig) Equal(other ContentsConfig) bool {
	return c.ChunkCountX == other.ChunkCountX &&
		c.ChunkCountY == other.ChunkCountY &&
		c.CellsPerChunkX == other.CellsPerChunkX &&
		c.CellsPerChunkY == other.CellsPerChunkY &&
		c.CellResolution == other.CellResolution &&
		c.BuildingBlocks == other.BuildingBlocks &&
		c.MaxCellOpenness == other.MaxCellOpenness &&
		c.MaxLoadedNonessentialChunks == other.MaxLoadedNonessentialChunks
}

// Validate enforces the bounds the original engine enforces at
// construction time, adapted from World_config.cpp's validate().
func (c ContentsConfig) Validate() error {
	if c.ChunkCountX < 1 || c.ChunkCountX > 4096 {
		return fmt.Errorf("%w: chunkCountX must be in [1, 4096]", ErrInvalidArgument)
	}
	if c.ChunkCountY < 1 || c.ChunkCountY > 4096 {
		return fmt.Errorf("%w: chunkCountY must be in [1, 4096]", ErrInvalidArgument)
	}
	if c.CellsPerChunkX < 1 || c.CellsPerChunkX > 1024 {
		return fmt.Errorf("%w: cellsPerChunkX must be in [1, 1024]", ErrInvalidArgument)
	}
	if c.CellsPerChunkY < 1 || c.CellsPerChunkY > 1024 {
		return fmt.Errorf("%w: cellsPerChunkY must be in [1, 1024]", ErrInvalidArgument)
	}
	if c.CellResolution <= 0 {
		return fmt.Errorf("%w: cellResolution must be positive", ErrInvalidArgument)
	}
	if c.MaxCellOpenness != 0 && c.MaxCellOpenness%2 == 0 {
		return fmt.Errorf("%w: maxCellOpenness must be 0 or odd", ErrInvalidArgument)
	}
	maxAllowed := 15
	if c.CellsPerChunkX < maxAllowed {
		maxAllowed = c.CellsPerChunkX
	}
	if c.CellsPerChunkY < maxAllowed {
		maxAllowed = c.CellsPerChunkY
	}
	if int(c.MaxCellOpenness) > maxAllowed {
		return fmt.Errorf("%w: maxCellOpenness exceeds min(15, cellsPerChunkX, cellsPerChunkY)", ErrInvalidArgument)
	}
	if c.MaxLoadedNonessentialChunks < 0 {
		return fmt.Errorf("%w: maxLoadedNonessentialChunks must be non-negative", ErrInvalidArgument)
	}
	return nil
}

// StorageConfig controls how a World's on-disk directory is checked or
// (re)initialized, mirroring the original's StorageConfig alongside
// ContentsConfig.
type StorageConfig struct {
	StorageDirectory     string
	AllowCreateNew       bool
	AllowOverwriteConfig bool
}

func saveContentsConfig(dir string, c ContentsConfig) error {
	data, err := json.MarshalIndent(c.toJSON(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, contentsConfigFileName), data, 0o644)
}

func loadContentsConfig(dir string) (ContentsConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, contentsConfigFileName))
	if err != nil {
		return ContentsConfig{}, err
	}
	var j contentsConfigJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return ContentsConfig{}, err
	}
	var c ContentsConfig
	c.fromJSON(j)
	return c, nil
}
