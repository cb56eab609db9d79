package gridgoblin

// ChunkMemoryLayoutInfo describes the byte layout a chunk's building blocks
// would occupy in one contiguous allocation, each block naturally aligned
// to its element size, per §3's "ChunkMemoryLayoutInfo struct holding the
// per-block byte offsets plus totalSize". This package stores blocks as
// separate Go slices rather than one raw buffer (there is no idiomatic Go
// equivalent to placement-new into a manually laid-out arena), but still
// computes and exposes this layout: `cmd/chunkinspect` and the on-disk
// dumper report it, and it is the authoritative description a C++ peer
// tool reading the same on-disk format would need.
type ChunkMemoryLayoutInfo struct {
	Offsets   map[BuildingBlockMask]int
	ElemSizes map[BuildingBlockMask]int
	TotalSize int
}

var blockElemSize = map[BuildingBlockMask]int{
	BlockCellKindId:      2,
	BlockFloorSprite:     2,
	BlockWallSprite:      4,
	BlockSpatialInfo:     3,
	BlockRendererAuxData: 4,
	BlockUserData:        8,
}

// ComputeChunkMemoryLayoutInfo lays out mask's present blocks in declaration
// order, aligning each block's start offset up to its own element size.
func ComputeChunkMemoryLayoutInfo(mask BuildingBlockMask, cellsPerChunkX, cellsPerChunkY int) ChunkMemoryLayoutInfo {
	info := ChunkMemoryLayoutInfo{
		Offsets:   map[BuildingBlockMask]int{},
		ElemSizes: map[BuildingBlockMask]int{},
	}
	cellCount := cellsPerChunkX * cellsPerChunkY
	offset := 0
	for _, b := range blockNames {
		if !mask.Has(b.bit) {
			continue
		}
		elemSize := blockElemSize[b.bit]
		if rem := offset % elemSize; rem != 0 {
			offset += elemSize - rem
		}
		info.Offsets[b.bit] = offset
		info.ElemSizes[b.bit] = elemSize
		offset += elemSize * cellCount
	}
	info.TotalSize = offset
	return info
}

// Chunk is a W x H grid of cells stored as parallel typed arrays, one per
// building block present in its mask. The zero value is a "null chunk":
// no backing allocation, Width()/Height() both 0.
type Chunk struct {
	layout ChunkMemoryLayoutInfo
	mask   BuildingBlockMask
	width  int
	height int

	cellKindId   []uint16
	floorSprite  []uint16
	wallSprite   []WallSprite
	spatialInfo  []SpatialInfo
	rendererAux  []RendererAuxData
	userData     []uint64

	// Extension is a single, owning, optional extra payload a binder
	// attaches when the chunk is loaded.
	Extension any
}

// NewChunk allocates a chunk of the given size with mask's blocks present.
func NewChunk(mask BuildingBlockMask, width, height int) Chunk {
	cellCount := width * height
	c := Chunk{
		mask:   mask,
		width:  width,
		height: height,
		layout: ComputeChunkMemoryLayoutInfo(mask, width, height),
	}
	if mask.Has(BlockCellKindId) {
		c.cellKindId = make([]uint16, cellCount)
	}
	if mask.Has(BlockFloorSprite) {
		c.floorSprite = make([]uint16, cellCount)
	}
	if mask.Has(BlockWallSprite) {
		c.wallSprite = make([]WallSprite, cellCount)
	}
	if mask.Has(BlockSpatialInfo) {
		c.spatialInfo = make([]SpatialInfo, cellCount)
	}
	if mask.Has(BlockRendererAuxData) {
		c.rendererAux = make([]RendererAuxData, cellCount)
	}
	if mask.Has(BlockUserData) {
		c.userData = make([]uint64, cellCount)
	}
	return c
}

// IsNull reports whether c has no backing allocation.
func (c *Chunk) IsNull() bool { return c.width == 0 || c.height == 0 }

func (c *Chunk) Width() int                      { return c.width }
func (c *Chunk) Height() int                      { return c.height }
func (c *Chunk) BuildingBlocks() BuildingBlockMask { return c.mask }
func (c *Chunk) MemoryLayout() ChunkMemoryLayoutInfo { return c.layout }

func (c *Chunk) index(x, y int) (int, error) {
	if x < 0 || y < 0 || x >= c.width || y >= c.height {
		return 0, ErrOutOfBounds
	}
	return y*c.width + x, nil
}

func (c *Chunk) CellKindId(x, y int) (uint16, error) {
	i, err := c.index(x, y)
	if err != nil || c.cellKindId == nil {
		return 0, err
	}
	return c.cellKindId[i], nil
}

func (c *Chunk) SetCellKindId(x, y int, v uint16) error {
	i, err := c.index(x, y)
	if err != nil {
		return err
	}
	if c.cellKindId == nil {
		return ErrInvalidArgument
	}
	c.cellKindId[i] = v
	return nil
}

func (c *Chunk) FloorSprite(x, y int) (uint16, error) {
	i, err := c.index(x, y)
	if err != nil || c.floorSprite == nil {
		return 0, err
	}
	return c.floorSprite[i], nil
}

func (c *Chunk) SetFloorSprite(x, y int, v uint16) error {
	i, err := c.index(x, y)
	if err != nil {
		return err
	}
	if c.floorSprite == nil {
		return ErrInvalidArgument
	}
	c.floorSprite[i] = v
	return nil
}

func (c *Chunk) WallSprite(x, y int) (WallSprite, error) {
	i, err := c.index(x, y)
	if err != nil || c.wallSprite == nil {
		return WallSprite{}, err
	}
	return c.wallSprite[i], nil
}

func (c *Chunk) SetWallSprite(x, y int, v WallSprite) error {
	i, err := c.index(x, y)
	if err != nil {
		return err
	}
	if c.wallSprite == nil {
		return ErrInvalidArgument
	}
	c.wallSprite[i] = v
	return nil
}

func (c *Chunk) Spatial(x, y int) (SpatialInfo, error) {
	i, err := c.index(x, y)
	if err != nil || c.spatialInfo == nil {
		return SpatialInfo{}, err
	}
	return c.spatialInfo[i], nil
}

func (c *Chunk) SetSpatial(x, y int, v SpatialInfo) error {
	i, err := c.index(x, y)
	if err != nil {
		return err
	}
	if c.spatialInfo == nil {
		return ErrInvalidArgument
	}
	c.spatialInfo[i] = v
	return nil
}

func (c *Chunk) RendererAux(x, y int) (RendererAuxData, error) {
	i, err := c.index(x, y)
	if err != nil || c.rendererAux == nil {
		return RendererAuxData{}, err
	}
	return c.rendererAux[i], nil
}

func (c *Chunk) SetRendererAux(x, y int, v RendererAuxData) error {
	i, err := c.index(x, y)
	if err != nil {
		return err
	}
	if c.rendererAux == nil {
		return ErrInvalidArgument
	}
	c.rendererAux[i] = v
	return nil
}

func (c *Chunk) UserData(x, y int) (uint64, error) {
	i, err := c.index(x, y)
	if err != nil || c.userData == nil {
		return 0, err
	}
	return c.userData[i], nil
}

func (c *Chunk) SetUserData(x, y int, v uint64) error {
	i, err := c.index(x, y)
	if err != nil {
		return err
	}
	if c.userData == nil {
		return ErrInvalidArgument
	}
	c.userData[i] = v
	return nil
}
