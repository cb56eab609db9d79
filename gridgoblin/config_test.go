package gridgoblin

import "testing"

func validContents() ContentsConfig {
	return ContentsConfig{
		ChunkCountX:                 4,
		ChunkCountY:                 4,
		CellsPerChunkX:              8,
		CellsPerChunkY:              8,
		CellResolution:              1,
		BuildingBlocks:              AllBuildingBlocks,
		MaxCellOpenness:             3,
		MaxLoadedNonessentialChunks: 8,
	}
}

func TestContentsConfigValidateAcceptsValidConfig(t *testing.T) {
	if err := validContents().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestContentsConfigValidateRejectsEvenMaxCellOpenness(t *testing.T) {
	c := validContents()
	c.MaxCellOpenness = 4
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for even non-zero maxCellOpenness")
	}
}

func TestContentsConfigValidateAcceptsZeroMaxCellOpenness(t *testing.T) {
	c := validContents()
	c.MaxCellOpenness = 0
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestContentsConfigValidateRejectsOpennessAboveCellsPerChunk(t *testing.T) {
	c := validContents()
	c.CellsPerChunkX = 2
	c.CellsPerChunkY = 2
	c.MaxCellOpenness = 3
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for maxCellOpenness exceeding cellsPerChunk bound")
	}
}

func TestContentsConfigValidateRejectsOutOfRangeChunkCount(t *testing.T) {
	c := validContents()
	c.ChunkCountX = 0
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for chunkCountX == 0")
	}
	c = validContents()
	c.ChunkCountY = 5000
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for chunkCountY > 4096")
	}
}

func TestContentsConfigValidateRejectsNegativeMaxLoaded(t *testing.T) {
	c := validContents()
	c.MaxLoadedNonessentialChunks = -1
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for negative maxLoadedNonessentialChunks")
	}
}

func TestContentsConfigRoundTripsThroughDisk(t *testing.T) {
	dir := t.TempDir()
	c := validContents()
	if err := saveContentsConfig(dir, c); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := loadContentsConfig(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !got.Equal(c) {
		t.Fatalf("round-tripped config differs: got %+v, want %+v", got, c)
	}
}

func TestBuildingBlockMaskStringAndParseRoundTrip(t *testing.T) {
	mask := BlockCellKindId | BlockWallSprite | BlockUserData
	s := mask.String()
	if got := ParseBuildingBlockMask(s); got != mask {
		t.Fatalf("ParseBuildingBlockMask(%q) = %v, want %v", s, got, mask)
	}
}

func TestBuildingBlockMaskParseIgnoresUnknownNames(t *testing.T) {
	got := ParseBuildingBlockMask("CELL_KIND_ID|NOT_A_REAL_BLOCK")
	if got != BlockCellKindId {
		t.Fatalf("got %v, want only BlockCellKindId", got)
	}
}
