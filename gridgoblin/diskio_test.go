package gridgoblin

import (
	"encoding/json"
	"testing"
)

func TestChunkJSONRoundTrip(t *testing.T) {
	mask := BlockCellKindId | BlockSpatialInfo | BlockWallSprite
	c := NewChunk(mask, 4, 4)
	if err := c.SetCellKindId(2, 3, 99); err != nil {
		t.Fatalf("SetCellKindId: %v", err)
	}
	if err := c.SetSpatial(2, 3, SpatialInfo{Shape: ShapeFull, Openness: 0}); err != nil {
		t.Fatalf("SetSpatial: %v", err)
	}

	data, err := chunkToJSON(&c, mask)
	if err != nil {
		t.Fatalf("chunkToJSON: %v", err)
	}

	got, err := chunkFromJSON(data, mask, 4, 4)
	if err != nil {
		t.Fatalf("chunkFromJSON: %v", err)
	}
	v, err := got.CellKindId(2, 3)
	if err != nil || v != 99 {
		t.Fatalf("CellKindId(2,3) = (%d, %v), want (99, nil)", v, err)
	}
	sp, err := got.Spatial(2, 3)
	if err != nil || sp.Shape != ShapeFull {
		t.Fatalf("Spatial(2,3) = (%+v, %v)", sp, err)
	}
}

func TestChunkFromJSONRejectsBuildingBlockMismatch(t *testing.T) {
	mask := BlockCellKindId
	c := NewChunk(mask, 2, 2)
	data, err := chunkToJSON(&c, mask)
	if err != nil {
		t.Fatalf("chunkToJSON: %v", err)
	}

	_, err = chunkFromJSON(data, AllBuildingBlocks, 2, 2)
	if err == nil {
		t.Fatal("expected building block mismatch error")
	}
}

func TestChunkFromJSONRejectsCorruptedChecksum(t *testing.T) {
	mask := BlockCellKindId
	c := NewChunk(mask, 2, 2)
	data, err := chunkToJSON(&c, mask)
	if err != nil {
		t.Fatalf("chunkToJSON: %v", err)
	}

	var j chunkFileJSON
	if err := json.Unmarshal(data, &j); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	j.CellKindId[0] = 12345 // tamper without updating checksum
	tampered, err := json.Marshal(j)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	if _, err := chunkFromJSON(tampered, mask, 2, 2); err == nil {
		t.Fatal("expected checksum mismatch error")
	}
}

func TestDefaultDiskIOHandlerStoreAndLoadChunk(t *testing.T) {
	dir := t.TempDir()
	log := testLogger()
	h := newDefaultDiskIOHandler(log)
	contents := validContents()
	storage := StorageConfig{StorageDirectory: dir, AllowCreateNew: true}
	if err := h.checkOrInitWorldFiles(contents, storage); err != nil {
		t.Fatalf("checkOrInitWorldFiles: %v", err)
	}

	id := ChunkId{X: 1, Y: 2}
	c := NewChunk(contents.BuildingBlocks, contents.CellsPerChunkX, contents.CellsPerChunkY)
	if err := c.SetCellKindId(0, 0, 42); err != nil {
		t.Fatalf("SetCellKindId: %v", err)
	}
	if err := h.storeChunk(id, persistentCache, &c, contents.BuildingBlocks); err != nil {
		t.Fatalf("storeChunk: %v", err)
	}

	got, ok, err := h.loadChunk(id, persistentCache, contents.BuildingBlocks, contents.CellsPerChunkX, contents.CellsPerChunkY)
	if err != nil || !ok {
		t.Fatalf("loadChunk: ok=%v err=%v", ok, err)
	}
	v, err := got.CellKindId(0, 0)
	if err != nil || v != 42 {
		t.Fatalf("CellKindId(0,0) = (%d, %v), want (42, nil)", v, err)
	}
}

func TestDefaultDiskIOHandlerMissingChunkReturnsNotFound(t *testing.T) {
	dir := t.TempDir()
	h := newDefaultDiskIOHandler(testLogger())
	contents := validContents()
	storage := StorageConfig{StorageDirectory: dir, AllowCreateNew: true}
	if err := h.checkOrInitWorldFiles(contents, storage); err != nil {
		t.Fatalf("checkOrInitWorldFiles: %v", err)
	}
	_, ok, err := h.loadChunk(ChunkId{X: 9, Y: 9}, runtimeCache, contents.BuildingBlocks, contents.CellsPerChunkX, contents.CellsPerChunkY)
	if err != nil || ok {
		t.Fatalf("loadChunk for missing file: ok=%v err=%v, want ok=false err=nil", ok, err)
	}
}
