// Command chunkinspect dumps a single chunk's memory layout and occupied
// building blocks straight from on-disk storage, without starting a host.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/rivenoak/engine/enginehost"
	"github.com/rivenoak/engine/gridgoblin"
)

func main() {
	configPath := flag.String("config", "engine.toml", "path to the host's TOML config")
	chunkX := flag.Uint("x", 0, "chunk X coordinate")
	chunkY := flag.Uint("y", 0, "chunk Y coordinate")
	flag.Parse()

	if err := run(*configPath, uint16(*chunkX), uint16(*chunkY)); err != nil {
		fmt.Fprintln(os.Stderr, "chunkinspect:", err)
		os.Exit(1)
	}
}

func run(configPath string, x, y uint16) error {
	uc, err := enginehost.LoadUserConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg, err := uc.Config(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	if err != nil {
		return fmt.Errorf("convert config: %w", err)
	}
	// A dumper never writes, so a missing world directory is left alone
	// rather than silently initialized.
	cfg.Storage.AllowCreateNew = false

	world, err := gridgoblin.NewWorld(cfg.Contents, cfg.Storage, gridgoblin.NopBinder{}, gridgoblin.RuntimeConfig{
		Logger: cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("open world: %w", err)
	}
	defer world.Close()

	id := gridgoblin.ChunkId{X: x, Y: y}
	chunk, err := world.GetChunkAtIdUnchecked(id, gridgoblin.LoadIfMissing)
	if err != nil {
		return fmt.Errorf("load %s: %w", id, err)
	}

	printChunk(id, chunk)
	return nil
}

func printChunk(id gridgoblin.ChunkId, c *gridgoblin.Chunk) {
	fmt.Printf("%s: %dx%d cells, blocks=%s\n", id, c.Width(), c.Height(), c.BuildingBlocks())
	layout := c.MemoryLayout()
	fmt.Printf("  total size: %d bytes\n", layout.TotalSize)
	for block, offset := range layout.Offsets {
		fmt.Printf("  %-20s offset=%-6d elem=%d\n", block, offset, layout.ElemSizes[block])
	}
}
