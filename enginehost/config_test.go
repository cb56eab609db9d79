package enginehost

import (
	"path/filepath"
	"testing"
)

func TestDefaultConfigConvertsCleanly(t *testing.T) {
	uc := DefaultConfig()
	cfg, err := uc.Config(nil)
	if err != nil {
		t.Fatalf("Config: %v", err)
	}
	if cfg.MaxClients != uc.Network.MaxClients {
		t.Fatalf("MaxClients = %d, want %d", cfg.MaxClients, uc.Network.MaxClients)
	}
	if cfg.TickInterval <= 0 {
		t.Fatal("expected a positive tick interval")
	}
	if cfg.Contents.BuildingBlocks == 0 {
		t.Fatal("expected a non-empty building block mask")
	}
}

func TestLoadUserConfigBootstrapsMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	uc, err := LoadUserConfig(path)
	if err != nil {
		t.Fatalf("LoadUserConfig: %v", err)
	}
	if uc.Network.Address != DefaultConfig().Network.Address {
		t.Fatalf("got address %q, want default", uc.Network.Address)
	}

	reloaded, err := LoadUserConfig(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.World.ChunkCountX != uc.World.ChunkCountX {
		t.Fatalf("reload mismatch: %+v vs %+v", reloaded.World, uc.World)
	}
}

func TestUserConfigRoundTripsOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	uc := DefaultConfig()
	uc.Network.Address = ":9999"
	uc.Network.MaxClients = 4
	uc.World.ChunkCountX = 8
	if err := SaveUserConfig(path, uc); err != nil {
		t.Fatalf("SaveUserConfig: %v", err)
	}

	reloaded, err := LoadUserConfig(path)
	if err != nil {
		t.Fatalf("LoadUserConfig: %v", err)
	}
	if reloaded.Network.Address != ":9999" || reloaded.Network.MaxClients != 4 || reloaded.World.ChunkCountX != 8 {
		t.Fatalf("reloaded config = %+v, want overrides preserved", reloaded)
	}
}

func TestConfigRejectsInvalidWorld(t *testing.T) {
	uc := DefaultConfig()
	uc.World.ChunkCountX = 0
	if _, err := uc.Config(nil); err == nil {
		t.Fatal("expected an error for an invalid world config")
	}
}
