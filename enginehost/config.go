package enginehost

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/rivenoak/engine/gridgoblin"
)

const defaultConfigFileName = "engine.toml"

// UserConfig is the flat, TOML-serializable configuration for an engine
// host, converted to a fully-populated Config by UserConfig.Config. It
// mirrors server.UserConfig -> server.Config's split: sane zero values
// here, validated/defaulted component configs on the other side.
type UserConfig struct {
	Network struct {
		// Address is the UDP address the host's rigelnet.Server listens on.
		Address string
		// Passphrase gates the Connect handshake.
		Passphrase string
		// MaxClients is the maximum number of simultaneous connections.
		MaxClients int
		// TimeoutSeconds is a connection's heartbeat timeout.
		TimeoutSeconds float64
	}
	Server struct {
		// TickRate is how many Host.Step calls occur per second.
		TickRate float64
		// InstanceName is included in every log line this host emits, for
		// telling apart multiple hosts in one process's logs.
		InstanceName string
	}
	Sync struct {
		// PacemakerIntervalSteps forces a full-state resync this often even
		// absent packet loss, so a lagging peer can't desync forever.
		PacemakerIntervalSteps int64
	}
	World struct {
		StorageDirectory            string
		AllowCreateNew               bool
		ChunkCountX                  int
		ChunkCountY                  int
		CellsPerChunkX               int
		CellsPerChunkY               int
		CellResolution               float64
		BuildingBlocks               string
		MaxCellOpenness              int
		MaxLoadedNonessentialChunks int
	}
	AllowList struct {
		// Enabled controls whether the retained-peer allow-list is enforced.
		Enabled bool
		// File is the path to the allow-list's TOML persistence file.
		File string
	}
}

// DefaultConfig returns a UserConfig with sane values filled in, the way
// server.DefaultConfig does.
func DefaultConfig() UserConfig {
	var c UserConfig
	c.Network.Address = ":22500"
	c.Network.MaxClients = 16
	c.Network.TimeoutSeconds = 10
	c.Server.TickRate = 30
	c.Server.InstanceName = "engine-host"
	c.Sync.PacemakerIntervalSteps = 60
	c.World.StorageDirectory = "world"
	c.World.AllowCreateNew = true
	c.World.ChunkCountX = 64
	c.World.ChunkCountY = 64
	c.World.CellsPerChunkX = 16
	c.World.CellsPerChunkY = 16
	c.World.CellResolution = 1
	c.World.BuildingBlocks = gridgoblin.AllBuildingBlocks.String()
	c.World.MaxCellOpenness = 3
	c.World.MaxLoadedNonessentialChunks = 2048
	c.AllowList.Enabled = false
	c.AllowList.File = "allowlist.toml"
	return c
}

// LoadUserConfig reads path as TOML, bootstrapping it with DefaultConfig's
// values (written to path) if the file does not yet exist, mirroring the
// "missing file means start with defaults and persist them" bootstrap
// server.Whitelist/rigelnet.PeerAllowList both use.
func LoadUserConfig(path string) (UserConfig, error) {
	contents, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		uc := DefaultConfig()
		return uc, SaveUserConfig(path, uc)
	}
	if err != nil {
		return UserConfig{}, fmt.Errorf("enginehost: read config: %w", err)
	}
	uc := DefaultConfig()
	if err := toml.Unmarshal(contents, &uc); err != nil {
		return UserConfig{}, fmt.Errorf("enginehost: decode config: %w", err)
	}
	return uc, nil
}

// SaveUserConfig writes uc to path as TOML, creating its parent directory
// if necessary.
func SaveUserConfig(path string, uc UserConfig) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o777); err != nil {
			return fmt.Errorf("enginehost: create config directory: %w", err)
		}
	}
	encoded, err := toml.Marshal(uc)
	if err != nil {
		return fmt.Errorf("enginehost: encode config: %w", err)
	}
	return os.WriteFile(path, encoded, 0o644)
}

// Config is the fully-populated runtime configuration a Host is built
// from. Per-component configs (qao.RuntimeConfig, rigelnet.ServerConfig,
// spempe.EngineConfig, gridgoblin.ContentsConfig/StorageConfig) stay plain
// Go structs a caller can also construct directly without going through
// UserConfig/TOML at all.
type Config struct {
	Logger *slog.Logger

	NetworkAddress    string
	Passphrase        string
	MaxClients        int
	ConnectionTimeout time.Duration

	TickInterval time.Duration
	InstanceName string

	PacemakerInterval int64

	Contents gridgoblin.ContentsConfig
	Storage  gridgoblin.StorageConfig

	AllowListEnabled bool
	AllowListFile    string
}

// Config converts uc to a Config. An error is returned if uc's World
// section fails gridgoblin.ContentsConfig.Validate.
func (uc UserConfig) Config(log *slog.Logger) (Config, error) {
	contents := gridgoblin.ContentsConfig{
		ChunkCountX:                 uc.World.ChunkCountX,
		ChunkCountY:                 uc.World.ChunkCountY,
		CellsPerChunkX:              uc.World.CellsPerChunkX,
		CellsPerChunkY:              uc.World.CellsPerChunkY,
		CellResolution:              uc.World.CellResolution,
		BuildingBlocks:              gridgoblin.ParseBuildingBlockMask(uc.World.BuildingBlocks),
		MaxCellOpenness:             uint8(uc.World.MaxCellOpenness),
		MaxLoadedNonessentialChunks: uc.World.MaxLoadedNonessentialChunks,
	}
	if err := contents.Validate(); err != nil {
		return Config{}, fmt.Errorf("enginehost: invalid world config: %w", err)
	}

	tickRate := uc.Server.TickRate
	if tickRate <= 0 {
		tickRate = 30
	}
	maxClients := uc.Network.MaxClients
	if maxClients <= 0 {
		maxClients = 16
	}
	timeout := uc.Network.TimeoutSeconds
	if timeout <= 0 {
		timeout = 10
	}
	pacemaker := uc.Sync.PacemakerIntervalSteps
	if pacemaker <= 0 {
		pacemaker = 60
	}

	allowListFile := strings.TrimSpace(uc.AllowList.File)
	if allowListFile == "" {
		allowListFile = "allowlist.toml"
	}

	return Config{
		Logger:            log,
		NetworkAddress:    uc.Network.Address,
		Passphrase:        uc.Network.Passphrase,
		MaxClients:        maxClients,
		ConnectionTimeout: time.Duration(timeout * float64(time.Second)),
		TickInterval:      time.Duration(float64(time.Second) / tickRate),
		InstanceName:      uc.Server.InstanceName,
		PacemakerInterval: pacemaker,
		Contents:          contents,
		Storage: gridgoblin.StorageConfig{
			StorageDirectory: uc.World.StorageDirectory,
			AllowCreateNew:   uc.World.AllowCreateNew,
		},
		AllowListEnabled: uc.AllowList.Enabled,
		AllowListFile:    allowListFile,
	}, nil
}
