package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1, cfg.Scheduling.MaxBlockSendsPerClient)
	assert.Equal(t, 4, cfg.Scheduling.MaxBlockSendsServerTotal)
	assert.Equal(t, 8, cfg.Scheduling.MaxBlockSendDistance)
	assert.Equal(t, 5, cfg.Scheduling.MaxBlockGenerateDistance)
}

func TestLoadWithoutPath(t *testing.T) {
	t.Setenv("VOXEL_CONFIG", "")
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "server.yaml", `
server:
  udp_port: 31000
  creative_mode: true
  storage_backend: memory
network:
  peer_timeout: 10
scheduling:
  max_simultaneous_block_sends_per_client: 2
world:
  seed: 42
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 31000, cfg.Server.GetUDPPort())
	assert.True(t, cfg.Server.CreativeMode)
	assert.Equal(t, "memory", cfg.Server.StorageBackend)
	assert.Equal(t, int64(42), cfg.World.Seed)
	assert.Equal(t, 2, cfg.Scheduling.MaxBlockSendsPerClient)
	// Незаданные поля берутся из значений по умолчанию
	assert.Equal(t, 4, cfg.Scheduling.MaxBlockSendsServerTotal)
	assert.Equal(t, "map", cfg.Server.MapDir)

	opts := cfg.Network.Options()
	assert.Equal(t, 10*time.Second, opts.PeerTimeout)
	assert.Equal(t, 500*time.Millisecond, opts.ResendTimeout)
}

func TestLoadTOMLFromEnv(t *testing.T) {
	path := writeFile(t, "server.toml", `
[server]
map_dir = "world1"

[scheduling]
max_block_send_distance = 10
max_block_generate_distance = 6
objectdata_interval = 0.5

[logging]
console_level = "debug"
`)
	t.Setenv("VOXEL_CONFIG", path)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "world1", cfg.Server.MapDir)
	assert.Equal(t, 10, cfg.Scheduling.MaxBlockSendDistance)
	assert.Equal(t, 6, cfg.Scheduling.MaxBlockGenerateDistance)
	assert.InDelta(t, 0.5, cfg.Scheduling.ObjectDataInterval, 1e-9)

	s, err := cfg.Logging.Settings()
	require.NoError(t, err)
	assert.Equal(t, "logs", s.Dir)
}

func TestValidateRejectsNonsense(t *testing.T) {
	cfg := Default()
	cfg.Scheduling.MaxBlockGenerateDistance = 9
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Scheduling.MaxBlockSendsServerTotal = -1
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.StorageBackend = "floppy"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Logging.ConsoleLevel = "loud"
	assert.Error(t, cfg.Validate())

	path := writeFile(t, "bad.yaml", "scheduling:\n  max_block_generate_distance: 20\n")
	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestPortEnvFallback(t *testing.T) {
	s := ServerConfig{}
	t.Setenv("VOXEL_UDP_PORT", "")
	assert.Equal(t, DefaultUDPPort, s.GetUDPPort())

	t.Setenv("VOXEL_UDP_PORT", "30123")
	assert.Equal(t, 30123, s.GetUDPPort())

	t.Setenv("VOXEL_HTTP_PORT", "nope")
	assert.Equal(t, DefaultHTTPPort, s.GetHTTPPort())

	s.UDPPort = 1
	assert.Equal(t, 1, s.GetUDPPort())
}
