package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "0.01", cfg.Instrument.TickSize)
	assert.Equal(t, 4096, cfg.Engine.QueueSize)
	assert.Equal(t, 9001, cfg.Server.Port)
	assert.Equal(t, uint(10), cfg.Server.Workers)
	assert.Equal(t, uint(1024), cfg.Server.MaxSessions)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.Journal.Dir)
	assert.True(t, cfg.Journal.Sync)
	assert.Equal(t, ":9102", cfg.Metrics.Address)

	opts := cfg.EngineOptions()
	assert.Equal(t, 16384, opts.EventBuffer)
	assert.Equal(t, "0.01", cfg.TickSize().String())
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("SKOLL_ENGINE_QUEUE_SIZE", "16")
	t.Setenv("SKOLL_ENGINE_BLOCK_ON_FULL", "true")
	t.Setenv("SKOLL_KAFKA_ENABLED", "true")
	t.Setenv("SKOLL_KAFKA_BROKERS", "k1:9092,k2:9092")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.Engine.QueueSize)
	assert.True(t, cfg.Engine.BlockOnFull)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SKOLL_SERVER_PORT=9100\nSKOLL_INSTRUMENT_TICK_SIZE=0.5\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("SKOLL_SERVER_PORT")
		os.Unsetenv("SKOLL_INSTRUMENT_TICK_SIZE")
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "0.5", cfg.Instrument.TickSize)
}

func TestValidate(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	cfg.Instrument.TickSize = "-1"
	cfg.Engine.QueueSize = 0
	cfg.Server.MaxSessions = 0
	cfg.Kafka.Enabled = true
	cfg.Log.Level = "loud"

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tick size")
	assert.Contains(t, err.Error(), "queue size")
	assert.Contains(t, err.Error(), "at least one session")
	assert.Contains(t, err.Error(), "without brokers")
	assert.Contains(t, err.Error(), "log level")
}
