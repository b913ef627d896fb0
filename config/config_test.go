package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	bufferpool "github.com/sushant-115/gojobuf/core/write_engine/buffer_pool"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gojobuf.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, uint64(1<<30), cfg.BufferPool.MaxMemoryBytes)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
buffer_pool:
  num_hash_entries: 97
  num_slots: 4
storage:
  data_dir: /var/lib/gojobuf
logger:
  level: debug
telemetry:
  enabled: true
  prometheus_port: 9464
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(97), cfg.BufferPool.NumHashEntries)
	assert.Equal(t, uint32(4), cfg.BufferPool.NumSlots)
	assert.Equal(t, uint64(1<<30), cfg.BufferPool.MaxMemoryBytes, "unset keys keep their default")
	assert.Equal(t, "/var/lib/gojobuf", cfg.Storage.DataDir)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "json", cfg.Logger.Format)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, 9464, cfg.Telemetry.PrometheusPort)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"too few slots", "buffer_pool:\n  num_slots: 3\n"},
		{"zero buckets", "buffer_pool:\n  num_hash_entries: 0\n"},
		{"empty data dir", "storage:\n  data_dir: \"\"\n"},
		{"bad port", "telemetry:\n  prometheus_port: 70000\n"},
		{"malformed", "buffer_pool: [1, 2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	_, err := Load(writeConfig(t, "buffer_pool:\n  num_slots: 3\n"))
	assert.ErrorIs(t, err, bufferpool.ErrInvalidConfig)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
