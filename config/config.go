// Package config loads the settings shared by gojobuf commands from a YAML
// file layered over built-in defaults.
package config

import (
	"errors"
	"fmt"
	"os"

	bufferpool "github.com/sushant-115/gojobuf/core/write_engine/buffer_pool"
	"github.com/sushant-115/gojobuf/pkg/logger"
	"github.com/sushant-115/gojobuf/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// StorageConfig locates table files.
type StorageConfig struct {
	// DataDir is where relative table paths are resolved.
	DataDir string `yaml:"data_dir"`
	// BackupBytesPerSec throttles table backups. Zero disables throttling.
	BackupBytesPerSec int `yaml:"backup_bytes_per_sec"`
}

type Config struct {
	BufferPool bufferpool.Config `yaml:"buffer_pool"`
	Storage    StorageConfig     `yaml:"storage"`
	Logger     logger.Config     `yaml:"logger"`
	Telemetry  telemetry.Config  `yaml:"telemetry"`
}

// Default returns a 1024-slot pool over ./data with telemetry off.
func Default() Config {
	return Config{
		BufferPool: bufferpool.Config{
			NumHashEntries: 1031,
			NumSlots:       1024,
			MaxMemoryBytes: 1 << 30,
		},
		Storage: StorageConfig{
			DataDir:           "data",
			BackupBytesPerSec: 4 << 20,
		},
		Logger:    logger.DefaultConfig(),
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Load reads path over Default. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the settings no component can recover from.
func (c Config) Validate() error {
	if err := c.BufferPool.Validate(); err != nil {
		return fmt.Errorf("%w: buffer_pool: %w", ErrInvalidConfig, err)
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("%w: storage.data_dir is required", ErrInvalidConfig)
	}
	if c.Storage.BackupBytesPerSec < 0 {
		return fmt.Errorf("%w: storage.backup_bytes_per_sec must not be negative", ErrInvalidConfig)
	}
	if c.Telemetry.PrometheusPort < 0 || c.Telemetry.PrometheusPort > 65535 {
		return fmt.Errorf("%w: telemetry.prometheus_port %d out of range", ErrInvalidConfig, c.Telemetry.PrometheusPort)
	}
	return nil
}
