// Package config loads the heapstore YAML configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sushant-115/heapstore/pkg/logger"
	"github.com/sushant-115/heapstore/pkg/telemetry"
)

// BufferPoolConfig sizes the buffer pool and selects its replacement
// policy.
type BufferPoolConfig struct {
	// PoolSize is the number of in-memory frames.
	PoolSize int `yaml:"pool_size"`
	// ReplacerPolicy is "lru" or "clock".
	ReplacerPolicy string `yaml:"replacer_policy"`
}

// ServerConfig configures the TCP record server.
type ServerConfig struct {
	// ListenAddr is the host:port the server accepts connections on.
	ListenAddr string `yaml:"listen_addr"`
	// RequestsPerSecond throttles each connection; 0 disables throttling.
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	// RequestBurst is the per-connection burst allowance.
	RequestBurst int `yaml:"request_burst"`
	// BackupRateBytesPerSec throttles BACKUP copies; 0 is unlimited.
	BackupRateBytesPerSec int64 `yaml:"backup_rate_bytes_per_sec"`
}

// Config is the root configuration document.
type Config struct {
	// DataDir is where record files are created and opened.
	DataDir string `yaml:"data_dir"`
	// PageSize is the on-disk page size in bytes.
	PageSize int `yaml:"page_size"`

	BufferPool BufferPoolConfig `yaml:"buffer_pool"`
	Server     ServerConfig     `yaml:"server"`
	Logger     logger.Config    `yaml:"logger"`
	Telemetry  telemetry.Config `yaml:"telemetry"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		DataDir:  "data",
		PageSize: 4096,
		BufferPool: BufferPoolConfig{
			PoolSize:       256,
			ReplacerPolicy: "lru",
		},
		Server: ServerConfig{
			ListenAddr:        "localhost:9090",
			RequestsPerSecond: 0,
			RequestBurst:      32,
		},
		Logger: logger.Config{
			Level:  "info",
			Format: "console",
		},
		Telemetry: telemetry.Config{
			Enabled:        false,
			ServiceName:    "heapstore",
			PrometheusPort: 9464,
		},
	}
}

// Load reads a YAML config file over the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if cfg.BufferPool.PoolSize <= 0 {
		return nil, fmt.Errorf("config %s: buffer_pool.pool_size must be positive", path)
	}
	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("config %s: page_size must be positive", path)
	}
	return cfg, nil
}
