package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLoadOverridesDefaults: values in the file win, everything else
// keeps its default.
func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heapstore.yaml")
	doc := `
data_dir: /var/lib/heapstore
buffer_pool:
  pool_size: 64
  replacer_policy: clock
server:
  listen_addr: ":7070"
logger:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/heapstore", cfg.DataDir)
	require.Equal(t, 64, cfg.BufferPool.PoolSize)
	require.Equal(t, "clock", cfg.BufferPool.ReplacerPolicy)
	require.Equal(t, ":7070", cfg.Server.ListenAddr)
	require.Equal(t, "debug", cfg.Logger.Level)
	// Untouched fields keep their defaults.
	require.Equal(t, 4096, cfg.PageSize)
	require.Equal(t, "console", cfg.Logger.Format)
}

// TestLoadRejectsBadValues: a negative pool size and a zero page size
// are refused.
func TestLoadRejectsBadValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("buffer_pool:\n  pool_size: -1\n"), 0644))
	_, err := Load(path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("page_size: 0\n"), 0644))
	_, err = Load(path)
	require.Error(t, err)
}

// TestLoadMissingFile: a missing config path is an error, not a silent
// fallback.
func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
