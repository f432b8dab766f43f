package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echomem.yaml")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	defaults := DefaultConfig()
	assert.Equal(t, defaults.StorePath, cfg.StorePath)
	assert.Equal(t, defaults.LogPath, cfg.LogPath)
	assert.Equal(t, defaults.SyncRoot, cfg.SyncRoot)
	assert.Equal(t, defaults.ArchivePath, cfg.ArchivePath)
}

func TestLoadConfigGeneratesStableNodeID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echomem.yaml")

	first, err := LoadConfig(path)
	require.NoError(t, err)
	_, err = uuid.Parse(first.NodeID)
	require.NoError(t, err, "generated node id must be a uuid")

	// The id was written back, so a second load sees the same identity.
	second, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, first.NodeID, second.NodeID)
}

func TestLoadConfigFillsUnsetFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echomem.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node_id: node-a\nstore_path: custom/store.json\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "node-a", cfg.NodeID)
	assert.Equal(t, "custom/store.json", cfg.StorePath)
	assert.Equal(t, DefaultConfig().LogPath, cfg.LogPath)
	assert.Equal(t, DefaultConfig().SyncRoot, cfg.SyncRoot)
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echomem.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node_id: [unclosed"), 0o644))

	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

func TestLoadConfigPreservesExplicitNodeID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "echomem.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node_id: alpha\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "alpha", cfg.NodeID)

	// Nothing was rewritten for an already-complete identity.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "node_id: alpha\n", string(raw))
}
