package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Config holds the per-node settings shared by all commands.
type Config struct {
	// NodeID identifies this replica. Generated and persisted on first
	// use when absent; two processes must never share one concurrently.
	NodeID string `yaml:"node_id"`

	// StorePath is the JSON backing file of the memory store.
	StorePath string `yaml:"store_path"`

	// LogPath is the append-only Markdown log.
	LogPath string `yaml:"log_path"`

	// SyncRoot is the shared directory used by the sync transport.
	SyncRoot string `yaml:"sync_root"`

	// ArchivePath is the SQLite archive database.
	ArchivePath string `yaml:"archive_path"`
}

// DefaultConfig returns the settings used when no config file exists.
func DefaultConfig() Config {
	return Config{
		StorePath:   filepath.Join("memory", "memory_store.json"),
		LogPath:     "EXECUTION_LOG.md",
		SyncRoot:    filepath.Join("state", "cloud-sync"),
		ArchivePath: filepath.Join("memory", "archive.db"),
	}
}

// LoadConfig reads the YAML config at path, filling unset fields with
// defaults. A missing file yields the defaults. A node id is generated
// and written back so the identity is stable across runs.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	defaults := DefaultConfig()
	if cfg.StorePath == "" {
		cfg.StorePath = defaults.StorePath
	}
	if cfg.LogPath == "" {
		cfg.LogPath = defaults.LogPath
	}
	if cfg.SyncRoot == "" {
		cfg.SyncRoot = defaults.SyncRoot
	}
	if cfg.ArchivePath == "" {
		cfg.ArchivePath = defaults.ArchivePath
	}

	if cfg.NodeID == "" {
		cfg.NodeID = uuid.NewString()
		if err := writeConfig(path, cfg); err != nil {
			return Config{}, err
		}
	}
	return cfg, nil
}

func writeConfig(path string, cfg Config) error {
	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
