package ingest

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the full codexa configuration.
type Config struct {
	Listen           string   `yaml:"listen"`
	StorageDir       string   `yaml:"storage_dir"`
	IndexPath        string   `yaml:"index_path"`
	ObsDBPath        string   `yaml:"obs_db_path"`
	MaxFileMB        int      `yaml:"max_file_mb"`
	AdminPassHash    string   `yaml:"admin_pass_hash"` // bcrypt hash; empty disables admin ops
	MCPEnabled       bool     `yaml:"mcp_enabled"`
	Capabilities     []string `yaml:"capabilities"` // empty means all extractors enabled
	CleanOnUpload    bool     `yaml:"clean_on_upload"`
	PIIScrubDefault  bool     `yaml:"pii_scrub_default"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:          ":8083",
		StorageDir:      "storage",
		IndexPath:       "storage/index.json",
		ObsDBPath:       "codexa_obs.db",
		MaxFileMB:       100,
		MCPEnabled:      false,
		CleanOnUpload:   true,
		PIIScrubDefault: false,
	}
}

// LoadConfig reads and parses a YAML config file. Returns DefaultConfig merged with the file.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks that required fields are present and values are sane.
func (c *Config) Validate() error {
	if c.StorageDir == "" {
		return fmt.Errorf("storage_dir is required")
	}
	if c.IndexPath == "" {
		return fmt.Errorf("index_path is required")
	}
	if c.MaxFileMB <= 0 {
		return fmt.Errorf("max_file_mb must be > 0")
	}
	return nil
}

// MaxFileBytes returns max file size in bytes.
func (c *Config) MaxFileBytes() int64 { return int64(c.MaxFileMB) * 1024 * 1024 }

// OriginalDir is where raw uploads land.
func (c *Config) OriginalDir() string { return filepath.Join(c.StorageDir, "original") }

// StandardDir is where cleaned text copies land.
func (c *Config) StandardDir() string { return filepath.Join(c.StorageDir, "standard") }
