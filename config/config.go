package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config is the on-disk operator configuration.
type Config struct {
	DataDir         string  `toml:"DataDir"`
	JournalPath     string  `toml:"JournalPath"`
	Environment     string  `toml:"Environment"`
	LogFile         string  `toml:"LogFile"`
	MetricsTextfile string  `toml:"MetricsTextfile"`
	Staking         Staking `toml:"staking"`
}

// Default returns the configuration written when no file exists.
func Default() *Config {
	return &Config{
		DataDir:     "./stake-data",
		JournalPath: "./stake-data/journal.db",
		Environment: "dev",
		Staking:     DefaultStaking(),
	}
}

// Load loads the configuration from the given path. A missing file is created
// with defaults. Keys absent from an existing file keep their default value.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	cfg := Default()
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0].String())
	}

	cfg.normalize()
	if err := ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) normalize() {
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.JournalPath = strings.TrimSpace(c.JournalPath)
	if c.JournalPath == "" && c.DataDir != "" {
		c.JournalPath = filepath.Join(c.DataDir, "journal.db")
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "dev"
	}
	c.Staking.NFTThreshold = strings.TrimSpace(c.Staking.NFTThreshold)
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := Default()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil configuration")
	}
	if err := ValidateConfig(cfg); err != nil {
		return err
	}
	return persist(path, cfg)
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
