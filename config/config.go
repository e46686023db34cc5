// Package config loads and saves the YAML configuration of the pyramid
// tools and converts it into pyramid options.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/mrjoshuak/go-pyramid/compression"
	"github.com/mrjoshuak/go-pyramid/internal/logging"
	"github.com/mrjoshuak/go-pyramid/pyramid"
	"github.com/mrjoshuak/go-pyramid/tiletable"
)

// Config represents the tool configuration loaded from YAML.
type Config struct {
	// Pyramid holds the defaults for new pyramids
	Pyramid struct {
		TileSize    int    `yaml:"tile_size"`
		Threshold   int    `yaml:"threshold"`
		Compression string `yaml:"compression"` // empty selects by channel count
		Quality     int    `yaml:"quality"`
		TempDir     string `yaml:"temp_dir"`
		RawMemory   bool   `yaml:"raw_memory"`

		// MemoryLimitMB bounds the scratch buffers of patch reads; 0 is unlimited
		MemoryLimitMB int `yaml:"memory_limit_mb"`
	} `yaml:"pyramid"`

	Cache struct {
		// SlideTiles is the number of decoded slide tiles kept in memory
		SlideTiles int `yaml:"slide_tiles"`
	} `yaml:"cache"`

	TileTable struct {
		Index string `yaml:"index"` // linear, map or sqlite
	} `yaml:"tile_table"`

	Log struct {
		Level string             `yaml:"level"`
		JSON  bool               `yaml:"json"`
		File  logging.FileConfig `yaml:"file"`
	} `yaml:"log"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Pyramid.TileSize = pyramid.DefaultTileSize
	cfg.Pyramid.Threshold = pyramid.DefaultThreshold
	cfg.Pyramid.Quality = pyramid.DefaultQuality

	cfg.Cache.SlideTiles = 256
	cfg.TileTable.Index = string(tiletable.IndexMap)

	cfg.Log.Level = "info"
	cfg.Log.File.MaxSizeMB = 100
	cfg.Log.File.MaxBackups = 3
	cfg.Log.File.MaxAgeDays = 28

	return cfg
}

// LoadConfig loads configuration from a YAML file. If the file doesn't
// exist, it returns the default configuration. Keys missing from the file
// keep their defaults.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", configPath, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", configPath, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %s: %w", configPath, err)
	}
	return cfg, nil
}

// SaveConfig saves the configuration to a YAML file.
func SaveConfig(cfg *Config, configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0o755); err != nil {
		return fmt.Errorf("config: creating directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("config: marshaling: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		return fmt.Errorf("config: writing %s: %w", configPath, err)
	}
	return nil
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	if c.Pyramid.TileSize <= 0 {
		return fmt.Errorf("tile_size %d must be positive", c.Pyramid.TileSize)
	}
	if c.Pyramid.TileSize%pyramid.TileAlign != 0 {
		return fmt.Errorf("tile_size %d must be a multiple of %d", c.Pyramid.TileSize, pyramid.TileAlign)
	}
	if c.Pyramid.Threshold <= 0 {
		return fmt.Errorf("threshold %d must be positive", c.Pyramid.Threshold)
	}
	if c.Pyramid.Quality < 1 || c.Pyramid.Quality > 100 {
		return fmt.Errorf("quality %d outside 1-100", c.Pyramid.Quality)
	}
	if c.Pyramid.Compression != "" {
		if _, err := compression.Parse(c.Pyramid.Compression); err != nil {
			return err
		}
	}
	if _, err := tiletable.ParseIndexKind(c.TileTable.Index); err != nil {
		return err
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	return nil
}

// Options converts the pyramid section into pyramid options.
func (c *Config) Options(logger *slog.Logger) ([]pyramid.Option, error) {
	opts := []pyramid.Option{
		pyramid.WithThreshold(c.Pyramid.Threshold),
		pyramid.WithQuality(c.Pyramid.Quality),
		pyramid.WithIndex(tiletable.IndexKind(c.TileTable.Index)),
		pyramid.WithMemoryLimit(int64(c.Pyramid.MemoryLimitMB) << 20),
	}
	// Zero leaves the tile size to the caller
	if c.Pyramid.TileSize > 0 {
		opts = append(opts, pyramid.WithTileSize(c.Pyramid.TileSize, c.Pyramid.TileSize))
	}
	if c.Pyramid.Compression != "" {
		comp, err := compression.Parse(c.Pyramid.Compression)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pyramid.WithCompression(comp))
	}
	if c.Pyramid.TempDir != "" {
		opts = append(opts, pyramid.WithTempDir(c.Pyramid.TempDir))
	}
	if c.Pyramid.RawMemory {
		opts = append(opts, pyramid.WithRawMemory())
	}
	if logger != nil {
		opts = append(opts, pyramid.WithLogger(logger))
	}
	return opts, nil
}

// CreateDefaultConfigFile creates a default configuration file at the
// specified path.
func CreateDefaultConfigFile(configPath string) error {
	return SaveConfig(DefaultConfig(), configPath)
}
