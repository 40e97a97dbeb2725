// Package config handles loading and managing sweepbox configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// SketchConfig holds the count-min sketch dimensions.
type SketchConfig struct {
	Rows  int `toml:"rows"`  // independent hash rows
	Width int `toml:"width"` // counters per row
}

// ScanConfig holds listing and batch-resolution settings.
type ScanConfig struct {
	MessageCap   int   `toml:"message_cap"`    // hard cap on IDs collected per scan
	PageSize     int64 `toml:"page_size"`      // listing page size (Gmail max 500)
	BatchSize    int   `toml:"batch_size"`     // metadata fetches per batch
	Concurrency  int   `toml:"concurrency"`    // in-flight fetches within a batch
	RateLimitQPS int   `toml:"rate_limit_qps"` // Gmail quota units per second
}

// RankConfig holds ranking settings.
type RankConfig struct {
	TopK int `toml:"top_k"`
}

type Config struct {
	Sketch SketchConfig `toml:"sketch"`
	Scan   ScanConfig   `toml:"scan"`
	Rank   RankConfig   `toml:"rank"`

	// Computed at load time, not from the config file.
	ConfigDir string `toml:"-"`
}

// Default returns the built-in configuration, matching the constants the
// original deployment ran with.
func Default() *Config {
	return &Config{
		Sketch: SketchConfig{Rows: 4, Width: 1000},
		Scan: ScanConfig{
			MessageCap:   20000,
			PageSize:     500,
			BatchSize:    50,
			Concurrency:  10,
			RateLimitQPS: 50,
		},
		Rank: RankConfig{TopK: 15},
	}
}

// DefaultDir returns the sweepbox config directory, honoring SWEEPBOX_HOME.
func DefaultDir() string {
	if h := os.Getenv("SWEEPBOX_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sweepbox"
	}
	return filepath.Join(home, ".config", "sweepbox")
}

// Load reads config.toml from dir, layering it over defaults. A missing file
// is not an error; the defaults are returned.
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = DefaultDir()
	}
	cfg := Default()
	cfg.ConfigDir = dir

	path := filepath.Join(dir, "config.toml")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ConfigDir = dir
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Sketch.Rows <= 0 || c.Sketch.Width <= 0 {
		return fmt.Errorf("sketch dimensions must be positive, got %dx%d", c.Sketch.Rows, c.Sketch.Width)
	}
	if c.Scan.MessageCap <= 0 {
		return fmt.Errorf("message_cap must be positive, got %d", c.Scan.MessageCap)
	}
	if c.Scan.PageSize <= 0 || c.Scan.PageSize > 500 {
		return fmt.Errorf("page_size must be in 1..500, got %d", c.Scan.PageSize)
	}
	if c.Scan.BatchSize <= 0 {
		return fmt.Errorf("batch_size must be positive, got %d", c.Scan.BatchSize)
	}
	if c.Scan.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got %d", c.Scan.Concurrency)
	}
	if c.Rank.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.Rank.TopK)
	}
	return nil
}
