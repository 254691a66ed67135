// Package config handles kestrel.toml engine configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents a kestrel.toml engine configuration.
type Config struct {
	Engine      Engine      `toml:"engine"`
	Cache       Cache       `toml:"cache"`
	Persistence Persistence `toml:"persistence"`

	// Dir is the directory containing the kestrel.toml file (set at load time).
	Dir string `toml:"-"`
}

// Engine configures the runtime's compilation policy.
type Engine struct {
	// OptimisticTypes enables dual-representation field layouts and
	// integer-first arithmetic.
	OptimisticTypes bool `toml:"optimistic-types"`

	// Lazy defers sub-function compilation to first call.
	Lazy bool `toml:"lazy"`
}

// Cache configures installation domains and the recency cache.
type Cache struct {
	// MaxInstalls and MaxBytes bound how often a named installation
	// domain is reused before a fresh one replaces it.
	MaxInstalls int   `toml:"max-installs"`
	MaxBytes    int64 `toml:"max-bytes"`

	// StrongRecency is how many recently executed programs stay
	// strongly referenced.
	StrongRecency int `toml:"strong-recency"`

	// AllowAnonymous permits lightweight single-unit domains for
	// sources up to AnonymousMaxSource bytes.
	AllowAnonymous     bool `toml:"allow-anonymous"`
	AnonymousMaxSource int  `toml:"anonymous-max-source"`
}

// Persistence configures the compiled-unit store.
type Persistence struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Cache: Cache{
			MaxInstalls:        10,
			MaxBytes:           200_000,
			StrongRecency:      8,
			AllowAnonymous:     true,
			AnonymousMaxSource: 4096,
		},
		Persistence: Persistence{
			Enabled: true,
			Path:    ".kestrel/cache.db",
		},
	}
}

// Load parses a kestrel.toml file from the given directory, applying
// defaults for absent fields.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, "kestrel.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if c.Cache.MaxInstalls < 1 {
		c.Cache.MaxInstalls = 1
	}
	if c.Cache.MaxBytes < 1 {
		c.Cache.MaxBytes = 1
	}

	return c, nil
}

// FindAndLoad walks up from startDir to find a kestrel.toml file, then
// loads and returns the configuration. Returns the defaults if none is
// found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, "kestrel.toml")
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return Default(), nil
		}
		dir = parent
	}
}

// StorePath returns the absolute path of the persisted-unit database.
func (c *Config) StorePath() string {
	if filepath.IsAbs(c.Persistence.Path) {
		return c.Persistence.Path
	}
	base := c.Dir
	if base == "" {
		base = "."
	}
	return filepath.Join(base, c.Persistence.Path)
}
