// Package config loads runtime settings for the simulation process from YAML,
// with secrets taken from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/talgya/burzen-core/internal/archetype"
	"github.com/talgya/burzen-core/internal/engine"
	"github.com/talgya/burzen-core/internal/layout"
)

// Config is the full process configuration.
type Config struct {
	Cells         int     `yaml:"cells"`
	DT            float32 `yaml:"dt"`
	IntervalMs    int     `yaml:"interval_ms"`
	Speed         float64 `yaml:"speed"`
	MaxTicks      uint64  `yaml:"max_ticks"` // 0 = run until signalled
	SnapshotEvery uint64  `yaml:"snapshot_every"`
	ReportEvery   uint64  `yaml:"report_every"`

	Seed   int64        `yaml:"seed"`
	Layout LayoutConfig `yaml:"layout"`

	Instability engine.MonitorConfig `yaml:"instability"`

	DBPath      string `yaml:"db_path"`
	ArchivePath string `yaml:"archive_path"` // zstd JSONL export on shutdown; empty = skip
	APIPort     int    `yaml:"api_port"`     // 0 = no HTTP API

	AdminKey string `yaml:"-"` // From BURZEN_ADMIN_KEY only
}

// LayoutConfig mirrors layout.Config with archetypes named in YAML.
type LayoutConfig struct {
	Octaves     int      `yaml:"octaves"`
	Frequency   float64  `yaml:"frequency"`
	Persistence float64  `yaml:"persistence"`
	ActivityMin float32  `yaml:"activity_min"`
	ActivityMax float32  `yaml:"activity_max"`
	Loadout     []string `yaml:"loadout"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	lc := layout.DefaultConfig()
	return Config{
		Cells:         8,
		DT:            0.1,
		IntervalMs:    100,
		Speed:         1,
		SnapshotEvery: 10,
		ReportEvery:   600,
		Seed:          42,
		Layout: LayoutConfig{
			Octaves:     lc.Octaves,
			Frequency:   lc.Frequency,
			Persistence: lc.Persistence,
			ActivityMin: lc.ActivityMin,
			ActivityMax: lc.ActivityMax,
		},
		Instability: engine.DefaultMonitorConfig(),
		DBPath:      "data/burzen.db",
		APIPort:     8080,
	}
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	cfg.AdminKey = os.Getenv("BURZEN_ADMIN_KEY")
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects settings the simulation cannot run with.
func (c Config) Validate() error {
	if c.Cells <= 0 {
		return fmt.Errorf("cells must be positive, got %d", c.Cells)
	}
	if !(c.DT > 0) {
		return fmt.Errorf("dt must be positive, got %v", c.DT)
	}
	if c.IntervalMs <= 0 {
		return fmt.Errorf("interval_ms must be positive, got %d", c.IntervalMs)
	}
	if c.Layout.ActivityMin < 0 || c.Layout.ActivityMax > 1 || c.Layout.ActivityMin > c.Layout.ActivityMax {
		return fmt.Errorf("layout activity range [%v, %v] must sit inside [0, 1]",
			c.Layout.ActivityMin, c.Layout.ActivityMax)
	}
	if _, err := c.Loadout(); err != nil {
		return err
	}
	return nil
}

// Loadout parses the configured archetype names. Empty means the default cycle.
func (c Config) Loadout() ([]archetype.Kind, error) {
	if len(c.Layout.Loadout) == 0 {
		return nil, nil
	}
	kinds := make([]archetype.Kind, 0, len(c.Layout.Loadout))
	for _, name := range c.Layout.Loadout {
		k, err := archetype.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("layout.loadout: %w", err)
		}
		kinds = append(kinds, k)
	}
	if err := archetype.ValidateLoadout(kinds); err != nil {
		return nil, fmt.Errorf("layout.loadout: %w", err)
	}
	return kinds, nil
}

// LayoutParams converts to the layout package's form.
func (c Config) LayoutParams() layout.Config {
	kinds, _ := c.Loadout()
	return layout.Config{
		Seed:        c.Seed,
		Octaves:     c.Layout.Octaves,
		Frequency:   c.Layout.Frequency,
		Persistence: c.Layout.Persistence,
		ActivityMin: c.Layout.ActivityMin,
		ActivityMax: c.Layout.ActivityMax,
		Loadout:     kinds,
	}
}

// EngineParams converts to the simulation's form.
func (c Config) EngineParams() engine.Config {
	return engine.Config{DT: c.DT, Monitor: c.Instability}
}

// Interval returns the base tick interval.
func (c Config) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}
