package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/talgya/burzen-core/internal/archetype"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "burzen.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("BURZEN_ADMIN_KEY", "secret")
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Default()
	if cfg.Cells != def.Cells || cfg.DT != def.DT || cfg.DBPath != def.DBPath {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
	if cfg.AdminKey != "secret" {
		t.Fatalf("AdminKey = %q", cfg.AdminKey)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	p := writeFile(t, `
cells: 4
dt: 0.5
interval_ms: 20
max_ticks: 300
snapshot_every: 5
seed: 99
layout:
  activity_min: 0.3
  activity_max: 0.8
  loadout: [kinetic, thermal, energy, pulse]
instability:
  beta: 2.0
  threshold: 0.1
  consecutive_ticks: 5
db_path: /tmp/x.db
api_port: 0
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Cells != 4 || cfg.DT != 0.5 || cfg.MaxTicks != 300 || cfg.SnapshotEvery != 5 {
		t.Fatalf("scalars = %+v", cfg)
	}
	if cfg.Interval() != 20*time.Millisecond {
		t.Fatalf("Interval = %v", cfg.Interval())
	}
	if cfg.Instability.Beta != 2 || cfg.Instability.ConsecutiveTicks != 5 {
		t.Fatalf("instability = %+v", cfg.Instability)
	}
	// Unset layout keys keep their defaults.
	if cfg.Layout.Octaves != Default().Layout.Octaves {
		t.Fatalf("octaves = %d", cfg.Layout.Octaves)
	}

	lc := cfg.LayoutParams()
	want := []archetype.Kind{archetype.Kinetic, archetype.Thermal, archetype.Energy, archetype.Pulse}
	if len(lc.Loadout) != len(want) {
		t.Fatalf("loadout = %v", lc.Loadout)
	}
	for i := range want {
		if lc.Loadout[i] != want[i] {
			t.Fatalf("loadout[%d] = %v, want %v", i, lc.Loadout[i], want[i])
		}
	}
	if lc.Seed != 99 || lc.ActivityMin != 0.3 {
		t.Fatalf("layout params = %+v", lc)
	}
	if ec := cfg.EngineParams(); ec.DT != 0.5 || ec.Monitor.Threshold != 0.1 {
		t.Fatalf("engine params = %+v", ec)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"zero cells", "cells: 0\n", "cells must be positive"},
		{"negative dt", "dt: -1\n", "dt must be positive"},
		{"bad activity", "layout:\n  activity_min: 0.9\n  activity_max: 0.1\n", "activity range"},
		{"unknown archetype", "layout:\n  loadout: [kinetic, plasma]\n", "unknown archetype"},
		{"bad yaml", "cells: [\n", "burzen.yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestDuplicateLoadout(t *testing.T) {
	cfg := Default()
	cfg.Layout.Loadout = []string{"field", "field"}
	if err := cfg.Validate(); !errors.Is(err, archetype.ErrDuplicateKind) {
		t.Fatalf("Validate err = %v", err)
	}
}
