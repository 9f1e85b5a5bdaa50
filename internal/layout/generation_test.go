package layout

import (
	"testing"

	"github.com/talgya/burzen-core/internal/archetype"
	"github.com/talgya/burzen-core/internal/cells"
)

func TestApplyDeterministic(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 42

	a := cells.New(24)
	b := cells.New(24)
	Apply(a, cfg)
	Apply(b, cfg)

	for i := 0; i < a.Len(); i++ {
		if a.Activity(i) != b.Activity(i) {
			t.Fatalf("cell %d: %v != %v for the same seed", i, a.Activity(i), b.Activity(i))
		}
	}
}

func TestApplyActivityWithinRange(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 7
	cfg.ActivityMin = 0.2
	cfg.ActivityMax = 0.9

	s := cells.New(64)
	Apply(s, cfg)

	varied := false
	for i := 0; i < s.Len(); i++ {
		a := s.Activity(i)
		if a < 0.2 || a > 0.9 {
			t.Fatalf("cell %d activity %v outside [0.2, 0.9]", i, a)
		}
		if a != s.Activity(0) {
			varied = true
		}
	}
	if !varied {
		t.Fatal("noise produced a flat layout")
	}
}

func TestApplyLeavesEnergyAndHeat(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 3
	s := cells.New(5)
	Apply(s, cfg)
	for i := 0; i < s.Len(); i++ {
		if s.Energy(i) != cells.DefaultEnergy || s.Heat(i) != cells.DefaultHeat {
			t.Fatalf("cell %d energy/heat changed: %+v", i, s.Cell(i))
		}
	}
}

func TestApplyLoadoutCycles(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Seed = 1
	cfg.Loadout = []archetype.Kind{archetype.Thermal, archetype.Field, archetype.Control}

	s := cells.New(7)
	Apply(s, cfg)

	want := []archetype.Kind{
		archetype.Thermal, archetype.Field, archetype.Control,
		archetype.Thermal, archetype.Field, archetype.Control,
		archetype.Thermal,
	}
	for i, k := range want {
		if s.Archetype(i) != k {
			t.Errorf("cell %d archetype = %v, want %v", i, s.Archetype(i), k)
		}
	}
}

func TestApplyEmptyStore(t *testing.T) {
	Apply(cells.New(0), DefaultConfig())
}
