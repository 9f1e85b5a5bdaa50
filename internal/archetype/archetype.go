// Package archetype holds the compiled-in physical constants for each tower archetype.
// The table is immutable process-wide data; lookups return copies.
package archetype

import (
	"errors"
	"fmt"
	"strings"
)

// Kind is the integer tag selecting a row of the parameter table.
type Kind int

// The 8 tower archetypes.
const (
	Kinetic Kind = iota
	Thermal
	Energy
	Reaction
	Pulse
	Field
	Conversion
	Control
)

// Count is the number of rows in the parameter table.
const Count = 8

// Params are the six constants governing generation, consumption and heat flow.
type Params struct {
	G     float32 // Generation coefficient
	C     float32 // Consumption coefficient
	Eta   float32 // Efficiency below the thermal threshold
	Gamma float32 // Heat produced per unit of consumption
	Rho   float32 // Heat dissipation per tick
	Theta float32 // Thermal threshold; efficiency throttles above it
}

// table is indexed by Kind.
var table = [Count]Params{
	Kinetic:    {G: 16, C: 8, Eta: 1.00, Gamma: 0.55, Rho: 0.18, Theta: 46},
	Thermal:    {G: 14, C: 9, Eta: 0.95, Gamma: 0.82, Rho: 0.14, Theta: 40},
	Energy:     {G: 20, C: 5, Eta: 1.08, Gamma: 0.30, Rho: 0.22, Theta: 52},
	Reaction:   {G: 12, C: 11, Eta: 1.06, Gamma: 0.68, Rho: 0.16, Theta: 44},
	Pulse:      {G: 13, C: 8.5, Eta: 1.00, Gamma: 0.58, Rho: 0.18, Theta: 45},
	Field:      {G: 11, C: 7, Eta: 0.96, Gamma: 0.52, Rho: 0.17, Theta: 48},
	Conversion: {G: 10, C: 8, Eta: 1.04, Gamma: 0.61, Rho: 0.19, Theta: 43},
	Control:    {G: 9, C: 6, Eta: 0.91, Gamma: 0.47, Rho: 0.20, Theta: 50},
}

var names = [Count]string{
	"kinetic", "thermal", "energy", "reaction",
	"pulse", "field", "conversion", "control",
}

// Lookup returns the parameters for k. Tags outside [0, Count) fall back to
// Kinetic rather than failing, so a corrupt tag never stalls a step.
func Lookup(k Kind) Params {
	if k < 0 || k >= Count {
		return table[Kinetic]
	}
	return table[k]
}

// Valid reports whether k names a row of the table.
func (k Kind) Valid() bool {
	return k >= 0 && k < Count
}

func (k Kind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return names[k]
}

// Parse resolves an archetype name (case-insensitive) to its Kind.
func Parse(name string) (Kind, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for i, candidate := range names {
		if candidate == n {
			return Kind(i), nil
		}
	}
	return Kinetic, fmt.Errorf("unknown archetype %q", name)
}

// Loadout errors.
var (
	ErrEmptyLoadout    = errors.New("loadout is empty")
	ErrLoadoutTooLarge = errors.New("loadout exceeds archetype count")
	ErrDuplicateKind   = errors.New("loadout contains duplicate archetype")
)

// ValidateLoadout checks that a loadout is non-empty, names only known
// archetypes and contains no duplicates.
func ValidateLoadout(kinds []Kind) error {
	if len(kinds) == 0 {
		return ErrEmptyLoadout
	}
	if len(kinds) > Count {
		return ErrLoadoutTooLarge
	}
	var seen [Count]bool
	for _, k := range kinds {
		if !k.Valid() {
			return fmt.Errorf("loadout: %v is not a known archetype", k)
		}
		if seen[k] {
			return fmt.Errorf("%w: %s", ErrDuplicateKind, k)
		}
		seen[k] = true
	}
	return nil
}
