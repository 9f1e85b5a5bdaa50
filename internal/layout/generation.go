// Package layout shapes an initial cell population using layered simplex noise.
// Cells sit on a line; neighboring cells get correlated activity levels so
// a population has warm and cool stretches instead of uniform demand.
package layout

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"github.com/talgya/burzen-core/internal/archetype"
	"github.com/talgya/burzen-core/internal/cells"
)

// Config holds layout parameters.
type Config struct {
	Seed        int64            // Random seed (0 = random)
	Octaves     int              // Noise layers summed per cell
	Frequency   float64          // Base sampling frequency along the cell line
	Persistence float64          // Amplitude falloff per octave
	ActivityMin float32          // Activity at the noise minimum
	ActivityMax float32          // Activity at the noise maximum
	Loadout     []archetype.Kind // Archetypes cycled across cells (empty = keep i mod 8)
}

// DefaultConfig returns a reasonable starting configuration.
func DefaultConfig() Config {
	return Config{
		Seed:        0,
		Octaves:     3,
		Frequency:   0.15,
		Persistence: 0.5,
		ActivityMin: 0.4,
		ActivityMax: 1.0,
	}
}

// Apply rewrites activity (and archetypes, when a loadout is set) for every
// cell in s. Energy and heat keep their defaults. The same seed always yields
// the same layout.
func Apply(s *cells.Store, cfg Config) {
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Int63()
	}

	noise := opensimplex.NewNormalized(seed)
	octaves := max(cfg.Octaves, 1)
	span := cfg.ActivityMax - cfg.ActivityMin

	for i := 0; i < s.Len(); i++ {
		// Second coordinate offsets the line away from the noise origin.
		v := octaveNoise(noise, float64(i), 0.5, octaves, cfg.Frequency, cfg.Persistence)
		s.SetActivity(i, cfg.ActivityMin+float32(v)*span)

		if len(cfg.Loadout) > 0 {
			s.SetArchetype(i, cfg.Loadout[i%len(cfg.Loadout)])
		}
	}
}

// octaveNoise sums octaves of normalized noise; the result stays in [0, 1].
func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
