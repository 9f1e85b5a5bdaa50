// Package cells holds the struct-of-arrays cell state and the per-tick update.
// A Store is owned by exactly one caller; Step must not run concurrently on the
// same Store. Independent stores share nothing.
package cells

import (
	"errors"

	"github.com/talgya/burzen-core/internal/archetype"
)

// Bounds for per-cell scalars.
const (
	MaxEnergy   = 100
	MaxHeat     = 100
	MaxActivity = 1
)

// Defaults applied to every cell by New.
const (
	DefaultEnergy   float32 = 30
	DefaultHeat     float32 = 8
	DefaultActivity float32 = 0.7
)

// ErrClosed is returned when a Store is closed twice.
var ErrClosed = errors.New("cells: store already closed")

// Store holds one record per cell as parallel columns. Index i refers to the
// same cell in every column; New sizes all columns together and nothing
// resizes them afterwards.
type Store struct {
	energy    []float32
	heat      []float32
	activity  []float32
	archetype []archetype.Kind

	// Pre-step copies of energy and heat, reused across steps.
	prevEnergy []float32
	prevHeat   []float32

	closed bool
}

// New allocates a store of count cells with default state. A count of zero or
// less yields an empty store, which is valid.
func New(count int) *Store {
	if count < 0 {
		count = 0
	}
	s := &Store{
		energy:     make([]float32, count),
		heat:       make([]float32, count),
		activity:   make([]float32, count),
		archetype:  make([]archetype.Kind, count),
		prevEnergy: make([]float32, count),
		prevHeat:   make([]float32, count),
	}
	for i := 0; i < count; i++ {
		s.energy[i] = DefaultEnergy
		s.heat[i] = DefaultHeat
		s.activity[i] = DefaultActivity
		s.archetype[i] = archetype.Kind(i % archetype.Count)
	}
	return s
}

// Close releases the store's buffers. The store reads as empty afterwards.
func (s *Store) Close() error {
	if s.closed {
		return ErrClosed
	}
	s.energy, s.heat, s.activity, s.archetype = nil, nil, nil, nil
	s.prevEnergy, s.prevHeat = nil, nil
	s.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool { return s.closed }

// Len returns the number of cells.
func (s *Store) Len() int { return len(s.energy) }

func (s *Store) Energy(i int) float32 { return s.energy[i] }
func (s *Store) Heat(i int) float32 { return s.heat[i] }
func (s *Store) Activity(i int) float32 { return s.activity[i] }
func (s *Store) Archetype(i int) archetype.Kind { return s.archetype[i] }
func (s *Store) Params(i int) archetype.Params { return archetype.Lookup(s.archetype[i]) }
func (s *Store) SetEnergy(i int, v float32) { s.energy[i] = clamp(v, 0, MaxEnergy) }
func (s *Store) SetHeat(i int, v float32) { s.heat[i] = clamp(v, 0, MaxHeat) }
func (s *Store) SetActivity(i int, v float32) { s.activity[i] = clamp(v, 0, MaxActivity) }
func (s *Store) SetArchetype(i int, k archetype.Kind) { s.archetype[i] = k }

// Cell is a copy of one cell's state.
type Cell struct {
	Index     int            `json:"index"`
	Energy    float32        `json:"energy"`
	Heat      float32        `json:"heat"`
	Activity  float32        `json:"activity"`
	Archetype archetype.Kind `json:"archetype"`
}

// Cell returns a copy of cell i.
func (s *Store) Cell(i int) Cell {
	return Cell{
		Index:     i,
		Energy:    s.energy[i],
		Heat:      s.heat[i],
		Activity:  s.activity[i],
		Archetype: s.archetype[i],
	}
}

// clamp bounds v to [lo, hi]. NaN maps to lo.
func clamp(v, lo, hi float32) float32 {
	if !(v > lo) {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func average(values []float32) float32 {
	if len(values) == 0 {
		return 0
	}
	var total float32
	for _, v := range values {
		total += v
	}
	return total / float32(len(values))
}
