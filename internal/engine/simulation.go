// Simulation owns a cell store and wires step, export and encode into ticks.
package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/talgya/burzen-core/internal/cells"
	"github.com/talgya/burzen-core/internal/codex"
)

// Config holds per-simulation settings.
type Config struct {
	DT      float32       // Time increment passed to every step
	Monitor MonitorConfig // Instability detection tuning
}

// Simulation holds the cell population and the most recent derived signals.
// The store is owned exclusively; the mutex lets readers (HTTP API) observe
// while the engine goroutine steps.
type Simulation struct {
	mu sync.RWMutex

	store   *cells.Store
	dt      float32
	monitor *Monitor

	lastTick    uint64
	lastDelta   cells.Delta
	instability Instability
	eigen       cells.Eigenstate
	token       string
	tokenTick   uint64
	steps       uint64

	// OnToken is called after each Capture with the fresh token, outside the lock.
	OnToken func(tick uint64, token string)
}

// Status is a point-in-time copy of the simulation's signals.
type Status struct {
	Tick        uint64           `json:"tick"`
	Cells       int              `json:"cells"`
	DT          float32          `json:"dt"`
	Delta       cells.Delta      `json:"delta"`
	Instability Instability      `json:"instability"`
	Eigenstate  cells.Eigenstate `json:"eigenstate"`
	Token       string           `json:"token,omitempty"`
	TokenTick   uint64           `json:"token_tick"`
}

// NewSimulation takes ownership of store.
func NewSimulation(store *cells.Store, cfg Config) *Simulation {
	sim := &Simulation{
		store:   store,
		dt:      cfg.DT,
		monitor: NewMonitor(cfg.Monitor, store.Len()),
	}
	sim.eigen = cells.Export(store)
	return sim
}

// TickStep advances the population by one dt. Wired to Engine.OnTick.
func (s *Simulation) TickStep(tick uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastTick = tick
	s.lastDelta = cells.Step(s.store, s.dt)
	s.instability = s.monitor.Observe(s.store)
	s.steps++
}

// Capture exports and encodes the current population, records the token and
// passes it to OnToken. Wired to Engine.OnSnapshot.
func (s *Simulation) Capture(tick uint64) string {
	s.mu.Lock()
	s.eigen = cells.Export(s.store)
	s.token = codex.Encode(s.eigen)
	s.tokenTick = tick
	token := s.token
	s.mu.Unlock()

	if s.OnToken != nil {
		s.OnToken(tick, token)
	}
	return token
}

// Report logs a one-line summary. Wired to Engine.OnReport.
func (s *Simulation) Report(tick uint64) {
	st := s.Status()
	slog.Info("simulation report",
		"tick", humanize.Comma(int64(tick)),
		"cells", st.Cells,
		"mean_energy", fmt.Sprintf("%.3f", st.Delta.MeanEnergy),
		"mean_heat", fmt.Sprintf("%.3f", st.Delta.MeanHeat),
		"pruning", fmt.Sprintf("%.3f", st.Delta.Pruning),
		"unstable", st.Instability.Unstable,
		"high_band", st.Instability.High,
	)
	if st.Instability.Unstable > 0 {
		slog.Warn("cells running unstable",
			"count", st.Instability.Unstable,
			"peak_hazard", fmt.Sprintf("%.3f", st.Instability.PeakHazard),
		)
	}
}

// Status returns a copy of the latest signals.
func (s *Simulation) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		Tick:        s.lastTick,
		Cells:       s.store.Len(),
		DT:          s.dt,
		Delta:       s.lastDelta,
		Instability: s.instability,
		Eigenstate:  s.eigen,
		Token:       s.token,
		TokenTick:   s.tokenTick,
	}
}

// Steps returns how many steps have run.
func (s *Simulation) Steps() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.steps
}

// Cells returns a copy of every cell.
func (s *Simulation) Cells() []cells.Cell {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]cells.Cell, s.store.Len())
	for i := range out {
		out[i] = s.store.Cell(i)
	}
	return out
}

// Close releases the underlying store.
func (s *Simulation) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Close()
}
