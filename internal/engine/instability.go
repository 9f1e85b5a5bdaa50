package engine

import "github.com/talgya/burzen-core/internal/cells"

// MonitorConfig tunes instability detection.
type MonitorConfig struct {
	Beta             float32 `yaml:"beta"`              // Hazard gain on squared overflow
	Threshold        float32 `yaml:"threshold"`         // Hazard above which a tick counts as unstable
	ConsecutiveTicks int     `yaml:"consecutive_ticks"` // Unstable ticks in a row before a cell is flagged
}

// DefaultMonitorConfig returns the baseline instability tuning.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Beta:             1.4,
		Threshold:        0.08,
		ConsecutiveTicks: 3,
	}
}

// Instability summarizes the thermal condition of the population after a step.
type Instability struct {
	Unstable   int     `json:"unstable"`    // Cells over the hazard threshold for ConsecutiveTicks or more
	PeakHazard float32 `json:"peak_hazard"` // Largest per-cell hazard this tick
	Low        int     `json:"low"`         // Cells in the low thermal band
	Medium     int     `json:"medium"`
	High       int     `json:"high"`
}

// Monitor tracks per-cell streaks of hazardous heat across ticks.
type Monitor struct {
	cfg    MonitorConfig
	streak []int
}

// NewMonitor creates a monitor for n cells.
func NewMonitor(cfg MonitorConfig, n int) *Monitor {
	if n < 0 {
		n = 0
	}
	return &Monitor{cfg: cfg, streak: make([]int, n)}
}

// Observe updates streaks from the store's current heat and returns the summary.
// Call it once per step, after cells.Step.
func (m *Monitor) Observe(s *cells.Store) Instability {
	var out Instability
	n := min(s.Len(), len(m.streak))
	for i := 0; i < n; i++ {
		theta := s.Params(i).Theta
		heat := s.Heat(i)

		overflow := cells.Overflow(heat, theta)
		hazard := m.cfg.Beta * overflow * overflow
		if hazard > out.PeakHazard {
			out.PeakHazard = hazard
		}
		if hazard > m.cfg.Threshold {
			m.streak[i]++
		} else {
			m.streak[i] = 0
		}
		if m.cfg.ConsecutiveTicks > 0 && m.streak[i] >= m.cfg.ConsecutiveTicks {
			out.Unstable++
		}

		switch cells.ThermalBand(heat, theta) {
		case cells.BandLow:
			out.Low++
		case cells.BandMedium:
			out.Medium++
		default:
			out.High++
		}
	}
	return out
}

// Streak returns the current unstable streak for cell i.
func (m *Monitor) Streak(i int) int {
	return m.streak[i]
}
