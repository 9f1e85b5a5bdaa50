package gardener

import (
	"fmt"
	"log/slog"
)

// Steward bundles one observe → triage → decide → act pipeline.
type Steward struct {
	Observer    *Observer
	Actor       *Actor // Nil = observe only
	Memory      *CycleMemory
	TargetSpeed float64
}

// RunCycle executes one cycle and returns what it recorded.
func (s *Steward) RunCycle() (CycleRecord, error) {
	snap, err := s.Observer.Observe()
	if err != nil {
		return CycleRecord{}, fmt.Errorf("observe: %w", err)
	}

	h := Triage(snap, s.Memory.Last())
	slog.Info("observation complete",
		"run_id", snap.Status.RunID,
		"tick", snap.Status.Tick,
		"token_tick", snap.Status.TokenTick,
		"speed", snap.Status.Speed,
		"level", h.Level,
		"unstable_ratio", fmt.Sprintf("%.2f", h.UnstableRatio),
	)
	if !h.TokenValid {
		slog.Warn("latest token rejected", "rejection", h.Rejection)
	}

	d := Decide(snap, h, s.TargetSpeed)
	rec := CycleRecord{
		RunID:     snap.Status.RunID,
		Tick:      snap.Status.Tick,
		TokenTick: snap.Status.TokenTick,
		Action:    d.Action,
		Speed:     snap.Status.Speed,
		Level:     h.Level,
		Rationale: d.Rationale,
	}

	if d.Action != "none" {
		if s.Actor == nil {
			rec.Action = "none"
			rec.Rationale = "observe only: would " + d.Action
		} else {
			res, err := s.Actor.Act(d)
			if err != nil {
				s.Memory.Record(rec)
				s.Memory.Save()
				return rec, fmt.Errorf("act: %w", err)
			}
			rec.Speed = res.Speed
			slog.Info("speed adjusted", "action", d.Action, "speed", res.Speed, "rationale", d.Rationale)
		}
	}

	s.Memory.Record(rec)
	s.Memory.Save()
	return rec, nil
}
