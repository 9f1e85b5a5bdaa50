package gardener

import "fmt"

// Speed limits applied by the steward.
const (
	MinSpeed     = 0.1
	ThrottleStep = 0.5 // Multiplier applied per CRITICAL cycle
	RecoverStep  = 2.0 // Multiplier applied per HEALTHY cycle while below target
)

// Decision is the outcome of one cycle.
type Decision struct {
	Action    string  `json:"action"` // "none", "throttle", "recover"
	Speed     float64 `json:"speed"`  // Requested speed; meaningful when Action != "none"
	Rationale string  `json:"rationale"`
}

// Decide picks zero or one speed change. Corrupt tokens and widespread
// instability slow the engine; a healthy population is walked back toward
// target. WARNING and WATCH never act.
func Decide(snap *Snapshot, h *Health, target float64) Decision {
	speed := snap.Status.Speed

	switch h.Level {
	case "CRITICAL":
		if speed <= MinSpeed {
			return Decision{Action: "none", Rationale: "critical but already at minimum speed"}
		}
		next := max(speed*ThrottleStep, MinSpeed)
		return Decision{
			Action: "throttle",
			Speed:  next,
			Rationale: fmt.Sprintf("critical: token_valid=%v bad_journal=%d out_of_order=%d unstable=%.0f%%",
				h.TokenValid, h.BadJournal, h.OutOfOrder, h.UnstableRatio*100),
		}
	case "HEALTHY":
		if speed <= 0 || speed >= target {
			return Decision{Action: "none", Rationale: "healthy"}
		}
		return Decision{
			Action:    "recover",
			Speed:     min(speed*RecoverStep, target),
			Rationale: "healthy and below target speed",
		}
	}
	return Decision{Action: "none", Rationale: fmt.Sprintf("%s: observing", h.Level)}
}
