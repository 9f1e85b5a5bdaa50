package gardener

import (
	"errors"

	"github.com/talgya/burzen-core/internal/codex"
)

// Health holds diagnostic signals computed from a Snapshot.
// Runs locally; every token is re-verified rather than trusted.
type Health struct {
	TokenValid    bool                // Latest eigenstate token decodes
	Rejection     codex.RejectionKind // Why the latest token failed, if it did
	BadJournal    int                 // Journaled tokens of this run that fail to decode
	OutOfOrder    int                 // Adjacent journal entries whose ticks do not increase
	Stalled       bool                // Token tick did not advance since the previous cycle
	UnstableRatio float64             // Unstable cells / total cells
	Level         string              // "CRITICAL", "WARNING", "WATCH", "HEALTHY"
}

// Triage computes a Health from the snapshot. prev is the last cycle's record,
// or nil on the first cycle.
func Triage(snap *Snapshot, prev *CycleRecord) *Health {
	h := &Health{TokenValid: true}

	if snap.Eigenstate.Token != "" {
		if _, err := codex.Decode(snap.Eigenstate.Token); err != nil {
			h.TokenValid = false
			var rej *codex.RejectionError
			if errors.As(err, &rej) {
				h.Rejection = rej.Kind
			}
		}
	}

	// Journal rows arrive newest first; within one run ticks must strictly drop.
	var prior *TokenRow
	for i := range snap.Tokens {
		row := &snap.Tokens[i]
		if row.RunID != snap.Status.RunID {
			continue
		}
		if _, err := codex.Decode(row.Token); err != nil {
			h.BadJournal++
		}
		if prior != nil && row.Tick >= prior.Tick {
			h.OutOfOrder++
		}
		prior = row
	}

	if prev != nil && snap.Status.Running && snap.Status.Speed > 0 &&
		prev.RunID == snap.Status.RunID && snap.Status.TokenTick <= prev.TokenTick {
		h.Stalled = true
	}

	if snap.Status.Cells > 0 {
		h.UnstableRatio = float64(snap.Status.Unstable) / float64(snap.Status.Cells)
	}

	h.Level = "HEALTHY"
	switch {
	case !h.TokenValid || h.BadJournal > 0 || h.OutOfOrder > 0:
		h.Level = "CRITICAL"
	case h.UnstableRatio >= 0.5:
		h.Level = "CRITICAL"
	case h.UnstableRatio > 0 || h.Stalled:
		h.Level = "WARNING"
	case snap.Eigenstate.Token == "":
		h.Level = "WATCH" // nothing captured yet
	}

	return h
}
