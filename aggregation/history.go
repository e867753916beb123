package aggregation

import (
	"sort"
	"time"

	"github.com/giygas/cycletracker/ledger"
	"github.com/google/uuid"
)

// DosePoint is one historical dose of a substance
type DosePoint struct {
	CycleID uuid.UUID `json:"cycleId"`
	Date    time.Time `json:"date"`
	DoseMg  float64   `json:"dosage"`
}

// CycleHistory lists every dose of a substance across all cycles, oldest first
func CycleHistory(cycles []ledger.Cycle, substanceID uuid.UUID) []DosePoint {
	out := []DosePoint{}
	for _, c := range cycles {
		for _, a := range c.Administrations {
			if a.SubstanceID == substanceID {
				out = append(out, DosePoint{CycleID: c.ID, Date: a.Date, DoseMg: a.DoseMg})
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.Before(out[j].Date)
	})
	return out
}

// AverageCycleDuration averages the length of closed cycles. Open cycles are ignored;
// ok is false when no cycle has been closed.
func AverageCycleDuration(cycles []ledger.Cycle) (avg time.Duration, ok bool) {
	var total time.Duration
	var n int
	for _, c := range cycles {
		if c.IsOpen() {
			continue
		}
		total += c.Duration(*c.EndDate)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return total / time.Duration(n), true
}
