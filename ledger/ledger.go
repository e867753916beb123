// Package ledger provides the per-cycle administration ledger and the Cycle type that owns it.
package ledger

import (
	"slices"
	"sort"
	"time"

	"github.com/giygas/cycletracker/decay"
	"github.com/giygas/cycletracker/entities"
	"github.com/giygas/cycletracker/logging"
	"github.com/google/uuid"
)

// SubstanceLookup resolves a substance by identity. The catalog implements it.
type SubstanceLookup interface {
	Substance(id uuid.UUID) (entities.Substance, bool)
}

// SiteCount is the number of administrations logged at a site
type SiteCount struct {
	Site  entities.Site `json:"site"`
	Count int           `json:"count"`
}

// Ledger is an administration list kept in ascending date order
type Ledger []entities.Administration

// Add appends a and restores date order. Entries with equal dates keep insertion order.
// Identities are not checked for collisions.
func (l *Ledger) Add(a entities.Administration) {
	*l = append(*l, a)
	l.Sort()
}

// Sort restores ascending date order, keeping equal dates in their current order
func (l Ledger) Sort() {
	sort.SliceStable(l, func(i, j int) bool {
		return l[i].Date.Before(l[j].Date)
	})
}

// Remove drops every entry with the given identity and returns how many were removed.
// Removing an unknown identity is a no-op.
func (l *Ledger) Remove(id uuid.UUID) int {
	before := len(*l)
	*l = slices.DeleteFunc(*l, func(a entities.Administration) bool {
		return a.ID == id
	})
	return before - len(*l)
}

// Find returns the administration with the given identity
func (l Ledger) Find(id uuid.UUID) (entities.Administration, bool) {
	for _, a := range l {
		if a.ID == id {
			return a, true
		}
	}
	return entities.Administration{}, false
}

// Clone returns an independent copy
func (l Ledger) Clone() Ledger {
	if l == nil {
		return Ledger{}
	}
	return slices.Clone(l)
}

// Between returns the administrations dated within [from, to]
func (l Ledger) Between(from, to time.Time) Ledger {
	out := Ledger{}
	for _, a := range l {
		if inRange(a.Date, from, to) {
			out = append(out, a)
		}
	}
	return out
}

// TotalDosage sums the doses of one substance dated within [from, to]
func (l Ledger) TotalDosage(substanceID uuid.UUID, from, to time.Time) float64 {
	var total float64
	for _, a := range l {
		if a.SubstanceID == substanceID && inRange(a.Date, from, to) {
			total += a.DoseMg
		}
	}
	return total
}

// WeeklyAverageDosage divides TotalDosage by the number of weeks in the window,
// counted from whole days. Windows shorter than one day yield 0.
func (l Ledger) WeeklyAverageDosage(substanceID uuid.UUID, from, to time.Time) float64 {
	days := wholeDays(from, to)
	weeks := float64(days) / 7
	if weeks <= 0 {
		return 0
	}
	return l.TotalDosage(substanceID, from, to) / weeks
}

// SiteFrequencies counts administrations per site, most used first.
// Ties follow site enumeration order.
func (l Ledger) SiteFrequencies() []SiteCount {
	counts := make(map[entities.Site]int)
	for _, a := range l {
		counts[a.Site]++
	}

	out := make([]SiteCount, 0, len(counts))
	for site, n := range counts {
		out = append(out, SiteCount{Site: site, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Site.Rank() < out[j].Site.Rank()
	})
	return out
}

// TotalResidualAmount sums the decayed amount of every administration at the given time.
// Administrations dated after at contribute nothing; ones whose substance cannot be
// resolved are skipped.
func (l Ledger) TotalResidualAmount(at time.Time, lookup SubstanceLookup) float64 {
	var total float64
	for _, a := range l {
		amount, ok := ResidualOf(a, at, lookup)
		if ok {
			total += amount
		}
	}
	return total
}

// ResidualOf returns the decayed amount of a single administration at the given time
func ResidualOf(a entities.Administration, at time.Time, lookup SubstanceLookup) (float64, bool) {
	if lookup == nil {
		return 0, false
	}
	substance, ok := lookup.Substance(a.SubstanceID)
	if !ok {
		logging.Debug("Skipping administration with unknown substance",
			"administration_id", a.ID.String(),
			"substance_id", a.SubstanceID.String())
		return 0, false
	}
	amount, err := decay.Remaining(a.DoseMg, decay.HoursBetween(a.Date, at), substance.HalfLifeHours)
	if err != nil {
		logging.Warn("Skipping administration with invalid substance parameters",
			"administration_id", a.ID.String(),
			"substance_id", a.SubstanceID.String(),
			"error", err)
		return 0, false
	}
	return amount, true
}

func inRange(t, from, to time.Time) bool {
	return !t.Before(from) && !t.After(to)
}

func wholeDays(from, to time.Time) int {
	return int(to.Sub(from) / (24 * time.Hour))
}
