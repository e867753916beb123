// Package aggregation derives read-only statistics from a single cycle: dosage totals and
// weekly averages per substance, site rotation, residual (serum) levels and their time series.
package aggregation

import (
	"fmt"
	"time"

	"github.com/giygas/cycletracker/entities"
	"github.com/giygas/cycletracker/ledger"
	"github.com/google/uuid"
)

// SiteShare is the percentage of administrations logged at a site
type SiteShare struct {
	Site    entities.Site `json:"site"`
	Percent float64       `json:"percent"`
}

// Sample is one point of a serum level time series
type Sample struct {
	Time   time.Time             `json:"time"`
	Levels map[uuid.UUID]float64 `json:"levels"`
}

// Engine is a read-only view over one cycle. It copies the cycle on construction,
// so later mutations of the source never show through.
type Engine struct {
	cycle  ledger.Cycle
	lookup ledger.SubstanceLookup
	clock  func() time.Time
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source used for open-cycle durations and time ranges
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		if clock != nil {
			e.clock = clock
		}
	}
}

// New returns an engine over a copy of cycle
func New(cycle ledger.Cycle, lookup ledger.SubstanceLookup, opts ...Option) *Engine {
	e := &Engine{
		cycle:  cycle.Clone(),
		lookup: lookup,
		clock:  time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Cycle returns a copy of the cycle the engine reads
func (e *Engine) Cycle() ledger.Cycle {
	return e.cycle.Clone()
}

// TotalDosageBySubstance sums doses per substance identity
func (e *Engine) TotalDosageBySubstance() map[uuid.UUID]float64 {
	totals := make(map[uuid.UUID]float64)
	for _, a := range e.cycle.Administrations {
		totals[a.SubstanceID] += a.DoseMg
	}
	return totals
}

// WeeklyAverageBySubstance divides each substance total by the cycle length in whole weeks.
// A cycle shorter than one started week yields an empty map.
func (e *Engine) WeeklyAverageBySubstance() map[uuid.UUID]float64 {
	weeks := e.cycle.DurationInWeeks(e.clock())
	if weeks == 0 {
		return map[uuid.UUID]float64{}
	}

	averages := e.TotalDosageBySubstance()
	for id, total := range averages {
		averages[id] = total / float64(weeks)
	}
	return averages
}

// SiteRotationAnalysis returns each used site's share of all administrations, highest first.
// Ties follow site enumeration order. An empty ledger yields an empty slice.
func (e *Engine) SiteRotationAnalysis() []SiteShare {
	total := len(e.cycle.Administrations)
	if total == 0 {
		return []SiteShare{}
	}

	freqs := e.cycle.Administrations.SiteFrequencies()
	out := make([]SiteShare, 0, len(freqs))
	for _, f := range freqs {
		out = append(out, SiteShare{
			Site:    f.Site,
			Percent: float64(f.Count) / float64(total) * 100,
		})
	}
	return out
}

// ResidualLevelsBySubstance sums the decayed amount per substance at the given time
func (e *Engine) ResidualLevelsBySubstance(at time.Time) map[uuid.UUID]float64 {
	levels := make(map[uuid.UUID]float64)
	for _, a := range e.cycle.Administrations {
		amount, ok := ledger.ResidualOf(a, at, e.lookup)
		if !ok {
			continue
		}
		levels[a.SubstanceID] += amount
	}
	return levels
}

// SerumLevelTimeSeries samples residual levels every stepHours from `from` while the
// sample time does not pass `to`. An inverted window yields no samples.
func (e *Engine) SerumLevelTimeSeries(from, to time.Time, stepHours float64) ([]Sample, error) {
	if !(stepHours > 0) {
		return nil, fmt.Errorf("step must be positive, got %v hours: %w", stepHours, entities.ErrInvalidParameter)
	}
	step := time.Duration(stepHours * float64(time.Hour))
	if step <= 0 {
		return nil, fmt.Errorf("step of %v hours is below clock resolution: %w", stepHours, entities.ErrInvalidParameter)
	}

	samples := []Sample{}
	for ts := from; !ts.After(to); ts = ts.Add(step) {
		samples = append(samples, Sample{
			Time:   ts,
			Levels: e.ResidualLevelsBySubstance(ts),
		})
	}
	return samples, nil
}

// RecommendedSite picks the least used enumerated site, ties broken by enumeration order.
// With nothing logged it returns entities.DefaultSite.
func (e *Engine) RecommendedSite() entities.Site {
	if len(e.cycle.Administrations) == 0 {
		return entities.DefaultSite
	}

	counts := make(map[entities.Site]int, len(entities.Sites))
	for _, a := range e.cycle.Administrations {
		counts[a.Site]++
	}

	best := entities.Sites[0]
	for _, site := range entities.Sites[1:] {
		if counts[site] < counts[best] {
			best = site
		}
	}
	return best
}

// ValidateDosage reports whether dose lies inside the substance's recommended range.
// Substances without a range accept any dose.
func ValidateDosage(dose float64, substance entities.Substance) bool {
	if substance.RecommendedDosage == nil {
		return true
	}
	return substance.RecommendedDosage.Contains(dose)
}

// ValidateDosage is the engine-bound form of the package function
func (e *Engine) ValidateDosage(dose float64, substance entities.Substance) bool {
	return ValidateDosage(dose, substance)
}
