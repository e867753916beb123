package aggregation

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/giygas/cycletracker/entities"
	"github.com/google/uuid"
)

// TimeRange selects how far back dashboard views look
type TimeRange string

const (
	RangeDay   TimeRange = "day"
	RangeWeek  TimeRange = "week"
	RangeMonth TimeRange = "month"
	RangeAll   TimeRange = "all"
)

// ParseTimeRange accepts day, week, month or all (case-insensitive)
func ParseTimeRange(raw string) (TimeRange, error) {
	switch r := TimeRange(strings.ToLower(strings.TrimSpace(raw))); r {
	case RangeDay, RangeWeek, RangeMonth, RangeAll:
		return r, nil
	case "":
		return RangeWeek, nil
	default:
		return "", fmt.Errorf("unknown time range %q: %w", raw, entities.ErrInvalidParameter)
	}
}

// Days returns the window length. RangeAll has no fixed length and returns 0.
func (r TimeRange) Days() int {
	switch r {
	case RangeDay:
		return 1
	case RangeWeek:
		return 7
	case RangeMonth:
		return 30
	default:
		return 0
	}
}

// windowStart returns the first instant covered by r. RangeAll starts at the cycle start.
func (e *Engine) windowStart(r TimeRange, now time.Time) time.Time {
	if days := r.Days(); days > 0 {
		return now.AddDate(0, 0, -days)
	}
	return e.cycle.StartDate
}

// Window returns the span a dashboard over r covers at the engine's current time
func (e *Engine) Window(r TimeRange) (from, to time.Time) {
	now := e.clock()
	return e.windowStart(r, now), now
}

// RecentAdministrations returns the administrations inside the range, newest first
func (e *Engine) RecentAdministrations(r TimeRange) []entities.Administration {
	now := e.clock()
	cutoff := e.windowStart(r, now)

	out := []entities.Administration{}
	for _, a := range e.cycle.Administrations {
		if r == RangeAll || !a.Date.Before(cutoff) {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out
}

// MostUsedSite returns the site with the highest share, if anything was logged
func (e *Engine) MostUsedSite() (entities.Site, bool) {
	shares := e.SiteRotationAnalysis()
	if len(shares) == 0 {
		return "", false
	}
	return shares[0].Site, true
}

// HighestWeeklyDosage returns the substance with the largest weekly average
func (e *Engine) HighestWeeklyDosage() (SubstanceAmount, bool) {
	amounts := e.Amounts(e.WeeklyAverageBySubstance())
	if len(amounts) == 0 {
		return SubstanceAmount{}, false
	}
	return amounts[0], true
}

// AverageDailyAdministrations is the count of recent administrations per day of the range.
// RangeAll divides by the cycle length in days, at least one.
func (e *Engine) AverageDailyAdministrations(r TimeRange) float64 {
	recent := e.RecentAdministrations(r)
	if len(recent) == 0 {
		return 0
	}
	days := float64(r.Days())
	if days == 0 {
		days = e.cycle.Duration(e.clock()).Hours() / 24
		if days < 1 {
			days = 1
		}
	}
	return float64(len(recent)) / days
}

// SubstanceAmount pairs a substance with an amount in mg (total, weekly average or residual)
type SubstanceAmount struct {
	SubstanceID uuid.UUID `json:"substanceId"`
	Name        string    `json:"name"`
	AmountMg    float64   `json:"amountMg"`
}

// Amounts turns a per-substance map into a list sorted by amount, highest first
func (e *Engine) Amounts(m map[uuid.UUID]float64) []SubstanceAmount {
	out := make([]SubstanceAmount, 0, len(m))
	for id, v := range m {
		sa := SubstanceAmount{SubstanceID: id, AmountMg: v}
		if e.lookup != nil {
			if s, ok := e.lookup.Substance(id); ok {
				sa.Name = s.Name
			}
		}
		out = append(out, sa)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AmountMg != out[j].AmountMg {
			return out[i].AmountMg > out[j].AmountMg
		}
		return out[i].SubstanceID.String() < out[j].SubstanceID.String()
	})
	return out
}

// Dashboard is an immutable summary of one cycle at a point in time
type Dashboard struct {
	CycleID               uuid.UUID                 `json:"cycleId"`
	CycleName             string                    `json:"cycleName"`
	SnapshotVersion       uint64                    `json:"snapshotVersion"`
	GeneratedAt           time.Time                 `json:"generatedAt"`
	Range                 TimeRange                 `json:"range"`
	DurationWeeks         int                       `json:"durationWeeks"`
	SerumLevels           []SubstanceAmount         `json:"serumLevels"`
	WeeklyAverages        []SubstanceAmount         `json:"weeklyAverages"`
	SiteDistribution      []SiteShare               `json:"siteDistribution"`
	RecommendedSite       entities.Site             `json:"recommendedSite"`
	MostUsedSite          *entities.Site            `json:"mostUsedSite,omitempty"`
	HighestWeeklyDosage   *SubstanceAmount          `json:"highestWeeklyDosage,omitempty"`
	RecentAdministrations []entities.Administration `json:"recentAdministrations"`
	AverageDailyCount     float64                   `json:"averageDailyAdministrations"`
	Series                []Sample                  `json:"series"`
}

// Dashboard evaluates every view at the engine's current time. The series covers the
// range with the given step.
func (e *Engine) Dashboard(r TimeRange, stepHours float64) (Dashboard, error) {
	now := e.clock()
	series, err := e.SerumLevelTimeSeries(e.windowStart(r, now), now, stepHours)
	if err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{
		CycleID:               e.cycle.ID,
		CycleName:             e.cycle.Name,
		GeneratedAt:           now,
		Range:                 r,
		DurationWeeks:         e.cycle.DurationInWeeks(now),
		SerumLevels:           e.Amounts(e.ResidualLevelsBySubstance(now)),
		WeeklyAverages:        e.Amounts(e.WeeklyAverageBySubstance()),
		SiteDistribution:      e.SiteRotationAnalysis(),
		RecommendedSite:       e.RecommendedSite(),
		RecentAdministrations: e.RecentAdministrations(r),
		AverageDailyCount:     e.AverageDailyAdministrations(r),
		Series:                series,
	}
	if site, ok := e.MostUsedSite(); ok {
		d.MostUsedSite = &site
	}
	if top, ok := e.HighestWeeklyDosage(); ok {
		d.HighestWeeklyDosage = &top
	}
	return d, nil
}
