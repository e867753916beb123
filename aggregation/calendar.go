package aggregation

import (
	"time"

	"github.com/giygas/cycletracker/entities"
)

// DayBucket groups the administrations logged on one calendar day
type DayBucket struct {
	Date            time.Time                 `json:"date"`
	Administrations []entities.Administration `json:"administrations"`
}

// StartOfDay truncates t to midnight in loc
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// AdministrationsByDay groups the cycle's administrations by the day they fall on in loc.
// Buckets are date-ascending and only days with at least one administration appear.
// A nil loc means UTC.
func (e *Engine) AdministrationsByDay(loc *time.Location) []DayBucket {
	if loc == nil {
		loc = time.UTC
	}

	out := []DayBucket{}
	for _, a := range e.cycle.Administrations {
		day := StartOfDay(a.Date, loc)
		if n := len(out); n > 0 && out[n-1].Date.Equal(day) {
			out[n-1].Administrations = append(out[n-1].Administrations, a)
			continue
		}
		out = append(out, DayBucket{Date: day, Administrations: []entities.Administration{a}})
	}
	return out
}

// AdministrationsInMonth returns the buckets of AdministrationsByDay that fall in the
// calendar month containing month, evaluated in loc
func (e *Engine) AdministrationsInMonth(month time.Time, loc *time.Location) []DayBucket {
	if loc == nil {
		loc = time.UTC
	}
	m := month.In(loc)
	first := time.Date(m.Year(), m.Month(), 1, 0, 0, 0, 0, loc)
	next := first.AddDate(0, 1, 0)

	out := []DayBucket{}
	for _, b := range e.AdministrationsByDay(loc) {
		if !b.Date.Before(first) && b.Date.Before(next) {
			out = append(out, b)
		}
	}
	return out
}
