package ledger

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// State is the lifecycle position of a cycle
type State int

const (
	StateOpen State = iota
	StateClosed
)

func (s State) String() string {
	if s == StateOpen {
		return "open"
	}
	return "closed"
}

const week = 7 * 24 * time.Hour

// Cycle is a bounded tracking period. A nil EndDate means the cycle is open.
type Cycle struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	StartDate       time.Time  `json:"startDate"`
	EndDate         *time.Time `json:"endDate"`
	Administrations Ledger     `json:"administrations"`
	Notes           string     `json:"notes,omitempty"`
}

// NewCycle returns an open cycle with a fresh identity
func NewCycle(name string, start time.Time) Cycle {
	return Cycle{
		ID:              uuid.New(),
		Name:            name,
		StartDate:       start,
		Administrations: Ledger{},
	}
}

func (c Cycle) State() State {
	if c.EndDate == nil {
		return StateOpen
	}
	return StateClosed
}

func (c Cycle) IsOpen() bool {
	return c.State() == StateOpen
}

// Close sets the end date. Closing an already closed cycle keeps the first end date.
func (c *Cycle) Close(at time.Time) {
	if c.EndDate != nil {
		return
	}
	end := at
	c.EndDate = &end
}

// Duration is (end or now) minus start, never negative
func (c Cycle) Duration(now time.Time) time.Duration {
	end := now
	if c.EndDate != nil {
		end = *c.EndDate
	}
	d := end.Sub(c.StartDate)
	if d < 0 {
		return 0
	}
	return d
}

// DurationInWeeks rounds the duration up to whole weeks
func (c Cycle) DurationInWeeks(now time.Time) int {
	return int(math.Ceil(float64(c.Duration(now)) / float64(week)))
}

// Clone returns a deep copy, sharing nothing mutable with c
func (c Cycle) Clone() Cycle {
	out := c
	if c.EndDate != nil {
		end := *c.EndDate
		out.EndDate = &end
	}
	out.Administrations = c.Administrations.Clone()
	return out
}

// CloneAll deep-copies a cycle list
func CloneAll(cycles []Cycle) []Cycle {
	out := make([]Cycle, len(cycles))
	for i := range cycles {
		out[i] = cycles[i].Clone()
	}
	return out
}
