// Package decay implements the first-order elimination model used for residual levels:
// A(t) = A0 * 0.5^(t / t½).
package decay

import (
	"fmt"
	"math"
	"time"

	"github.com/giygas/cycletracker/entities"
)

// Remaining returns the amount left after hoursElapsed. Negative elapsed time
// (a query before the administration) yields 0.
func Remaining(initialMg, hoursElapsed, halfLifeHours float64) (float64, error) {
	if !(halfLifeHours > 0) {
		return 0, fmt.Errorf("half-life must be positive, got %v: %w", halfLifeHours, entities.ErrInvalidParameter)
	}
	if hoursElapsed < 0 {
		return 0, nil
	}
	return initialMg * math.Pow(0.5, hoursElapsed/halfLifeHours), nil
}

// Extrapolate evaluates the decay curve without clamping, so negative elapsed
// time returns more than initialMg.
func Extrapolate(initialMg, hoursElapsed, halfLifeHours float64) (float64, error) {
	if !(halfLifeHours > 0) {
		return 0, fmt.Errorf("half-life must be positive, got %v: %w", halfLifeHours, entities.ErrInvalidParameter)
	}
	return initialMg * math.Pow(0.5, hoursElapsed/halfLifeHours), nil
}

// HoursBetween returns the signed span from -> to in fractional hours
func HoursBetween(from, to time.Time) float64 {
	return to.Sub(from).Hours()
}
