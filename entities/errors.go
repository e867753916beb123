package entities

import "errors"

var (
	// ErrInvalidParameter is returned for non-positive half-lives, concentrations, doses
	// or step sizes, and for inverted dosage ranges.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNoActiveCycle is returned when an administration is logged without an open cycle
	ErrNoActiveCycle = errors.New("no active cycle")

	// ErrNotFound marks lookups by identity that found nothing. Removals never return it.
	ErrNotFound = errors.New("not found")
)
