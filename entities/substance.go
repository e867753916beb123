// Package entities holds the data model shared by the decay engine and its collaborators:
// substances, administrations, the site and category enumerations, and the error taxonomy.
package entities

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// DosageRange is a recommended weekly dose window in mg, bounds inclusive
type DosageRange struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Contains reports whether dose lies within [Min, Max]
func (r DosageRange) Contains(dose float64) bool {
	return dose >= r.Min && dose <= r.Max
}

// Substance is an immutable catalog entry. Two substances are the same only when
// their IDs match, whatever their other fields hold.
type Substance struct {
	ID                uuid.UUID    `json:"id"`
	Name              string       `json:"name"`
	Category          Category     `json:"type"`
	HalfLifeHours     float64      `json:"halfLife"`
	ConcentrationMgML float64      `json:"concentration"`
	RecommendedDosage *DosageRange `json:"recommendedDosage,omitempty"`
	Notes             string       `json:"notes,omitempty"`
}

// NewSubstance validates the decay parameters and returns a substance with a fresh identity
func NewSubstance(name string, category Category, halfLifeHours, concentration float64, recommended *DosageRange, notes string) (Substance, error) {
	s := Substance{
		ID:                uuid.New(),
		Name:              strings.TrimSpace(name),
		Category:          category,
		HalfLifeHours:     halfLifeHours,
		ConcentrationMgML: concentration,
		RecommendedDosage: recommended,
		Notes:             notes,
	}
	if err := s.Validate(); err != nil {
		return Substance{}, err
	}
	return s, nil
}

// Validate checks the invariants a substance must hold before it can feed the decay model
func (s Substance) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("substance name is empty: %w", ErrInvalidParameter)
	}
	if !(s.HalfLifeHours > 0) {
		return fmt.Errorf("half-life must be positive, got %v: %w", s.HalfLifeHours, ErrInvalidParameter)
	}
	if !(s.ConcentrationMgML > 0) {
		return fmt.Errorf("concentration must be positive, got %v: %w", s.ConcentrationMgML, ErrInvalidParameter)
	}
	if r := s.RecommendedDosage; r != nil {
		if r.Min < 0 || r.Min > r.Max {
			return fmt.Errorf("recommended dosage range [%v, %v] is invalid: %w", r.Min, r.Max, ErrInvalidParameter)
		}
	}
	return nil
}
