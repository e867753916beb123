package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Administration is one logged dose. It refers to its substance by identity only;
// the catalog owns the substance itself.
type Administration struct {
	ID          uuid.UUID `json:"id"`
	Date        time.Time `json:"date"`
	SubstanceID uuid.UUID `json:"substanceId"`
	DoseMg      float64   `json:"dosage"`
	Site        Site      `json:"site"`
	Notes       string    `json:"notes,omitempty"`
}

// NewAdministration validates the dose and returns a record with a fresh identity
func NewAdministration(substance Substance, dose float64, site Site, date time.Time, notes string) (Administration, error) {
	if substance.ID == uuid.Nil {
		return Administration{}, fmt.Errorf("administration needs a substance identity: %w", ErrInvalidParameter)
	}
	if !(dose > 0) {
		return Administration{}, fmt.Errorf("dose must be positive, got %v: %w", dose, ErrInvalidParameter)
	}
	return Administration{
		ID:          uuid.New(),
		Date:        date,
		SubstanceID: substance.ID,
		DoseMg:      dose,
		Site:        site,
		Notes:       notes,
	}, nil
}

// Volume returns the injected volume in mL. substance must be the one referenced
// by SubstanceID; zero is returned otherwise.
func (a Administration) Volume(substance Substance) float64 {
	if substance.ID != a.SubstanceID || substance.ConcentrationMgML <= 0 {
		return 0
	}
	return a.DoseMg / substance.ConcentrationMgML
}
