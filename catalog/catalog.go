// Package catalog keeps the substances administrations can refer to. Preset and YAML-loaded
// substances get name-derived identities so persisted administrations keep resolving across restarts.
package catalog

import (
	"fmt"
	"sync"

	"github.com/giygas/cycletracker/entities"
	"github.com/giygas/cycletracker/ledger"
	"github.com/google/uuid"
)

// namespace seeds the name-derived substance identities
var namespace = uuid.MustParse("6f1c2a8e-5d3b-4f7a-9c0e-2b8d4a6e1f35")

// StableID derives the identity used for a named catalog substance
func StableID(name string) uuid.UUID {
	return uuid.NewSHA1(namespace, []byte(normalize(name)))
}

type entry struct {
	substance  entities.Substance
	normalized string // pre-computed folded name for lookups
}

// Catalog is safe for concurrent use
type Catalog struct {
	mu    sync.RWMutex
	byID  map[uuid.UUID]entry
	order []uuid.UUID
}

var _ ledger.SubstanceLookup = (*Catalog)(nil)

// New returns an empty catalog
func New() *Catalog {
	return &Catalog{byID: make(map[uuid.UUID]entry)}
}

// NewWithPresets returns a catalog holding the built-in substances
func NewWithPresets() *Catalog {
	c := New()
	for _, s := range Presets() {
		// presets are valid and unique by construction
		_ = c.Add(s)
	}
	return c
}

// Presets returns the built-in substances
func Presets() []entities.Substance {
	return []entities.Substance{
		preset("Testosterone Enanthate", entities.CategoryTestosterone, 168, 250, 300, 600),
		preset("Testosterone Cypionate", entities.CategoryTestosterone, 192, 200, 300, 600),
		preset("Nandrolone Decanoate", entities.CategoryNandrolone, 360, 200, 200, 400),
	}
}

func preset(name string, category entities.Category, halfLife, concentration, min, max float64) entities.Substance {
	return entities.Substance{
		ID:                StableID(name),
		Name:              name,
		Category:          category,
		HalfLifeHours:     halfLife,
		ConcentrationMgML: concentration,
		RecommendedDosage: &entities.DosageRange{Min: min, Max: max},
	}
}

// Add validates s and inserts it. Identities and folded names must be unique.
func (c *Catalog) Add(s entities.Substance) error {
	if s.ID == uuid.Nil {
		return fmt.Errorf("substance %q has no identity: %w", s.Name, entities.ErrInvalidParameter)
	}
	if err := s.Validate(); err != nil {
		return err
	}

	norm := normalize(s.Name)

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.byID[s.ID]; exists {
		return fmt.Errorf("substance %s already registered: %w", s.ID, entities.ErrInvalidParameter)
	}
	for _, e := range c.byID {
		if e.normalized == norm {
			return fmt.Errorf("substance named %q already registered: %w", s.Name, entities.ErrInvalidParameter)
		}
	}

	c.byID[s.ID] = entry{substance: s, normalized: norm}
	c.order = append(c.order, s.ID)
	return nil
}

// Substance implements ledger.SubstanceLookup
func (c *Catalog) Substance(id uuid.UUID) (entities.Substance, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.byID[id]
	return e.substance, ok
}

// Get is Substance with an ErrNotFound error instead of a flag
func (c *Catalog) Get(id uuid.UUID) (entities.Substance, error) {
	s, ok := c.Substance(id)
	if !ok {
		return entities.Substance{}, fmt.Errorf("substance %s: %w", id, entities.ErrNotFound)
	}
	return s, nil
}

// FindByName matches a name ignoring case and accents
func (c *Catalog) FindByName(name string) (entities.Substance, bool) {
	norm := normalize(name)

	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, id := range c.order {
		if e := c.byID[id]; e.normalized == norm {
			return e.substance, true
		}
	}
	return entities.Substance{}, false
}

// Search returns substances whose folded name contains query, in insertion order
func (c *Catalog) Search(query string) []entities.Substance {
	norm := normalize(query)

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := []entities.Substance{}
	for _, id := range c.order {
		if e := c.byID[id]; containsFolded(e.normalized, norm) {
			out = append(out, e.substance)
		}
	}
	return out
}

// All returns every substance in insertion order
func (c *Catalog) All() []entities.Substance {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]entities.Substance, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id].substance)
	}
	return out
}

// Len returns the number of substances
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}
