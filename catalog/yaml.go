package catalog

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/giygas/cycletracker/entities"
	"github.com/giygas/cycletracker/logging"
	"github.com/giygas/cycletracker/storage"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// fileDocument is the on-disk shape of a catalog file
type fileDocument struct {
	Substances []fileSubstance `yaml:"substances"`
}

type fileSubstance struct {
	ID                string                `yaml:"id,omitempty"`
	Name              string                `yaml:"name"`
	Type              string                `yaml:"type"`
	HalfLife          float64               `yaml:"halfLife"`
	Concentration     float64               `yaml:"concentration"`
	RecommendedDosage *entities.DosageRange `yaml:"recommendedDosage,omitempty"`
	Notes             string                `yaml:"notes,omitempty"`
}

func (f fileSubstance) toSubstance() (entities.Substance, error) {
	id := StableID(f.Name)
	if f.ID != "" {
		parsed, err := uuid.Parse(f.ID)
		if err != nil {
			return entities.Substance{}, fmt.Errorf("substance %q has an invalid id %q: %w", f.Name, f.ID, entities.ErrInvalidParameter)
		}
		id = parsed
	}

	s, err := entities.NewSubstance(f.Name, entities.ParseCategory(f.Type), f.HalfLife, f.Concentration, f.RecommendedDosage, f.Notes)
	if err != nil {
		return entities.Substance{}, err
	}
	s.ID = id
	return s, nil
}

func fromSubstance(s entities.Substance) fileSubstance {
	return fileSubstance{
		ID:                s.ID.String(),
		Name:              s.Name,
		Type:              string(s.Category),
		HalfLife:          s.HalfLifeHours,
		Concentration:     s.ConcentrationMgML,
		RecommendedDosage: s.RecommendedDosage,
		Notes:             s.Notes,
	}
}

// LoadYAML adds every substance of a catalog document. Entries whose identity or name is
// already registered are skipped; an invalid entry aborts the load. It returns how many were added.
func (c *Catalog) LoadYAML(r io.Reader) (int, error) {
	var doc fileDocument
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return 0, fmt.Errorf("failed to decode catalog: %w", err)
	}

	added := 0
	for i, raw := range doc.Substances {
		s, err := raw.toSubstance()
		if err != nil {
			return added, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		if _, exists := c.Substance(s.ID); exists {
			logging.Debug("Skipping catalog entry already registered", "substance_id", s.ID.String(), "name", s.Name)
			continue
		}
		if _, exists := c.FindByName(s.Name); exists {
			logging.Warn("Skipping catalog entry with a duplicate name", "name", s.Name)
			continue
		}
		if err := c.Add(s); err != nil {
			return added, fmt.Errorf("catalog entry %d: %w", i, err)
		}
		added++
	}
	return added, nil
}

// LoadFile reads a catalog document from path
func (c *Catalog) LoadFile(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", path, err)
	}
	defer f.Close()

	n, err := c.LoadYAML(f)
	if err != nil {
		return n, fmt.Errorf("load %s: %w", path, err)
	}
	logging.Info("Loaded substance catalog", "path", path, "added", n, "total", c.Len())
	return n, nil
}

// EncodeYAML encodes every substance as a catalog document
func (c *Catalog) EncodeYAML() ([]byte, error) {
	all := c.All()
	doc := fileDocument{Substances: make([]fileSubstance, 0, len(all))}
	for _, s := range all {
		doc.Substances = append(doc.Substances, fromSubstance(s))
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("marshal catalog: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("marshal catalog: %w", err)
	}
	return buf.Bytes(), nil
}

// SaveFile writes the catalog to path atomically
func (c *Catalog) SaveFile(path string) error {
	data, err := c.EncodeYAML()
	if err != nil {
		return err
	}
	if err := storage.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
