package app

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/giygas/cycletracker/catalog"
	"github.com/giygas/cycletracker/config"
	"github.com/giygas/cycletracker/entities"
	"github.com/giygas/cycletracker/interfaces"
	"github.com/giygas/cycletracker/ledger"
	"github.com/giygas/cycletracker/logging"
	"github.com/google/uuid"
)

var _ interfaces.SubstanceCatalog = (*FileBackedCatalog)(nil)

// FileBackedCatalog writes the catalog back to its YAML file after every addition
type FileBackedCatalog struct {
	*catalog.Catalog
	path string
}

// Add registers s and rewrites the catalog file. A failed write is logged;
// the substance stays registered for this process.
func (c *FileBackedCatalog) Add(s entities.Substance) error {
	if err := c.Catalog.Add(s); err != nil {
		return err
	}
	if c.path == "" {
		return nil
	}
	if err := c.SaveFile(c.path); err != nil {
		logging.Error("Failed to persist substance catalog", "path", c.path, "error", err)
	}
	return nil
}

// OpenCatalog returns the presets plus the substances of the catalog file. Without
// cfg.CatalogPath the file sits next to the cycles document.
// A missing catalog file is created on the first addition.
func OpenCatalog(cfg *config.Config) (*FileBackedCatalog, error) {
	path := cfg.CatalogPath
	if path == "" {
		path = config.DefaultCatalogPath(cfg.DataPath)
	}
	c := &FileBackedCatalog{Catalog: catalog.NewWithPresets(), path: path}

	if _, err := c.LoadFile(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logging.Info("Substance catalog file not found, using presets", "path", path)
			return c, nil
		}
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return c, nil
}

// Path returns the catalog file the substances are written to
func (c *FileBackedCatalog) Path() string { return c.path }

// warnUnresolved logs the administrations whose substance the catalog does not know.
// Their residual contributions are skipped until the substance is registered again.
func warnUnresolved(cycles []ledger.Cycle, lookup ledger.SubstanceLookup) int {
	missing := map[uuid.UUID]int{}
	for _, c := range cycles {
		for _, a := range c.Administrations {
			if _, ok := lookup.Substance(a.SubstanceID); !ok {
				missing[a.SubstanceID]++
			}
		}
	}
	for id, n := range missing {
		logging.Warn("Administrations refer to a substance missing from the catalog",
			"substance_id", id.String(), "administrations", n)
	}
	return len(missing)
}
