package storage

import (
	"fmt"

	"github.com/giygas/cycletracker/config"
	"github.com/giygas/cycletracker/interfaces"
)

// Open returns the store selected by the configuration
func Open(cfg *config.Config) (interfaces.CycleStore, error) {
	switch cfg.StorageBackend {
	case config.StorageFile, "":
		return NewFileStore(cfg.DataPath), nil
	case config.StorageSQLite:
		return NewSQLiteStore(cfg.DataPath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
}
