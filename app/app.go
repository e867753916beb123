// Package app wires the cycle tracker together: configuration, catalog, storage,
// the cycle manager, the published data container, the refresh scheduler and the HTTP server.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/giygas/cycletracker/config"
	"github.com/giygas/cycletracker/cycles"
	"github.com/giygas/cycletracker/data"
	"github.com/giygas/cycletracker/handlers"
	"github.com/giygas/cycletracker/health"
	"github.com/giygas/cycletracker/interfaces"
	"github.com/giygas/cycletracker/ledger"
	"github.com/giygas/cycletracker/logging"
	"github.com/giygas/cycletracker/metrics"
	"github.com/giygas/cycletracker/scheduler"
	"github.com/giygas/cycletracker/server"
	"github.com/giygas/cycletracker/storage"
	"github.com/giygas/cycletracker/validation"
)

const (
	saveTimeout     = 5 * time.Second
	shutdownTimeout = 30 * time.Second
)

// App owns every long-lived component of a running tracker
type App struct {
	cfg       *config.Config
	catalog   *FileBackedCatalog
	store     interfaces.CycleStore
	manager   *cycles.Manager
	container *data.DataContainer
	scheduler *scheduler.Scheduler
	server    *server.Server
}

// LoadCycles reads the stored cycles. A corrupt document is logged and replaced by an
// empty history so the tracker can start; the next save overwrites it.
func LoadCycles(ctx context.Context, store interfaces.CycleStore) ([]ledger.Cycle, error) {
	loaded, err := store.Load(ctx)
	if errors.Is(err, storage.ErrCorrupt) {
		logging.Warn("Stored cycles are corrupt, starting with an empty history", "error", err)
		return []ledger.Cycle{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cycles: %w", err)
	}
	return loaded, nil
}

// New builds the application without starting any goroutine
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	cat, err := OpenCatalog(cfg)
	if err != nil {
		return nil, err
	}

	store, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	loaded, err := LoadCycles(ctx, store)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	warnUnresolved(loaded, cat)

	a := &App{
		cfg:       cfg,
		catalog:   cat,
		store:     store,
		manager:   cycles.NewManager(loaded),
		container: data.NewDataContainer(),
	}
	a.container.SetServerStartTime(time.Now())
	a.container.UpdateSnapshot(a.manager.Snapshot())

	interval := time.Duration(cfg.RefreshIntervalMinutes) * time.Minute
	a.scheduler = scheduler.NewScheduler(a.container, cat, interval, cfg.SeriesStepHours)

	a.manager.Subscribe(a.onSnapshot)

	handler := handlers.NewHTTPHandler(
		a.manager,
		cat,
		a.container,
		validation.NewDataValidator(),
		health.NewHealthChecker(a.container, interval),
		handlers.WithStepHours(cfg.SeriesStepHours),
	)
	a.server = server.NewServer(cfg, handler)

	snap := a.container.GetSnapshot()
	logging.Info("Cycle tracker ready",
		"cycles", len(snap.Cycles),
		"substances", cat.Len(),
		"storage", cfg.StorageBackend,
		"data_path", cfg.DataPath)

	return a, nil
}

// onSnapshot publishes, persists and re-aggregates after every mutation
func (a *App) onSnapshot(snap cycles.Snapshot) {
	a.container.UpdateSnapshot(snap)

	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	err := a.store.Save(ctx, snap.Cycles)
	a.container.RecordPersistence(err, time.Now())
	metrics.RecordSave(err)
	if err != nil {
		logging.Error("Failed to persist cycles", "version", snap.Version, "error", err)
	}

	if err := a.scheduler.RefreshNow(); err != nil {
		logging.Warn("Dashboard refresh after mutation failed", "error", err)
	}
}

// Manager exposes the cycle service
func (a *App) Manager() *cycles.Manager { return a.manager }

// Container exposes the published state
func (a *App) Container() *data.DataContainer { return a.container }

// Catalog exposes the substance catalog
func (a *App) Catalog() *FileBackedCatalog { return a.catalog }

// Run starts the scheduler and the server and blocks until ctx is cancelled or the server fails
func (a *App) Run(ctx context.Context) error {
	if err := a.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer a.scheduler.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.server.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Close writes the final state and releases the store
func (a *App) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
	defer cancel()

	saveErr := a.store.Save(ctx, a.manager.Cycles())
	if saveErr != nil {
		logging.Error("Final save failed", "error", saveErr)
	}
	return errors.Join(saveErr, a.store.Close())
}
