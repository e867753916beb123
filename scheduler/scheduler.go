// Package scheduler rebuilds the cycle dashboard on a fixed interval and watches for
// stale dashboards. Residual levels decay with wall-clock time, so the dashboard has to
// be recomputed even when no administration is logged.
package scheduler

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/giygas/cycletracker/aggregation"
	"github.com/giygas/cycletracker/interfaces"
	"github.com/giygas/cycletracker/ledger"
	"github.com/giygas/cycletracker/logging"
	"github.com/giygas/cycletracker/metrics"
	"github.com/go-co-op/gocron"
)

// Compile-time check to ensure Scheduler implements Scheduler interface
var _ interfaces.Scheduler = (*Scheduler)(nil)

// Scheduler handles dashboard refreshes and staleness monitoring using dependency injection
type Scheduler struct {
	dataStore interfaces.DataStore
	lookup    ledger.SubstanceLookup
	interval  time.Duration
	stepHours float64
	clock     func() time.Time
	scheduler *gocron.Scheduler

	// pending is set by every RefreshNow call; the caller holding the refresh flag
	// keeps rebuilding until it is clear
	pending atomic.Bool

	monitorInterval time.Duration
	done            chan struct{}
	wg              sync.WaitGroup
	stopOnce        sync.Once
}

// Option configures a Scheduler
type Option func(*Scheduler)

// WithClock sets the time at which dashboards are evaluated
func WithClock(clock func() time.Time) Option {
	return func(s *Scheduler) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithMonitorInterval sets how often dashboard staleness is checked
func WithMonitorInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.monitorInterval = d
		}
	}
}

// NewScheduler creates a scheduler refreshing every interval with series sampled every stepHours
func NewScheduler(dataStore interfaces.DataStore, lookup ledger.SubstanceLookup, interval time.Duration, stepHours float64, opts ...Option) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	s := &Scheduler{
		dataStore:       dataStore,
		lookup:          lookup,
		interval:        interval,
		stepHours:       stepHours,
		clock:           time.Now,
		scheduler:       gocron.NewScheduler(time.Local),
		monitorInterval: time.Hour,
		done:            make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start performs an initial refresh, schedules periodic refreshes and starts the staleness monitor
func (s *Scheduler) Start() error {
	if err := s.RefreshNow(); err != nil {
		logging.Error("Failed to build initial dashboard", "error", err)
		return fmt.Errorf("initial dashboard refresh failed: %w", err)
	}

	_, err := s.scheduler.Every(s.interval).WaitForSchedule().SingletonMode().Do(func() {
		if err := s.RefreshNow(); err != nil {
			logging.Error("Failed to refresh dashboard", "error", err)
		}
	})
	if err != nil {
		logging.Error("Failed to schedule refreshes", "error", err)
		return fmt.Errorf("failed to schedule refreshes: %w", err)
	}

	s.scheduler.StartAsync()
	s.startStalenessMonitor()

	return nil
}

// Stop stops the scheduler and the staleness monitor. It is safe to call more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		s.scheduler.Stop()
		close(s.done)
	})
	s.wg.Wait()
}

// RefreshNow rebuilds the dashboard from the published snapshot. When no cycle is
// open the dashboard is cleared. A call that arrives while another refresh is running
// returns at once; the running refresh then rebuilds again before it finishes.
func (s *Scheduler) RefreshNow() error {
	s.pending.Store(true)
	for s.pending.Load() {
		if !s.dataStore.BeginRefresh() {
			logging.Debug("Dashboard refresh already in progress, rebuild queued")
			return nil
		}
		s.pending.Store(false)
		err := s.refresh()
		s.dataStore.EndRefresh()
		if err != nil {
			return err
		}
	}
	return nil
}

// refresh builds and publishes one dashboard (caller holds the refresh flag)
func (s *Scheduler) refresh() error {
	start := time.Now()
	snap := s.dataStore.GetSnapshot()

	active, ok := snap.Active()
	if !ok {
		metrics.OpenCycles.Set(0)
		metrics.SetResidualLevels(nil)
		s.dataStore.ClearDashboard()
		logging.Debug("No open cycle, dashboard cleared", "version", snap.Version)
		return nil
	}
	metrics.OpenCycles.Set(1)

	engine := aggregation.New(active, s.lookup, aggregation.WithClock(s.clock))
	dashboard, err := engine.Dashboard(aggregation.RangeWeek, s.stepHours)
	if err != nil {
		return fmt.Errorf("build dashboard for cycle %s: %w", active.ID, err)
	}

	dashboard.SnapshotVersion = snap.Version
	s.dataStore.UpdateDashboard(dashboard)
	metrics.SetResidualLevels(dashboard.SerumLevels)

	elapsed := time.Since(start)
	metrics.DashboardRefreshDuration.Observe(elapsed.Seconds())
	logging.Debug("Dashboard refreshed",
		"cycle_id", active.ID,
		"version", snap.Version,
		"administrations", len(active.Administrations),
		"duration", elapsed.String(),
	)

	return nil
}

// startStalenessMonitor warns when the dashboard has not been rebuilt for two intervals
func (s *Scheduler) startStalenessMonitor() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.monitorInterval)
		defer ticker.Stop()

		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				s.checkStaleness()
			}
		}
	}()
}

// checkStaleness reports whether the dashboard is older than two refresh intervals
func (s *Scheduler) checkStaleness() bool {
	last := s.dataStore.GetLastRefreshed()
	if last.IsZero() {
		return false
	}
	if age := time.Since(last); age > 2*s.interval {
		logging.Warn("Dashboard hasn't been refreshed recently", "age", age.Round(time.Second).String(), "interval", s.interval.String())
		return true
	}
	return false
}
