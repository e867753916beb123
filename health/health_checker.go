// Package health reports the health of the cycle tracker: dashboard freshness,
// persistence outcomes and basic runtime statistics.
package health

import (
	"math"
	"runtime"
	"time"

	"github.com/giygas/cycletracker/interfaces"
)

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Compile-time check to ensure HealthCheckerImpl implements HealthChecker
var _ interfaces.HealthChecker = (*HealthCheckerImpl)(nil)

// HealthCheckerImpl implements the interfaces.HealthChecker interface
type HealthCheckerImpl struct {
	dataStore       interfaces.DataStore
	refreshInterval time.Duration
	now             func() time.Time
}

// NewHealthChecker creates a new health checker with injected dependencies
func NewHealthChecker(dataStore interfaces.DataStore, refreshInterval time.Duration) interfaces.HealthChecker {
	if refreshInterval <= 0 {
		refreshInterval = time.Hour
	}
	return &HealthCheckerImpl{
		dataStore:       dataStore,
		refreshInterval: refreshInterval,
		now:             time.Now,
	}
}

// HealthCheck grades the service:
//   - unhealthy when an open cycle's dashboard is older than six refresh intervals
//   - degraded when it is older than two intervals, was never built, or the last save failed
//   - healthy otherwise
func (h *HealthCheckerImpl) HealthCheck() (status string, details map[string]any, err error) {
	now := h.now()
	snap := h.dataStore.GetSnapshot()
	active, hasOpen := snap.Active()
	lastRefresh := h.dataStore.GetLastRefreshed()
	refreshing := h.dataStore.IsRefreshing()
	persistence := h.dataStore.GetPersistenceStatus()

	dashboardAge := time.Duration(0)
	if !lastRefresh.IsZero() {
		dashboardAge = now.Sub(lastRefresh)
	}

	status = StatusHealthy
	switch {
	case hasOpen && !lastRefresh.IsZero() && dashboardAge > 6*h.refreshInterval:
		status = StatusUnhealthy
	case hasOpen && (lastRefresh.IsZero() || dashboardAge > 2*h.refreshInterval):
		status = StatusDegraded
	case !persistence.Healthy():
		status = StatusDegraded
	}

	administrations := 0
	if hasOpen {
		administrations = len(active.Administrations)
	}

	dataDetails := map[string]any{
		"cycles":                len(snap.Cycles),
		"open_cycle":            hasOpen,
		"administrations":       administrations,
		"snapshot_version":      snap.Version,
		"is_refreshing":         refreshing,
		"dashboard_age_minutes": math.Round(dashboardAge.Minutes()*10) / 10,
		"next_refresh":          h.CalculateNextRefresh().Format(time.RFC3339),
	}
	if !lastRefresh.IsZero() {
		dataDetails["last_refresh"] = lastRefresh.Format(time.RFC3339)
	}

	persistenceDetails := map[string]any{
		"healthy":  persistence.Healthy(),
		"failures": persistence.Failures,
	}
	if !persistence.LastSaved.IsZero() {
		persistenceDetails["last_saved"] = persistence.LastSaved.Format(time.RFC3339)
	}
	if !persistence.Healthy() {
		persistenceDetails["last_error"] = persistence.LastError
	}

	details = map[string]any{
		"data":        dataDetails,
		"persistence": persistenceDetails,
		"system":      systemDetails(h.dataStore.GetServerStartTime(), now),
	}

	return status, details, nil
}

func systemDetails(startTime, now time.Time) map[string]any {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	system := map[string]any{
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]any{
			"alloc_mb":       int(m.Alloc / 1024 / 1024),
			"total_alloc_mb": int(m.TotalAlloc / 1024 / 1024),
			"sys_mb":         int(m.Sys / 1024 / 1024),
			"num_gc":         m.NumGC,
		},
	}
	if !startTime.IsZero() {
		system["uptime"] = now.Sub(startTime).Round(time.Second).String()
	}
	return system
}

// CalculateNextRefresh returns when the scheduler is due to rebuild the dashboard next
func (h *HealthCheckerImpl) CalculateNextRefresh() time.Time {
	now := h.now()
	last := h.dataStore.GetLastRefreshed()
	if last.IsZero() {
		return now.Add(h.refreshInterval)
	}

	next := last.Add(h.refreshInterval)
	if next.Before(now) {
		return now
	}
	return next
}
