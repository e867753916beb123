// Package data publishes the latest cycle snapshot and dashboard through atomic values,
// so HTTP readers and the scheduler never wait on the cycle manager's lock.
package data

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/giygas/cycletracker/aggregation"
	"github.com/giygas/cycletracker/cycles"
	"github.com/giygas/cycletracker/interfaces"
	"github.com/giygas/cycletracker/ledger"
	"github.com/giygas/cycletracker/logging"
)

// Compile-time check to ensure DataContainer implements DataStore
var _ interfaces.DataStore = (*DataContainer)(nil)

// dashboardSlot distinguishes "no dashboard" from a zero Dashboard
type dashboardSlot struct {
	dashboard aggregation.Dashboard
	present   bool
}

// DataContainer holds published state with atomic pointers for zero-downtime swaps
type DataContainer struct {
	snapshot        atomic.Value // *cycles.Snapshot
	dashboard       atomic.Value // dashboardSlot
	lastRefreshed   atomic.Value // time.Time
	refreshing      atomic.Bool
	serverStartTime atomic.Value // time.Time

	persistMu   sync.RWMutex
	persistence interfaces.PersistenceStatus
}

// NewDataContainer creates a container with an empty snapshot and no dashboard
func NewDataContainer() *DataContainer {
	dc := &DataContainer{}
	dc.snapshot.Store(&cycles.Snapshot{Cycles: []ledger.Cycle{}})
	dc.dashboard.Store(dashboardSlot{})
	dc.lastRefreshed.Store(time.Time{})
	dc.serverStartTime.Store(time.Time{})
	return dc
}

// GetSnapshot returns the last published snapshot. Callers must treat it as read-only.
func (dc *DataContainer) GetSnapshot() cycles.Snapshot {
	if v := dc.snapshot.Load(); v != nil {
		if snap, ok := v.(*cycles.Snapshot); ok && snap != nil {
			return *snap
		}
	}

	logging.Warn("Cycle snapshot is empty or invalid")
	return cycles.Snapshot{Cycles: []ledger.Cycle{}}
}

// UpdateSnapshot publishes snap unless a newer version is already published
func (dc *DataContainer) UpdateSnapshot(snap cycles.Snapshot) {
	for {
		current := dc.snapshot.Load()
		if cur, ok := current.(*cycles.Snapshot); ok && cur != nil && cur.Version > snap.Version {
			logging.Debug("Ignoring stale snapshot", "version", snap.Version, "published", cur.Version)
			return
		}
		if dc.snapshot.CompareAndSwap(current, &snap) {
			return
		}
	}
}

// GetDashboard returns the last computed dashboard, if any
func (dc *DataContainer) GetDashboard() (aggregation.Dashboard, bool) {
	if v := dc.dashboard.Load(); v != nil {
		if slot, ok := v.(dashboardSlot); ok {
			return slot.dashboard, slot.present
		}
	}
	return aggregation.Dashboard{}, false
}

// UpdateDashboard publishes d and records the refresh time
func (dc *DataContainer) UpdateDashboard(d aggregation.Dashboard) {
	dc.dashboard.Store(dashboardSlot{dashboard: d, present: true})
	dc.lastRefreshed.Store(time.Now())
}

// ClearDashboard drops the dashboard (no open cycle) and records the refresh time
func (dc *DataContainer) ClearDashboard() {
	dc.dashboard.Store(dashboardSlot{})
	dc.lastRefreshed.Store(time.Now())
}

// GetLastRefreshed returns when the dashboard was last rebuilt
func (dc *DataContainer) GetLastRefreshed() time.Time {
	if v := dc.lastRefreshed.Load(); v != nil {
		if t, ok := v.(time.Time); ok {
			return t
		}
	}

	logging.Warn("Could not get the last refreshed value")
	return time.Time{}
}

// IsRefreshing returns true while a dashboard rebuild is in progress
func (dc *DataContainer) IsRefreshing() bool {
	return dc.refreshing.Load()
}

// BeginRefresh marks the start of a rebuild.
// Returns true if the rebuild can proceed, false if another one is in progress
func (dc *DataContainer) BeginRefresh() bool {
	return dc.refreshing.CompareAndSwap(false, true)
}

// EndRefresh marks the end of a rebuild
func (dc *DataContainer) EndRefresh() {
	dc.refreshing.Store(false)
}

// SetServerStartTime sets the server start time
func (dc *DataContainer) SetServerStartTime(startTime time.Time) {
	dc.serverStartTime.Store(startTime)
}

// GetServerStartTime returns the server start time
func (dc *DataContainer) GetServerStartTime() time.Time {
	if v := dc.serverStartTime.Load(); v != nil {
		if startTime, ok := v.(time.Time); ok {
			return startTime
		}
	}

	logging.Warn("Could not get the server start time value")
	return time.Time{}
}

// RecordPersistence records the outcome of a save attempt
func (dc *DataContainer) RecordPersistence(err error, at time.Time) {
	dc.persistMu.Lock()
	defer dc.persistMu.Unlock()

	if err == nil {
		dc.persistence.LastSaved = at
		return
	}
	dc.persistence.LastFailure = at
	dc.persistence.LastError = err.Error()
	dc.persistence.Failures++
}

// GetPersistenceStatus returns a copy of the persistence status
func (dc *DataContainer) GetPersistenceStatus() interfaces.PersistenceStatus {
	dc.persistMu.RLock()
	defer dc.persistMu.RUnlock()
	return dc.persistence
}
