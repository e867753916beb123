// Package interfaces defines the seams between the cycle engine and its collaborators
// (persistence, scheduling, health reporting and HTTP presentation).
package interfaces

import (
	"context"
	"net/http"
	"time"

	"github.com/giygas/cycletracker/aggregation"
	"github.com/giygas/cycletracker/cycles"
	"github.com/giygas/cycletracker/entities"
	"github.com/giygas/cycletracker/ledger"
	"github.com/google/uuid"
)

// CycleStore persists the whole cycle collection as one document.
// Load returns an empty list when nothing has been saved yet.
type CycleStore interface {
	Load(ctx context.Context) ([]ledger.Cycle, error)
	Save(ctx context.Context, cycles []ledger.Cycle) error
	Close() error
}

// PersistenceStatus is the outcome of the most recent save
type PersistenceStatus struct {
	LastSaved   time.Time
	LastFailure time.Time
	LastError   string
	Failures    uint64
}

// Healthy reports whether the most recent save attempt succeeded
func (p PersistenceStatus) Healthy() bool {
	return p.LastFailure.IsZero() || p.LastSaved.After(p.LastFailure)
}

// DataStore publishes the latest cycle snapshot and dashboard to readers without locks
type DataStore interface {
	GetSnapshot() cycles.Snapshot
	GetDashboard() (aggregation.Dashboard, bool)
	GetLastRefreshed() time.Time
	IsRefreshing() bool
	GetServerStartTime() time.Time
	GetPersistenceStatus() PersistenceStatus

	UpdateSnapshot(snap cycles.Snapshot)
	UpdateDashboard(d aggregation.Dashboard)
	ClearDashboard()
	RecordPersistence(err error, at time.Time)
	BeginRefresh() bool
	EndRefresh()
}

// CycleService is the mutation and query surface of the cycle manager
type CycleService interface {
	StartNewCycle(name string, start time.Time) ledger.Cycle
	EndCurrentCycle() (ledger.Cycle, bool)
	LogAdministration(substance entities.Substance, dose float64, site entities.Site, date time.Time, notes string) (entities.Administration, error)
	RemoveAdministration(id uuid.UUID) bool
	ActiveCycle() (ledger.Cycle, bool)
	Cycle(id uuid.UUID) (ledger.Cycle, error)
	Cycles() []ledger.Cycle
	Snapshot() cycles.Snapshot
}

// SubstanceCatalog resolves the substances administrations refer to
type SubstanceCatalog interface {
	ledger.SubstanceLookup
	Get(id uuid.UUID) (entities.Substance, error)
	FindByName(name string) (entities.Substance, bool)
	Search(query string) []entities.Substance
	All() []entities.Substance
	Add(s entities.Substance) error
}

// Scheduler defines the contract for job scheduling and health monitoring.
type Scheduler interface {
	Start() error
	Stop()
}

// HTTPHandler defines the contract for HTTP request handlers.
type HTTPHandler interface {
	ListCycles(w http.ResponseWriter, r *http.Request)
	GetCycle(w http.ResponseWriter, r *http.Request)
	GetActiveCycle(w http.ResponseWriter, r *http.Request)
	StartCycle(w http.ResponseWriter, r *http.Request)
	EndCycle(w http.ResponseWriter, r *http.Request)
	LogAdministration(w http.ResponseWriter, r *http.Request)
	RemoveAdministration(w http.ResponseWriter, r *http.Request)

	ResidualLevels(w http.ResponseWriter, r *http.Request)
	SerumLevelSeries(w http.ResponseWriter, r *http.Request)
	WeeklyAverages(w http.ResponseWriter, r *http.Request)
	TotalDosages(w http.ResponseWriter, r *http.Request)
	SiteRotation(w http.ResponseWriter, r *http.Request)
	RecommendedSite(w http.ResponseWriter, r *http.Request)
	Dashboard(w http.ResponseWriter, r *http.Request)
	Calendar(w http.ResponseWriter, r *http.Request)
	History(w http.ResponseWriter, r *http.Request)

	ListSubstances(w http.ResponseWriter, r *http.Request)
	GetSubstance(w http.ResponseWriter, r *http.Request)
	AddSubstance(w http.ResponseWriter, r *http.Request)
	ValidateDosage(w http.ResponseWriter, r *http.Request)

	HealthCheck(w http.ResponseWriter, r *http.Request)
}

// HealthChecker defines the contract for health check functionality.
type HealthChecker interface {
	// HealthCheck returns current system health status
	HealthCheck() (status string, details map[string]any, err error)

	// CalculateNextRefresh returns the next scheduled dashboard refresh
	CalculateNextRefresh() time.Time
}

// DataValidator checks and parses raw request input
type DataValidator interface {
	ValidateInput(input string) error
	ValidateNotes(notes string) error
	ValidateUUID(input string) (uuid.UUID, error)
	ValidateSite(input string) (entities.Site, error)
	ValidateDose(input string) (float64, error)
	ValidateTime(input string, fallback time.Time) (time.Time, error)
	ValidateStep(input string, fallback float64) (float64, error)
	ValidateTimeRange(input string) (aggregation.TimeRange, error)
}
