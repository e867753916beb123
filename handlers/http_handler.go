// Package handlers provides the HTTP handlers of the cycle tracker API: cycle lifecycle,
// administration logging, per-cycle analytics, the dashboard and the substance catalog.
// Reads are served from the published snapshot; mutations go through the cycle service.
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/giygas/cycletracker/aggregation"
	"github.com/giygas/cycletracker/cycles"
	"github.com/giygas/cycletracker/entities"
	"github.com/giygas/cycletracker/interfaces"
	"github.com/giygas/cycletracker/ledger"
	"github.com/giygas/cycletracker/logging"
	"github.com/giygas/cycletracker/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ActiveCycleParam is accepted wherever a cycle id is expected
const ActiveCycleParam = "active"

// Compile-time check to ensure HTTPHandlerImpl implements HTTPHandler
var _ interfaces.HTTPHandler = (*HTTPHandlerImpl)(nil)

// HTTPHandlerImpl implements the interfaces.HTTPHandler interface
type HTTPHandlerImpl struct {
	service     interfaces.CycleService
	catalog     interfaces.SubstanceCatalog
	dataStore   interfaces.DataStore
	validator   interfaces.DataValidator
	health      interfaces.HealthChecker
	seriesCache *cache.Cache
	stepHours   float64
	maxSamples  int
	clock       func() time.Time
}

// Option configures an HTTPHandlerImpl
type Option func(*HTTPHandlerImpl)

// WithClock sets the time used as "now" by analytics endpoints
func WithClock(clock func() time.Time) Option {
	return func(h *HTTPHandlerImpl) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithStepHours sets the default series step
func WithStepHours(step float64) Option {
	return func(h *HTTPHandlerImpl) {
		if step > 0 {
			h.stepHours = step
		}
	}
}

// WithSeriesCacheTTL sets how long computed series are cached
func WithSeriesCacheTTL(ttl time.Duration) Option {
	return func(h *HTTPHandlerImpl) {
		h.seriesCache = cache.New(ttl, 2*ttl)
	}
}

// WithMaxSamples bounds the number of points a single series request may produce
func WithMaxSamples(n int) Option {
	return func(h *HTTPHandlerImpl) {
		if n > 0 {
			h.maxSamples = n
		}
	}
}

// NewHTTPHandler creates a new HTTP handler with injected dependencies
func NewHTTPHandler(
	service interfaces.CycleService,
	catalog interfaces.SubstanceCatalog,
	dataStore interfaces.DataStore,
	validator interfaces.DataValidator,
	health interfaces.HealthChecker,
	opts ...Option,
) *HTTPHandlerImpl {
	h := &HTTPHandlerImpl{
		service:     service,
		catalog:     catalog,
		dataStore:   dataStore,
		validator:   validator,
		health:      health,
		seriesCache: cache.New(5*time.Minute, 10*time.Minute),
		stepHours:   6,
		maxSamples:  5000,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// engine returns an aggregation engine over cycle evaluated at the handler's clock
func (h *HTTPHandlerImpl) engine(cycle ledger.Cycle) *aggregation.Engine {
	return aggregation.New(cycle, h.catalog, aggregation.WithClock(h.clock))
}

// resolveCycle finds the cycle named by the {id} URL parameter in the published snapshot.
// "active" selects the open cycle; reading a missing cycle is ErrNotFound either way.
func (h *HTTPHandlerImpl) resolveCycle(r *http.Request) (ledger.Cycle, cycles.Snapshot, error) {
	snap := h.dataStore.GetSnapshot()
	raw := chi.URLParam(r, "id")

	if raw == "" || strings.EqualFold(raw, ActiveCycleParam) {
		if c, ok := snap.Active(); ok {
			return c, snap, nil
		}
		return ledger.Cycle{}, snap, fmt.Errorf("no active cycle: %w", entities.ErrNotFound)
	}

	id, err := h.validator.ValidateUUID(raw)
	if err != nil {
		return ledger.Cycle{}, snap, err
	}
	for _, c := range snap.Cycles {
		if c.ID == id {
			return c, snap, nil
		}
	}
	return ledger.Cycle{}, snap, fmt.Errorf("cycle %s: %w", id, entities.ErrNotFound)
}

// CycleSummary is the list view of a cycle
type CycleSummary struct {
	ID              uuid.UUID  `json:"id"`
	Name            string     `json:"name"`
	State           string     `json:"state"`
	StartDate       time.Time  `json:"startDate"`
	EndDate         *time.Time `json:"endDate"`
	DurationWeeks   int        `json:"durationWeeks"`
	Administrations int        `json:"administrations"`
}

// ListCycles returns every cycle in creation order, optionally filtered with ?state=open|closed
func (h *HTTPHandlerImpl) ListCycles(w http.ResponseWriter, r *http.Request) {
	state := strings.ToLower(r.URL.Query().Get("state"))
	if state != "" && state != ledger.StateOpen.String() && state != ledger.StateClosed.String() {
		RespondWithError(w, http.StatusBadRequest, "state must be open or closed")
		return
	}

	snap := h.dataStore.GetSnapshot()
	now := h.clock()
	summaries := make([]CycleSummary, 0, len(snap.Cycles))
	for _, c := range snap.Cycles {
		if state != "" && c.State().String() != state {
			continue
		}
		summaries = append(summaries, CycleSummary{
			ID:              c.ID,
			Name:            c.Name,
			State:           c.State().String(),
			StartDate:       c.StartDate,
			EndDate:         c.EndDate,
			DurationWeeks:   c.DurationInWeeks(now),
			Administrations: len(c.Administrations),
		})
	}

	RespondWithJSON(w, http.StatusOK, summaries)
}

// GetCycle returns a cycle with its administrations
func (h *HTTPHandlerImpl) GetCycle(w http.ResponseWriter, r *http.Request) {
	cycle, _, err := h.resolveCycle(r)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, cycle)
}

// GetActiveCycle returns the open cycle, or 404 when none is open
func (h *HTTPHandlerImpl) GetActiveCycle(w http.ResponseWriter, r *http.Request) {
	cycle, ok := h.dataStore.GetSnapshot().Active()
	if !ok {
		RespondWithError(w, http.StatusNotFound, "No active cycle")
		return
	}
	RespondWithJSON(w, http.StatusOK, cycle)
}

type startCycleRequest struct {
	Name      string `json:"name"`
	StartDate string `json:"startDate"`
}

// StartCycle closes the open cycle, if any, and opens a new one
func (h *HTTPHandlerImpl) StartCycle(w http.ResponseWriter, r *http.Request) {
	var req startCycleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithDomainError(w, err)
		return
	}

	name := strings.TrimSpace(req.Name)
	if err := h.validator.ValidateInput(name); err != nil {
		respondWithDomainError(w, fmt.Errorf("name: %w", err))
		return
	}
	start, err := h.validator.ValidateTime(req.StartDate, h.clock())
	if err != nil {
		respondWithDomainError(w, fmt.Errorf("startDate: %w", err))
		return
	}

	cycle := h.service.StartNewCycle(name, start)
	logging.Info("Cycle started via API", "cycle_id", cycle.ID.String(), "name", name)
	RespondWithJSON(w, http.StatusCreated, cycle)
}

// EndCycle closes the open cycle and returns it. Without one it responds 409.
func (h *HTTPHandlerImpl) EndCycle(w http.ResponseWriter, r *http.Request) {
	closed, ok := h.service.EndCurrentCycle()
	if !ok {
		respondWithDomainError(w, fmt.Errorf("cannot end cycle: %w", entities.ErrNoActiveCycle))
		return
	}
	RespondWithJSON(w, http.StatusOK, closed)
}

type logAdministrationRequest struct {
	SubstanceID string      `json:"substanceId"`
	Substance   string      `json:"substance"`
	Dosage      json.Number `json:"dosage"`
	Site        string      `json:"site"`
	Date        string      `json:"date"`
	Notes       string      `json:"notes"`
}

// AdministrationResponse echoes a logged administration with derived figures
type AdministrationResponse struct {
	Administration      entities.Administration `json:"administration"`
	Substance           string                  `json:"substance"`
	VolumeML            float64                 `json:"volumeMl"`
	WithinRecommended   bool                    `json:"withinRecommendedDosage"`
	RecommendedSiteNext entities.Site           `json:"recommendedSiteNext"`
}

// resolveSubstance finds a substance by id or, failing that, by name
func (h *HTTPHandlerImpl) resolveSubstance(id, name string) (entities.Substance, error) {
	if strings.TrimSpace(id) != "" {
		parsed, err := h.validator.ValidateUUID(id)
		if err != nil {
			return entities.Substance{}, err
		}
		return h.catalog.Get(parsed)
	}
	if strings.TrimSpace(name) == "" {
		return entities.Substance{}, fmt.Errorf("substanceId or substance is required: %w", entities.ErrInvalidParameter)
	}
	if err := h.validator.ValidateInput(name); err != nil {
		return entities.Substance{}, err
	}
	s, ok := h.catalog.FindByName(name)
	if !ok {
		return entities.Substance{}, fmt.Errorf("substance %q: %w", name, entities.ErrNotFound)
	}
	return s, nil
}

// LogAdministration records a dose against the open cycle
func (h *HTTPHandlerImpl) LogAdministration(w http.ResponseWriter, r *http.Request) {
	var req logAdministrationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithDomainError(w, err)
		return
	}

	substance, err := h.resolveSubstance(req.SubstanceID, req.Substance)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	dose, err := h.validator.ValidateDose(req.Dosage.String())
	if err != nil {
		respondWithDomainError(w, fmt.Errorf("dosage: %w", err))
		return
	}
	site, err := h.validator.ValidateSite(req.Site)
	if err != nil {
		respondWithDomainError(w, fmt.Errorf("site: %w", err))
		return
	}
	date, err := h.validator.ValidateTime(req.Date, h.clock())
	if err != nil {
		respondWithDomainError(w, fmt.Errorf("date: %w", err))
		return
	}
	if err := h.validator.ValidateNotes(req.Notes); err != nil {
		respondWithDomainError(w, err)
		return
	}

	a, err := h.service.LogAdministration(substance, dose, site, date, req.Notes)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	metrics.AdministrationsLogged.WithLabelValues(string(site)).Inc()

	resp := AdministrationResponse{
		Administration:    a,
		Substance:         substance.Name,
		VolumeML:          a.Volume(substance),
		WithinRecommended: aggregation.ValidateDosage(dose, substance),
	}
	if active, ok := h.service.ActiveCycle(); ok {
		resp.RecommendedSiteNext = h.engine(active).RecommendedSite()
	}
	RespondWithJSON(w, http.StatusCreated, resp)
}

// RemoveAdministration deletes an administration from the open cycle.
// Unknown identities are a no-op, so repeating the request also answers 204.
func (h *HTTPHandlerImpl) RemoveAdministration(w http.ResponseWriter, r *http.Request) {
	id, err := h.validator.ValidateUUID(chi.URLParam(r, "administrationId"))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	if !h.service.RemoveAdministration(id) {
		logging.Debug("Administration not in the active cycle, nothing removed", "administration_id", id.String())
	}
	w.WriteHeader(http.StatusNoContent)
}
