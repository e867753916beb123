package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/giygas/cycletracker/aggregation"
	"github.com/giygas/cycletracker/entities"
	"github.com/giygas/cycletracker/ledger"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// ResidualResponse is the residual amount per substance at one instant
type ResidualResponse struct {
	CycleID uuid.UUID                     `json:"cycleId"`
	At      time.Time                     `json:"at"`
	TotalMg float64                       `json:"totalMg"`
	Levels  []aggregation.SubstanceAmount `json:"levels"`
}

// ResidualLevels returns residual amounts at ?at= (default now)
func (h *HTTPHandlerImpl) ResidualLevels(w http.ResponseWriter, r *http.Request) {
	cycle, _, err := h.resolveCycle(r)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	at, err := h.validator.ValidateTime(r.URL.Query().Get("at"), h.clock())
	if err != nil {
		respondWithDomainError(w, fmt.Errorf("at: %w", err))
		return
	}

	e := h.engine(cycle)
	RespondWithJSON(w, http.StatusOK, ResidualResponse{
		CycleID: cycle.ID,
		At:      at,
		TotalMg: cycle.Administrations.TotalResidualAmount(at, h.catalog),
		Levels:  e.Amounts(e.ResidualLevelsBySubstance(at)),
	})
}

// SeriesResponse is a sampled serum level curve
type SeriesResponse struct {
	CycleID   uuid.UUID            `json:"cycleId"`
	From      time.Time            `json:"from"`
	To        time.Time            `json:"to"`
	StepHours float64              `json:"stepHours"`
	Samples   []aggregation.Sample `json:"samples"`
}

// SerumLevelSeries samples residual levels between ?from= and ?to= every ?step= hours.
// from defaults to the cycle start; to defaults to the cycle end, or now for an open cycle.
// Results are cached per snapshot version.
func (h *HTTPHandlerImpl) SerumLevelSeries(w http.ResponseWriter, r *http.Request) {
	cycle, snap, err := h.resolveCycle(r)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	q := r.URL.Query()
	defaultTo := h.clock()
	if !cycle.IsOpen() {
		defaultTo = *cycle.EndDate
	}
	from, err := h.validator.ValidateTime(q.Get("from"), cycle.StartDate)
	if err != nil {
		respondWithDomainError(w, fmt.Errorf("from: %w", err))
		return
	}
	to, err := h.validator.ValidateTime(q.Get("to"), defaultTo)
	if err != nil {
		respondWithDomainError(w, fmt.Errorf("to: %w", err))
		return
	}
	step, err := h.validator.ValidateStep(q.Get("step"), h.stepHours)
	if err != nil {
		respondWithDomainError(w, fmt.Errorf("step: %w", err))
		return
	}
	if to.Before(from) {
		RespondWithError(w, http.StatusBadRequest, "to must not be before from")
		return
	}
	if !h.withinSampleLimit(w, from, to, step) {
		return
	}

	key := fmt.Sprintf("%s|%d|%d|%d|%g", cycle.ID, snap.Version, from.UnixNano(), to.UnixNano(), step)
	if cached, ok := h.seriesCache.Get(key); ok {
		w.Header().Set("X-Cache", "HIT")
		RespondWithJSON(w, http.StatusOK, cached)
		return
	}

	samples, err := h.engine(cycle).SerumLevelTimeSeries(from, to, step)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	resp := SeriesResponse{CycleID: cycle.ID, From: from, To: to, StepHours: step, Samples: samples}
	h.seriesCache.Set(key, resp, cache.DefaultExpiration)

	w.Header().Set("X-Cache", "MISS")
	RespondWithJSON(w, http.StatusOK, resp)
}

// withinSampleLimit answers 400 when sampling [from, to] every step hours would exceed maxSamples
func (h *HTTPHandlerImpl) withinSampleLimit(w http.ResponseWriter, from, to time.Time, step float64) bool {
	if samples := to.Sub(from).Hours()/step + 1; samples > float64(h.maxSamples) {
		RespondWithError(w, http.StatusBadRequest,
			fmt.Sprintf("series would contain %.0f samples, maximum is %d; increase step or narrow the window", samples, h.maxSamples))
		return false
	}
	return true
}

// WeeklyAverageResponse lists mean weekly dosage per substance
type WeeklyAverageResponse struct {
	CycleID       uuid.UUID                     `json:"cycleId"`
	DurationWeeks int                           `json:"durationWeeks"`
	Averages      []aggregation.SubstanceAmount `json:"averages"`
}

// WeeklyAverages returns the mean weekly dosage per substance over the cycle
func (h *HTTPHandlerImpl) WeeklyAverages(w http.ResponseWriter, r *http.Request) {
	cycle, _, err := h.resolveCycle(r)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	e := h.engine(cycle)
	RespondWithJSON(w, http.StatusOK, WeeklyAverageResponse{
		CycleID:       cycle.ID,
		DurationWeeks: cycle.DurationInWeeks(h.clock()),
		Averages:      e.Amounts(e.WeeklyAverageBySubstance()),
	})
}

// TotalsResponse lists the summed dosage per substance
type TotalsResponse struct {
	CycleID uuid.UUID                     `json:"cycleId"`
	Totals  []aggregation.SubstanceAmount `json:"totals"`
}

// TotalDosages returns the summed dosage per substance over the cycle
func (h *HTTPHandlerImpl) TotalDosages(w http.ResponseWriter, r *http.Request) {
	cycle, _, err := h.resolveCycle(r)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	e := h.engine(cycle)
	RespondWithJSON(w, http.StatusOK, TotalsResponse{
		CycleID: cycle.ID,
		Totals:  e.Amounts(e.TotalDosageBySubstance()),
	})
}

// SiteRotationResponse describes how injection sites have been used
type SiteRotationResponse struct {
	CycleID      uuid.UUID               `json:"cycleId"`
	Shares       []aggregation.SiteShare `json:"shares"`
	Counts       []ledger.SiteCount      `json:"counts"`
	MostUsedSite *entities.Site          `json:"mostUsedSite,omitempty"`
	Recommended  entities.Site           `json:"recommendedSite"`
}

// SiteRotation returns per-site usage percentages and counts
func (h *HTTPHandlerImpl) SiteRotation(w http.ResponseWriter, r *http.Request) {
	cycle, _, err := h.resolveCycle(r)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	e := h.engine(cycle)
	resp := SiteRotationResponse{
		CycleID:     cycle.ID,
		Shares:      e.SiteRotationAnalysis(),
		Counts:      cycle.Administrations.SiteFrequencies(),
		Recommended: e.RecommendedSite(),
	}
	if site, ok := e.MostUsedSite(); ok {
		resp.MostUsedSite = &site
	}
	RespondWithJSON(w, http.StatusOK, resp)
}

// RecommendedSite returns the least used site of the cycle
func (h *HTTPHandlerImpl) RecommendedSite(w http.ResponseWriter, r *http.Request) {
	cycle, _, err := h.resolveCycle(r)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	RespondWithJSON(w, http.StatusOK, map[string]any{
		"cycleId": cycle.ID,
		"site":    h.engine(cycle).RecommendedSite(),
	})
}

// Dashboard returns the summary of the open cycle for ?range= (default week) sampled every
// ?step= hours. The scheduler's precomputed dashboard is served when the parameters match it.
func (h *HTTPHandlerImpl) Dashboard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	timeRange, err := h.validator.ValidateTimeRange(q.Get("range"))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	step, err := h.validator.ValidateStep(q.Get("step"), h.stepHours)
	if err != nil {
		respondWithDomainError(w, fmt.Errorf("step: %w", err))
		return
	}

	snap := h.dataStore.GetSnapshot()
	active, ok := snap.Active()
	if !ok {
		RespondWithError(w, http.StatusNotFound, "No active cycle")
		return
	}

	if timeRange == aggregation.RangeWeek && step == h.stepHours {
		if d, ok := h.dataStore.GetDashboard(); ok && d.CycleID == active.ID && d.SnapshotVersion == snap.Version {
			w.Header().Set("X-Dashboard-Source", "precomputed")
			RespondWithJSON(w, http.StatusOK, d)
			return
		}
	}

	e := h.engine(active)
	from, to := e.Window(timeRange)
	if !h.withinSampleLimit(w, from, to, step) {
		return
	}

	d, err := e.Dashboard(timeRange, step)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}
	d.SnapshotVersion = snap.Version
	w.Header().Set("X-Dashboard-Source", "live")
	RespondWithJSON(w, http.StatusOK, d)
}

// HistoryResponse is the dose history of one substance across every cycle
type HistoryResponse struct {
	SubstanceID          uuid.UUID               `json:"substanceId"`
	Substance            string                  `json:"substance"`
	Points               []aggregation.DosePoint `json:"points"`
	Cycles               int                     `json:"cycles"`
	AverageCycleDuration *float64                `json:"averageCycleDurationDays,omitempty"`
}

// History returns every dose of ?substance= (id or name) across all cycles
func (h *HTTPHandlerImpl) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	substance, err := h.resolveSubstance(q.Get("substanceId"), q.Get("substance"))
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	snap := h.dataStore.GetSnapshot()
	resp := HistoryResponse{
		SubstanceID: substance.ID,
		Substance:   substance.Name,
		Points:      aggregation.CycleHistory(snap.Cycles, substance.ID),
		Cycles:      len(snap.Cycles),
	}
	if avg, ok := aggregation.AverageCycleDuration(snap.Cycles); ok {
		days := avg.Hours() / 24
		resp.AverageCycleDuration = &days
	}
	RespondWithJSON(w, http.StatusOK, resp)
}

// CalendarResponse lists the days of a cycle that have administrations
type CalendarResponse struct {
	CycleID  uuid.UUID               `json:"cycleId"`
	Location string                  `json:"location"`
	Month    string                  `json:"month,omitempty"`
	Days     []aggregation.DayBucket `json:"days"`
}

// Calendar groups the cycle's administrations by day in ?tz= (IANA name, default UTC),
// optionally restricted to ?month=YYYY-MM
func (h *HTTPHandlerImpl) Calendar(w http.ResponseWriter, r *http.Request) {
	cycle, _, err := h.resolveCycle(r)
	if err != nil {
		respondWithDomainError(w, err)
		return
	}

	q := r.URL.Query()
	loc := time.UTC
	if tz := strings.TrimSpace(q.Get("tz")); tz != "" {
		if loc, err = time.LoadLocation(tz); err != nil {
			RespondWithError(w, http.StatusBadRequest, fmt.Sprintf("unknown time zone %q", tz))
			return
		}
	}

	e := h.engine(cycle)
	resp := CalendarResponse{CycleID: cycle.ID, Location: loc.String()}
	if raw := strings.TrimSpace(q.Get("month")); raw != "" {
		month, err := time.ParseInLocation("2006-01", raw, loc)
		if err != nil {
			RespondWithError(w, http.StatusBadRequest, "month must be formatted as YYYY-MM")
			return
		}
		resp.Month = raw
		resp.Days = e.AdministrationsInMonth(month, loc)
	} else {
		resp.Days = e.AdministrationsByDay(loc)
	}
	RespondWithJSON(w, http.StatusOK, resp)
}
