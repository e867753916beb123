package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/giygas/cycletracker/aggregation"
	"github.com/giygas/cycletracker/catalog"
	"github.com/giygas/cycletracker/cycles"
	"github.com/giygas/cycletracker/data"
	"github.com/giygas/cycletracker/entities"
	"github.com/giygas/cycletracker/validation"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

var evalTime = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return evalTime }

// stubHealth returns a canned health status
type stubHealth struct {
	status string
	err    error
}

func (s stubHealth) HealthCheck() (string, map[string]any, error) {
	return s.status, map[string]any{
		"data":        map[string]any{"cycles": 1},
		"persistence": map[string]any{"healthy": true},
		"system":      map[string]any{"goroutines": 4},
	}, s.err
}

func (s stubHealth) CalculateNextRefresh() time.Time { return evalTime.Add(time.Hour) }

// fixture wires a real manager, catalog and container behind a chi router
type fixture struct {
	t         *testing.T
	manager   *cycles.Manager
	catalog   *catalog.Catalog
	container *data.DataContainer
	handler   *HTTPHandlerImpl
	router    chi.Router
}

func newFixture(t *testing.T, health stubHealth) *fixture {
	t.Helper()

	f := &fixture{
		t:         t,
		manager:   cycles.NewManager(nil, cycles.WithClock(fixedClock)),
		catalog:   catalog.NewWithPresets(),
		container: data.NewDataContainer(),
	}
	f.container.SetServerStartTime(evalTime.Add(-90 * time.Minute))
	f.container.UpdateSnapshot(f.manager.Snapshot())
	f.manager.Subscribe(f.container.UpdateSnapshot)

	f.handler = NewHTTPHandler(f.manager, f.catalog, f.container, validation.NewDataValidator(), health,
		WithClock(fixedClock))

	r := chi.NewRouter()
	h := f.handler
	r.Get("/v1/cycles", h.ListCycles)
	r.Post("/v1/cycles", h.StartCycle)
	r.Get("/v1/cycles/active", h.GetActiveCycle)
	r.Post("/v1/cycles/active/end", h.EndCycle)
	r.Post("/v1/cycles/active/administrations", h.LogAdministration)
	r.Delete("/v1/cycles/active/administrations/{administrationId}", h.RemoveAdministration)
	r.Get("/v1/cycles/{id}", h.GetCycle)
	r.Get("/v1/cycles/{id}/residuals", h.ResidualLevels)
	r.Get("/v1/cycles/{id}/series", h.SerumLevelSeries)
	r.Get("/v1/cycles/{id}/weekly-averages", h.WeeklyAverages)
	r.Get("/v1/cycles/{id}/totals", h.TotalDosages)
	r.Get("/v1/cycles/{id}/sites", h.SiteRotation)
	r.Get("/v1/cycles/{id}/recommended-site", h.RecommendedSite)
	r.Get("/v1/cycles/{id}/calendar", h.Calendar)
	r.Get("/v1/dashboard", h.Dashboard)
	r.Get("/v1/history", h.History)
	r.Get("/v1/substances", h.ListSubstances)
	r.Post("/v1/substances", h.AddSubstance)
	r.Get("/v1/substances/{id}", h.GetSubstance)
	r.Get("/v1/substances/{id}/dosage-check", h.ValidateDosage)
	r.Get("/health", h.HealthCheck)
	f.router = r

	return f
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	f.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	f.router.ServeHTTP(rr, req)
	return rr
}

func (f *fixture) expect(rr *httptest.ResponseRecorder, code int) {
	f.t.Helper()
	if rr.Code != code {
		f.t.Fatalf("Expected status %d, got %d: %s", code, rr.Code, rr.Body.String())
	}
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rr.Body.String(), err)
	}
	return v
}

// seed opens a cycle two weeks before evalTime with one enanthate dose a week later
func (f *fixture) seed() (uuid.UUID, uuid.UUID) {
	f.t.Helper()

	rr := f.do(http.MethodPost, "/v1/cycles", `{"name":"summer","startDate":"2025-05-19"}`)
	f.expect(rr, http.StatusCreated)
	cycle := decode[struct {
		ID uuid.UUID `json:"id"`
	}](f.t, rr)

	rr = f.do(http.MethodPost, "/v1/cycles/active/administrations",
		`{"substance":"testosterone enanthate","dosage":250,"site":"gluteus","date":"2025-05-26T09:00:00Z","notes":"left side"}`)
	f.expect(rr, http.StatusCreated)
	resp := decode[struct {
		Administration struct {
			ID uuid.UUID `json:"id"`
		} `json:"administration"`
	}](f.t, rr)

	return cycle.ID, resp.Administration.ID
}

func TestNewHTTPHandlerDefaults(t *testing.T) {
	h := NewHTTPHandler(nil, nil, nil, nil, nil)
	if h.stepHours != 6 || h.maxSamples != 5000 || h.seriesCache == nil || h.clock == nil {
		t.Errorf("Unexpected defaults: step %v max %d", h.stepHours, h.maxSamples)
	}

	h = NewHTTPHandler(nil, nil, nil, nil, nil, WithStepHours(-1), WithMaxSamples(0), WithClock(nil))
	if h.stepHours != 6 || h.maxSamples != 5000 || h.clock == nil {
		t.Error("Invalid options should keep defaults")
	}

	h = NewHTTPHandler(nil, nil, nil, nil, nil, WithStepHours(2), WithMaxSamples(10), WithSeriesCacheTTL(time.Second))
	if h.stepHours != 2 || h.maxSamples != 10 {
		t.Errorf("Options not applied: step %v max %d", h.stepHours, h.maxSamples)
	}
}

func TestCycleLifecycle(t *testing.T) {
	f := newFixture(t, stubHealth{status: "healthy"})

	f.expect(f.do(http.MethodGet, "/v1/cycles/active", ""), http.StatusNotFound)

	cycleID, _ := f.seed()

	rr := f.do(http.MethodGet, "/v1/cycles/active", "")
	f.expect(rr, http.StatusOK)
	active := decode[struct {
		ID              uuid.UUID         `json:"id"`
		Name            string            `json:"name"`
		EndDate         *time.Time        `json:"endDate"`
		Administrations []json.RawMessage `json:"administrations"`
	}](t, rr)
	if active.ID != cycleID || active.Name != "summer" || active.EndDate != nil || len(active.Administrations) != 1 {
		t.Errorf("Unexpected active cycle: %+v", active)
	}

	f.expect(f.do(http.MethodGet, "/v1/cycles/"+cycleID.String(), ""), http.StatusOK)

	rr = f.do(http.MethodPost, "/v1/cycles/active/end", "")
	f.expect(rr, http.StatusOK)
	ended := decode[struct {
		EndDate *time.Time `json:"endDate"`
	}](t, rr)
	if ended.EndDate == nil || !ended.EndDate.Equal(evalTime) {
		t.Errorf("Expected cycle closed at %v, got %v", evalTime, ended.EndDate)
	}

	f.expect(f.do(http.MethodPost, "/v1/cycles/active/end", ""), http.StatusConflict)
	f.expect(f.do(http.MethodGet, "/v1/cycles/active", ""), http.StatusNotFound)

	// closed cycles stay readable by id
	f.expect(f.do(http.MethodGet, "/v1/cycles/"+cycleID.String(), ""), http.StatusOK)
}

func TestStartCycleClosesPrevious(t *testing.T) {
	f := newFixture(t, stubHealth{status: "healthy"})
	first, _ := f.seed()

	f.expect(f.do(http.MethodPost, "/v1/cycles", `{"name":"autumn"}`), http.StatusCreated)

	rr := f.do(http.MethodGet, "/v1/cycles?state=closed", "")
	f.expect(rr, http.StatusOK)
	closed := decode[[]CycleSummary](t, rr)
	if len(closed) != 1 || closed[0].ID != first || closed[0].Administrations != 1 {
		t.Fatalf("Expected the first cycle closed, got %+v", closed)
	}

	rr = f.do(http.MethodGet, "/v1/cycles?state=open", "")
	f.expect(rr, http.StatusOK)
	open := decode[[]CycleSummary](t, rr)
	if len(open) != 1 || open[0].Name != "autumn" || !open[0].StartDate.Equal(evalTime) {
		t.Fatalf("Expected autumn open since evalTime, got %+v", open)
	}

	rr = f.do(http.MethodGet, "/v1/cycles", "")
	f.expect(rr, http.StatusOK)
	if all := decode[[]CycleSummary](t, rr); len(all) != 2 || all[0].ID != first {
		t.Errorf("Expected both cycles in creation order, got %+v", all)
	}

	f.expect(f.do(http.MethodGet, "/v1/cycles?state=paused", ""), http.StatusBadRequest)
}

func TestLogAdministrationResponse(t *testing.T) {
	f := newFixture(t, stubHealth{status: "healthy"})
	f.seed()

	enanthate, _ := f.catalog.FindByName("Testosterone Enanthate")
	body := fmt.Sprintf(`{"substanceId":%q,"dosage":"400","site":"Deltoid","date":"2025-05-30"}`, enanthate.ID)
	rr := f.do(http.MethodPost, "/v1/cycles/active/administrations", body)
	f.expect(rr, http.StatusCreated)

	resp := decode[AdministrationResponse](t, rr)
	if resp.Substance != "Testosterone Enanthate" {
		t.Errorf("Expected substance name, got %q", resp.Substance)
	}
	if resp.VolumeML != 1.6 {
		t.Errorf("Expected 1.6 mL, got %v", resp.VolumeML)
	}
	if !resp.WithinRecommended {
		t.Error("400 mg should be within the recommended range")
	}
	if resp.Administration.Site != entities.SiteDeltoid {
		t.Errorf("Expected deltoid, got %q", resp.Administration.Site)
	}
	if resp.RecommendedSiteNext == entities.SiteGluteus || resp.RecommendedSiteNext == entities.SiteDeltoid {
		t.Errorf("Recommended site should be an unused one, got %q", resp.RecommendedSiteNext)
	}
}

func TestLogAdministrationErrors(t *testing.T) {
	f := newFixture(t, stubHealth{status: "healthy"})

	valid := `{"substance":"Testosterone Enanthate","dosage":250,"site":"gluteus"}`
	f.expect(f.do(http.MethodPost, "/v1/cycles/active/administrations", valid), http.StatusConflict)

	f.seed()

	tests := []struct {
		name string
		body string
		code int
	}{
		{"empty body", "", http.StatusBadRequest},
		{"malformed", `{"substance":`, http.StatusBadRequest},
		{"unknown field", `{"substance":"Testosterone Enanthate","dosage":250,"site":"gluteus","volume":1}`, http.StatusBadRequest},
		{"two objects", valid + valid, http.StatusBadRequest},
		{"no substance", `{"dosage":250,"site":"gluteus"}`, http.StatusBadRequest},
		{"unknown substance", `{"substance":"Trenbolone","dosage":250,"site":"gluteus"}`, http.StatusNotFound},
		{"unknown substance id", fmt.Sprintf(`{"substanceId":%q,"dosage":250,"site":"gluteus"}`, uuid.New()), http.StatusNotFound},
		{"bad substance id", `{"substanceId":"abc","dosage":250,"site":"gluteus"}`, http.StatusBadRequest},
		{"zero dose", `{"substance":"Testosterone Enanthate","dosage":0,"site":"gluteus"}`, http.StatusBadRequest},
		{"negative dose", `{"substance":"Testosterone Enanthate","dosage":-5,"site":"gluteus"}`, http.StatusBadRequest},
		{"missing dose", `{"substance":"Testosterone Enanthate","site":"gluteus"}`, http.StatusBadRequest},
		{"unknown site", `{"substance":"Testosterone Enanthate","dosage":250,"site":"forearm"}`, http.StatusBadRequest},
		{"bad date", `{"substance":"Testosterone Enanthate","dosage":250,"site":"gluteus","date":"yesterday"}`, http.StatusBadRequest},
		{"script notes", `{"substance":"Testosterone Enanthate","dosage":250,"site":"gluteus","notes":"<script>x</script>"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(http.MethodPost, "/v1/cycles/active/administrations", tt.body)
			if rr.Code != tt.code {
				t.Fatalf("Expected %d, got %d: %s", tt.code, rr.Code, rr.Body.String())
			}
			errResp := decode[ErrorResponse](t, rr)
			if errResp.Code != tt.code || errResp.Message == "" {
				t.Errorf("Unexpected error body: %+v", errResp)
			}
		})
	}

	active, _ := f.manager.ActiveCycle()
	if len(active.Administrations) != 1 {
		t.Errorf("Rejected requests must not log anything, got %d administrations", len(active.Administrations))
	}
}

func TestRemoveAdministration(t *testing.T) {
	f := newFixture(t, stubHealth{status: "healthy"})
	_, adminID := f.seed()

	f.expect(f.do(http.MethodDelete, "/v1/cycles/active/administrations/not-a-uuid", ""), http.StatusBadRequest)
	f.expect(f.do(http.MethodDelete, "/v1/cycles/active/administrations/"+uuid.NewString(), ""), http.StatusNoContent)

	rr := f.do(http.MethodDelete, "/v1/cycles/active/administrations/"+adminID.String(), "")
	f.expect(rr, http.StatusNoContent)
	if rr.Body.Len() != 0 {
		t.Errorf("Expected empty body, got %q", rr.Body.String())
	}

	// removing twice is a no-op
	f.expect(f.do(http.MethodDelete, "/v1/cycles/active/administrations/"+adminID.String(), ""), http.StatusNoContent)

	active, _ := f.container.GetSnapshot().Active()
	if len(active.Administrations) != 0 {
		t.Errorf("Published snapshot still holds %d administrations", len(active.Administrations))
	}
}

func TestGetCycleErrors(t *testing.T) {
	f := newFixture(t, stubHealth{status: "healthy"})

	tests := []struct {
		target string
		code   int
	}{
		{"/v1/cycles/active/residuals", http.StatusNotFound},
		{"/v1/cycles/" + uuid.NewString(), http.StatusNotFound},
		{"/v1/cycles/not-a-uuid", http.StatusBadRequest},
		{"/v1/cycles/00000000-0000-0000-0000-000000000000/totals", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			f.expect(f.do(http.MethodGet, tt.target, ""), tt.code)
		})
	}
}

func TestCycleAnalytics(t *testing.T) {
	f := newFixture(t, stubHealth{status: "healthy"})
	cycleID, _ := f.seed()

	t.Run("residuals", func(t *testing.T) {
		rr := f.do(http.MethodGet, "/v1/cycles/active/residuals", "")
		f.expect(rr, http.StatusOK)
		resp := decode[ResidualResponse](t, rr)
		if resp.CycleID != cycleID || !resp.At.Equal(evalTime) {
			t.Errorf("Unexpected header fields: %+v", resp)
		}
		// 171 hours after a 250 mg dose with a 168 hour half-life
		if resp.TotalMg <= 120 || resp.TotalMg >= 125 {
			t.Errorf("Expected about 123 mg, got %v", resp.TotalMg)
		}
		if len(resp.Levels) != 1 || resp.Levels[0].Name != "Testosterone Enanthate" {
			t.Errorf("Unexpected levels: %+v", resp.Levels)
		}

		rr = f.do(http.MethodGet, "/v1/cycles/active/residuals?at=2025-05-20", "")
		f.expect(rr, http.StatusOK)
		if resp := decode[ResidualResponse](t, rr); resp.TotalMg != 0 {
			t.Errorf("Expected nothing before the first dose, got %v", resp.TotalMg)
		}

		f.expect(f.do(http.MethodGet, "/v1/cycles/active/residuals?at=soon", ""), http.StatusBadRequest)
	})

	t.Run("totals", func(t *testing.T) {
		rr := f.do(http.MethodGet, "/v1/cycles/"+cycleID.String()+"/totals", "")
		f.expect(rr, http.StatusOK)
		resp := decode[TotalsResponse](t, rr)
		if len(resp.Totals) != 1 || resp.Totals[0].AmountMg != 250 {
			t.Errorf("Unexpected totals: %+v", resp.Totals)
		}
	})

	t.Run("weekly averages", func(t *testing.T) {
		rr := f.do(http.MethodGet, "/v1/cycles/active/weekly-averages", "")
		f.expect(rr, http.StatusOK)
		resp := decode[WeeklyAverageResponse](t, rr)
		if resp.DurationWeeks != 3 {
			t.Errorf("Expected 3 weeks (14.5 days rounded up), got %d", resp.DurationWeeks)
		}
		if len(resp.Averages) != 1 {
			t.Fatalf("Unexpected averages: %+v", resp.Averages)
		}
		if got, want := resp.Averages[0].AmountMg, 250.0/3; got < want-1e-9 || got > want+1e-9 {
			t.Errorf("Expected %v mg/week, got %v", want, got)
		}
	})

	t.Run("sites", func(t *testing.T) {
		rr := f.do(http.MethodGet, "/v1/cycles/active/sites", "")
		f.expect(rr, http.StatusOK)
		resp := decode[SiteRotationResponse](t, rr)
		if resp.MostUsedSite == nil || *resp.MostUsedSite != entities.SiteGluteus {
			t.Errorf("Expected gluteus most used, got %v", resp.MostUsedSite)
		}
		if resp.Recommended == entities.SiteGluteus {
			t.Error("Recommended site should not be the only used one")
		}
	})

	t.Run("recommended site", func(t *testing.T) {
		rr := f.do(http.MethodGet, "/v1/cycles/active/recommended-site", "")
		f.expect(rr, http.StatusOK)
		resp := decode[map[string]string](t, rr)
		if resp["site"] == "" || resp["site"] == string(entities.SiteGluteus) {
			t.Errorf("Unexpected recommendation %q", resp["site"])
		}
	})
}

func TestSerumLevelSeries(t *testing.T) {
	f := newFixture(t, stubHealth{status: "healthy"})
	f.seed()

	rr := f.do(http.MethodGet, "/v1/cycles/active/series", "")
	f.expect(rr, http.StatusOK)
	if got := rr.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("First request should miss the cache, got %q", got)
	}
	series := decode[SeriesResponse](t, rr)
	// 2025-05-19 00:00 to 2025-06-02 12:00 every 6 hours
	if len(series.Samples) != 59 || series.StepHours != 6 {
		t.Fatalf("Expected 59 samples at 6h, got %d at %vh", len(series.Samples), series.StepHours)
	}

	rr = f.do(http.MethodGet, "/v1/cycles/active/series", "")
	f.expect(rr, http.StatusOK)
	if got := rr.Header().Get("X-Cache"); got != "HIT" {
		t.Errorf("Second request should hit the cache, got %q", got)
	}

	// any mutation publishes a new version and invalidates cached series
	f.expect(f.do(http.MethodPost, "/v1/cycles/active/administrations",
		`{"substance":"Nandrolone Decanoate","dosage":200,"site":"quadriceps","date":"2025-05-28"}`), http.StatusCreated)
	rr = f.do(http.MethodGet, "/v1/cycles/active/series", "")
	f.expect(rr, http.StatusOK)
	if got := rr.Header().Get("X-Cache"); got != "MISS" {
		t.Errorf("Request after a mutation should miss the cache, got %q", got)
	}

	rr = f.do(http.MethodGet, "/v1/cycles/active/series?from=2025-05-26&to=2025-05-27&step=12", "")
	f.expect(rr, http.StatusOK)
	if got := decode[SeriesResponse](t, rr); len(got.Samples) != 3 {
		t.Errorf("Expected 3 samples in a one day window, got %d", len(got.Samples))
	}

	tests := []struct {
		name  string
		query string
	}{
		{"to before from", "?from=2025-05-27&to=2025-05-26"},
		{"zero step", "?step=0"},
		{"step above a week", "?step=200"},
		{"too many samples", "?step=0.01"},
		{"bad from", "?from=tomorrow"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f.expect(f.do(http.MethodGet, "/v1/cycles/active/series"+tt.query, ""), http.StatusBadRequest)
		})
	}
}

func TestDashboard(t *testing.T) {
	f := newFixture(t, stubHealth{status: "healthy"})

	f.expect(f.do(http.MethodGet, "/v1/dashboard", ""), http.StatusNotFound)

	cycleID, _ := f.seed()

	rr := f.do(http.MethodGet, "/v1/dashboard", "")
	f.expect(rr, http.StatusOK)
	if got := rr.Header().Get("X-Dashboard-Source"); got != "live" {
		t.Errorf("Without a precomputed dashboard the source should be live, got %q", got)
	}

	active, _ := f.container.GetSnapshot().Active()
	precomputed, err := aggregation.New(active, f.catalog, aggregation.WithClock(fixedClock)).Dashboard(aggregation.RangeWeek, 6)
	if err != nil {
		t.Fatalf("Unexpected error building dashboard: %v", err)
	}
	precomputed.CycleName = "precomputed marker"
	precomputed.SnapshotVersion = f.container.GetSnapshot().Version
	f.container.UpdateDashboard(precomputed)

	rr = f.do(http.MethodGet, "/v1/dashboard", "")
	f.expect(rr, http.StatusOK)
	if got := rr.Header().Get("X-Dashboard-Source"); got != "precomputed" {
		t.Errorf("Expected precomputed dashboard, got %q", got)
	}
	if d := decode[aggregation.Dashboard](t, rr); d.CycleID != cycleID || d.CycleName != "precomputed marker" {
		t.Errorf("Unexpected dashboard %s %q", d.CycleID, d.CycleName)
	}

	rr = f.do(http.MethodGet, "/v1/dashboard?range=month&step=24", "")
	f.expect(rr, http.StatusOK)
	if got := rr.Header().Get("X-Dashboard-Source"); got != "live" {
		t.Errorf("Custom parameters should be computed live, got %q", got)
	}
	if d := decode[aggregation.Dashboard](t, rr); d.Range != aggregation.RangeMonth || d.CycleName != "summer" {
		t.Errorf("Unexpected live dashboard range %q name %q", d.Range, d.CycleName)
	}

	// a mutation the scheduler has not caught up with makes the precomputed dashboard stale
	f.expect(f.do(http.MethodPost, "/v1/cycles/active/administrations",
		`{"substance":"testosterone enanthate","dosage":100,"site":"deltoid","date":"2025-06-01T09:00:00Z"}`), http.StatusCreated)
	rr = f.do(http.MethodGet, "/v1/dashboard", "")
	f.expect(rr, http.StatusOK)
	if got := rr.Header().Get("X-Dashboard-Source"); got != "live" {
		t.Errorf("Dashboard built before the last mutation must not be served, got %q", got)
	}
	d := decode[aggregation.Dashboard](t, rr)
	if len(d.RecentAdministrations) == 0 || d.RecentAdministrations[0].DoseMg != 100 {
		t.Errorf("Expected the new 100 mg dose first in the live dashboard, got %+v", d.RecentAdministrations)
	}
	if d.SnapshotVersion != f.container.GetSnapshot().Version {
		t.Errorf("Expected snapshot version %d, got %d", f.container.GetSnapshot().Version, d.SnapshotVersion)
	}

	// a dashboard left over from another cycle is never served
	f.expect(f.do(http.MethodPost, "/v1/cycles", `{"name":"autumn"}`), http.StatusCreated)
	rr = f.do(http.MethodGet, "/v1/dashboard", "")
	f.expect(rr, http.StatusOK)
	if got := rr.Header().Get("X-Dashboard-Source"); got != "live" {
		t.Errorf("Stale dashboard must not be served, got %q", got)
	}

	f.expect(f.do(http.MethodGet, "/v1/dashboard?range=year", ""), http.StatusBadRequest)
	f.expect(f.do(http.MethodGet, "/v1/dashboard?step=abc", ""), http.StatusBadRequest)
	f.expect(f.do(http.MethodGet, "/v1/dashboard?range=month&step=0.00001", ""), http.StatusBadRequest)
}

func TestDashboardSampleLimit(t *testing.T) {
	f := newFixture(t, stubHealth{status: "healthy"})
	f.handler = NewHTTPHandler(f.manager, f.catalog, f.container, validation.NewDataValidator(),
		stubHealth{status: "healthy"}, WithClock(fixedClock), WithMaxSamples(200))
	r := chi.NewRouter()
	r.Get("/v1/dashboard", f.handler.Dashboard)
	f.router = r

	f.manager.StartNewCycle("long", evalTime.AddDate(-2, 0, 0))

	tests := []struct {
		name   string
		target string
		code   int
	}{
		{"week at default step", "/v1/dashboard", http.StatusOK},
		{"month at one hour", "/v1/dashboard?range=month&step=1", http.StatusBadRequest},
		{"month at one day", "/v1/dashboard?range=month&step=24", http.StatusOK},
		{"two year cycle at one day", "/v1/dashboard?range=all&step=24", http.StatusBadRequest},
		{"two year cycle at one week", "/v1/dashboard?range=all&step=168", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := f.do(http.MethodGet, tt.target, "")
			if rr.Code != tt.code {
				t.Errorf("Expected %d, got %d: %s", tt.code, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestCalendar(t *testing.T) {
	f := newFixture(t, stubHealth{status: "healthy"})
	f.seed()
	for _, body := range []string{
		`{"substance":"testosterone enanthate","dosage":100,"site":"deltoid","date":"2025-05-26T23:30:00Z"}`,
		`{"substance":"testosterone enanthate","dosage":100,"site":"triceps","date":"2025-05-27T00:00:00Z"}`,
		`{"substance":"testosterone enanthate","dosage":100,"site":"quadriceps","date":"2025-06-01T10:00:00Z"}`,
	} {
		f.expect(f.do(http.MethodPost, "/v1/cycles/active/administrations", body), http.StatusCreated)
	}

	rr := f.do(http.MethodGet, "/v1/cycles/active/calendar", "")
	f.expect(rr, http.StatusOK)
	resp := decode[CalendarResponse](t, rr)
	if resp.Location != "UTC" || len(resp.Days) != 3 {
		t.Fatalf("Expected 3 UTC days, got %s %+v", resp.Location, resp.Days)
	}
	if len(resp.Days[0].Administrations) != 2 || len(resp.Days[1].Administrations) != 1 {
		t.Errorf("Expected the midnight dose on its own day, got %d and %d",
			len(resp.Days[0].Administrations), len(resp.Days[1].Administrations))
	}
	if !resp.Days[1].Date.Equal(time.Date(2025, 5, 27, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Unexpected second day %v", resp.Days[1].Date)
	}

	rr = f.do(http.MethodGet, "/v1/cycles/active/calendar?month=2025-06", "")
	f.expect(rr, http.StatusOK)
	if resp := decode[CalendarResponse](t, rr); resp.Month != "2025-06" || len(resp.Days) != 1 {
		t.Errorf("Expected one June day, got %+v", resp)
	}

	f.expect(f.do(http.MethodGet, "/v1/cycles/active/calendar?month=June", ""), http.StatusBadRequest)
	f.expect(f.do(http.MethodGet, "/v1/cycles/active/calendar?tz=Mars/Olympus", ""), http.StatusBadRequest)
	f.expect(f.do(http.MethodGet, "/v1/cycles/"+uuid.NewString()+"/calendar", ""), http.StatusNotFound)
}

func TestHistory(t *testing.T) {
	f := newFixture(t, stubHealth{status: "healthy"})
	f.seed()
	f.expect(f.do(http.MethodPost, "/v1/cycles", `{"name":"autumn","startDate":"2025-06-01"}`), http.StatusCreated)
	f.expect(f.do(http.MethodPost, "/v1/cycles/active/administrations",
		`{"substance":"Testosterone Enanthate","dosage":300,"site":"deltoid","date":"2025-06-02"}`), http.StatusCreated)

	rr := f.do(http.MethodGet, "/v1/history?substance=Testosterone%20Enanthate", "")
	f.expect(rr, http.StatusOK)
	resp := decode[HistoryResponse](t, rr)
	if len(resp.Points) != 2 || resp.Points[0].DoseMg != 250 || resp.Points[1].DoseMg != 300 {
		t.Errorf("Unexpected history points: %+v", resp.Points)
	}
	if resp.Cycles != 2 || resp.AverageCycleDuration == nil {
		t.Errorf("Expected 2 cycles with an average duration, got %+v", resp)
	}

	f.expect(f.do(http.MethodGet, "/v1/history", ""), http.StatusBadRequest)
	f.expect(f.do(http.MethodGet, "/v1/history?substance=Unknown%20Ester", ""), http.StatusNotFound)
}

func TestSubstances(t *testing.T) {
	f := newFixture(t, stubHealth{status: "healthy"})

	rr := f.do(http.MethodGet, "/v1/substances", "")
	f.expect(rr, http.StatusOK)
	if all := decode[[]entities.Substance](t, rr); len(all) != len(catalog.Presets()) {
		t.Errorf("Expected %d presets, got %d", len(catalog.Presets()), len(all))
	}

	rr = f.do(http.MethodGet, "/v1/substances?q=CYPIO", "")
	f.expect(rr, http.StatusOK)
	if found := decode[[]entities.Substance](t, rr); len(found) != 1 || found[0].Name != "Testosterone Cypionate" {
		t.Errorf("Unexpected search result: %+v", found)
	}

	rr = f.do(http.MethodGet, "/v1/substances?q=xyzzy", "")
	f.expect(rr, http.StatusOK)
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Errorf("Expected an empty array, got %s", rr.Body.String())
	}
	f.expect(f.do(http.MethodGet, "/v1/substances?q=%3Cscript%3E", ""), http.StatusBadRequest)

	rr = f.do(http.MethodPost, "/v1/substances",
		`{"name":"Trenbolone Acetate","type":"trenbolone","halfLife":24,"concentration":100,"recommendedDosage":{"min":200,"max":400}}`)
	f.expect(rr, http.StatusCreated)
	added := decode[entities.Substance](t, rr)
	if added.ID == uuid.Nil || added.HalfLifeHours != 24 {
		t.Fatalf("Unexpected substance: %+v", added)
	}

	f.expect(f.do(http.MethodGet, "/v1/substances/"+added.ID.String(), ""), http.StatusOK)
	f.expect(f.do(http.MethodGet, "/v1/substances/"+uuid.NewString(), ""), http.StatusNotFound)
	f.expect(f.do(http.MethodGet, "/v1/substances/nope", ""), http.StatusBadRequest)

	// duplicate names are refused, whatever their casing
	f.expect(f.do(http.MethodPost, "/v1/substances", `{"name":"trenbolone acetate","halfLife":24,"concentration":100}`), http.StatusBadRequest)
	f.expect(f.do(http.MethodPost, "/v1/substances", `{"name":"Masteron","halfLife":0,"concentration":100}`), http.StatusBadRequest)
	f.expect(f.do(http.MethodPost, "/v1/substances", `{"name":"Masteron","halfLife":48,"concentration":-1}`), http.StatusBadRequest)

	rr = f.do(http.MethodGet, "/v1/substances/"+added.ID.String()+"/dosage-check?dose=300", "")
	f.expect(rr, http.StatusOK)
	if check := decode[DosageCheckResponse](t, rr); !check.Valid || check.Dose != 300 {
		t.Errorf("Unexpected dosage check: %+v", check)
	}

	rr = f.do(http.MethodGet, "/v1/substances/"+added.ID.String()+"/dosage-check?dose=500", "")
	f.expect(rr, http.StatusOK)
	if check := decode[DosageCheckResponse](t, rr); check.Valid {
		t.Error("500 mg is above the recommended range")
	}

	f.expect(f.do(http.MethodGet, "/v1/substances/"+added.ID.String()+"/dosage-check", ""), http.StatusBadRequest)
}

func TestHealthCheck(t *testing.T) {
	tests := []struct {
		name   string
		health stubHealth
		code   int
	}{
		{"healthy", stubHealth{status: "healthy"}, http.StatusOK},
		{"degraded", stubHealth{status: "degraded"}, http.StatusOK},
		{"unhealthy", stubHealth{status: "unhealthy"}, http.StatusServiceUnavailable},
		{"checker error", stubHealth{err: fmt.Errorf("boom")}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.health)
			rr := f.do(http.MethodGet, "/health", "")
			f.expect(rr, tt.code)
			if tt.health.err != nil {
				return
			}

			resp := decode[HealthResponse](t, rr)
			if resp.Status != tt.health.status {
				t.Errorf("Expected status %q, got %q", tt.health.status, resp.Status)
			}
			if resp.Uptime != "1h 30m 0s" || resp.UptimeSeconds != 5400 {
				t.Errorf("Unexpected uptime %q (%v s)", resp.Uptime, resp.UptimeSeconds)
			}
			if resp.Data == nil || resp.Persistence == nil || resp.System == nil {
				t.Errorf("Expected every detail section, got %+v", resp)
			}
		})
	}
}

func TestFormatUptimeHuman(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{61 * time.Minute, "1h 1m 0s"},
		{49*time.Hour + 5*time.Second, "2d 1h 0m 5s"},
	}
	for _, tt := range tests {
		if got := formatUptimeHuman(tt.d); got != tt.want {
			t.Errorf("formatUptimeHuman(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
