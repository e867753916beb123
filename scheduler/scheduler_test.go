package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/giygas/cycletracker/catalog"
	"github.com/giygas/cycletracker/cycles"
	"github.com/giygas/cycletracker/data"
	"github.com/giygas/cycletracker/entities"
	"go.uber.org/goleak"
)

var evalTime = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return evalTime }

// seededContainer publishes a snapshot with one open cycle holding two administrations
func seededContainer(t *testing.T, cat *catalog.Catalog) (*data.DataContainer, *cycles.Manager) {
	t.Helper()

	enanthate, ok := cat.FindByName("Testosterone Enanthate")
	if !ok {
		t.Fatal("Expected preset Testosterone Enanthate")
	}

	mgr := cycles.NewManager(nil, cycles.WithClock(fixedClock))
	mgr.StartNewCycle("summer", evalTime.AddDate(0, 0, -14))
	for i, site := range []entities.Site{entities.SiteGluteus, entities.SiteDeltoid} {
		if _, err := mgr.LogAdministration(enanthate, 250, site, evalTime.AddDate(0, 0, -7*(i+1)), ""); err != nil {
			t.Fatalf("Unexpected error logging administration: %v", err)
		}
	}

	container := data.NewDataContainer()
	container.UpdateSnapshot(mgr.Snapshot())
	return container, mgr
}

func TestScheduler_InitialRefresh(t *testing.T) {
	cat := catalog.NewWithPresets()
	container, _ := seededContainer(t, cat)

	s := NewScheduler(container, cat, time.Hour, 6, WithClock(fixedClock))
	if err := s.Start(); err != nil {
		t.Fatalf("Unexpected error during start: %v", err)
	}
	defer s.Stop()

	dashboard, ok := container.GetDashboard()
	if !ok {
		t.Fatal("Expected dashboard after initial refresh")
	}
	if dashboard.CycleName != "summer" {
		t.Errorf("Expected dashboard for 'summer', got %q", dashboard.CycleName)
	}
	if !dashboard.GeneratedAt.Equal(evalTime) {
		t.Errorf("Expected dashboard evaluated at %v, got %v", evalTime, dashboard.GeneratedAt)
	}
	if len(dashboard.SerumLevels) != 1 || dashboard.SerumLevels[0].AmountMg <= 0 {
		t.Errorf("Expected one positive serum level, got %+v", dashboard.SerumLevels)
	}
	if container.IsRefreshing() {
		t.Error("Refresh flag should be released")
	}
}

func TestScheduler_NoOpenCycleClearsDashboard(t *testing.T) {
	cat := catalog.NewWithPresets()
	container, mgr := seededContainer(t, cat)

	s := NewScheduler(container, cat, time.Hour, 6, WithClock(fixedClock))
	if err := s.RefreshNow(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := container.GetDashboard(); !ok {
		t.Fatal("Expected dashboard while the cycle is open")
	}

	mgr.EndCurrentCycle()
	container.UpdateSnapshot(mgr.Snapshot())

	if err := s.RefreshNow(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := container.GetDashboard(); ok {
		t.Error("Expected dashboard to be cleared once no cycle is open")
	}
}

func TestScheduler_ConcurrentRefreshPrevention(t *testing.T) {
	cat := catalog.NewWithPresets()
	container, _ := seededContainer(t, cat)

	if !container.BeginRefresh() {
		t.Fatal("Expected to acquire the refresh flag")
	}

	s := NewScheduler(container, cat, time.Hour, 6, WithClock(fixedClock))
	if err := s.RefreshNow(); err != nil {
		t.Errorf("Skipped refresh should not error, got %v", err)
	}
	if _, ok := container.GetDashboard(); ok {
		t.Error("Dashboard should not be built while another refresh holds the flag")
	}
	if !container.IsRefreshing() {
		t.Error("Skipped refresh must not release a flag it does not own")
	}
	container.EndRefresh()
}

// mutatingStore logs an administration the first time a refresh reads the snapshot,
// the way a request landing during the hourly job would
type mutatingStore struct {
	*data.DataContainer
	mutate func()
	once   sync.Once
}

func (m *mutatingStore) GetSnapshot() cycles.Snapshot {
	snap := m.DataContainer.GetSnapshot()
	m.once.Do(m.mutate)
	return snap
}

func TestScheduler_MutationDuringRefreshIsRebuilt(t *testing.T) {
	cat := catalog.NewWithPresets()
	container, mgr := seededContainer(t, cat)
	enanthate, _ := cat.FindByName("Testosterone Enanthate")

	store := &mutatingStore{DataContainer: container}
	s := NewScheduler(store, cat, time.Hour, 6, WithClock(fixedClock))
	store.mutate = func() {
		if _, err := mgr.LogAdministration(enanthate, 100, entities.SiteTriceps, evalTime.AddDate(0, 0, -1), ""); err != nil {
			t.Errorf("Unexpected error logging administration: %v", err)
		}
		container.UpdateSnapshot(mgr.Snapshot())
		if err := s.RefreshNow(); err != nil {
			t.Errorf("Queued refresh should not error, got %v", err)
		}
	}

	if err := s.RefreshNow(); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	dashboard, ok := container.GetDashboard()
	if !ok {
		t.Fatal("Expected dashboard")
	}
	if want := container.GetSnapshot().Version; dashboard.SnapshotVersion != want {
		t.Errorf("Expected dashboard at snapshot version %d, got %d", want, dashboard.SnapshotVersion)
	}
	if len(dashboard.RecentAdministrations) != 2 {
		t.Errorf("Expected the administration logged mid-refresh in the dashboard, got %d recent", len(dashboard.RecentAdministrations))
	}
	if container.IsRefreshing() {
		t.Error("Refresh flag should be released")
	}
}

func TestScheduler_InvalidStepFailsStart(t *testing.T) {
	cat := catalog.NewWithPresets()
	container, _ := seededContainer(t, cat)

	s := NewScheduler(container, cat, time.Hour, 0, WithClock(fixedClock))
	if err := s.Start(); err == nil {
		s.Stop()
		t.Fatal("Expected error for a non-positive step")
	}
	if container.IsRefreshing() {
		t.Error("Refresh flag should be released after a failure")
	}
}

func TestScheduler_PeriodicRefreshPicksUpSnapshots(t *testing.T) {
	cat := catalog.NewWithPresets()
	container, mgr := seededContainer(t, cat)

	s := NewScheduler(container, cat, 50*time.Millisecond, 6, WithClock(fixedClock))
	if err := s.Start(); err != nil {
		t.Fatalf("Unexpected error during start: %v", err)
	}
	defer s.Stop()

	first, _ := container.GetDashboard()

	mgr.StartNewCycle("autumn", evalTime.AddDate(0, 0, -1))
	container.UpdateSnapshot(mgr.Snapshot())

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if d, ok := container.GetDashboard(); ok && d.CycleName == "autumn" {
			if d.CycleID == first.CycleID {
				t.Error("Expected a different cycle id")
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("Scheduled refresh did not pick up the new snapshot")
}

type staleStore struct {
	*data.DataContainer
	last time.Time
}

func (s *staleStore) GetLastRefreshed() time.Time { return s.last }

func TestScheduler_CheckStaleness(t *testing.T) {
	cat := catalog.New()

	tests := []struct {
		name string
		last time.Time
		want bool
	}{
		{"never refreshed", time.Time{}, false},
		{"fresh", time.Now().Add(-30 * time.Minute), false},
		{"stale", time.Now().Add(-3 * time.Hour), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &staleStore{DataContainer: data.NewDataContainer(), last: tt.last}
			s := NewScheduler(store, cat, time.Hour, 6)
			if got := s.checkStaleness(); got != tt.want {
				t.Errorf("checkStaleness() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestScheduler_StopReleasesMonitor(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewScheduler(data.NewDataContainer(), catalog.New(), time.Hour, 6, WithMonitorInterval(time.Millisecond))
	s.startStalenessMonitor()
	time.Sleep(5 * time.Millisecond)

	s.Stop()
	s.Stop()
}

func TestNewScheduler_Defaults(t *testing.T) {
	s := NewScheduler(data.NewDataContainer(), catalog.New(), 0, 6)
	if s.interval != time.Hour {
		t.Errorf("Expected default interval of 1h, got %v", s.interval)
	}
	if s.monitorInterval != time.Hour {
		t.Errorf("Expected default monitor interval of 1h, got %v", s.monitorInterval)
	}
}
