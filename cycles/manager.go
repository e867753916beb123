// Package cycles owns the collection of cycles and enforces that at most one of them is open.
// All mutations are serialized through Manager; readers receive deep copies.
package cycles

import (
	"fmt"
	"sync"
	"time"

	"github.com/giygas/cycletracker/entities"
	"github.com/giygas/cycletracker/ledger"
	"github.com/giygas/cycletracker/logging"
	"github.com/google/uuid"
)

// Snapshot is an immutable copy of the cycle collection taken right after a mutation
type Snapshot struct {
	Cycles  []ledger.Cycle
	Version uint64
	TakenAt time.Time
}

// Active returns the open cycle in the snapshot, if any
func (s Snapshot) Active() (ledger.Cycle, bool) {
	for _, c := range s.Cycles {
		if c.IsOpen() {
			return c, true
		}
	}
	return ledger.Cycle{}, false
}

// Manager routes administrations to the open cycle and drives cycle lifecycles
type Manager struct {
	mu          sync.RWMutex
	cycles      []ledger.Cycle
	version     uint64
	clock       func() time.Time
	newID       func() uuid.UUID
	subscribers []func(Snapshot)

	// notifyMu keeps subscriber deliveries in mutation order
	notifyMu sync.Mutex
}

// Option configures a Manager
type Option func(*Manager)

// WithClock sets the time source used to close cycles
func WithClock(clock func() time.Time) Option {
	return func(m *Manager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// WithIDGenerator sets the identity source for new cycles
func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(m *Manager) {
		if gen != nil {
			m.newID = gen
		}
	}
}

// NewManager bootstraps from a previously persisted list, which may be empty.
// If the list holds several open cycles, all but the most recently started are closed.
func NewManager(initial []ledger.Cycle, opts ...Option) *Manager {
	m := &Manager{
		cycles: ledger.CloneAll(initial),
		clock:  time.Now,
		newID:  uuid.New,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.repairOpenCycles()
	return m
}

func (m *Manager) repairOpenCycles() {
	latest := -1
	for i, c := range m.cycles {
		if !c.IsOpen() {
			continue
		}
		if latest == -1 || c.StartDate.After(m.cycles[latest].StartDate) {
			latest = i
		}
	}

	now := m.clock()
	for i := range m.cycles {
		if i != latest && m.cycles[i].IsOpen() {
			logging.Warn("Closing extra open cycle found at bootstrap",
				"cycle_id", m.cycles[i].ID.String(),
				"cycle_name", m.cycles[i].Name)
			m.cycles[i].Close(now)
		}
	}
}

// Subscribe registers fn to receive a snapshot after every mutation.
// Calls happen in mutation order; fn must not call back into the manager.
func (m *Manager) Subscribe(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	m.mu.Lock()
	m.subscribers = append(m.subscribers, fn)
	m.mu.Unlock()
}

// StartNewCycle closes the open cycle, if any, and appends a new open one
func (m *Manager) StartNewCycle(name string, start time.Time) ledger.Cycle {
	m.mu.Lock()
	now := m.clock()
	if i := m.activeIndex(); i >= 0 {
		m.cycles[i].Close(now)
		logging.Info("Closed cycle before starting a new one", "cycle_id", m.cycles[i].ID.String())
	}

	c := ledger.Cycle{
		ID:              m.newID(),
		Name:            name,
		StartDate:       start,
		Administrations: ledger.Ledger{},
	}
	m.cycles = append(m.cycles, c)
	logging.Info("Started cycle", "cycle_id", c.ID.String(), "name", name)
	m.unlockAndNotify(m.commit())
	return c.Clone()
}

// EndCurrentCycle closes the open cycle and returns a copy of it.
// The boolean is false when no cycle was open.
func (m *Manager) EndCurrentCycle() (ledger.Cycle, bool) {
	m.mu.Lock()
	i := m.activeIndex()
	if i < 0 {
		m.mu.Unlock()
		return ledger.Cycle{}, false
	}
	m.cycles[i].Close(m.clock())
	closed := m.cycles[i].Clone()
	logging.Info("Ended cycle", "cycle_id", closed.ID.String())
	m.unlockAndNotify(m.commit())
	return closed, true
}

// LogAdministration records a dose against the open cycle
func (m *Manager) LogAdministration(substance entities.Substance, dose float64, site entities.Site, date time.Time, notes string) (entities.Administration, error) {
	if err := substance.Validate(); err != nil {
		return entities.Administration{}, fmt.Errorf("cannot log administration: %w", err)
	}
	a, err := entities.NewAdministration(substance, dose, site, date, notes)
	if err != nil {
		return entities.Administration{}, err
	}

	m.mu.Lock()
	i := m.activeIndex()
	if i < 0 {
		m.mu.Unlock()
		return entities.Administration{}, fmt.Errorf("cannot log administration: %w", entities.ErrNoActiveCycle)
	}
	m.cycles[i].Administrations.Add(a)
	logging.Debug("Logged administration",
		"administration_id", a.ID.String(),
		"substance_id", substance.ID.String(),
		"dose_mg", dose,
		"site", string(site))
	m.unlockAndNotify(m.commit())
	return a, nil
}

// RemoveAdministration deletes an administration from the open cycle. Closed cycles are
// never touched, and unknown identities are a no-op. It reports whether anything was removed.
func (m *Manager) RemoveAdministration(id uuid.UUID) bool {
	m.mu.Lock()
	i := m.activeIndex()
	if i < 0 {
		m.mu.Unlock()
		return false
	}
	if m.cycles[i].Administrations.Remove(id) == 0 {
		m.mu.Unlock()
		return false
	}
	m.unlockAndNotify(m.commit())
	return true
}

// ActiveCycle returns a copy of the open cycle
func (m *Manager) ActiveCycle() (ledger.Cycle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if i := m.activeIndex(); i >= 0 {
		return m.cycles[i].Clone(), true
	}
	return ledger.Cycle{}, false
}

// Cycle returns a copy of the cycle with the given identity
func (m *Manager) Cycle(id uuid.UUID) (ledger.Cycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, c := range m.cycles {
		if c.ID == id {
			return c.Clone(), nil
		}
	}
	return ledger.Cycle{}, fmt.Errorf("cycle %s: %w", id, entities.ErrNotFound)
}

// Cycles returns a copy of every cycle in creation order
func (m *Manager) Cycles() []ledger.Cycle {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ledger.CloneAll(m.cycles)
}

// Snapshot returns the current state without mutating it
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		Cycles:  ledger.CloneAll(m.cycles),
		Version: m.version,
		TakenAt: m.clock(),
	}
}

// activeIndex returns the position of the open cycle or -1 (caller holds the lock)
func (m *Manager) activeIndex() int {
	for i := range m.cycles {
		if m.cycles[i].IsOpen() {
			return i
		}
	}
	return -1
}

// commit bumps the version and copies the state (caller holds the write lock)
func (m *Manager) commit() Snapshot {
	m.version++
	return Snapshot{
		Cycles:  ledger.CloneAll(m.cycles),
		Version: m.version,
		TakenAt: m.clock(),
	}
}

// unlockAndNotify releases the write lock and delivers snap to every subscriber.
// notifyMu is taken before the write lock is released so deliveries follow commit order.
// Subscribers must not call back into the manager.
func (m *Manager) unlockAndNotify(snap Snapshot) {
	subs := make([]func(Snapshot), len(m.subscribers))
	copy(subs, m.subscribers)

	m.notifyMu.Lock()
	m.mu.Unlock()
	defer m.notifyMu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}
