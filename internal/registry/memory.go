package registry

import (
	"context"
	"sync"
	"time"

	"github.com/angeloszaimis/fleet-health/internal/service"
)

// Memory is an in-process Registry guarded by a single mutex.
type Memory struct {
	mutex  sync.Mutex
	order  []string
	roster map[string]service.Descriptor
	states map[string]service.State
}

// NewMemory creates an empty in-memory registry.
func NewMemory() *Memory {
	return &Memory{
		roster: make(map[string]service.Descriptor),
		states: make(map[string]service.State),
	}
}

// Register upserts descriptors, keeping first-registration order. Nothing is
// registered if any descriptor is unnamed.
func (m *Memory) Register(_ context.Context, descriptors []service.Descriptor) error {
	for _, d := range descriptors {
		if d.Name == "" {
			return ErrEmptyName
		}
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	for _, d := range descriptors {
		m.upsert(d)
	}

	return nil
}

// List returns a copy of the roster.
func (m *Memory) List(_ context.Context) ([]service.Descriptor, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	out := make([]service.Descriptor, 0, len(m.order))
	for _, name := range m.order {
		out = append(out, m.roster[name])
	}

	return out, nil
}

// Get returns the committed state for name.
func (m *Memory) Get(_ context.Context, name string) (service.State, bool, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	st, ok := m.states[name]
	return st, ok, nil
}

// Commit applies an observation. Unknown names are added to the roster and
// recorded as a first sighting.
func (m *Memory) Commit(_ context.Context, d service.Descriptor, active bool, when time.Time) (service.State, bool, error) {
	if d.Name == "" {
		return service.State{}, false, ErrEmptyName
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, known := m.roster[d.Name]; !known {
		m.upsert(d)
	}

	prev, seen := m.states[d.Name]
	if !seen {
		prev = Unseen()
	}

	m.states[d.Name] = Apply(prev, seen, active, when)

	return prev, seen, nil
}

// Snapshot returns descriptors with a committed state, in roster order.
func (m *Memory) Snapshot(_ context.Context) ([]service.Entry, error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	entries := make([]service.Entry, 0, len(m.states))
	for _, name := range m.order {
		st, ok := m.states[name]
		if !ok {
			continue
		}
		entries = append(entries, service.Entry{Descriptor: m.roster[name], State: st})
	}

	return entries, nil
}

func (m *Memory) upsert(d service.Descriptor) {
	if _, exists := m.roster[d.Name]; !exists {
		m.order = append(m.order, d.Name)
	}
	m.roster[d.Name] = d
}
