package series

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// Store persists case series. Implementations are safe for concurrent
// use.
type Store interface {
	// Put stores the series and returns its ID, assigning a fresh one
	// when the series has none. Putting a series whose ID already
	// exists replaces it.
	Put(s *Series) (string, error)
	// Get returns the series under id, or ErrNotFound.
	Get(id string) (*Series, error)
	// List returns all stored series ordered by name.
	List() ([]*Series, error)
	// Delete removes the series under id, or returns ErrNotFound.
	Delete(id string) error
	Close() error
}

// MemoryStore is an in-process Store for tests and one-shot CLI runs.
type MemoryStore struct {
	mu     sync.RWMutex
	series map[string]*Series
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{series: make(map[string]*Series)}
}

func copySeries(s *Series) *Series {
	out := *s
	out.Times = append([]float64(nil), s.Times...)
	out.Counts = append([]float64(nil), s.Counts...)
	return &out
}

// Put stores a copy of the series.
func (m *MemoryStore) Put(s *Series) (string, error) {
	if s == nil {
		return "", fmt.Errorf("series: nil series")
	}
	if err := s.Validate(); err != nil {
		return "", err
	}

	stored := copySeries(s)
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}

	m.mu.Lock()
	m.series[stored.ID] = stored
	m.mu.Unlock()
	return stored.ID, nil
}

// Get returns a copy of the stored series.
func (m *MemoryStore) Get(id string) (*Series, error) {
	m.mu.RLock()
	stored, ok := m.series[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("series: get %q: %w", id, ErrNotFound)
	}
	return copySeries(stored), nil
}

// List returns copies of all stored series ordered by name.
func (m *MemoryStore) List() ([]*Series, error) {
	m.mu.RLock()
	out := make([]*Series, 0, len(m.series))
	for _, s := range m.series {
		out = append(out, copySeries(s))
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// Delete removes the series under id.
func (m *MemoryStore) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.series[id]; !ok {
		return fmt.Errorf("series: delete %q: %w", id, ErrNotFound)
	}
	delete(m.series, id)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemoryStore) Close() error { return nil }
