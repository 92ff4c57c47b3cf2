package session

import (
	"sort"
	"sync"
)

// InMemoryStore is a volatile Store keeping saved state in a process local
// map. It is safe for concurrent access and best suited for tests or
// ephemeral runs. Stored and returned byte slices are copied to prevent
// external mutation of internal state.
type InMemoryStore struct {
	mu    sync.RWMutex
	saves map[string][]byte
}

// NewInMemoryStore constructs an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{saves: make(map[string][]byte)}
}

// Save stores a copy of data under name, overwriting any previous save.
func (s *InMemoryStore) Save(name string, data []byte) error {
	if err := validateName(name); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves[name] = append([]byte(nil), data...)
	return nil
}

// Load returns a copy of the state saved under name.
func (s *InMemoryStore) Load(name string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.saves[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// List returns the saved names in lexical order.
func (s *InMemoryStore) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.saves))
	for name := range s.saves {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
