// Package memory provides an in-memory table.Store for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"io/fs"
	"sync"

	"github.com/JakeFAU/contact-harvester/internal/table"
)

// Store keeps a deep copy of the last saved table.
type Store struct {
	mu      sync.RWMutex
	data    *table.Table
	saves   int
	saveErr error
}

// NewStore creates a Store. A nil table behaves like a missing file.
func NewStore(initial *table.Table) *Store {
	return &Store{data: initial.Clone()}
}

// Load returns a copy of the stored table or an error wrapping fs.ErrNotExist.
func (s *Store) Load(_ context.Context) (*table.Table, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.data == nil {
		return nil, fmt.Errorf("memory table: %w", fs.ErrNotExist)
	}
	return s.data.Clone(), nil
}

// Save stores a copy of t unless a save error was injected.
func (s *Store) Save(_ context.Context, t *table.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.data = t.Clone()
	s.saves++
	return nil
}

// FailSaves makes subsequent saves return err. Pass nil to clear.
func (s *Store) FailSaves(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saveErr = err
}

// Snapshot returns a copy of the stored table (nil if never saved).
func (s *Store) Snapshot() *table.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// Saves returns the number of successful saves.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
