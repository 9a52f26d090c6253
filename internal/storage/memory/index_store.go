// Package memory keeps index rows in-memory for development and tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/tdsharvest/internal/harvest"
	"github.com/JakeFAU/tdsharvest/internal/storage"
)

// IndexStore holds typed rows keyed by location.
type IndexStore struct {
	mu    sync.RWMutex
	rows  map[string][]any
	order []string
}

var _ harvest.IndexStore = (*IndexStore)(nil)

// NewIndexStore creates an empty in-memory index.
func NewIndexStore() *IndexStore {
	return &IndexStore{rows: make(map[string][]any)}
}

// Insert stores the record's typed values. Duplicate locations are rejected.
func (s *IndexStore) Insert(_ context.Context, record harvest.AttributeRecord) error {
	args, err := record.Typed()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	key := record.Key()
	if _, ok := s.rows[key]; ok {
		return fmt.Errorf("%w: %s", storage.ErrDuplicateKey, key)
	}
	s.rows[key] = args
	s.order = append(s.order, key)
	return nil
}

// Row returns the typed values stored for location.
func (s *IndexStore) Row(location string) ([]any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	row, ok := s.rows[location]
	return append([]any(nil), row...), ok
}

// Locations returns the indexed keys in insertion order.
func (s *IndexStore) Locations() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.order...)
}

// Close is a no-op.
func (s *IndexStore) Close() error {
	return nil
}
