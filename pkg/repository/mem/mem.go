// Package mem provides an in-memory repository store, for tests and
// single-process demos.
package mem

import (
	"context"
	"sync"

	"github.com/hushwire/hushwire/pkg/hashchain"
	"github.com/hushwire/hushwire/pkg/repository"
)

// Store is a mutex-guarded map. PutIfAbsent is atomic per key.
type Store struct {
	mu      sync.RWMutex
	entries map[hashchain.SequenceHash]repository.Entry
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{entries: make(map[hashchain.SequenceHash]repository.Entry)}
}

// PutIfAbsent implements repository.Store.
func (s *Store) PutIfAbsent(_ context.Context, h hashchain.SequenceHash, e repository.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[h]; ok {
		return repository.ErrDuplicateKey
	}
	cp := e
	cp.Ciphertext = append([]byte(nil), e.Ciphertext...)
	s.entries[h] = cp
	return nil
}

// Get implements repository.Store.
func (s *Store) Get(_ context.Context, h hashchain.SequenceHash) (*repository.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[h]
	if !ok {
		return nil, nil
	}
	cp := e
	cp.Ciphertext = append([]byte(nil), e.Ciphertext...)
	return &cp, nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
