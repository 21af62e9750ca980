// Package memory provides in-memory implementations of outbound ports.
package memory

import (
	"context"
	"errors"
	"sync"
)

// ErrStoreClosed is returned by SlotStore operations after Close.
var ErrStoreClosed = errors.New("slot store closed")

// SlotStore implements session.SlotStore with an in-memory map.
// Thread-safe for concurrent access. Used for tests and ephemeral runs,
// where the session must not outlive the process.
type SlotStore struct {
	mu     sync.RWMutex
	slots  map[string]string
	closed bool
}

// NewSlotStore creates an empty in-memory slot store.
func NewSlotStore() *SlotStore {
	return &SlotStore{slots: make(map[string]string)}
}

// Load returns the requested slots that are present.
func (s *SlotStore) Load(ctx context.Context, keys ...string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := s.slots[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Store writes all given slots under one lock.
func (s *SlotStore) Store(ctx context.Context, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	for k, v := range values {
		s.slots[k] = v
	}
	return nil
}

// Remove deletes the given slots under one lock.
func (s *SlotStore) Remove(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	for _, k := range keys {
		delete(s.slots, k)
	}
	return nil
}

// Close drops all slots. Further calls return ErrStoreClosed.
func (s *SlotStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.slots = nil
	return nil
}

// Len returns the number of stored slots.
func (s *SlotStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.slots)
}
