package store

import (
	"context"
	"sync"
	"time"

	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/internal/reliability"
)

// MemoryStore implements Store with a map guarded by a RWMutex.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*models.RequestState
	ttl     time.Duration
	opts    options
	sweeper *sweeper
}

// NewMemoryStore creates a MemoryStore and starts its sweeper. A non-positive
// sweepInterval disables the background sweep; expired entries are still hidden from Get.
func NewMemoryStore(ttl, sweepInterval time.Duration, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*models.RequestState),
		ttl:     ttl,
		opts:    buildOptions(opts),
	}
	s.sweeper = startSweeper(sweepInterval, s.opts.logger, s)
	return s
}

// Set stores a copy of state.
func (s *MemoryStore) Set(_ context.Context, state *models.RequestState) error {
	if state == nil || state.RequestID == "" {
		return &reliability.ValidationError{Field: "requestId", Message: "required"}
	}
	c := state.Clone()
	stamp(c, s.opts.clock(), s.ttl)

	s.mu.Lock()
	s.entries[c.RequestID] = c
	s.mu.Unlock()
	return nil
}

// Get returns a copy of the live entry for id.
func (s *MemoryStore) Get(_ context.Context, id string) (*models.RequestState, error) {
	now := s.opts.clock()
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || e.Expired(now) {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}

// Update applies fn under the write lock.
func (s *MemoryStore) Update(_ context.Context, id string, fn func(*models.RequestState) error) (*models.RequestState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok || e.Expired(s.opts.clock()) {
		return nil, ErrNotFound
	}
	c := e.Clone()
	if err := fn(c); err != nil {
		return nil, err
	}
	c.RequestID = id
	stamp(c, s.opts.clock(), s.ttl)
	s.entries[id] = c
	return c.Clone(), nil
}

// Delete removes id. Deleting an absent id is not an error.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
	return nil
}

// Len returns the number of entries including expired ones not yet swept.
func (s *MemoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}

// Sweep removes entries whose expiry has passed.
func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	now := s.opts.clock()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

// Shutdown stops the sweeper and clears all entries.
func (s *MemoryStore) Shutdown() error {
	s.sweeper.halt()
	s.mu.Lock()
	s.entries = make(map[string]*models.RequestState)
	s.mu.Unlock()
	return nil
}
