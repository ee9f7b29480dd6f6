package store

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultRetention is how long an expired passcode record is kept so that a
// late verification still reports expiry instead of absence.
const DefaultRetention = time.Hour

// MemoryOptions tunes the in-process backends.
type MemoryOptions struct {
	Retention time.Duration
	Now       func() time.Time
}

func (o MemoryOptions) normalize() MemoryOptions {
	if o.Retention <= 0 {
		o.Retention = DefaultRetention
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// MemoryOTPStore keeps passcode records in a map. Mutation is serialized
// per key; reads only take the map lock.
type MemoryOTPStore struct {
	opts MemoryOptions

	mu      sync.RWMutex
	records map[string]OTPRecord
	locks   *keyedMutex
}

// NewMemoryOTPStore returns an empty in-process passcode store.
func NewMemoryOTPStore(opts MemoryOptions) *MemoryOTPStore {
	return &MemoryOTPStore{
		opts:    opts.normalize(),
		records: make(map[string]OTPRecord),
		locks:   newKeyedMutex(),
	}
}

func (s *MemoryOTPStore) Put(ctx context.Context, key string, rec OTPRecord) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	unlock := s.locks.Lock(key)
	defer unlock()

	s.mu.Lock()
	s.records[key] = rec
	s.mu.Unlock()
	return nil
}

func (s *MemoryOTPStore) Get(ctx context.Context, key string) (*OTPRecord, error) {
	s.mu.RLock()
	rec, ok := s.records[key]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return &rec, nil
}

func (s *MemoryOTPStore) Mutate(ctx context.Context, key string, fn MutateFunc) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	unlock := s.locks.Lock(key)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	var current *OTPRecord
	s.mu.RLock()
	if rec, ok := s.records[key]; ok {
		current = &rec
	}
	s.mu.RUnlock()

	action, err := fn(current)
	if err != nil {
		return err
	}

	switch action {
	case Put:
		if current == nil {
			return ErrNotFound
		}
		s.mu.Lock()
		s.records[key] = *current
		s.mu.Unlock()
	case Delete:
		s.mu.Lock()
		delete(s.records, key)
		s.mu.Unlock()
	}
	return nil
}

func (s *MemoryOTPStore) Delete(ctx context.Context, key string) error {
	unlock := s.locks.Lock(key)
	defer unlock()

	s.mu.Lock()
	delete(s.records, key)
	s.mu.Unlock()
	return nil
}

// Sweep drops records that expired more than the retention period ago and
// returns how many were removed.
func (s *MemoryOTPStore) Sweep() int {
	cutoff := s.opts.Now().Add(-s.opts.Retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, rec := range s.records {
		if rec.ExpiresAt.Before(cutoff) {
			delete(s.records, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of stored records.
func (s *MemoryOTPStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

type sessionEntry struct {
	rec      SessionRecord
	deadline time.Time
}

// MemorySessionStore keeps session records in a map.
type MemorySessionStore struct {
	opts MemoryOptions

	mu       sync.RWMutex
	sessions map[string]sessionEntry
}

// NewMemorySessionStore returns an empty in-process session store.
func NewMemorySessionStore(opts MemoryOptions) *MemorySessionStore {
	return &MemorySessionStore{
		opts:     opts.normalize(),
		sessions: make(map[string]sessionEntry),
	}
}

func (s *MemorySessionStore) Create(ctx context.Context, rec SessionRecord, ttl time.Duration) error {
	if strings.TrimSpace(rec.ID) == "" {
		return ErrInvalidKey
	}

	s.mu.Lock()
	s.sessions[rec.ID] = sessionEntry{rec: rec, deadline: s.opts.Now().Add(ttl)}
	s.mu.Unlock()
	return nil
}

func (s *MemorySessionStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	s.mu.RLock()
	entry, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	rec := entry.rec
	return &rec, nil
}

func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
	return nil
}

// Sweep drops sessions whose backend ttl elapsed.
func (s *MemorySessionStore) Sweep() int {
	now := s.opts.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.sessions {
		if now.After(entry.deadline) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// Sweeper is implemented by backends that need periodic cleanup.
type Sweeper interface {
	Sweep() int
}

// RunJanitor calls Sweep on every sweeper at each interval until ctx is
// cancelled.
func RunJanitor(ctx context.Context, interval time.Duration, sweepers ...Sweeper) {
	if interval <= 0 || len(sweepers) == 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, s := range sweepers {
				s.Sweep()
			}
		}
	}
}
