package store

import (
	"context"
	"fmt"
	"sync"

	"proctrack/internal/refnum/models"
	"proctrack/pkg/platform/sentinel"
)

// InMemory is a sequence store for tests and single-process development.
// Each key has its own lock so callers on different keys never contend; a
// caller waiting on a busy key gives up when its context ends.
type InMemory struct {
	mu     sync.Mutex
	values map[models.Key]int64
	locks  map[models.Key]chan struct{}
}

func NewInMemory() *InMemory {
	return &InMemory{
		values: make(map[models.Key]int64),
		locks:  make(map[models.Key]chan struct{}),
	}
}

// Next increments and returns the counter for key.
func (s *InMemory) Next(ctx context.Context, key models.Key) (int64, error) {
	lock := s.lockFor(key)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return 0, fmt.Errorf("%w: %s: %w", sentinel.ErrLockTimeout, key, ctx.Err())
	}
	defer func() { <-lock }()

	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.values[key] + 1
	s.values[key] = next
	return next, nil
}

func (s *InMemory) lockFor(key models.Key) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = make(chan struct{}, 1)
		s.locks[key] = lock
	}
	return lock
}
