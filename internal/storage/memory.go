package storage

import (
	"context"
	"sync"
	"time"

	"watchdog/internal/eventlog"
)

// memoryStore keeps events in process memory only.
// It is the reference implementation the driver tests are written against.
type memoryStore struct {
	mu     sync.Mutex
	events []eventlog.Event // ascending id order
	nextID int64
	closed bool
}

// NewMemory returns an empty volatile store.
func NewMemory() Store {
	return &memoryStore{nextID: 1}
}

func (s *memoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Append(ctx context.Context, e eventlog.Event) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrDisabled
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	e.ID = s.nextID
	s.nextID++
	s.events = append(s.events, e)
	return e.ID, nil
}

func (s *memoryStore) NthNewestID(ctx context.Context, n int) (int64, bool, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, false, ErrDisabled
	}
	if n < 1 || n > len(s.events) {
		return 0, false, nil
	}
	return s.events[len(s.events)-n].ID, true, nil
}

func (s *memoryStore) DeleteBefore(ctx context.Context, threshold int64) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrDisabled
	}
	i := 0
	for i < len(s.events) && s.events[i].ID < threshold {
		i++
	}
	if i == 0 {
		return 0, nil
	}
	s.events = append(s.events[:0:0], s.events[i:]...)
	return int64(i), nil
}

func (s *memoryStore) Recent(ctx context.Context, limit int) ([]eventlog.Event, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrDisabled
	}
	if limit < 1 {
		return nil, nil
	}
	if limit > len(s.events) {
		limit = len(s.events)
	}
	out := make([]eventlog.Event, 0, limit)
	for i := len(s.events) - 1; i >= len(s.events)-limit; i-- {
		out = append(out, s.events[i])
	}
	return out, nil
}

func (s *memoryStore) Count(ctx context.Context) (int64, error) {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrDisabled
	}
	return int64(len(s.events)), nil
}
