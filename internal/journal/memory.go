package journal

import (
	"context"
	"errors"
	"sync"
	"time"
)

// MemoryStore keeps entries in process memory. Entries are lost on restart.
type MemoryStore struct {
	mu      sync.Mutex
	entries []Entry
	applied map[string]struct{}
	now     func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		applied: map[string]struct{}{},
		now:     time.Now,
	}
}

func (s *MemoryStore) Record(_ context.Context, e Entry) error {
	if e.EventID == "" {
		return errors.New("journal: event id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e = prepare(e, s.now())
	if e.Outcome == OutcomeApplied {
		if _, ok := s.applied[e.EventID]; ok {
			return nil
		}
		s.applied[e.EventID] = struct{}{}
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *MemoryStore) Applied(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.applied[eventID]
	return ok, nil
}

func (s *MemoryStore) Recent(_ context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, 0, min(limit, len(s.entries)))
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.entries[i])
	}
	return out, nil
}

func (s *MemoryStore) Prune(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.entries[:0]
	var removed int64
	for _, e := range s.entries {
		if e.CreatedAt.Before(before) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	clear(s.entries[len(kept):])
	s.entries = kept

	s.applied = map[string]struct{}{}
	for _, e := range s.entries {
		if e.Outcome == OutcomeApplied {
			s.applied[e.EventID] = struct{}{}
		}
	}
	return removed, nil
}
