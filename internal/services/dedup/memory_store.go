package dedup

import (
	"context"
	"sync"
	"time"

	domrepo "VolGuard/internal/domain/repository"
)

// MemoryStore keeps cooldown marks in process memory behind one lock.
// It is only correct for a single process and is meant for development.
type MemoryStore struct {
	mu    sync.Mutex
	marks map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{marks: make(map[string]time.Time)}
}

func (s *MemoryStore) CompareAndMark(_ context.Context, clientID string, now time.Time, cooldown time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if last, ok := s.marks[clientID]; ok && !last.Before(now.Add(-cooldown)) {
		return false, nil
	}
	s.marks[clientID] = now
	return true, nil
}

var _ domrepo.CooldownStore = (*MemoryStore)(nil)
