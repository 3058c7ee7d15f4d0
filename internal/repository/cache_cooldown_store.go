package repository

import (
	"context"
	"fmt"
	"time"

	domrepo "VolGuard/internal/domain/repository"
	"VolGuard/pkg/cache"
)

// CacheCooldownStore uses a lock key that expires with the cooldown. The
// mark lives only in the cache, clients.last_notified_at is not written.
type CacheCooldownStore struct {
	locks cache.Locker
}

func NewCacheCooldownStore(l cache.Locker) *CacheCooldownStore {
	return &CacheCooldownStore{locks: l}
}

func (s *CacheCooldownStore) CompareAndMark(ctx context.Context, clientID string, _ time.Time, cooldown time.Duration) (bool, error) {
	if cooldown <= 0 {
		// a zero ttl would never expire in redis
		return true, nil
	}
	ok, err := s.locks.TryLock(ctx, cache.GenerateKey("cooldown", clientID), cooldown)
	if err != nil {
		return false, fmt.Errorf("cooldown lock %s: %w", clientID, err)
	}
	return ok, nil
}

var _ domrepo.CooldownStore = (*CacheCooldownStore)(nil)
