package repository

import (
	"context"
	"errors"
	"time"

	"VolGuard/internal/domain/models"
	domrepo "VolGuard/internal/domain/repository"
	"VolGuard/pkg/cache"
	applogger "VolGuard/pkg/logger"
)

// CachedVolatilityStore is a read-through cache for latest records. Cache
// failures fall back to the backing store.
//
// Entries only move forward: a fill never replaces a cached record with an
// older one, and Put writes the backing store's new latest through. A layered
// cache is bypassed in favour of its shared remote, so every replica sees a
// write as soon as it lands.
type CachedVolatilityStore struct {
	next  domrepo.VolatilityStore
	cache cache.Service
	ttl   time.Duration
	l     *applogger.Logger
}

func NewCachedVolatilityStore(next domrepo.VolatilityStore, c cache.Service, ttl time.Duration, l *applogger.Logger) *CachedVolatilityStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if lc, ok := c.(interface{ Remote() cache.Service }); ok {
		c = lc.Remote()
	}
	return &CachedVolatilityStore{next: next, cache: c, ttl: ttl, l: l}
}

func latestKey(instrument string) string {
	return cache.GenerateKey("vol:latest", instrument)
}

// newer orders records by date, then by computation time.
func newer(a, b models.VolatilityRecord) bool {
	if !a.Date.Equal(b.Date) {
		return a.Date.After(b.Date)
	}
	return a.ComputedAt.After(b.ComputedAt)
}

func (s *CachedVolatilityStore) GetLatest(ctx context.Context, instrument string) (*models.VolatilityRecord, error) {
	var rec models.VolatilityRecord
	err := s.cache.Get(ctx, latestKey(instrument), &rec)
	if err == nil {
		return &rec, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.l.Warn("volatility cache read failed", applogger.String("instrument", instrument), applogger.Error(err))
	}

	got, err := s.next.GetLatest(ctx, instrument)
	if err != nil || got == nil {
		return got, err
	}
	return s.remember(ctx, *got), nil
}

// remember caches rec unless a newer record was cached meanwhile, and returns
// whichever of the two is newer.
func (s *CachedVolatilityStore) remember(ctx context.Context, rec models.VolatilityRecord) *models.VolatilityRecord {
	key := latestKey(rec.Instrument)
	var cur models.VolatilityRecord
	if err := s.cache.Get(ctx, key, &cur); err == nil && !newer(rec, cur) {
		return &cur
	}
	if err := s.cache.Set(ctx, key, rec, s.ttl); err != nil {
		s.l.Warn("volatility cache write failed", applogger.String("instrument", rec.Instrument), applogger.Error(err))
	}
	return &rec
}

// Put writes to the backing store, then caches its latest record for the
// instrument. When that read fails the entry is dropped instead.
func (s *CachedVolatilityStore) Put(ctx context.Context, rec models.VolatilityRecord) error {
	if err := s.next.Put(ctx, rec); err != nil {
		return err
	}
	latest, err := s.next.GetLatest(ctx, rec.Instrument)
	if err == nil && latest != nil {
		s.remember(ctx, *latest)
		return nil
	}
	if err := s.cache.Delete(ctx, latestKey(rec.Instrument)); err != nil {
		s.l.Warn("volatility cache invalidate failed", applogger.String("instrument", rec.Instrument), applogger.Error(err))
	}
	return nil
}

var _ domrepo.VolatilityStore = (*CachedVolatilityStore)(nil)
