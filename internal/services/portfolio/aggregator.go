package portfolio

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"VolGuard/internal/domain/models"
	domrepo "VolGuard/internal/domain/repository"
)

// Aggregator computes the quantity-weighted volatility of a client's holdings.
// Cross-instrument correlation is not modelled.
type Aggregator struct {
	store domrepo.VolatilityStore
}

func NewAggregator(store domrepo.VolatilityStore) *Aggregator {
	return &Aggregator{store: store}
}

// Aggregate returns the portfolio volatility and one display line per eligible
// holding. Holdings without a record are listed with a nil volatility but take
// no part in the weighting. ErrAggregationEmpty is returned when no holding has
// a record.
func (a *Aggregator) Aggregate(ctx context.Context, holdings []models.Holding) (float64, []models.HoldingVolatility, error) {
	lines := make([]models.HoldingVolatility, 0, len(holdings))
	var weighted, total float64
	for _, h := range holdings {
		inst := strings.TrimSpace(h.Instrument)
		if inst == "" || models.IsMissing(h.Quantity) || h.Quantity <= 0 {
			continue
		}
		rec, err := a.store.GetLatest(ctx, inst)
		if err != nil {
			return 0, nil, fmt.Errorf("latest volatility %s: %w", inst, err)
		}
		line := models.HoldingVolatility{Instrument: inst, Quantity: h.Quantity}
		if rec != nil && !models.IsMissing(rec.PredictedVolatility) {
			v := rec.PredictedVolatility
			line.Volatility = &v
			weighted += h.Quantity * v
			total += h.Quantity
		}
		lines = append(lines, line)
	}
	if total == 0 {
		return 0, lines, models.ErrAggregationEmpty
	}
	return weighted / total, lines, nil
}

// RunCache memoizes latest-record lookups for the duration of one fan-out run,
// so clients sharing instruments do not repeat store reads.
type RunCache struct {
	store domrepo.VolatilityStore

	mu   sync.Mutex
	recs map[string]*models.VolatilityRecord
}

func NewRunCache(store domrepo.VolatilityStore) *RunCache {
	return &RunCache{store: store, recs: make(map[string]*models.VolatilityRecord)}
}

func (c *RunCache) GetLatest(ctx context.Context, instrument string) (*models.VolatilityRecord, error) {
	c.mu.Lock()
	rec, ok := c.recs[instrument]
	c.mu.Unlock()
	if ok {
		return rec, nil
	}
	rec, err := c.store.GetLatest(ctx, instrument)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.recs[instrument] = rec
	c.mu.Unlock()
	return rec, nil
}

func (c *RunCache) Put(ctx context.Context, rec models.VolatilityRecord) error {
	c.mu.Lock()
	delete(c.recs, rec.Instrument)
	c.mu.Unlock()
	return c.store.Put(ctx, rec)
}

var _ domrepo.VolatilityStore = (*RunCache)(nil)
