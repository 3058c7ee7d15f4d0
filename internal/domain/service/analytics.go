package service

import (
	"context"
	"time"

	"VolGuard/internal/domain/models"
)

// VolatilityEstimator produces an annualized volatility estimate from a
// date-sorted bar series. Benchmark bars are optional and may be ignored.
type VolatilityEstimator interface {
	Name() string
	Estimate(ctx context.Context, bars, benchmark []models.PriceBar) (float64, error)
}

// DedupGate admits at most one notification per client per cooldown window.
type DedupGate interface {
	TryAcquire(ctx context.Context, clientID string, cooldown time.Duration) (bool, error)
}
