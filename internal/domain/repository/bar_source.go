package repository

import (
	"context"

	"VolGuard/internal/domain/models"
)

// BarSource provides read-only access to daily price bars.
type BarSource interface {
	// GetLatestBars returns up to n most recent bars in ascending date order.
	GetLatestBars(ctx context.Context, instrument string, n int) ([]models.PriceBar, error)
}

// BarStore persists ingested bars and serves them back as a BarSource.
type BarStore interface {
	BarSource
	StoreBars(ctx context.Context, bars []models.PriceBar) error
}
