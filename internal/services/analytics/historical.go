package analytics

import (
	"context"
	"math"

	"VolGuard/internal/domain/models"
	domsvc "VolGuard/internal/domain/service"
	"VolGuard/internal/services/features"
)

const (
	// TradingDaysPerYear annualizes a daily standard deviation.
	TradingDaysPerYear = 252
	// MaxUndefinedReturns is the most undefined returns tolerated in the trailing window.
	MaxUndefinedReturns = 5
)

// HistoricalEstimator annualizes the sample stddev of the trailing daily close-to-close returns.
type HistoricalEstimator struct{}

func NewHistoricalEstimator() *HistoricalEstimator { return &HistoricalEstimator{} }

func (*HistoricalEstimator) Name() string { return "historical" }

func (*HistoricalEstimator) Estimate(_ context.Context, bars, _ []models.PriceBar) (float64, error) {
	if len(bars) == 0 {
		return 0, &models.ValidationError{Field: "bars", Reason: "is empty"}
	}
	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	returns := features.Tail(features.PctChange(closes, 1), features.Window)
	missing := features.CountMissing(returns)
	if missing > MaxUndefinedReturns {
		return 0, &models.InsufficientDataError{
			Instrument: bars[0].Instrument,
			Need:       features.Window - MaxUndefinedReturns,
			Have:       len(returns) - missing,
			Reason:     "too many undefined returns in trailing window",
		}
	}
	std := features.SampleStd(features.Defined(returns))
	if models.IsMissing(std) {
		return 0, &models.InsufficientDataError{
			Instrument: bars[0].Instrument,
			Need:       2,
			Have:       len(returns) - missing,
			Reason:     "not enough defined returns",
		}
	}
	return std * math.Sqrt(TradingDaysPerYear), nil
}

var _ domsvc.VolatilityEstimator = (*HistoricalEstimator)(nil)
