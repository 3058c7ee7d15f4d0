package analytics

import (
	"context"
	"errors"
	"fmt"

	"VolGuard/internal/domain/models"
	domsvc "VolGuard/internal/domain/service"
	"VolGuard/internal/services/features"
	applogger "VolGuard/pkg/logger"
)

// ErrInvalidPrediction is returned when the model produces a non-finite value.
var ErrInvalidPrediction = errors.New("model produced a non-finite prediction")

// PredictiveEstimator feeds the engineered feature row into the cached regression model.
type PredictiveEstimator struct {
	holder *ModelHolder
	l      *applogger.Logger
}

func NewPredictiveEstimator(holder *ModelHolder, l *applogger.Logger) *PredictiveEstimator {
	if l == nil {
		l = applogger.NewNop()
	}
	return &PredictiveEstimator{holder: holder, l: l}
}

func (*PredictiveEstimator) Name() string { return "predictive" }

func (e *PredictiveEstimator) Estimate(ctx context.Context, bars, benchmark []models.PriceBar) (float64, error) {
	fv, err := features.Compute(bars, benchmark)
	if err != nil {
		return 0, err
	}
	if fv.BetaDefaulted {
		e.l.Warn("beta_30d defaulted to 0, benchmark window incomplete or misaligned",
			applogger.String("instrument", fv.Instrument),
			applogger.Int("benchmark_bars", len(benchmark)),
		)
	}
	m, err := e.holder.Get(ctx)
	if err != nil {
		return 0, err
	}
	y := m.Predict(m.Reindex(fv.AsMap()))
	if models.IsMissing(y) {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPrediction, y)
	}
	if y < 0 {
		y = 0
	}
	return y, nil
}

var _ domsvc.VolatilityEstimator = (*PredictiveEstimator)(nil)
