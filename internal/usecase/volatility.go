package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"VolGuard/internal/domain/models"
	domrepo "VolGuard/internal/domain/repository"
	domsvc "VolGuard/internal/domain/service"
	"VolGuard/internal/services/bars"
	"VolGuard/internal/services/features"
	applogger "VolGuard/pkg/logger"
)

// VolatilityUseCase turns stored bar history into persisted volatility records.
type VolatilityUseCase struct {
	bars        domrepo.BarStore
	store       domrepo.VolatilityStore
	publisher   domrepo.UpdatePublisher
	estimator   domsvc.VolatilityEstimator
	metrics     domrepo.Metrics
	l           *applogger.Logger
	historyBars int
	benchmark   string
	now         func() time.Time
}

func NewVolatilityUseCase(
	barStore domrepo.BarStore,
	store domrepo.VolatilityStore,
	publisher domrepo.UpdatePublisher,
	estimator domsvc.VolatilityEstimator,
	metrics domrepo.Metrics,
	l *applogger.Logger,
	historyBars int,
	benchmark string,
) *VolatilityUseCase {
	if historyBars < features.Window {
		historyBars = features.Window
	}
	return &VolatilityUseCase{
		bars:        barStore,
		store:       store,
		publisher:   publisher,
		estimator:   estimator,
		metrics:     metrics,
		l:           l,
		historyBars: historyBars,
		benchmark:   bars.SanitizeInstrument(benchmark),
		now:         time.Now,
	}
}

// Estimate computes a record from an in-memory series without persisting it.
// Series shorter than the feature window are rejected before the estimator runs.
func (u *VolatilityUseCase) Estimate(ctx context.Context, series, benchmark []models.PriceBar, sourceRef string) (models.VolatilityRecord, error) {
	if len(series) == 0 {
		return models.VolatilityRecord{}, &models.ValidationError{Field: "bars", Reason: "series is empty"}
	}
	instrument := series[len(series)-1].Instrument
	if n := bars.Usable(series); n < features.Window {
		return models.VolatilityRecord{}, &models.InsufficientDataError{Instrument: instrument, Need: features.Window, Have: n}
	}
	if err := bars.ValidateSeries(series); err != nil {
		return models.VolatilityRecord{}, err
	}
	if len(benchmark) > 0 {
		if err := bars.ValidateSeries(benchmark); err != nil {
			return models.VolatilityRecord{}, fmt.Errorf("benchmark: %w", err)
		}
	}

	start := time.Now()
	vol, err := u.estimator.Estimate(ctx, series, benchmark)
	u.metrics.RecordLatency("estimate_seconds", time.Since(start).Seconds())
	if err != nil {
		return models.VolatilityRecord{}, err
	}

	last := series[len(series)-1].Date.UTC()
	rec := models.VolatilityRecord{
		Instrument:          instrument,
		Date:                time.Date(last.Year(), last.Month(), last.Day(), 0, 0, 0, 0, time.UTC),
		PredictedVolatility: vol,
		ComputedAt:          u.now().UTC(),
		SourceReference:     sourceRef,
	}
	if err := rec.Validate(); err != nil {
		return models.VolatilityRecord{}, err
	}
	return rec, nil
}

// Refresh re-estimates an instrument from stored history, upserts the record
// and announces the update. Insufficient history is returned unchanged so the
// caller can treat it as a skip.
func (u *VolatilityUseCase) Refresh(ctx context.Context, instrument, sourceRef string) (*models.VolatilityRecord, error) {
	instrument = bars.SanitizeInstrument(instrument)
	series, err := u.bars.GetLatestBars(ctx, instrument, u.historyBars)
	if err != nil {
		u.metrics.RecordError("bars_read")
		return nil, fmt.Errorf("read bars %s: %w", instrument, err)
	}

	var benchmark []models.PriceBar
	if u.benchmark != "" && u.benchmark != instrument {
		benchmark, err = u.bars.GetLatestBars(ctx, u.benchmark, u.historyBars)
		if err != nil {
			// beta falls back to its default without a benchmark
			u.l.Warn("benchmark bars unavailable",
				applogger.String("benchmark", u.benchmark),
				applogger.Error(err),
			)
			benchmark = nil
		}
	}

	rec, err := u.Estimate(ctx, series, benchmark, sourceRef)
	switch {
	case err == nil:
	case models.IsInsufficientData(err):
		u.metrics.RecordOutcome("estimate", "insufficient")
		return nil, err
	case errors.Is(err, models.ErrModelUnavailable):
		u.metrics.RecordOutcome("estimate", "model_unavailable")
		return nil, err
	default:
		u.metrics.RecordOutcome("estimate", "error")
		return nil, fmt.Errorf("estimate %s: %w", instrument, err)
	}

	if err := u.store.Put(ctx, rec); err != nil {
		u.metrics.RecordError("volatility_put")
		return nil, fmt.Errorf("store volatility %s: %w", instrument, err)
	}
	u.metrics.RecordOutcome("estimate", "ok")
	u.metrics.RecordVolatility(instrument, rec.PredictedVolatility)

	update := models.VolatilityUpdate{Instruments: []string{instrument}, EmittedAt: rec.ComputedAt}
	if err := u.publisher.PublishUpdate(ctx, update); err != nil {
		u.metrics.RecordError("update_publish")
		return &rec, fmt.Errorf("publish update %s: %w", instrument, err)
	}
	u.l.Info("volatility updated",
		applogger.String("instrument", instrument),
		applogger.String("estimator", u.estimator.Name()),
		applogger.Float64("volatility", rec.PredictedVolatility),
		applogger.String("date", rec.Date.Format(models.WireDateLayout)),
	)
	return &rec, nil
}

// Ingest stores new bars for one instrument and refreshes its estimate.
// Benchmark bars are stored only.
func (u *VolatilityUseCase) Ingest(ctx context.Context, kind bars.Kind, series []models.PriceBar, sourceRef string) (*models.VolatilityRecord, error) {
	if len(series) == 0 {
		return nil, &models.ValidationError{Field: "bars", Reason: "series is empty"}
	}
	sorted, err := bars.SortByDate(series)
	if err != nil {
		return nil, err
	}
	if err := u.bars.StoreBars(ctx, sorted); err != nil {
		u.metrics.RecordError("bars_store")
		return nil, fmt.Errorf("store bars: %w", err)
	}
	if kind == bars.KindBenchmark {
		return nil, nil
	}
	return u.Refresh(ctx, sorted[0].Instrument, sourceRef)
}

// Latest returns the most recent record or models.ErrNotFound.
func (u *VolatilityUseCase) Latest(ctx context.Context, instrument string) (*models.VolatilityRecord, error) {
	rec, err := u.store.GetLatest(ctx, bars.SanitizeInstrument(instrument))
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, models.ErrNotFound
	}
	return rec, nil
}
