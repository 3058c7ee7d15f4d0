package portfolio

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"

	"VolGuard/internal/domain/models"
)

type mapStore struct {
	recs  map[string]float64
	reads atomic.Int32
}

func (s *mapStore) GetLatest(_ context.Context, instrument string) (*models.VolatilityRecord, error) {
	s.reads.Add(1)
	v, ok := s.recs[instrument]
	if !ok {
		return nil, nil
	}
	return &models.VolatilityRecord{Instrument: instrument, PredictedVolatility: v}, nil
}

func (s *mapStore) Put(_ context.Context, rec models.VolatilityRecord) error {
	s.recs[rec.Instrument] = rec.PredictedVolatility
	return nil
}

func TestAggregateWeighted(t *testing.T) {
	agg := NewAggregator(&mapStore{recs: map[string]float64{"AAA": 0.2, "BBB": 0.4}})
	pv, lines, err := agg.Aggregate(context.Background(), []models.Holding{
		{Instrument: "AAA", Quantity: 100},
		{Instrument: "BBB", Quantity: 300},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(pv-0.35) > 1e-12 {
		t.Fatalf("expected 0.35, got %v", pv)
	}
	if len(lines) != 2 || *lines[1].Volatility != 0.4 {
		t.Fatalf("unexpected lines %+v", lines)
	}
}

func TestAggregateSkipsMissingAndInvalid(t *testing.T) {
	agg := NewAggregator(&mapStore{recs: map[string]float64{"AAA": 0.2}})
	pv, lines, err := agg.Aggregate(context.Background(), []models.Holding{
		{Instrument: "AAA", Quantity: 10},
		{Instrument: "NOREC", Quantity: 1000},
		{Instrument: "", Quantity: 5},
		{Instrument: "ZERO", Quantity: 0},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if pv != 0.2 {
		t.Fatalf("holdings without a record must not dilute the weighting, got %v", pv)
	}
	if len(lines) != 2 || lines[1].Volatility != nil {
		t.Fatalf("expected the unpriced holding listed without volatility, got %+v", lines)
	}
}

func TestAggregateEmpty(t *testing.T) {
	agg := NewAggregator(&mapStore{recs: map[string]float64{}})
	_, _, err := agg.Aggregate(context.Background(), []models.Holding{{Instrument: "AAA", Quantity: 1}})
	if !errors.Is(err, models.ErrAggregationEmpty) {
		t.Fatalf("expected ErrAggregationEmpty, got %v", err)
	}
}

func TestRunCacheReadsOnce(t *testing.T) {
	s := &mapStore{recs: map[string]float64{"AAA": 0.2}}
	c := NewRunCache(s)
	for i := 0; i < 3; i++ {
		if _, err := c.GetLatest(context.Background(), "AAA"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if got := s.reads.Load(); got != 1 {
		t.Fatalf("expected 1 store read, got %d", got)
	}
}
