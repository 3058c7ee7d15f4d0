package analytics

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"VolGuard/internal/domain/models"
)

func barsFromCloses(instrument string, closes []float64) []models.PriceBar {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.PriceBar, len(closes))
	for i, c := range closes {
		out[i] = models.PriceBar{
			Instrument: instrument, Date: start.AddDate(0, 0, i),
			Open: c, High: c, Low: c, Close: c, AdjustedClose: math.NaN(), Volume: 10,
		}
	}
	return out
}

func wavyCloses(n int) []float64 {
	out := make([]float64, n)
	out[0] = 50
	for i := 1; i < n; i++ {
		out[i] = out[i-1] * (1 + 0.02*math.Cos(float64(i)*1.3))
	}
	return out
}

func TestHistoricalEstimate(t *testing.T) {
	closes := wavyCloses(31)

	var rets []float64
	for i := 1; i < len(closes); i++ {
		rets = append(rets, closes[i]/closes[i-1]-1)
	}
	mean := 0.0
	for _, r := range rets {
		mean += r
	}
	mean /= float64(len(rets))
	ss := 0.0
	for _, r := range rets {
		ss += (r - mean) * (r - mean)
	}
	want := math.Sqrt(ss/float64(len(rets)-1)) * math.Sqrt(252)

	got, err := NewHistoricalEstimator().Estimate(context.Background(), barsFromCloses("MSFT", closes), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("want %v, got %v", want, got)
	}
}

func TestHistoricalTooManyUndefined(t *testing.T) {
	closes := wavyCloses(31)
	// each missing close leaves two undefined returns
	closes[10], closes[20], closes[25] = math.NaN(), math.NaN(), math.NaN()

	_, err := NewHistoricalEstimator().Estimate(context.Background(), barsFromCloses("MSFT", closes), nil)
	if !models.IsInsufficientData(err) {
		t.Fatalf("expected InsufficientDataError, got %v", err)
	}
}

func TestHistoricalToleratesFewUndefined(t *testing.T) {
	closes := wavyCloses(31)
	closes[10], closes[20] = math.NaN(), math.NaN()

	got, err := NewHistoricalEstimator().Estimate(context.Background(), barsFromCloses("MSFT", closes), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got <= 0 || math.IsNaN(got) {
		t.Fatalf("expected positive volatility, got %v", got)
	}
}

func TestHistoricalEmptyInput(t *testing.T) {
	_, err := NewHistoricalEstimator().Estimate(context.Background(), nil, nil)
	var ve *models.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}
