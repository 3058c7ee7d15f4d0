package analytics

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"

	"VolGuard/internal/domain/models"
	"VolGuard/internal/services/features"
)

type stubSource struct {
	raw   []byte
	fails int32
	calls atomic.Int32
}

func (s *stubSource) Fetch(context.Context) ([]byte, error) {
	n := s.calls.Add(1)
	if n <= s.fails {
		return nil, errors.New("bucket unreachable")
	}
	return s.raw, nil
}

func (s *stubSource) Describe() string { return "stub" }

const artifact = `{
  "name": "ridge", "version": "3",
  "feature_columns": ["beta_30d", "unknown_col", "volatility_30d"],
  "intercept": 0.05,
  "coefficients": [0.7, 0.01, 10],
  "defaults": {"unknown_col": 2}
}`

func TestPredictiveEstimateReindexesByName(t *testing.T) {
	bars := barsFromCloses("NVDA", wavyCloses(45))
	fv, err := features.Compute(bars, nil)
	if err != nil {
		t.Fatalf("features: %v", err)
	}
	want := 0.05 + 0.7*0 + 0.01*2 + 10*fv.Volatility30d

	src := &stubSource{raw: []byte(artifact)}
	est := NewPredictiveEstimator(NewModelHolder(src, nil), nil)
	got, err := est.Estimate(context.Background(), bars, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(got-want) > 1e-12 {
		t.Fatalf("want %v, got %v", want, got)
	}
}

func TestModelHolderLoadsOnce(t *testing.T) {
	src := &stubSource{raw: []byte(artifact)}
	holder := NewModelHolder(src, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := holder.Get(context.Background()); err != nil {
				t.Errorf("get: %v", err)
			}
		}()
	}
	wg.Wait()
	if n := src.calls.Load(); n != 1 {
		t.Fatalf("expected a single fetch, got %d", n)
	}
}

func TestModelHolderDoesNotCacheFailure(t *testing.T) {
	src := &stubSource{raw: []byte(artifact), fails: 1}
	holder := NewModelHolder(src, nil)

	if _, err := holder.Get(context.Background()); !errors.Is(err, models.ErrModelUnavailable) {
		t.Fatalf("expected ErrModelUnavailable, got %v", err)
	}
	if _, err := holder.Get(context.Background()); err != nil {
		t.Fatalf("second load should succeed, got %v", err)
	}
}

func TestPredictiveClampsNegative(t *testing.T) {
	src := &stubSource{raw: []byte(`{"name":"neg","feature_columns":["volatility_30d"],"intercept":-5,"coefficients":[1]}`)}
	est := NewPredictiveEstimator(NewModelHolder(src, nil), nil)
	got, err := est.Estimate(context.Background(), barsFromCloses("NEG", wavyCloses(40)), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 0 {
		t.Fatalf("negative prediction should clamp to 0, got %v", got)
	}
}

func TestParseModelRejectsMismatch(t *testing.T) {
	if _, err := ParseModel([]byte(`{"feature_columns":["a","b"],"coefficients":[1]}`)); err == nil {
		t.Fatalf("expected error for column/coefficient mismatch")
	}
}
