package risk

import (
	"math"
	"testing"

	"VolGuard/internal/domain/models"
)

func f(v float64) *float64 { return &v }

func TestBandInclusiveBounds(t *testing.T) {
	e, err := NewEvaluator(DefaultTolerance)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	cases := []struct {
		name   string
		vol    float64
		within bool
	}{
		{"lower bound", 0.27, true},
		{"just below", 0.269999, false},
		{"target", 0.30, true},
		{"upper bound", 0.33, true},
		{"above", 0.3301, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			band, err := e.BandFor(tc.vol, f(0.30), f(0.10))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(band.Lower-0.27) > 1e-12 || math.Abs(band.Upper-0.33) > 1e-12 {
				t.Fatalf("unexpected band [%v, %v]", band.Lower, band.Upper)
			}
			if got := band.Contains(tc.vol); got != tc.within {
				t.Fatalf("vol %v: want within=%v, got %v", tc.vol, tc.within, got)
			}
		})
	}
}

func TestBandFallbacks(t *testing.T) {
	e, _ := NewEvaluator(0.2)

	band, err := e.BandFor(0.5, nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if band.Target != 0.5 || band.Tolerance != 0.2 || !band.Contains(0.5) {
		t.Fatalf("missing target should fall back to portfolio vol, got %+v", band)
	}

	band, _ = e.BandFor(0.5, f(0.4), f(0.05))
	if band.Tolerance != 0.05 {
		t.Fatalf("client tolerance should override default, got %v", band.Tolerance)
	}
}

func TestBandRejectsNegativeTolerance(t *testing.T) {
	e, _ := NewEvaluator(0.1)
	if _, err := e.BandFor(0.3, f(0.3), f(-0.1)); !models.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, err := NewEvaluator(-1); err == nil {
		t.Fatalf("expected error for negative default tolerance")
	}
}

func TestEvaluateAssessment(t *testing.T) {
	e, _ := NewEvaluator(0.1)
	client := models.ClientProfile{ClientID: "C1", TargetVolatility: f(0.30)}
	a, err := e.Evaluate(client, 0.35, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a.WithinBand || a.ClientID != "C1" || a.LowerBound > a.UpperBound {
		t.Fatalf("unexpected assessment %+v", a)
	}
}
