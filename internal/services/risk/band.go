package risk

import (
	"fmt"
	"time"

	"VolGuard/internal/domain/models"
)

// DefaultTolerance applies when neither the client nor configuration sets one.
const DefaultTolerance = 0.10

// Evaluator classifies a portfolio volatility against the client's tolerance band.
type Evaluator struct {
	defaultTolerance float64
	now              func() time.Time
}

func NewEvaluator(defaultTolerance float64) (*Evaluator, error) {
	if defaultTolerance < 0 || models.IsMissing(defaultTolerance) {
		return nil, &models.ValidationError{Field: "default_tolerance", Reason: fmt.Sprintf("must be >= 0, got %v", defaultTolerance)}
	}
	return &Evaluator{defaultTolerance: defaultTolerance, now: time.Now}, nil
}

// Band is the inclusive interval [Lower, Upper] around Target.
type Band struct {
	Target    float64
	Tolerance float64
	Lower     float64
	Upper     float64
}

// Contains reports whether v lies inside the band, bounds included.
func (b Band) Contains(v float64) bool {
	return b.Lower <= v && v <= b.Upper
}

// BandFor resolves the band. A nil target falls back to the portfolio volatility
// itself and a nil tolerance to the configured default.
func (e *Evaluator) BandFor(portfolioVol float64, target, tolerance *float64) (Band, error) {
	t := portfolioVol
	if target != nil && !models.IsMissing(*target) {
		t = *target
	}
	tol := e.defaultTolerance
	if tolerance != nil && !models.IsMissing(*tolerance) {
		tol = *tolerance
	}
	if tol < 0 {
		return Band{}, &models.ValidationError{Field: "volatility_tolerance", Reason: fmt.Sprintf("must be >= 0, got %v", tol)}
	}
	lower, upper := t*(1-tol), t*(1+tol)
	if lower > upper {
		// negative targets flip the interval
		lower, upper = upper, lower
	}
	return Band{Target: t, Tolerance: tol, Lower: lower, Upper: upper}, nil
}

// Evaluate builds the assessment of one client from its aggregated volatility.
func (e *Evaluator) Evaluate(client models.ClientProfile, portfolioVol float64, lines []models.HoldingVolatility) (models.PortfolioRiskAssessment, error) {
	band, err := e.BandFor(portfolioVol, client.TargetVolatility, client.VolatilityTolerance)
	if err != nil {
		return models.PortfolioRiskAssessment{}, fmt.Errorf("client %s: %w", client.ClientID, err)
	}
	return models.PortfolioRiskAssessment{
		ClientID:            client.ClientID,
		PortfolioVolatility: portfolioVol,
		TargetVolatility:    band.Target,
		Tolerance:           band.Tolerance,
		LowerBound:          band.Lower,
		UpperBound:          band.Upper,
		WithinBand:          band.Contains(portfolioVol),
		Holdings:            lines,
		EvaluatedAt:         e.now().UTC(),
	}, nil
}
