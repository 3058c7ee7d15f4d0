package bars

import (
	"math"
	"strings"

	"VolGuard/internal/domain/models"
)

// FromInputs converts request bars into a date-sorted series. Nil numeric
// fields become missing values.
func FromInputs(in []models.BarInput) ([]models.PriceBar, error) {
	out := make([]models.PriceBar, 0, len(in))
	for _, b := range in {
		date, err := parseDate(b.Date)
		if err != nil {
			return nil, &models.ValidationError{Field: "date", Reason: err.Error()}
		}
		if strings.TrimSpace(b.Instrument) == "" {
			return nil, &models.ValidationError{Field: "instrument", Reason: "is required"}
		}
		out = append(out, models.PriceBar{
			Instrument:    SanitizeInstrument(b.Instrument),
			Date:          date,
			Open:          value(b.Open),
			High:          value(b.High),
			Low:           value(b.Low),
			Close:         value(b.Close),
			AdjustedClose: value(b.AdjustedClose),
			Volume:        value(b.Volume),
		})
	}
	return SortByDate(out)
}

// ToInputs is the inverse of FromInputs, used when bars travel as JSON.
func ToInputs(bars []models.PriceBar) []models.BarInput {
	out := make([]models.BarInput, len(bars))
	for i, b := range bars {
		out[i] = models.BarInput{
			Instrument:    b.Instrument,
			Date:          b.Date.UTC().Format("2006-01-02"),
			Open:          ptr(b.Open),
			High:          ptr(b.High),
			Low:           ptr(b.Low),
			Close:         ptr(b.Close),
			AdjustedClose: ptr(b.AdjustedClose),
			Volume:        ptr(b.Volume),
		}
	}
	return out
}

func value(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func ptr(v float64) *float64 {
	if models.IsMissing(v) {
		return nil
	}
	return &v
}

// Usable counts bars with a defined price.
func Usable(bars []models.PriceBar) int {
	n := 0
	for _, b := range bars {
		if !models.IsMissing(b.Price()) {
			n++
		}
	}
	return n
}
