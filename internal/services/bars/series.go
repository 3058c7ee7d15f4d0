package bars

import (
	"fmt"
	"sort"
	"strings"

	"VolGuard/internal/domain/models"
)

// Kind tells instrument bars from benchmark bars in object keys.
type Kind string

const (
	KindStock     Kind = "stocks"
	KindBenchmark Kind = "benchmarks"
)

// SanitizeInstrument normalizes a ticker: index carets are dropped and letters upper-cased.
func SanitizeInstrument(s string) string {
	return strings.ToUpper(strings.TrimPrefix(strings.TrimSpace(s), "^"))
}

// InstrumentFromKey extracts the instrument from keys shaped like
// market-data/<kind>/<TICKER>/<file>. ok is false for any other layout.
func InstrumentFromKey(key string) (instrument string, kind Kind, ok bool) {
	parts := strings.Split(strings.TrimPrefix(key, "/"), "/")
	if len(parts) < 4 || parts[0] != "market-data" {
		return "", "", false
	}
	switch Kind(parts[1]) {
	case KindStock, KindBenchmark:
	default:
		return "", "", false
	}
	instrument = SanitizeInstrument(parts[2])
	if instrument == "" {
		return "", "", false
	}
	return instrument, Kind(parts[1]), true
}

// SortByDate orders bars ascending by date and rejects duplicate days.
func SortByDate(bars []models.PriceBar) ([]models.PriceBar, error) {
	out := append([]models.PriceBar(nil), bars...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if err := ValidateSeries(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateSeries checks that bars belong to one instrument, are strictly
// ascending by day and carry no duplicates.
func ValidateSeries(bars []models.PriceBar) error {
	for i := 1; i < len(bars); i++ {
		prev, cur := bars[i-1], bars[i]
		if cur.Instrument != bars[0].Instrument {
			return &models.ValidationError{Field: "instrument", Reason: fmt.Sprintf("series mixes %q and %q", bars[0].Instrument, cur.Instrument)}
		}
		if prev.DayKey() == cur.DayKey() {
			return &models.ValidationError{Field: "date", Reason: fmt.Sprintf("duplicate date %s", cur.DayKey())}
		}
		if cur.Date.Before(prev.Date) {
			return &models.ValidationError{Field: "date", Reason: fmt.Sprintf("unsorted at %s", cur.DayKey())}
		}
	}
	return nil
}
