package bars

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"VolGuard/internal/domain/models"
)

var requiredColumns = []string{"date", "open", "high", "low", "close", "volume"}

var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC3339,
}

// ParseCSV reads bars with the columns date, open, high, low, close, volume and
// optionally adj_close (or adjusted_close) and ticker. Empty numeric cells are
// missing values. The instrument comes from the ticker column when present and
// from fallbackInstrument otherwise.
func ParseCSV(r io.Reader, fallbackInstrument string) ([]models.PriceBar, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, &models.ValidationError{Field: "header", Reason: "file is empty"}
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, col := range requiredColumns {
		if _, ok := idx[col]; !ok {
			return nil, &models.ValidationError{Field: col, Reason: "column is missing"}
		}
	}
	adjCol, hasAdj := idx["adj_close"]
	if !hasAdj {
		adjCol, hasAdj = idx["adjusted_close"]
	}
	tickerCol, hasTicker := idx["ticker"]

	var out []models.PriceBar
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read line %d: %w", line, err)
		}

		date, err := parseDate(rec[idx["date"]])
		if err != nil {
			return nil, &models.ValidationError{Field: "date", Reason: fmt.Sprintf("line %d: %v", line, err)}
		}
		bar := models.PriceBar{Date: date, AdjustedClose: math.NaN()}
		fields := []struct {
			col string
			dst *float64
		}{
			{"open", &bar.Open}, {"high", &bar.High}, {"low", &bar.Low},
			{"close", &bar.Close}, {"volume", &bar.Volume},
		}
		for _, f := range fields {
			if *f.dst, err = parseNumber(rec[idx[f.col]]); err != nil {
				return nil, &models.ValidationError{Field: f.col, Reason: fmt.Sprintf("line %d: %v", line, err)}
			}
		}
		if hasAdj {
			if bar.AdjustedClose, err = parseNumber(rec[adjCol]); err != nil {
				return nil, &models.ValidationError{Field: "adj_close", Reason: fmt.Sprintf("line %d: %v", line, err)}
			}
		}
		bar.Instrument = SanitizeInstrument(fallbackInstrument)
		if hasTicker && strings.TrimSpace(rec[tickerCol]) != "" {
			bar.Instrument = SanitizeInstrument(rec[tickerCol])
		}
		if bar.Instrument == "" {
			return nil, &models.ValidationError{Field: "ticker", Reason: fmt.Sprintf("line %d: instrument is unknown", line)}
		}
		out = append(out, bar)
	}
	return out, nil
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "nan") || strings.EqualFold(s, "null") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}
