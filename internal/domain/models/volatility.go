package models

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// WireDateLayout is the day.month.year layout used by published records.
const WireDateLayout = "02.01.2006"

// VolatilityRecord is the latest volatility estimate for (instrument, date).
type VolatilityRecord struct {
	Instrument          string
	Date                time.Time
	PredictedVolatility float64
	ComputedAt          time.Time
	SourceReference     string
}

// Validate checks record invariants before it is persisted.
func (r VolatilityRecord) Validate() error {
	if r.Instrument == "" {
		return &ValidationError{Field: "instrument", Reason: "is required"}
	}
	if r.Date.IsZero() {
		return &ValidationError{Field: "date", Reason: "is required"}
	}
	if math.IsNaN(r.PredictedVolatility) || math.IsInf(r.PredictedVolatility, 0) || r.PredictedVolatility < 0 {
		return &ValidationError{Field: "predicted_volatility", Reason: fmt.Sprintf("must be finite and non-negative, got %v", r.PredictedVolatility)}
	}
	return nil
}

type volatilityRecordWire struct {
	Instrument          string `json:"instrument"`
	Date                string `json:"date"`
	PredictedVolatility string `json:"predicted_volatility"`
	ComputedAt          string `json:"computed_at"`
	SourceReference     string `json:"source_reference,omitempty"`
}

// MarshalJSON encodes the record in its published wire form.
func (r VolatilityRecord) MarshalJSON() ([]byte, error) {
	return json.Marshal(volatilityRecordWire{
		Instrument:          r.Instrument,
		Date:                r.Date.Format(WireDateLayout),
		PredictedVolatility: decimal.NewFromFloat(r.PredictedVolatility).String(),
		ComputedAt:          strconv.FormatInt(r.ComputedAt.Unix(), 10),
		SourceReference:     r.SourceReference,
	})
}

// UnmarshalJSON decodes the published wire form.
func (r *VolatilityRecord) UnmarshalJSON(b []byte) error {
	var w volatilityRecordWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	date, err := time.ParseInLocation(WireDateLayout, w.Date, time.UTC)
	if err != nil {
		return &ValidationError{Field: "date", Reason: err.Error()}
	}
	vol, err := decimal.NewFromString(w.PredictedVolatility)
	if err != nil {
		return &ValidationError{Field: "predicted_volatility", Reason: err.Error()}
	}
	var computed time.Time
	if w.ComputedAt != "" {
		secs, err := strconv.ParseInt(w.ComputedAt, 10, 64)
		if err != nil {
			return &ValidationError{Field: "computed_at", Reason: err.Error()}
		}
		computed = time.Unix(secs, 0).UTC()
	}
	v, _ := vol.Float64()
	*r = VolatilityRecord{
		Instrument:          w.Instrument,
		Date:                date,
		PredictedVolatility: v,
		ComputedAt:          computed,
		SourceReference:     w.SourceReference,
	}
	return nil
}

// VolatilityUpdate announces that new records were written for instruments.
type VolatilityUpdate struct {
	Instruments []string  `json:"instruments"`
	EmittedAt   time.Time `json:"emitted_at"`
}
