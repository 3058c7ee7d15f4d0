package models

import (
	"math"
	"time"
)

// PriceBar is one daily OHLCV observation. Missing numeric values are NaN.
type PriceBar struct {
	Instrument    string    `json:"instrument" validate:"required"`
	Date          time.Time `json:"date" validate:"required"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	AdjustedClose float64   `json:"adjusted_close"`
	Volume        float64   `json:"volume"`
}

// IsMissing reports whether v is an absent or non-finite observation.
func IsMissing(v float64) bool {
	return math.IsNaN(v) || math.IsInf(v, 0)
}

// Price returns the adjusted close when present, the raw close otherwise.
func (b PriceBar) Price() float64 {
	if !IsMissing(b.AdjustedClose) {
		return b.AdjustedClose
	}
	return b.Close
}

// DayKey identifies the trading day of the bar independent of time of day.
func (b PriceBar) DayKey() string {
	return b.Date.UTC().Format("2006-01-02")
}
