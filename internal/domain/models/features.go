package models

import "time"

// Feature column names as declared in model artifacts.
const (
	FeatVolatility30d       = "volatility_30d"
	FeatMomentum30d         = "momentum_30d"
	FeatMaxDrawdown30d      = "max_drawdown_30d"
	FeatATR30d              = "atr_30d"
	FeatAvgVolume30d        = "avg_volume_30d"
	FeatVolumeVolatility30d = "volume_volatility_30d"
	FeatBeta30d             = "beta_30d"
	FeatRangeRatio          = "range_ratio"
	FeatUpDownRatio         = "up_down_ratio"
)

// FeatureVector holds the derived statistics for the latest bar of a series.
type FeatureVector struct {
	Instrument          string    `json:"instrument"`
	Date                time.Time `json:"date"`
	Volatility30d       float64   `json:"volatility_30d"`
	Momentum30d         float64   `json:"momentum_30d"`
	MaxDrawdown30d      float64   `json:"max_drawdown_30d"`
	ATR30d              float64   `json:"atr_30d"`
	AvgVolume30d        float64   `json:"avg_volume_30d"`
	VolumeVolatility30d float64   `json:"volume_volatility_30d"`
	Beta30d             float64   `json:"beta_30d"`
	RangeRatio          float64   `json:"range_ratio"`
	UpDownRatio         float64   `json:"up_down_ratio"`

	// BetaDefaulted is set when beta_30d was filled because the benchmark
	// window was incomplete or misaligned with the instrument dates.
	BetaDefaulted bool `json:"-"`
}

// AsMap returns the vector keyed by column name.
func (f FeatureVector) AsMap() map[string]float64 {
	return map[string]float64{
		FeatVolatility30d:       f.Volatility30d,
		FeatMomentum30d:         f.Momentum30d,
		FeatMaxDrawdown30d:      f.MaxDrawdown30d,
		FeatATR30d:              f.ATR30d,
		FeatAvgVolume30d:        f.AvgVolume30d,
		FeatVolumeVolatility30d: f.VolumeVolatility30d,
		FeatBeta30d:             f.Beta30d,
		FeatRangeRatio:          f.RangeRatio,
		FeatUpDownRatio:         f.UpDownRatio,
	}
}
