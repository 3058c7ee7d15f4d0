package features

import (
	"math"

	"VolGuard/internal/domain/models"
)

// Window is the trailing number of bars every rolling feature looks at.
const Window = 30

// Compute derives the FeatureVector for the latest bar of a date-sorted series.
// Benchmark bars are left-joined on the instrument dates; they may be empty.
// Rolling statistics are strict: a window holding any missing value is undefined
// and falls back to the fill default for that column.
func Compute(bars, benchmark []models.PriceBar) (models.FeatureVector, error) {
	n := len(bars)
	if n < Window {
		instrument := ""
		if n > 0 {
			instrument = bars[0].Instrument
		}
		return models.FeatureVector{}, &models.InsufficientDataError{Instrument: instrument, Need: Window, Have: n}
	}

	last := n - 1
	latest := bars[last]
	prices := priceSeries(bars)
	returns := PctChange(prices, 1)

	fv := models.FeatureVector{
		Instrument: latest.Instrument,
		Date:       latest.Date,
	}

	vol := rollingStd(returns, last, Window)
	if models.IsMissing(vol) {
		vol = SampleStd(Defined(Tail(returns, Window)))
	}
	fv.Volatility30d = orDefault(vol, 0)

	if last >= Window {
		fv.Momentum30d = orDefault(PctChange([]float64{prices[last-Window], prices[last]}, 1)[1], 0)
	}

	if peak := rollingMax(prices, last, Window); peak > 0 {
		fv.MaxDrawdown30d = orDefault((prices[last]-peak)/peak, 0)
	}

	tr := trueRange(bars)
	fv.ATR30d = orDefault(rollingMean(tr, last, Window), orDefault(Mean(Defined(tr)), 0))

	volumes := make([]float64, n)
	for i, b := range bars {
		volumes[i] = b.Volume
	}
	fv.AvgVolume30d = orDefault(rollingMean(volumes, last, Window), orDefault(Mean(Defined(volumes)), 0))
	fv.VolumeVolatility30d = orDefault(rollingStd(volumes, last, Window), 0)

	beta := rollingBeta(returns, alignBenchmark(bars, benchmark), last)
	fv.BetaDefaulted = models.IsMissing(beta)
	fv.Beta30d = orDefault(beta, 0)

	if p := prices[last]; p != 0 {
		fv.RangeRatio = orDefault((latest.High-latest.Low)/p, 0)
	}

	fv.UpDownRatio = upDownRatio(Tail(returns, Window))
	return fv, nil
}

// priceSeries prefers the adjusted close and falls back to the raw close per bar,
// which also covers a series whose adjusted column is absent altogether.
func priceSeries(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Price()
	}
	return out
}

// trueRange is max(h-l, |h-pc|, |l-pc|) ignoring undefined terms; the first bar has no pc.
func trueRange(bars []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		terms := []float64{b.High - b.Low}
		if i > 0 {
			pc := bars[i-1].Close
			if models.IsMissing(pc) {
				pc = bars[i-1].Price()
			}
			terms = append(terms, math.Abs(b.High-pc), math.Abs(b.Low-pc))
		}
		out[i] = math.NaN()
		for _, t := range terms {
			if models.IsMissing(t) {
				continue
			}
			if models.IsMissing(out[i]) || t > out[i] {
				out[i] = t
			}
		}
	}
	return out
}

// alignBenchmark returns benchmark returns indexed like bars. Dates the
// benchmark did not trade are NaN.
func alignBenchmark(bars, benchmark []models.PriceBar) []float64 {
	out := make([]float64, len(bars))
	if len(benchmark) == 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	bret := PctChange(priceSeries(benchmark), 1)
	byDay := make(map[string]float64, len(benchmark))
	for i, b := range benchmark {
		byDay[b.DayKey()] = bret[i]
	}
	for i, b := range bars {
		r, ok := byDay[b.DayKey()]
		if !ok {
			r = math.NaN()
		}
		out[i] = r
	}
	return out
}

func rollingBeta(ri, rb []float64, end int) float64 {
	xs, ok := window(ri, end, Window)
	if !ok {
		return math.NaN()
	}
	ys, ok := window(rb, end, Window)
	if !ok {
		return math.NaN()
	}
	v := SampleCov(ys, ys)
	if v == 0 || models.IsMissing(v) {
		return math.NaN()
	}
	return SampleCov(xs, ys) / v
}

func upDownRatio(returns []float64) float64 {
	up, down := 0, 0
	for _, r := range returns {
		switch {
		case models.IsMissing(r):
		case r > 0:
			up++
		case r < 0:
			down++
		}
	}
	if down == 0 {
		return 1
	}
	return float64(up) / float64(down)
}
