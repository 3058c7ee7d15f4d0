package features

import (
	"math"

	"VolGuard/internal/domain/models"
)

// PctChange computes r_t = x_t / x_{t-lag} - 1. Positions without a defined
// predecessor, or with a missing or non-finite result, are NaN.
func PctChange(xs []float64, lag int) []float64 {
	out := make([]float64, len(xs))
	for i := range xs {
		if i < lag {
			out[i] = math.NaN()
			continue
		}
		prev, cur := xs[i-lag], xs[i]
		if models.IsMissing(prev) || models.IsMissing(cur) || prev == 0 {
			out[i] = math.NaN()
			continue
		}
		out[i] = cur/prev - 1
	}
	return out
}

// Tail returns the last n values of xs (all of xs if shorter).
func Tail(xs []float64, n int) []float64 {
	if len(xs) <= n {
		return xs
	}
	return xs[len(xs)-n:]
}

// CountMissing counts NaN/Inf entries.
func CountMissing(xs []float64) int {
	n := 0
	for _, x := range xs {
		if models.IsMissing(x) {
			n++
		}
	}
	return n
}

// Defined returns the finite entries of xs.
func Defined(xs []float64) []float64 {
	out := make([]float64, 0, len(xs))
	for _, x := range xs {
		if !models.IsMissing(x) {
			out = append(out, x)
		}
	}
	return out
}

// Mean returns the arithmetic mean, NaN for an empty slice.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

// SampleStd returns the sample standard deviation (n-1 denominator), NaN when n < 2.
func SampleStd(xs []float64) float64 {
	return math.Sqrt(SampleCov(xs, xs))
}

// SampleCov returns the sample covariance of two equally sized slices, NaN when n < 2.
func SampleCov(xs, ys []float64) float64 {
	n := len(xs)
	if n < 2 || n != len(ys) {
		return math.NaN()
	}
	mx, my := Mean(xs), Mean(ys)
	acc := 0.0
	for i := 0; i < n; i++ {
		acc += (xs[i] - mx) * (ys[i] - my)
	}
	return acc / float64(n-1)
}

// window returns the w values ending at index end (inclusive). ok is false when
// the window is incomplete or holds a missing value, matching a strict rolling window.
func window(xs []float64, end, w int) ([]float64, bool) {
	start := end - w + 1
	if start < 0 || end >= len(xs) {
		return nil, false
	}
	vals := xs[start : end+1]
	for _, v := range vals {
		if models.IsMissing(v) {
			return nil, false
		}
	}
	return vals, true
}

func rollingMean(xs []float64, end, w int) float64 {
	vals, ok := window(xs, end, w)
	if !ok {
		return math.NaN()
	}
	return Mean(vals)
}

func rollingStd(xs []float64, end, w int) float64 {
	vals, ok := window(xs, end, w)
	if !ok {
		return math.NaN()
	}
	return SampleStd(vals)
}

func rollingMax(xs []float64, end, w int) float64 {
	vals, ok := window(xs, end, w)
	if !ok {
		return math.NaN()
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func orDefault(v, def float64) float64 {
	if models.IsMissing(v) {
		return def
	}
	return v
}
