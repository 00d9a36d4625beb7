// Package stats holds the error metrics and interval math shared by forecasters.
package stats

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// maxWidth caps the coverage so the quantile stays finite
const maxWidth = 0.9999

// ZScore returns the two-sided normal quantile for a coverage width in (0, 1)
func ZScore(width float64) float64 {
	if width <= 0 {
		return 0
	}
	if width >= 1 {
		width = maxWidth
	}
	return distuv.UnitNormal.Quantile(0.5 + width/2)
}

// HalfWidth returns z·σ·√h, the interval half-width h steps ahead
func HalfWidth(z, sigma float64, h int) float64 {
	return z * sigma * math.Sqrt(float64(h))
}

// MeanStd returns the mean and sample standard deviation (0 for n < 2)
func MeanStd(values []float64) (float64, float64) {
	switch len(values) {
	case 0:
		return 0, 0
	case 1:
		return values[0], 0
	}
	return stat.MeanStdDev(values, nil)
}

// MAE returns the mean absolute error of residuals
func MAE(residuals []float64) float64 {
	if len(residuals) == 0 {
		return 0
	}
	return floats.Norm(residuals, 1) / float64(len(residuals))
}

// RMSE returns the root mean squared error of residuals
func RMSE(residuals []float64) float64 {
	if len(residuals) == 0 {
		return 0
	}
	return math.Sqrt(floats.Dot(residuals, residuals) / float64(len(residuals)))
}

// ResidualStd returns sqrt(SSE / (n - params)), falling back to n when
// degrees of freedom run out
func ResidualStd(residuals []float64, params int) float64 {
	n := len(residuals)
	if n == 0 {
		return 0
	}
	df := n - params
	if df < 1 {
		df = n
	}
	return math.Sqrt(floats.Dot(residuals, residuals) / float64(df))
}

// Accumulator pools residuals across entities
type Accumulator struct {
	absSum float64
	sqSum  float64
	n      int
}

// Add appends residuals
func (a *Accumulator) Add(residuals []float64) {
	if len(residuals) == 0 {
		return
	}
	a.absSum += floats.Norm(residuals, 1)
	a.sqSum += floats.Dot(residuals, residuals)
	a.n += len(residuals)
}

// MAE of everything added so far
func (a *Accumulator) MAE() float64 {
	if a.n == 0 {
		return 0
	}
	return a.absSum / float64(a.n)
}

// RMSE of everything added so far
func (a *Accumulator) RMSE() float64 {
	if a.n == 0 {
		return 0
	}
	return math.Sqrt(a.sqSum / float64(a.n))
}

// Count returns the number of residuals added
func (a *Accumulator) Count() int {
	return a.n
}
