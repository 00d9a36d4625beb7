package series

import (
	"fmt"
	"math"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/internal/forecaster/stats"
)

// Model is additive Holt-Winters exponential smoothing:
//
//	Level:    L_t = α(Y_t - S_{t-m}) + (1-α)(L_{t-1} + T_{t-1})
//	Trend:    T_t = β(L_t - L_{t-1}) + (1-β)T_{t-1}
//	Seasonal: S_t = γ(Y_t - L_t) + (1-γ)S_{t-m}
//	Forecast: F_{t+h} = L_t + h·T_t + S_{t-m+h}
//
// With fewer than two full seasons it degrades to Holt's linear method (m = 1, no seasonal term).
type Model struct {
	period int
	alpha  float64
	beta   float64
	gamma  float64
	search bool
	active int // effective period after Fit

	level     float64
	trend     float64
	seasonals []float64
	n         int
	residuals []float64
	sigma     float64
	fitted    bool
}

// NewModel creates a model; zero smoothing factors trigger grid search on Fit
func NewModel(period int, alpha, beta, gamma float64) *Model {
	if period < 1 {
		period = 1
	}
	return &Model{
		period: period,
		alpha:  alpha,
		beta:   beta,
		gamma:  gamma,
		search: alpha == 0 || beta == 0 || gamma == 0,
	}
}

// Fit trains on values ordered by date. Needs at least two points.
func (m *Model) Fit(values []float64) error {
	if len(values) < 2 {
		return fmt.Errorf("need at least 2 observations, got %d", len(values))
	}

	period := m.period
	if len(values) < 2*period {
		period = 1 // Holt fallback
	}

	if m.search {
		m.alpha, m.beta, m.gamma = optimize(values, period)
	}

	level, trend, seasonals := initialize(values, period)
	start := period
	if period == 1 {
		start = 1
	}

	residuals := make([]float64, 0, len(values)-start)
	for t := start; t < len(values); t++ {
		idx := t % period
		forecast := level + trend + seasonals[idx]
		residuals = append(residuals, values[t]-forecast)
		level, trend = m.update(values[t], level, trend, seasonals, idx, period)
	}

	m.level, m.trend, m.seasonals = level, trend, seasonals
	m.n = len(values)
	m.residuals = residuals
	m.sigma = stats.ResidualStd(residuals, 3)
	m.active = period
	m.fitted = true
	return nil
}

// FitSeries trains on the values of a prepared series
func (m *Model) FitSeries(series contracts.TimeSeries) error {
	return m.Fit(series.Values())
}

// update applies one smoothing step and mutates seasonals[idx]
func (m *Model) update(y, level, trend float64, seasonals []float64, idx, period int) (float64, float64) {
	prev := level
	level = m.alpha*(y-seasonals[idx]) + (1-m.alpha)*(level+trend)
	trend = m.beta*(level-prev) + (1-m.beta)*trend
	if period > 1 {
		seasonals[idx] = m.gamma*(y-level) + (1-m.gamma)*seasonals[idx]
	}
	return level, trend
}

// Point is one forecast step
type Point struct {
	Yhat  float64
	Lower float64
	Upper float64
}

// Predict forecasts horizon steps with a width-coverage interval z·σ·√h
func (m *Model) Predict(horizon int, width float64) ([]Point, error) {
	if !m.fitted {
		return nil, contracts.ErrModelNotLoaded
	}
	if horizon < 1 {
		return nil, fmt.Errorf("horizon must be at least 1, got %d", horizon)
	}

	z := stats.ZScore(width)
	out := make([]Point, horizon)
	for h := 1; h <= horizon; h++ {
		idx := (m.n + h - 1) % m.active
		yhat := m.level + float64(h)*m.trend + m.seasonals[idx]
		half := stats.HalfWidth(z, m.sigma, h)
		out[h-1] = Point{Yhat: yhat, Lower: yhat - half, Upper: yhat + half}
	}
	return out, nil
}

// Residuals returns in-sample one-step-ahead errors
func (m *Model) Residuals() []float64 {
	return m.residuals
}

// Sigma returns the residual standard error
func (m *Model) Sigma() float64 {
	return m.sigma
}

// Params returns the smoothing factors in use and the effective period
func (m *Model) Params() (alpha, beta, gamma float64, period int) {
	return m.alpha, m.beta, m.gamma, m.active
}

func initialize(values []float64, period int) (float64, float64, []float64) {
	seasonals := make([]float64, period)
	if period == 1 {
		return values[0], values[1] - values[0], seasonals
	}

	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	level := sum / float64(period)

	var trendSum float64
	for i := 0; i < period; i++ {
		trendSum += (values[period+i] - values[i]) / float64(period)
	}
	trend := trendSum / float64(period)

	var avg float64
	for i := 0; i < period; i++ {
		seasonals[i] = values[i] - level
		avg += seasonals[i]
	}
	// 합이 0이 되도록 정규화
	avg /= float64(period)
	for i := range seasonals {
		seasonals[i] -= avg
	}

	return level, trend, seasonals
}

// optimize grid-searches α ∈ {0.1..0.9}, β, γ ∈ {0.01..0.46} by one-step SSE
func optimize(values []float64, period int) (float64, float64, float64) {
	bestA, bestB, bestG := 0.2, 0.1, 0.1
	best := math.MaxFloat64

	gammas := 10
	if period == 1 {
		gammas = 1
	}

	cand := &Model{period: period}
	for a := 1; a <= 9; a++ {
		for b := 0; b < 10; b++ {
			for g := 0; g < gammas; g++ {
				cand.alpha = float64(a) / 10
				cand.beta = 0.01 + 0.05*float64(b)
				cand.gamma = 0.01 + 0.05*float64(g)

				if sse := cand.sse(values, period); sse < best {
					best = sse
					bestA, bestB, bestG = cand.alpha, cand.beta, cand.gamma
				}
			}
		}
	}
	return bestA, bestB, bestG
}

func (m *Model) sse(values []float64, period int) float64 {
	level, trend, seasonals := initialize(values, period)
	start := period
	if period == 1 {
		start = 1
	}

	var sse float64
	for t := start; t < len(values); t++ {
		idx := t % period
		e := values[t] - (level + trend + seasonals[idx])
		sse += e * e
		level, trend = m.update(values[t], level, trend, seasonals, idx, period)
	}
	return sse
}
