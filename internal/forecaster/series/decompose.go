package series

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/internal/forecaster/stats"
)

const (
	weekPeriod = 7.0
	yearPeriod = 365.25

	// 연 계절성은 2년 이상 이력에서만 추정
	minYearlySpan = 730
)

// Decomposition is an additive trend + Fourier seasonality regression:
//
//	y(t) = a + b·t + Σ_k [c_k·cos(2πkt/7) + d_k·sin(2πkt/7)] + Σ_k [same with P = 365.25]
//
// t is days since the first observation, so missing days need no imputation.
// Coefficients are the least-squares (QR) solution of the design matrix.
type Decomposition struct {
	weekly int
	yearly int

	origin    time.Time
	last      float64
	coef      []float64
	active    [2]int // weekly, yearly orders after Fit
	residuals []float64
	sigma     float64
	fitted    bool
}

// NewDecomposition creates a model with the given Fourier orders
func NewDecomposition(weekly, yearly int) *Decomposition {
	return &Decomposition{weekly: weekly, yearly: yearly}
}

// FitSeries trains on a prepared series. Needs at least two points.
func (d *Decomposition) FitSeries(series contracts.TimeSeries) error {
	n := series.Len()
	if n < 2 {
		return fmt.Errorf("need at least 2 observations, got %d", n)
	}

	d.origin = series.Points[0].Date
	t := make([]float64, n)
	for i, p := range series.Points {
		t[i] = d.offset(p.Date)
	}
	y := series.Values()

	weekly, yearly := d.weekly, d.yearly
	if series.Span() < minYearlySpan {
		yearly = 0
	}

	// 관측치가 부족하거나 행렬이 특이하면 계절 항을 줄여 재시도
	for {
		coef, err := solve(t, y, weekly, yearly)
		if err == nil {
			d.coef = coef
			break
		}
		switch {
		case yearly > 0:
			yearly--
		case weekly > 0:
			weekly--
		default:
			return fmt.Errorf("least squares: %w", err)
		}
	}

	d.active = [2]int{weekly, yearly}
	d.residuals = make([]float64, n)
	for i := range t {
		d.residuals[i] = y[i] - floats.Dot(designRow(t[i], weekly, yearly), d.coef)
	}
	d.sigma = stats.ResidualStd(d.residuals, len(d.coef))
	d.last = t[n-1]
	d.fitted = true
	return nil
}

// Predict forecasts horizon days after the last observation with a z·σ·√h interval
func (d *Decomposition) Predict(horizon int, width float64) ([]Point, error) {
	if !d.fitted {
		return nil, contracts.ErrModelNotLoaded
	}
	if horizon < 1 {
		return nil, fmt.Errorf("horizon must be at least 1, got %d", horizon)
	}

	z := stats.ZScore(width)
	out := make([]Point, horizon)
	for h := 1; h <= horizon; h++ {
		yhat := floats.Dot(designRow(d.last+float64(h), d.active[0], d.active[1]), d.coef)
		half := stats.HalfWidth(z, d.sigma, h)
		out[h-1] = Point{Yhat: yhat, Lower: yhat - half, Upper: yhat + half}
	}
	return out, nil
}

// Residuals returns in-sample errors
func (d *Decomposition) Residuals() []float64 {
	return d.residuals
}

// Sigma returns the residual standard error
func (d *Decomposition) Sigma() float64 {
	return d.sigma
}

// Orders returns the weekly and yearly Fourier orders in use
func (d *Decomposition) Orders() (weekly, yearly int) {
	return d.active[0], d.active[1]
}

func (d *Decomposition) offset(date time.Time) float64 {
	return date.Sub(d.origin).Hours() / 24
}

func solve(t, y []float64, weekly, yearly int) ([]float64, error) {
	n := len(t)
	p := 2 + 2*(weekly+yearly)
	if n <= p && p > 2 {
		return nil, fmt.Errorf("%d observations for %d coefficients", n, p)
	}

	x := mat.NewDense(n, p, nil)
	for i := range t {
		x.SetRow(i, designRow(t[i], weekly, yearly))
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, mat.NewVecDense(n, y)); err != nil {
		return nil, err
	}

	coef := make([]float64, p)
	copy(coef, beta.RawVector().Data)
	for _, c := range coef {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return nil, fmt.Errorf("non-finite coefficient")
		}
	}
	return coef, nil
}

// designRow returns [1, t, weekly cos/sin pairs..., yearly cos/sin pairs...]
func designRow(t float64, weekly, yearly int) []float64 {
	row := make([]float64, 0, 2+2*(weekly+yearly))
	row = append(row, 1, t)
	row = appendFourier(row, t, weekPeriod, weekly)
	row = appendFourier(row, t, yearPeriod, yearly)
	return row
}

func appendFourier(row []float64, t, period float64, order int) []float64 {
	for k := 1; k <= order; k++ {
		arg := 2 * math.Pi * float64(k) * t / period
		row = append(row, math.Cos(arg), math.Sin(arg))
	}
	return row
}
