package series

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/internal/forecaster/modelconfig"
)

var start = time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)

var weekly = []float64{-3, -2, -1, 0, 1, 2, 3}

func seasonalValues(n int) []float64 {
	v := make([]float64, n)
	for t := range v {
		v[t] = 20 + weekly[t%7]
	}
	return v
}

func toSeries(key contracts.EntityKey, values []float64) contracts.TimeSeries {
	s := contracts.TimeSeries{Key: key}
	for i, v := range values {
		s.Points = append(s.Points, contracts.SeriesPoint{Date: start.AddDate(0, 0, i), Value: v})
	}
	return s
}

func TestModel_ExactSeasonalPattern(t *testing.T) {
	m := NewModel(7, 0.3, 0.1, 0.2)
	require.NoError(t, m.Fit(seasonalValues(28)))

	pts, err := m.Predict(7, 0.95)
	require.NoError(t, err)
	require.Len(t, pts, 7)

	for h, p := range pts {
		assert.InDelta(t, 20+weekly[(28+h)%7], p.Yhat, 1e-9)
		assert.InDelta(t, p.Yhat, p.Lower, 1e-9, "zero residuals give a zero-width interval")
	}

	_, _, _, period := m.Params()
	assert.Equal(t, 7, period)
}

func TestModel_HoltFallback(t *testing.T) {
	m := NewModel(7, 0, 0, 0)
	require.NoError(t, m.Fit([]float64{1, 2, 3, 4, 5}))

	_, _, _, period := m.Params()
	assert.Equal(t, 1, period)

	pts, err := m.Predict(3, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 6.0, pts[0].Yhat, 1e-9)
	assert.InDelta(t, 8.0, pts[2].Yhat, 1e-9)
}

func TestModel_IntervalWidensWithHorizon(t *testing.T) {
	values := seasonalValues(42)
	for i := range values {
		if i%3 == 0 {
			values[i] += 2
		}
	}
	m := NewModel(7, 0, 0, 0)
	require.NoError(t, m.Fit(values))
	require.Greater(t, m.Sigma(), 0.0)

	pts, err := m.Predict(4, 0.95)
	require.NoError(t, err)
	first := pts[0].Upper - pts[0].Yhat
	last := pts[3].Upper - pts[3].Yhat
	assert.InDelta(t, 2*first, last, 1e-9)
}

func TestModel_Errors(t *testing.T) {
	m := NewModel(7, 0.5, 0.5, 0.5)
	_, err := m.Predict(3, 0.95)
	assert.ErrorIs(t, err, contracts.ErrModelNotLoaded)

	assert.Error(t, m.Fit([]float64{1}))

	require.NoError(t, m.Fit([]float64{1, 2}))
	_, err = m.Predict(0, 0.95)
	assert.Error(t, err)
}

func TestDecomposition_TrendAndWeeklyPattern(t *testing.T) {
	values := seasonalValues(56)
	for i := range values {
		values[i] += 0.5 * float64(i)
	}

	d := NewDecomposition(3, 6)
	require.NoError(t, d.FitSeries(toSeries(contracts.EntityKey{}, values)))

	weeklyOrder, yearlyOrder := d.Orders()
	assert.Equal(t, 3, weeklyOrder)
	assert.Equal(t, 0, yearlyOrder, "yearly terms need two years of history")

	pts, err := d.Predict(7, 0.95)
	require.NoError(t, err)
	require.Len(t, pts, 7)
	for h, p := range pts {
		want := 20 + weekly[(56+h)%7] + 0.5*float64(56+h)
		assert.InDelta(t, want, p.Yhat, 1e-6)
		assert.InDelta(t, p.Yhat, p.Upper, 1e-6)
	}
}

func TestDecomposition_MissingDays(t *testing.T) {
	full := toSeries(contracts.EntityKey{}, seasonalValues(42))
	var gappy contracts.TimeSeries
	for i, p := range full.Points {
		if i%5 == 2 {
			continue
		}
		gappy.Points = append(gappy.Points, p)
	}

	d := NewDecomposition(3, 0)
	require.NoError(t, d.FitSeries(gappy))

	pts, err := d.Predict(3, 0.95)
	require.NoError(t, err)
	for h, p := range pts {
		assert.InDelta(t, 20+weekly[(42+h)%7], p.Yhat, 1e-6)
	}
}

func TestDecomposition_ShortHistoryDropsSeasonality(t *testing.T) {
	d := NewDecomposition(3, 6)
	require.NoError(t, d.FitSeries(toSeries(contracts.EntityKey{}, []float64{1, 2, 3, 4})))

	weeklyOrder, _ := d.Orders()
	assert.Equal(t, 0, weeklyOrder)

	pts, err := d.Predict(2, 0.95)
	require.NoError(t, err)
	assert.InDelta(t, 5.0, pts[0].Yhat, 1e-9)
	assert.InDelta(t, 6.0, pts[1].Yhat, 1e-9)
}

func TestDecomposition_Errors(t *testing.T) {
	d := NewDecomposition(3, 0)
	_, err := d.Predict(3, 0.95)
	assert.ErrorIs(t, err, contracts.ErrModelNotLoaded)

	assert.Error(t, d.FitSeries(toSeries(contracts.EntityKey{}, []float64{1})))

	require.NoError(t, d.FitSeries(toSeries(contracts.EntityKey{}, []float64{1, 2})))
	_, err = d.Predict(0, 0.95)
	assert.Error(t, err)
}

func TestForecaster_HoltWintersMethod(t *testing.T) {
	params := modelconfig.Default()
	params.Series.Method = modelconfig.MethodHoltWinters
	f := New(params, zerolog.Nop())
	series := toSeries(contracts.EntityKey{Store: 1, Item: 3}, seasonalValues(42))

	state, err := f.Fit(context.Background(), contracts.TrainingData{Series: []contracts.TimeSeries{series}})
	require.NoError(t, err)

	p, err := f.Load(state)
	require.NoError(t, err)
	rows, err := p.Predict(context.Background(), series, 7)
	require.NoError(t, err)
	for h, r := range rows {
		assert.InDelta(t, 20+weekly[(42+h)%7], r.Yhat, 1e-6)
	}
}

func TestForecaster_FitRejectsEmptyAndMalformed(t *testing.T) {
	f := New(nil, zerolog.Nop())

	_, err := f.Fit(context.Background(), contracts.TrainingData{})
	var terr *contracts.TrainingError
	require.ErrorAs(t, err, &terr)
	assert.True(t, errors.Is(err, contracts.ErrNoEligibleEntities))

	_, err = f.Fit(context.Background(), contracts.TrainingData{
		Series: []contracts.TimeSeries{toSeries(contracts.EntityKey{Store: 1, Item: 1}, []float64{4})},
	})
	require.ErrorAs(t, err, &terr)
}

func TestForecaster_FitLoadPredict(t *testing.T) {
	f := New(modelconfig.Default(), zerolog.Nop())
	key := contracts.EntityKey{Store: 1, Item: 2}
	series := toSeries(key, seasonalValues(120))

	state, err := f.Fit(context.Background(), contracts.TrainingData{Series: []contracts.TimeSeries{series}})
	require.NoError(t, err)
	assert.Equal(t, Kind, state.Kind)
	assert.Equal(t, 1, state.Summary.Entities)
	assert.Equal(t, 120, state.Summary.Rows)
	assert.Len(t, state.Summary.ParamsHash, 64)
	assert.Equal(t, []string{key.String()}, state.Summary.TrainedOn)

	state.Version = "v-test"
	p, err := f.Load(state)
	require.NoError(t, err)

	rows, err := p.Predict(context.Background(), series, 15)
	require.NoError(t, err)
	require.Len(t, rows, 15)

	assert.Equal(t, series.LastDate().AddDate(0, 0, 1), rows[0].ForecastDate)
	assert.Equal(t, series.LastDate().AddDate(0, 0, 15), rows[14].ForecastDate)
	for _, r := range rows {
		assert.Equal(t, key, r.Key)
		assert.Equal(t, "v-test", r.ModelVersion)
		assert.LessOrEqual(t, r.YhatLower, r.Yhat)
		assert.LessOrEqual(t, r.Yhat, r.YhatUpper)
	}
}

func TestForecaster_LoadErrors(t *testing.T) {
	f := New(nil, zerolog.Nop())

	_, err := f.Load(nil)
	assert.ErrorIs(t, err, contracts.ErrModelNotLoaded)

	_, err = f.Load(&contracts.ModelState{Kind: "tabular"})
	assert.Error(t, err)

	_, err = f.Load(&contracts.ModelState{Kind: Kind, Params: []byte(`{"interval_width": 3}`)})
	assert.Error(t, err)
}

func TestPredictor_ShortHistory(t *testing.T) {
	var nilPredictor *Predictor
	_, err := nilPredictor.Predict(context.Background(), contracts.TimeSeries{}, 3)
	assert.ErrorIs(t, err, contracts.ErrModelNotLoaded)

	p, err := New(nil, zerolog.Nop()).Load(&contracts.ModelState{Kind: Kind})
	require.NoError(t, err)

	_, err = p.Predict(context.Background(), toSeries(contracts.EntityKey{}, []float64{1}), 3)
	var terr *contracts.TrainingError
	assert.ErrorAs(t, err, &terr)
}
