package features

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/backend/internal/contracts"
)

var (
	keyA = contracts.EntityKey{Store: 1, Item: 1}
	keyB = contracts.EntityKey{Store: 2, Item: 5}
	// 2026-03-02 is a Monday
	start = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
)

func obs(key contracts.EntityKey, offset int, qty float64) contracts.SalesObservation {
	return contracts.SalesObservation{Key: key, Date: start.AddDate(0, 0, offset), Quantity: qty}
}

func seriesOf(key contracts.EntityKey, values ...float64) contracts.TimeSeries {
	s := contracts.TimeSeries{Key: key}
	for i, v := range values {
		s.Points = append(s.Points, contracts.SeriesPoint{Date: start.AddDate(0, 0, i), Value: v})
	}
	return s
}

func TestPrepareSeries_OrdersAndKeepsFirstDuplicate(t *testing.T) {
	input := []contracts.SalesObservation{
		obs(keyA, 2, 30),
		obs(keyA, 0, 10),
		obs(keyB, 1, 99), // other entity
		obs(keyA, 2, 31), // later duplicate
		obs(keyA, 5, 50), // gap, not imputed
	}

	s := PrepareSeries(keyA, input)
	require.Equal(t, 3, s.Len())
	assert.Equal(t, []float64{10, 30, 50}, s.Values())
	assert.Equal(t, start.AddDate(0, 0, 5), s.LastDate())
	assert.Equal(t, keyA, s.Key)

	for i := 1; i < s.Len(); i++ {
		assert.True(t, s.Points[i].Date.After(s.Points[i-1].Date))
	}
}

func TestPrepareSeries_NormalizesTimeOfDay(t *testing.T) {
	a := obs(keyA, 0, 1)
	a.Date = a.Date.Add(9 * time.Hour)
	b := obs(keyA, 0, 2)
	b.Date = b.Date.Add(18 * time.Hour)

	s := PrepareSeries(keyA, []contracts.SalesObservation{a, b})
	require.Equal(t, 1, s.Len())
	assert.Equal(t, 1.0, s.Points[0].Value)
	assert.Equal(t, start, s.Points[0].Date)
}

func TestPrepareAll(t *testing.T) {
	groups := map[contracts.EntityKey][]contracts.SalesObservation{
		keyA: {obs(keyA, 0, 1)},
		keyB: {obs(keyB, 0, 2), obs(keyB, 1, 3)},
	}
	all := PrepareAll([]contracts.EntityKey{keyA, keyB}, groups)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].Len())
	assert.Equal(t, 2, all[1].Len())
}

func TestLabelEncoder_StableCodes(t *testing.T) {
	enc := NewLabelEncoder([]int{7, 3, 7, 11})
	assert.Equal(t, []int{3, 7, 11}, enc.Classes)

	code, err := enc.Transform(11)
	require.NoError(t, err)
	assert.Equal(t, 2, code)

	_, err = enc.Transform(4)
	assert.Error(t, err)

	// fit order does not matter
	assert.Equal(t, enc.Classes, NewLabelEncoder([]int{11, 7, 3}).Classes)
}

func TestEntityEncoder_ConcurrentEncode(t *testing.T) {
	var enc EntityEncoder
	raw, err := json.Marshal(FitEntityEncoder([]contracts.EntityKey{keyA, keyB}))
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &enc))

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				s, it, err := enc.Encode(keyB)
				assert.NoError(t, err)
				assert.Equal(t, 1, s)
				assert.Equal(t, 1, it)
			}
		}()
	}
	wg.Wait()

	_, _, err = enc.Encode(contracts.EntityKey{Store: 9, Item: 1})
	assert.Error(t, err)
	_, _, err = enc.Encode(contracts.EntityKey{Store: 0, Item: 1})
	assert.Error(t, err)
}

func TestEntityEncoder_RoundTripJSON(t *testing.T) {
	enc := FitEntityEncoder([]contracts.EntityKey{keyB, keyA})

	raw, err := json.Marshal(enc)
	require.NoError(t, err)

	var loaded EntityEncoder
	require.NoError(t, json.Unmarshal(raw, &loaded))

	s1, i1, err := enc.Encode(keyB)
	require.NoError(t, err)
	s2, i2, err := loaded.Encode(keyB)
	require.NoError(t, err)
	assert.Equal(t, []int{s1, i1}, []int{s2, i2})
	assert.Equal(t, 1, s2)
	assert.Equal(t, 1, i2)

	_, _, err = loaded.Encode(contracts.EntityKey{Store: 9, Item: 1})
	assert.Error(t, err)

	var empty *EntityEncoder
	_, _, err = empty.Encode(keyA)
	assert.Error(t, err)
}

func TestTabularBuilder_LagsAndImputation(t *testing.T) {
	values := make([]float64, 20)
	for i := range values {
		values[i] = float64(i + 1)
	}
	s := seriesOf(keyA, values...)

	b := NewTabularBuilder(FitEntityEncoder([]contracts.EntityKey{keyA}))
	rows, err := b.Build(s, 12.5)
	require.NoError(t, err)
	require.Len(t, rows, 20)

	first := rows[0]
	assert.True(t, first.IsImputed)
	assert.Equal(t, make([]float64, len(contracts.FeatureLags)), first.Lags)
	assert.Equal(t, 1.0, first.Demand)
	assert.Equal(t, 0, first.DayOfWeek)
	assert.False(t, first.IsWeekend)
	assert.Equal(t, 3, first.Month)
	assert.Equal(t, 12.5, first.MeanPrice)

	// row 14 has every lag and window available
	r := rows[14]
	assert.False(t, r.IsImputed)
	assert.Equal(t, 15.0, r.Demand)
	assert.Equal(t, []float64{14, 13, 12, 8, 1}, r.Lags)
	assert.InDelta(t, 13.0, r.RollingMean[0], 1e-9) // 12,13,14
	assert.InDelta(t, 1.0, r.RollingStd[0], 1e-9)
	assert.InDelta(t, 11.0, r.RollingMean[1], 1e-9) // 8..14
	assert.InDelta(t, 7.5, r.RollingMean[2], 1e-9)  // 1..14

	assert.Equal(t, 20.0, r.EntityCount)
	assert.InDelta(t, 10.5, r.EntityMean, 1e-9)

	// 2026-03-07 is a Saturday
	assert.True(t, rows[5].IsWeekend)
	assert.Equal(t, 5, rows[5].DayOfWeek)

	assert.Len(t, r.Vector(), contracts.FeatureWidth())
}

func TestTabularBuilder_Next(t *testing.T) {
	b := NewTabularBuilder(FitEntityEncoder([]contracts.EntityKey{keyA, keyB}))
	history := []float64{5, 5, 5}
	row, err := b.Next(keyB, history, start.AddDate(0, 0, 3), ComputeStats(history), 4)
	require.NoError(t, err)

	assert.Equal(t, 0.0, row.Demand)
	assert.Equal(t, 5.0, row.Lags[0])
	assert.Equal(t, 5.0, row.RollingMean[0])
	assert.Equal(t, 0.0, row.RollingStd[0])
	assert.True(t, row.IsImputed)
	assert.Equal(t, 1, row.StoreCode)

	_, err = b.Next(contracts.EntityKey{Store: 3, Item: 1}, history, start, EntityStats{}, 0)
	assert.Error(t, err)
}

func TestBuildAll(t *testing.T) {
	data := contracts.TrainingData{
		Series:     []contracts.TimeSeries{seriesOf(keyA, 1, 2, 3), seriesOf(keyB, 4, 5)},
		MeanPrices: map[contracts.EntityKey]float64{keyA: 10, keyB: 20},
	}
	b := NewTabularBuilder(FitEntityEncoder([]contracts.EntityKey{keyA, keyB}))

	rows, err := b.BuildAll(data)
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, 20.0, rows[4].MeanPrice)
}

func TestComputeStats(t *testing.T) {
	assert.Equal(t, EntityStats{}, ComputeStats(nil))
	st := ComputeStats([]float64{2, 4})
	assert.InDelta(t, 3.0, st.Mean, 1e-9)
	assert.InDelta(t, 1.4142135, st.Std, 1e-6)
	assert.Equal(t, 2.0, st.Count)
}
