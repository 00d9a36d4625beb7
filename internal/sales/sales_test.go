package sales

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/backend/internal/contracts"
)

var testEnd = time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)

func day(offset int) time.Time {
	return testEnd.AddDate(0, 0, offset)
}

func TestLookbackWindow(t *testing.T) {
	now := time.Date(2026, 3, 31, 15, 4, 5, 0, time.UTC)
	w := LookbackWindow(now, 90)

	assert.Equal(t, 90, w.Days())
	assert.False(t, w.Contains(now), "today is still accumulating")
	assert.True(t, w.Contains(now.AddDate(0, 0, -1)))
	assert.True(t, w.Contains(w.From))
	assert.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), w.From)
	assert.False(t, w.Contains(w.To))
	assert.False(t, w.Contains(w.From.Add(-time.Second)))
}

func TestResolveEntities_SortedAndDistinct(t *testing.T) {
	w := Window{From: day(-10), To: day(1)}
	obs := []contracts.SalesObservation{
		{Key: contracts.EntityKey{Store: 2, Item: 1}, Date: day(0)},
		{Key: contracts.EntityKey{Store: 1, Item: 3}, Date: day(-1)},
		{Key: contracts.EntityKey{Store: 1, Item: 3}, Date: day(-2)},
		{Key: contracts.EntityKey{Store: 1, Item: 1}, Date: day(-3)},
		{Key: contracts.EntityKey{Store: 9, Item: 9}, Date: day(-30)}, // outside window
	}

	keys := ResolveEntities(obs, w)
	assert.Equal(t, []contracts.EntityKey{
		{Store: 1, Item: 1},
		{Store: 1, Item: 3},
		{Store: 2, Item: 1},
	}, keys)

	// order independent
	shuffled := append([]contracts.SalesObservation(nil), obs...)
	rng := rand.New(rand.NewPCG(1, 2))
	rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	assert.Equal(t, keys, ResolveEntities(shuffled, w))
}

func TestResolveEntities_Empty(t *testing.T) {
	keys := ResolveEntities(nil, Window{From: day(-1), To: day(1)})
	assert.NotNil(t, keys)
	assert.Empty(t, keys)
}

func TestGroupByEntityAndMeanPrices(t *testing.T) {
	a := contracts.EntityKey{Store: 1, Item: 1}
	b := contracts.EntityKey{Store: 1, Item: 2}
	obs := []contracts.SalesObservation{
		{Key: a, Date: day(-1), UnitPrice: 10},
		{Key: b, Date: day(-1), UnitPrice: 4},
		{Key: a, Date: day(0), UnitPrice: 12},
	}

	groups := GroupByEntity(obs)
	require.Len(t, groups, 2)
	assert.Len(t, groups[a], 2)
	assert.Equal(t, day(-1), groups[a][0].Date)

	prices := MeanPrices(groups)
	assert.InDelta(t, 11.0, prices[a], 1e-9)
	assert.InDelta(t, 4.0, prices[b], 1e-9)
}

func TestQualityReport(t *testing.T) {
	w := Window{From: day(-5), To: day(1)}
	obs := []contracts.SalesObservation{
		{Key: contracts.EntityKey{Store: 1, Item: 1}, Date: day(-2), Quantity: 2},
		{Key: contracts.EntityKey{Store: 1, Item: 2}, Date: day(0), Quantity: 4},
		{Key: contracts.EntityKey{Store: 2, Item: 1}, Date: day(-4), Quantity: -1},
	}

	report := QualityReport(obs, w, 2)
	assert.Equal(t, 3, report.TotalRows)
	assert.Equal(t, 2, report.Stores)
	assert.Equal(t, 2, report.Items)
	assert.Equal(t, 3, report.Entities)
	assert.Equal(t, 2, report.EligibleEntities)
	assert.Equal(t, 1, report.NegativeRows)
	assert.Equal(t, day(-4), report.FirstDate)
	assert.Equal(t, day(0), report.LastDate)
	assert.InDelta(t, -1.0, report.QuantityMin, 1e-9)
	assert.InDelta(t, 4.0, report.QuantityMax, 1e-9)
	assert.InDelta(t, 5.0/3.0, report.QuantityMean, 1e-9)

	empty := QualityReport(nil, w, 0)
	assert.True(t, empty.IsEmpty())
}

func TestSynthetic_Deterministic(t *testing.T) {
	cfg := SyntheticConfig{Stores: 2, Items: 3, Days: 30, End: testEnd, Seed: 7}

	a, err := NewSynthetic(cfg)
	require.NoError(t, err)
	b, err := NewSynthetic(cfg)
	require.NoError(t, err)

	assert.Len(t, a.All(), 2*3*30)
	assert.Equal(t, a.All(), b.All())

	for _, o := range a.All() {
		assert.GreaterOrEqual(t, o.Quantity, 0.0)
		assert.False(t, o.Date.After(testEnd))
	}
}

func TestSynthetic_HistoryOverride(t *testing.T) {
	short := contracts.EntityKey{Store: 1, Item: 2}
	src, err := NewSynthetic(SyntheticConfig{
		Stores: 1, Items: 2, Days: 60, End: testEnd, Seed: 1,
		History: map[contracts.EntityKey]int{short: 10},
	})
	require.NoError(t, err)

	groups := GroupByEntity(src.All())
	assert.Len(t, groups[contracts.EntityKey{Store: 1, Item: 1}], 60)
	assert.Len(t, groups[short], 10)
}

func TestSynthetic_Observations(t *testing.T) {
	src, err := NewSynthetic(SyntheticConfig{Stores: 1, Items: 1, Days: 20, End: testEnd, Seed: 3})
	require.NoError(t, err)

	w := LookbackWindow(testEnd, 7)
	obs, err := src.Observations(context.Background(), w.From, w.To)
	require.NoError(t, err)
	assert.Len(t, obs, 7)

	names, err := src.ItemNames(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Margherita Pizza", names[1])

	none, err := src.ItemNames(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestNewSynthetic_Invalid(t *testing.T) {
	_, err := NewSynthetic(SyntheticConfig{Stores: 0, Items: 1, Days: 1})
	assert.Error(t, err)
}

func TestSortedItems(t *testing.T) {
	assert.Equal(t, []int{1, 4, 9}, SortedItems(map[int]string{9: "c", 1: "a", 4: "b"}))
}
