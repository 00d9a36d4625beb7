package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/backend/internal/contracts"
)

func seriesOfLen(key contracts.EntityKey, n int) contracts.TimeSeries {
	d0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	ts := contracts.TimeSeries{Key: key}
	for i := 0; i < n; i++ {
		ts.Points = append(ts.Points, contracts.SeriesPoint{Date: d0.AddDate(0, 0, i), Value: float64(i)})
	}
	return ts
}

func TestGate_Check(t *testing.T) {
	g := NewGate(90)
	key := contracts.EntityKey{Store: 1, Item: 2}

	pass := g.Check(key, 90, 90)
	assert.True(t, pass.Pass)
	assert.Nil(t, pass.Reason)

	skip := g.Check(key, 40, 45)
	assert.False(t, skip.Pass)
	assert.Equal(t, 40, skip.Count)
	assert.Equal(t, 45, skip.Span)

	var ih *contracts.InsufficientHistoryError
	require.True(t, errors.As(skip.Reason, &ih))
	assert.Equal(t, 90, ih.Threshold)
	assert.Contains(t, skip.Reason.Error(), "40 observations, need 90")
}

func TestGate_Filter(t *testing.T) {
	g := NewGate(10)
	in := []contracts.TimeSeries{
		seriesOfLen(contracts.EntityKey{Store: 1, Item: 1}, 12),
		seriesOfLen(contracts.EntityKey{Store: 1, Item: 2}, 9),
		seriesOfLen(contracts.EntityKey{Store: 2, Item: 1}, 10),
	}

	eligible, skipped := g.Filter(in)
	require.Len(t, eligible, 2)
	assert.Equal(t, contracts.EntityKey{Store: 1, Item: 1}, eligible[0].Key)
	assert.Equal(t, contracts.EntityKey{Store: 2, Item: 1}, eligible[1].Key)
	require.Len(t, skipped, 1)
	assert.Equal(t, contracts.EntityKey{Store: 1, Item: 2}, skipped[0].Key)
}

func TestNewGate_MinimumThreshold(t *testing.T) {
	assert.Equal(t, 1, NewGate(0).Threshold())
}
