package features

import (
	"sort"

	"github.com/wonny/demandcast/backend/internal/contracts"
)

// PrepareSeries orders one entity's observations by date and drops duplicate
// dates, keeping the first occurrence. Missing days are not imputed.
func PrepareSeries(key contracts.EntityKey, obs []contracts.SalesObservation) contracts.TimeSeries {
	ordered := make([]contracts.SalesObservation, 0, len(obs))
	for _, o := range obs {
		if o.Key == key {
			ordered = append(ordered, o)
		}
	}

	// stable: 같은 날짜면 입력 순서 유지 → 첫 번째가 남음
	sort.SliceStable(ordered, func(i, j int) bool {
		return contracts.Day(ordered[i].Date).Before(contracts.Day(ordered[j].Date))
	})

	points := make([]contracts.SeriesPoint, 0, len(ordered))
	for _, o := range ordered {
		d := contracts.Day(o.Date)
		if n := len(points); n > 0 && points[n-1].Date.Equal(d) {
			continue
		}
		points = append(points, contracts.SeriesPoint{Date: d, Value: o.Quantity})
	}

	return contracts.TimeSeries{Key: key, Points: points}
}

// PrepareAll builds one series per key, in key order
func PrepareAll(keys []contracts.EntityKey, groups map[contracts.EntityKey][]contracts.SalesObservation) []contracts.TimeSeries {
	out := make([]contracts.TimeSeries, 0, len(keys))
	for _, k := range keys {
		out = append(out, PrepareSeries(k, groups[k]))
	}
	return out
}
