package sales

import (
	"math"
	"sort"

	"github.com/wonny/demandcast/backend/internal/contracts"
)

// ResolveEntities returns the distinct entity keys observed inside w, sorted.
// Pure: the result does not depend on the order of obs. Empty input yields an empty slice.
func ResolveEntities(obs []contracts.SalesObservation, w Window) []contracts.EntityKey {
	seen := make(map[contracts.EntityKey]struct{})
	for _, o := range obs {
		if w.Contains(o.Date) {
			seen[o.Key] = struct{}{}
		}
	}

	keys := make([]contracts.EntityKey, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	contracts.SortKeys(keys)
	return keys
}

// GroupByEntity splits observations per entity, keeping input order inside each group
func GroupByEntity(obs []contracts.SalesObservation) map[contracts.EntityKey][]contracts.SalesObservation {
	groups := make(map[contracts.EntityKey][]contracts.SalesObservation)
	for _, o := range obs {
		groups[o.Key] = append(groups[o.Key], o)
	}
	return groups
}

// MeanPrices returns the mean unit price per entity
func MeanPrices(groups map[contracts.EntityKey][]contracts.SalesObservation) map[contracts.EntityKey]float64 {
	out := make(map[contracts.EntityKey]float64, len(groups))
	for k, obs := range groups {
		var sum float64
		for _, o := range obs {
			sum += o.UnitPrice
		}
		if len(obs) > 0 {
			out[k] = sum / float64(len(obs))
		}
	}
	return out
}

// QualityReport summarizes an extracted window; eligible is the gate outcome per entity
func QualityReport(obs []contracts.SalesObservation, w Window, eligible int) contracts.DataQualityReport {
	report := contracts.DataQualityReport{
		WindowStart:      w.From,
		WindowEnd:        w.To,
		TotalRows:        len(obs),
		EligibleEntities: eligible,
	}
	if len(obs) == 0 {
		return report
	}

	stores := make(map[int]struct{})
	items := make(map[int]struct{})
	entities := make(map[contracts.EntityKey]struct{})

	report.QuantityMin = math.Inf(1)
	report.QuantityMax = math.Inf(-1)
	report.FirstDate = obs[0].Date
	report.LastDate = obs[0].Date

	var sum float64
	for _, o := range obs {
		stores[o.Key.Store] = struct{}{}
		items[o.Key.Item] = struct{}{}
		entities[o.Key] = struct{}{}

		sum += o.Quantity
		report.QuantityMin = math.Min(report.QuantityMin, o.Quantity)
		report.QuantityMax = math.Max(report.QuantityMax, o.Quantity)
		if o.Quantity < 0 {
			report.NegativeRows++
		}
		if o.Date.Before(report.FirstDate) {
			report.FirstDate = o.Date
		}
		if o.Date.After(report.LastDate) {
			report.LastDate = o.Date
		}
	}

	n := float64(len(obs))
	report.QuantityMean = sum / n

	var sq float64
	for _, o := range obs {
		d := o.Quantity - report.QuantityMean
		sq += d * d
	}
	if len(obs) > 1 {
		report.QuantityStd = math.Sqrt(sq / (n - 1))
	}

	report.Stores = len(stores)
	report.Items = len(items)
	report.Entities = len(entities)

	return report
}

// SortedItems returns the item ids of a name catalog in ascending order
func SortedItems(names map[int]string) []int {
	ids := make([]int, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
