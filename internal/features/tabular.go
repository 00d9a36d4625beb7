package features

import (
	"time"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/internal/forecaster/stats"
)

// EntityStats are the entity-level aggregates of historical demand
type EntityStats struct {
	Mean  float64 `json:"mean"`
	Std   float64 `json:"std"`
	Count float64 `json:"count"`
}

// ComputeStats aggregates a value history (sample std, 0 for n < 2)
func ComputeStats(values []float64) EntityStats {
	n := len(values)
	if n == 0 {
		return EntityStats{}
	}
	mean, std := stats.MeanStd(values)
	return EntityStats{Mean: mean, Std: std, Count: float64(n)}
}

// TabularBuilder turns prepared series into FeatureRows.
//
// Lag k is the value k rows back; rolling mean/std over w covers the w rows
// before the current one. Anything reaching before the first observation is
// zero-filled and the row is flagged IsImputed.
type TabularBuilder struct {
	Encoder *EntityEncoder
}

// NewTabularBuilder 빌더 생성
func NewTabularBuilder(enc *EntityEncoder) *TabularBuilder {
	return &TabularBuilder{Encoder: enc}
}

// Build returns one row per point of the series, with Demand set to the observed value
func (b *TabularBuilder) Build(series contracts.TimeSeries, meanPrice float64) ([]contracts.FeatureRow, error) {
	storeCode, itemCode, err := b.Encoder.Encode(series.Key)
	if err != nil {
		return nil, err
	}

	values := series.Values()
	agg := ComputeStats(values)

	rows := make([]contracts.FeatureRow, 0, len(values))
	for i, p := range series.Points {
		row := buildRow(series.Key, values[:i], p.Date, agg, meanPrice, storeCode, itemCode)
		row.Demand = p.Value
		rows = append(rows, row)
	}
	return rows, nil
}

// Next returns the row for date following history. Used by recursive
// multi-step prediction: callers append each prediction to history.
func (b *TabularBuilder) Next(key contracts.EntityKey, history []float64, date time.Time, agg EntityStats, meanPrice float64) (contracts.FeatureRow, error) {
	storeCode, itemCode, err := b.Encoder.Encode(key)
	if err != nil {
		return contracts.FeatureRow{}, err
	}
	return buildRow(key, history, date, agg, meanPrice, storeCode, itemCode), nil
}

// BuildAll builds rows for every series of a training run
func (b *TabularBuilder) BuildAll(data contracts.TrainingData) ([]contracts.FeatureRow, error) {
	var rows []contracts.FeatureRow
	for _, s := range data.Series {
		r, err := b.Build(s, data.MeanPrices[s.Key])
		if err != nil {
			return nil, err
		}
		rows = append(rows, r...)
	}
	return rows, nil
}

func buildRow(key contracts.EntityKey, prior []float64, date time.Time, agg EntityStats, meanPrice float64, storeCode, itemCode int) contracts.FeatureRow {
	row := contracts.FeatureRow{
		Key:         key,
		Date:        contracts.Day(date),
		StoreCode:   storeCode,
		ItemCode:    itemCode,
		Lags:        make([]float64, len(contracts.FeatureLags)),
		RollingMean: make([]float64, len(contracts.RollingWindows)),
		RollingStd:  make([]float64, len(contracts.RollingWindows)),
		EntityMean:  agg.Mean,
		EntityStd:   agg.Std,
		EntityCount: agg.Count,
		MeanPrice:   meanPrice,
		Month:       int(date.Month()),
	}

	// 월요일 = 0
	row.DayOfWeek = (int(date.Weekday()) + 6) % 7
	row.IsWeekend = row.DayOfWeek >= 5

	n := len(prior)
	for j, lag := range contracts.FeatureLags {
		if n < lag {
			row.IsImputed = true
			continue
		}
		row.Lags[j] = prior[n-lag]
	}

	for j, w := range contracts.RollingWindows {
		if n < w {
			row.IsImputed = true
			continue
		}
		row.RollingMean[j], row.RollingStd[j] = stats.MeanStd(prior[n-w:])
	}

	return row
}
