package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/internal/features"
	"github.com/wonny/demandcast/backend/internal/sales"
)

// Trend labels of an ad-hoc item forecast
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// trendThreshold is the relative change over the period that counts as a trend
const trendThreshold = 0.05

// Ad-hoc request bounds. The recursive horizon runs from the last observed day
// to the period end, so both keep a request's work bounded.
const (
	MaxAdhocDays     = 90
	MaxAdhocLeadDays = 90 // latest allowed start, in days after today
)

// AdhocRequest asks for a synchronous forecast of one restaurant's items
type AdhocRequest struct {
	Store int
	Items []int     // empty: every item the store sells
	Days  int
	Start time.Time // zero: the day after today; at most MaxAdhocLeadDays ahead
}

// ItemForecast is the aggregated forecast of one item over the period
type ItemForecast struct {
	Item       int     `json:"item_id"`
	Name       string  `json:"item_name"`
	Quantity   int     `json:"forecasted_quantity"`
	Confidence float64 `json:"confidence_score"`
	Trend      string  `json:"trend"`
}

// AdhocResult is the response of an ad-hoc prediction
type AdhocResult struct {
	Store       int
	Start       time.Time
	End         time.Time
	Days        int
	Items       []ItemForecast
	Artifact    contracts.ModelArtifact
	GeneratedAt time.Time
}

// PredictAdhoc forecasts the requested items from the newest artifact inside
// the caller's request. Unknown items and items with insufficient history
// are left out of the result.
func (o *Orchestrator) PredictAdhoc(ctx context.Context, req AdhocRequest) (*AdhocResult, error) {
	if req.Days < 1 || req.Days > MaxAdhocDays {
		return nil, &contracts.ValidationError{
			Field: "forecast_days", Message: fmt.Sprintf("must be between 1 and %d", MaxAdhocDays)}
	}

	today := contracts.Day(o.now())
	start := contracts.Day(req.Start)
	if req.Start.IsZero() {
		start = today.AddDate(0, 0, 1)
	}
	if start.Before(today) {
		return nil, &contracts.ValidationError{Field: "start_date", Message: "must not be in the past"}
	}
	if start.After(today.AddDate(0, 0, MaxAdhocLeadDays)) {
		return nil, &contracts.ValidationError{
			Field: "start_date", Message: fmt.Sprintf("must be within %d days from today", MaxAdhocLeadDays)}
	}
	end := start.AddDate(0, 0, req.Days-1)

	artifact, err := o.deps.Registry.Latest(ctx)
	if err != nil {
		return nil, &contracts.ModelLoadError{Artifact: artifact, Err: err}
	}
	predictor, err := o.load(ctx, artifact)
	if err != nil {
		return nil, err
	}

	names, err := o.deps.Source.ItemNames(ctx, req.Store)
	if err != nil {
		return nil, fmt.Errorf("item names: %w", err)
	}
	items := req.Items
	if len(items) == 0 {
		items = sales.SortedItems(names)
	}

	window := sales.LookbackWindow(o.now(), o.opts.HistoryLookbackDays)
	obs, err := o.deps.Source.Observations(ctx, window.From, window.To)
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", contracts.StageExtract.ShortName(), err)
	}
	groups := sales.GroupByEntity(obs)

	result := &AdhocResult{
		Store:       req.Store,
		Start:       start,
		End:         end,
		Days:        req.Days,
		Items:       make([]ItemForecast, 0, len(items)),
		Artifact:    artifact,
		GeneratedAt: o.now().UTC(),
	}

	for _, item := range items {
		name, ok := names[item]
		if !ok {
			continue
		}
		key := contracts.EntityKey{Store: req.Store, Item: item}
		series := features.PrepareSeries(key, groups[key])
		if d := o.gate.CheckSeries(series); !d.Pass {
			o.logger.WithField("entity", key.String()).Debug("Ad-hoc forecast skipped: insufficient history")
			continue
		}

		horizon := int(end.Sub(series.LastDate()).Hours() / 24)
		if horizon < 1 {
			continue
		}
		rows, err := predictor.Predict(ctx, series, horizon)
		if err != nil {
			o.logger.WithError(err).WithField("entity", key.String()).Warn("Ad-hoc forecast failed")
			continue
		}

		period := make([]contracts.ForecastRow, 0, req.Days)
		for _, r := range rows {
			if r.ForecastDate.Before(start) || r.ForecastDate.After(end) {
				continue
			}
			period = append(period, r.Bounded())
		}
		if len(period) == 0 {
			continue
		}
		result.Items = append(result.Items, Summarize(item, name, period))
	}

	return result, nil
}

// Summarize aggregates bounded daily rows into one item forecast
func Summarize(item int, name string, rows []contracts.ForecastRow) ItemForecast {
	total := 0.0
	spread := 0.0
	yhat := make([]float64, len(rows))
	for i, r := range rows {
		total += r.Yhat
		yhat[i] = r.Yhat
		if r.Yhat > 0 {
			spread += (r.YhatUpper - r.YhatLower) / 2 / r.Yhat
		} else {
			spread += 1
		}
	}

	return ItemForecast{
		Item:       item,
		Name:       name,
		Quantity:   int(math.Round(total)),
		Confidence: clamp01(1 - spread/float64(len(rows))),
		Trend:      TrendOf(yhat),
	}
}

// TrendOf classifies the least-squares slope of values across the period
func TrendOf(values []float64) string {
	n := len(values)
	if n < 2 {
		return TrendStable
	}
	mean := stat.Mean(values, nil)
	if mean <= 0 {
		return TrendStable
	}

	x := make([]float64, n)
	for i := range x {
		x[i] = float64(i)
	}
	_, slope := stat.LinearRegression(x, values, nil, false)
	change := slope * float64(n-1) / mean
	switch {
	case change > trendThreshold:
		return TrendIncreasing
	case change < -trendThreshold:
		return TrendDecreasing
	default:
		return TrendStable
	}
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
