package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/internal/features"
	"github.com/wonny/demandcast/backend/pkg/metrics"
)

// LoopResult summarizes one pass of the per-entity prediction loop
type LoopResult struct {
	Discovered int                     `json:"discovered"`
	Skipped    int                     `json:"skipped"`
	Failed     int                     `json:"failed"`
	Forecast   int                     `json:"forecast"`
	Rows       []contracts.ForecastRow `json:"-"`

	SkippedKeys []GateDecision `json:"-"`
	Errors      []error        `json:"-"` // *contracts.EntityError
}

// entity lifecycle: Discovered → Skipped | Eligible → Predicted → Bounded → Collected
type entityOutcome struct {
	skipped  *GateDecision
	err      error
	rows     []contracts.ForecastRow
	complete bool
}

// Loop drives prepare → gate → predict → bound for every discovered entity
// on a bounded worker pool. One entity's failure never aborts the batch.
type Loop struct {
	gate    *Gate
	horizon int
	workers int
	log     zerolog.Logger
}

// NewLoop creates a prediction loop
func NewLoop(gate *Gate, horizon, workers int, log zerolog.Logger) *Loop {
	if workers < 1 {
		workers = 1
	}
	return &Loop{
		gate:    gate,
		horizon: horizon,
		workers: workers,
		log:     log.With().Str("component", "loop").Logger(),
	}
}

// Run forecasts every key. groups holds the raw observations per key
// (keys without observations prepare to an empty series and are skipped).
// Rows come back bounded and sorted by (store, item, forecast_date).
func (l *Loop) Run(
	ctx context.Context,
	predictor contracts.Predictor,
	keys []contracts.EntityKey,
	groups map[contracts.EntityKey][]contracts.SalesObservation,
) LoopResult {
	outcomes := make([]entityOutcome, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.workers)
	for i, key := range keys {
		g.Go(func() error {
			outcomes[i] = l.runEntity(gctx, predictor, key, groups[key])
			return nil
		})
	}
	_ = g.Wait() // 엔티티 실패는 outcome에 기록됨

	res := LoopResult{Discovered: len(keys)}
	for _, o := range outcomes {
		switch {
		case o.skipped != nil:
			res.Skipped++
			res.SkippedKeys = append(res.SkippedKeys, *o.skipped)
		case o.err != nil:
			res.Failed++
			res.Errors = append(res.Errors, o.err)
		case o.complete:
			res.Forecast++
			res.Rows = append(res.Rows, o.rows...)
		}
	}
	if res.Rows == nil {
		res.Rows = []contracts.ForecastRow{}
	}
	contracts.SortRows(res.Rows)

	metrics.RecordEntities(res.Skipped, res.Forecast, res.Failed)

	if res.Forecast == 0 {
		l.log.Warn().
			Int("discovered", res.Discovered).
			Int("skipped", res.Skipped).
			Int("failed", res.Failed).
			Msg("No entity produced a forecast")
	}
	return res
}

func (l *Loop) runEntity(
	ctx context.Context,
	predictor contracts.Predictor,
	key contracts.EntityKey,
	obs []contracts.SalesObservation,
) (out entityOutcome) {
	stage := contracts.StagePrepare
	defer func() {
		if r := recover(); r != nil {
			out = entityOutcome{err: l.entityFailed(key, stage, fmt.Errorf("panic: %v", r))}
		}
	}()

	series := features.PrepareSeries(key, obs)

	stage = contracts.StageGate
	if d := l.gate.CheckSeries(series); !d.Pass {
		l.log.Info().
			Str("entity", key.String()).
			Int("count", d.Count).
			Int("span", d.Span).
			Int("threshold", d.Threshold).
			Msg("Skipping entity: insufficient history")
		return entityOutcome{skipped: &d}
	}

	stage = contracts.StagePredict
	rows, err := predictor.Predict(ctx, series, l.horizon)
	if err != nil {
		return entityOutcome{err: l.entityFailed(key, stage, err)}
	}
	if len(rows) != l.horizon {
		return entityOutcome{err: l.entityFailed(key, stage,
			fmt.Errorf("forecaster returned %d rows for horizon %d", len(rows), l.horizon))}
	}

	for i := range rows {
		if rows[i].Key != key {
			return entityOutcome{err: l.entityFailed(key, stage,
				fmt.Errorf("forecast row keyed %s", rows[i].Key))}
		}
		rows[i] = rows[i].Bounded()
	}
	return entityOutcome{rows: rows, complete: true}
}

func (l *Loop) entityFailed(key contracts.EntityKey, stage contracts.Stage, err error) error {
	eerr := &contracts.EntityError{Key: key, Stage: stage, Err: err}
	l.log.Error().Err(err).
		Str("entity", key.String()).
		Str("stage", stage.String()).
		Msg("Entity failed, continuing batch")
	return eerr
}

// FailedKeys returns the keys of entities that failed
func (r LoopResult) FailedKeys() []contracts.EntityKey {
	keys := make([]contracts.EntityKey, 0, len(r.Errors))
	for _, err := range r.Errors {
		var eerr *contracts.EntityError
		if errors.As(err, &eerr) {
			keys = append(keys, eerr.Key)
		}
	}
	return keys
}
