package series

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/internal/forecaster/modelconfig"
	"github.com/wonny/demandcast/backend/internal/forecaster/stats"
)

// Kind is the registry kind of series-mode artifacts
const Kind = "series"

// model is one per-entity fit
type model interface {
	FitSeries(series contracts.TimeSeries) error
	Predict(horizon int, width float64) ([]Point, error)
	Residuals() []float64
}

// newModel picks the configured method
func newModel(sp modelconfig.SeriesParams) model {
	if sp.Method == modelconfig.MethodHoltWinters {
		return NewModel(sp.SeasonalPeriod, sp.Alpha, sp.Beta, sp.Gamma)
	}
	return NewDecomposition(sp.WeeklyOrder, sp.YearlyOrder)
}

// Forecaster fits one model per entity (trend + seasonality decomposition by default).
// The artifact carries hyperparameters and training metrics only; every
// prediction run refits each entity on its latest history.
type Forecaster struct {
	params *modelconfig.Params
	log    zerolog.Logger
}

// New creates a series forecaster
func New(params *modelconfig.Params, log zerolog.Logger) *Forecaster {
	if params == nil {
		params = modelconfig.Default()
	}
	return &Forecaster{
		params: params,
		log:    log.With().Str("component", "forecaster.series").Logger(),
	}
}

// Kind returns "series"
func (f *Forecaster) Kind() string { return Kind }

// Fit validates every series and records pooled in-sample and holdout errors
func (f *Forecaster) Fit(ctx context.Context, data contracts.TrainingData) (*contracts.ModelState, error) {
	if len(data.Series) == 0 {
		return nil, contracts.NewTrainingError("empty training set", contracts.ErrNoEligibleEntities)
	}

	sp := f.params.Series
	var inSample, holdout stats.Accumulator
	rows := 0
	trainedOn := make([]string, 0, len(data.Series))

	for _, s := range data.Series {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.Len() < 2 {
			return nil, contracts.NewTrainingError(
				fmt.Sprintf("%s has %d distinct timestamps, need at least 2", s.Key, s.Len()), nil)
		}

		m := newModel(sp)
		if err := m.FitSeries(s); err != nil {
			return nil, contracts.NewTrainingError(s.Key.String(), err)
		}
		inSample.Add(m.Residuals())

		if h := sp.HoldoutDays; h > 0 && s.Len() >= h+2 {
			holdout.Add(holdoutErrors(sp, s, h, f.params.IntervalWidth))
		}

		rows += s.Len()
		trainedOn = append(trainedOn, s.Key.String())
	}

	raw, err := json.Marshal(f.params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	hash, err := modelconfig.Hash(f.params)
	if err != nil {
		return nil, fmt.Errorf("hash params: %w", err)
	}

	state := &contracts.ModelState{
		Kind:      Kind,
		CreatedAt: time.Now().UTC(),
		Params:    raw,
		Summary: contracts.TrainingSummary{
			Entities:     len(data.Series),
			Rows:         rows,
			InSampleMAE:  inSample.MAE(),
			InSampleRMSE: inSample.RMSE(),
			HoldoutMAE:   holdout.MAE(),
			HoldoutRMSE:  holdout.RMSE(),
			ParamsHash:   hash,
			TrainedOn:    trainedOn,
		},
	}

	f.log.Info().
		Int("entities", state.Summary.Entities).
		Int("rows", rows).
		Float64("in_sample_mae", state.Summary.InSampleMAE).
		Float64("holdout_mae", state.Summary.HoldoutMAE).
		Str("method", sp.Method).
		Msg("series forecaster fitted")

	return state, nil
}

// holdoutErrors fits on all but the last h points and scores the forecast of those h.
// Holdout dates follow the train tail by position; gaps make it an approximation.
func holdoutErrors(sp modelconfig.SeriesParams, s contracts.TimeSeries, h int, width float64) []float64 {
	train := contracts.TimeSeries{Key: s.Key, Points: s.Points[:s.Len()-h]}
	m := newModel(sp)
	if err := m.FitSeries(train); err != nil {
		return nil
	}
	pts, err := m.Predict(h, width)
	if err != nil {
		return nil
	}
	values := s.Values()
	errs := make([]float64, h)
	for i, p := range pts {
		errs[i] = values[len(values)-h+i] - p.Yhat
	}
	return errs
}

// Load rehydrates a predictor from a series-mode state
func (f *Forecaster) Load(state *contracts.ModelState) (contracts.Predictor, error) {
	if state == nil {
		return nil, contracts.ErrModelNotLoaded
	}
	if state.Kind != Kind {
		return nil, fmt.Errorf("artifact kind %q is not %q", state.Kind, Kind)
	}

	params := modelconfig.Default()
	if len(state.Params) > 0 {
		if err := json.Unmarshal(state.Params, params); err != nil {
			return nil, fmt.Errorf("decode params: %w", err)
		}
	}
	if err := modelconfig.Validate(params); err != nil {
		return nil, fmt.Errorf("incompatible params: %w", err)
	}

	return &Predictor{params: params, version: state.Version}, nil
}

// Predictor refits the configured model on each entity's history at predict time
type Predictor struct {
	params  *modelconfig.Params
	version string
}

// Predict returns horizon rows starting the day after the last history point
func (p *Predictor) Predict(ctx context.Context, history contracts.TimeSeries, horizon int) ([]contracts.ForecastRow, error) {
	if p == nil || p.params == nil {
		return nil, contracts.ErrModelNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if history.Len() < 2 {
		return nil, contracts.NewTrainingError(
			fmt.Sprintf("%d distinct timestamps, need at least 2", history.Len()), nil)
	}

	m := newModel(p.params.Series)
	if err := m.FitSeries(history); err != nil {
		return nil, err
	}

	points, err := m.Predict(horizon, p.params.IntervalWidth)
	if err != nil {
		return nil, err
	}

	last := history.LastDate()
	rows := make([]contracts.ForecastRow, len(points))
	for i, pt := range points {
		rows[i] = contracts.ForecastRow{
			Key:          history.Key,
			ForecastDate: last.AddDate(0, 0, i+1),
			Yhat:         pt.Yhat,
			YhatLower:    pt.Lower,
			YhatUpper:    pt.Upper,
			ModelVersion: p.version,
		}
	}
	return rows, nil
}
