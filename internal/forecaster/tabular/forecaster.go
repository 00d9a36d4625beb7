package tabular

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/internal/features"
	"github.com/wonny/demandcast/backend/internal/forecaster/modelconfig"
	"github.com/wonny/demandcast/backend/internal/forecaster/stats"
)

// Kind is the registry kind of tabular-mode artifacts
const Kind = "tabular"

// ErrMissingEncoder rejects artifacts saved without their label encoder
var ErrMissingEncoder = errors.New("artifact has no fitted label encoder")

// Payload is the serialized tabular model
// ⭐ SSOT: 인코더는 반드시 모델과 함께 저장/로드
type Payload struct {
	Ensemble *Ensemble               `json:"ensemble"`
	Encoder  *features.EntityEncoder `json:"encoder"`
	Sigma    float64                 `json:"sigma"`
	Prices   []EntityPrice           `json:"prices"`
}

// EntityPrice is the training-time mean unit price of one entity
type EntityPrice struct {
	Key   contracts.EntityKey `json:"key"`
	Price float64             `json:"price"`
}

// Forecaster fits one shared gradient-boosted model over all eligible entities
type Forecaster struct {
	params *modelconfig.Params
	log    zerolog.Logger
}

// New creates a tabular forecaster
func New(params *modelconfig.Params, log zerolog.Logger) *Forecaster {
	if params == nil {
		params = modelconfig.Default()
	}
	return &Forecaster{
		params: params,
		log:    log.With().Str("component", "forecaster.tabular").Logger(),
	}
}

// Kind returns "tabular"
func (f *Forecaster) Kind() string { return Kind }

func (f *Forecaster) boostConfig() BoostConfig {
	tp := f.params.Tabular
	return BoostConfig{
		Trees:          tp.Trees,
		LearningRate:   tp.LearningRate,
		MaxDepth:       tp.MaxDepth,
		MinSamplesLeaf: tp.MinSamplesLeaf,
	}
}

// Fit encodes entities, builds feature rows and boosts trees on all of them.
// With holdout_days > 0 a second model trained without the last days of each
// entity scores the holdout.
func (f *Forecaster) Fit(ctx context.Context, data contracts.TrainingData) (*contracts.ModelState, error) {
	if len(data.Series) == 0 {
		return nil, contracts.NewTrainingError("empty training set", contracts.ErrNoEligibleEntities)
	}

	keys := make([]contracts.EntityKey, 0, len(data.Series))
	for _, s := range data.Series {
		if s.Len() < 2 {
			return nil, contracts.NewTrainingError(
				fmt.Sprintf("%s has %d distinct timestamps, need at least 2", s.Key, s.Len()), nil)
		}
		keys = append(keys, s.Key)
	}

	enc := features.FitEntityEncoder(keys)
	builder := features.NewTabularBuilder(enc)
	rows, err := builder.BuildAll(data)
	if err != nil {
		return nil, contracts.NewTrainingError("build features", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	X, y := matrix(rows)
	model, err := Boost(X, y, f.boostConfig())
	if err != nil {
		return nil, contracts.NewTrainingError("boost", err)
	}

	residuals := make([]float64, len(rows))
	for i := range rows {
		p, _ := model.Predict(X[i])
		residuals[i] = y[i] - p
	}

	var holdout stats.Accumulator
	if h := f.params.Tabular.HoldoutDays; h > 0 {
		f.scoreHoldout(ctx, data, h, &holdout)
	}

	payload := Payload{
		Ensemble: model,
		Encoder:  enc,
		Sigma:    stats.ResidualStd(residuals, 1),
	}
	for _, k := range keys {
		payload.Prices = append(payload.Prices, EntityPrice{Key: k, Price: data.MeanPrices[k]})
	}

	rawPayload, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	rawParams, err := json.Marshal(f.params)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	hash, err := modelconfig.Hash(f.params)
	if err != nil {
		return nil, fmt.Errorf("hash params: %w", err)
	}

	trainedOn := make([]string, len(keys))
	for i, k := range keys {
		trainedOn[i] = k.String()
	}

	state := &contracts.ModelState{
		Kind:      Kind,
		CreatedAt: time.Now().UTC(),
		Params:    rawParams,
		Payload:   rawPayload,
		Summary: contracts.TrainingSummary{
			Entities:     len(keys),
			Rows:         len(rows),
			InSampleMAE:  stats.MAE(residuals),
			InSampleRMSE: stats.RMSE(residuals),
			HoldoutMAE:   holdout.MAE(),
			HoldoutRMSE:  holdout.RMSE(),
			ParamsHash:   hash,
			TrainedOn:    trainedOn,
		},
	}

	f.log.Info().
		Int("entities", len(keys)).
		Int("rows", len(rows)).
		Int("trees", len(model.Trees)).
		Float64("in_sample_mae", state.Summary.InSampleMAE).
		Float64("holdout_mae", state.Summary.HoldoutMAE).
		Msg("tabular forecaster fitted")

	return state, nil
}

// scoreHoldout trains on all but the last h days per entity and scores
// recursive forecasts against them. Failures only leave the holdout empty.
func (f *Forecaster) scoreHoldout(ctx context.Context, data contracts.TrainingData, h int, acc *stats.Accumulator) {
	train := contracts.TrainingData{MeanPrices: data.MeanPrices}
	var keys []contracts.EntityKey
	for _, s := range data.Series {
		if s.Len() < h+2 {
			continue
		}
		head := contracts.TimeSeries{Key: s.Key, Points: s.Points[:s.Len()-h]}
		train.Series = append(train.Series, head)
		keys = append(keys, s.Key)
	}
	if len(train.Series) == 0 {
		return
	}

	enc := features.FitEntityEncoder(keys)
	rows, err := features.NewTabularBuilder(enc).BuildAll(train)
	if err != nil {
		return
	}
	X, y := matrix(rows)
	model, err := Boost(X, y, f.boostConfig())
	if err != nil {
		return
	}

	p := &Predictor{
		payload: &Payload{Ensemble: model, Encoder: enc},
		builder: features.NewTabularBuilder(enc),
		prices:  data.MeanPrices,
		width:   f.params.IntervalWidth,
	}
	for i, head := range train.Series {
		full := data.Series[indexOf(data.Series, keys[i])]
		preds, err := p.Predict(ctx, head, h)
		if err != nil {
			continue
		}
		errs := make([]float64, len(preds))
		for j, r := range preds {
			errs[j] = full.Points[head.Len()+j].Value - r.Yhat
		}
		acc.Add(errs)
	}
}

func indexOf(series []contracts.TimeSeries, key contracts.EntityKey) int {
	for i, s := range series {
		if s.Key == key {
			return i
		}
	}
	return -1
}

func matrix(rows []contracts.FeatureRow) ([][]float64, []float64) {
	X := make([][]float64, len(rows))
	y := make([]float64, len(rows))
	for i, r := range rows {
		X[i] = r.Vector()
		y[i] = r.Demand
	}
	return X, y
}

// Load decodes the ensemble and its encoder. Missing encoder is an error.
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

	if len(state.Payload) == 0 {
		return nil, fmt.Errorf("artifact has no model payload")
	}
	var payload Payload
	if err := json.Unmarshal(state.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if payload.Encoder == nil || payload.Encoder.Store == nil || payload.Encoder.Item == nil {
		return nil, ErrMissingEncoder
	}
	if payload.Ensemble == nil || len(payload.Ensemble.Trees) == 0 {
		return nil, fmt.Errorf("artifact has no trees")
	}
	if payload.Ensemble.Width != contracts.FeatureWidth() {
		return nil, fmt.Errorf("artifact feature width %d, expected %d", payload.Ensemble.Width, contracts.FeatureWidth())
	}

	prices := make(map[contracts.EntityKey]float64, len(payload.Prices))
	for _, p := range payload.Prices {
		prices[p.Key] = p.Price
	}

	return &Predictor{
		payload: &payload,
		builder: features.NewTabularBuilder(payload.Encoder),
		prices:  prices,
		width:   params.IntervalWidth,
		version: state.Version,
	}, nil
}

// Predictor forecasts recursively: each step's estimate feeds the next step's lags
type Predictor struct {
	payload *Payload
	builder *features.TabularBuilder
	prices  map[contracts.EntityKey]float64
	width   float64
	version string
}

// Predict returns horizon rows after the last history date.
// Entities unseen at training time fail with the encoder error.
func (p *Predictor) Predict(ctx context.Context, history contracts.TimeSeries, horizon int) ([]contracts.ForecastRow, error) {
	if p == nil || p.payload == nil || p.payload.Ensemble == nil {
		return nil, contracts.ErrModelNotLoaded
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if history.Len() == 0 {
		return nil, fmt.Errorf("empty history")
	}
	if horizon < 1 {
		return nil, fmt.Errorf("horizon must be at least 1, got %d", horizon)
	}

	values := history.Values()
	entityStats := features.ComputeStats(values)
	price := p.prices[history.Key]
	z := stats.ZScore(p.width)
	last := history.LastDate()

	rows := make([]contracts.ForecastRow, 0, horizon)
	for h := 1; h <= horizon; h++ {
		date := last.AddDate(0, 0, h)
		row, err := p.builder.Next(history.Key, values, date, entityStats, price)
		if err != nil {
			return nil, err
		}
		yhat, err := p.payload.Ensemble.Predict(row.Vector())
		if err != nil {
			return nil, err
		}
		values = append(values, yhat)

		half := stats.HalfWidth(z, p.payload.Sigma, h)
		rows = append(rows, contracts.ForecastRow{
			Key:          history.Key,
			ForecastDate: date,
			Yhat:         yhat,
			YhatLower:    yhat - half,
			YhatUpper:    yhat + half,
			ModelVersion: p.version,
		})
	}
	return rows, nil
}
