package contracts

import (
	"context"
	"encoding/json"
	"time"
)

// Forecaster is the pluggable fit/load contract.
// Series kind fits one model per entity at predict time; tabular kind
// fits one shared model over all eligible entities.
// ⭐ SSOT: 예측 모델 인터페이스
type Forecaster interface {
	Kind() string

	// Fit trains on the eligible entities and returns a serializable state.
	// Empty or malformed input fails with *TrainingError.
	Fit(ctx context.Context, data TrainingData) (*ModelState, error)

	// Load rehydrates a predictor from a state produced by Fit.
	// Incompatible state fails with an error wrapped by the caller as *ModelLoadError.
	Load(state *ModelState) (Predictor, error)
}

// Predictor produces exactly horizon rows per entity, starting the day after
// the last point of history. Rows are raw (not yet bounded).
type Predictor interface {
	Predict(ctx context.Context, history TimeSeries, horizon int) ([]ForecastRow, error)
}

// TrainingData is the prepared input of one training run
type TrainingData struct {
	Series     []TimeSeries          // eligible entities only, ordered and deduplicated
	MeanPrices map[EntityKey]float64 // mean unit price per entity
}

// ModelState is the registry payload behind a ModelArtifact
type ModelState struct {
	Kind      string          `json:"kind"`
	Version   string          `json:"version"`
	CreatedAt time.Time       `json:"created_at"`
	Params    json.RawMessage `json:"params"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Summary   TrainingSummary `json:"summary"`
}

// TrainingSummary carries training metrics logged to experiment tracking
type TrainingSummary struct {
	Entities     int      `json:"entities"`
	Rows         int      `json:"rows"`
	InSampleMAE  float64  `json:"in_sample_mae"`
	InSampleRMSE float64  `json:"in_sample_rmse"`
	HoldoutMAE   float64  `json:"holdout_mae,omitempty"`
	HoldoutRMSE  float64  `json:"holdout_rmse,omitempty"`
	ParamsHash   string   `json:"params_hash"`
	TrainedOn    []string `json:"trained_on,omitempty"` // entity keys, for audit
}
