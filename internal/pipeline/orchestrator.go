// Package pipeline sequences extraction, gating, fitting, prediction,
// persistence and notification for training and prediction runs.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/internal/features"
	"github.com/wonny/demandcast/backend/internal/forecaster"
	"github.com/wonny/demandcast/backend/internal/forecaster/modelconfig"
	"github.com/wonny/demandcast/backend/internal/sales"
	"github.com/wonny/demandcast/backend/internal/tracking"
	"github.com/wonny/demandcast/backend/pkg/config"
	"github.com/wonny/demandcast/backend/pkg/logger"
	"github.com/wonny/demandcast/backend/pkg/metrics"
)

// ModelRegistry stores and resolves immutable model artifacts
type ModelRegistry interface {
	Save(ctx context.Context, state *contracts.ModelState) (contracts.ModelArtifact, error)
	Load(ctx context.Context, artifact contracts.ModelArtifact) (*contracts.ModelState, error)
	Latest(ctx context.Context) (contracts.ModelArtifact, error)
}

// ResultWriter persists one run's forecast rows in a single transaction
type ResultWriter interface {
	Persist(ctx context.Context, rows []contracts.ForecastRow) (int, error)
}

// Notifier pushes new predictions to connected subscribers
type Notifier interface {
	NotifyPredictions(rows []contracts.ForecastRow) int
}

// RunTracker records training runs in experiment tracking
type RunTracker interface {
	Log(ctx context.Context, rec tracking.Record) (string, error)
}

// SnapshotWriter stores tabular feature snapshots
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, rows []contracts.FeatureRow) (string, error)
}

// Deps are the collaborators of the orchestrator. Features, Tracker and
// Notifier are optional.
type Deps struct {
	Source   sales.Source
	Registry ModelRegistry
	Results  ResultWriter
	Features SnapshotWriter
	Tracker  RunTracker
	Notifier Notifier
}

// Options are the run parameters
type Options struct {
	Forecaster           string
	MinHistoryDays       int
	HorizonDays          int
	TrainingLookbackDays int
	HistoryLookbackDays  int
	Workers              int
}

// OptionsFromConfig maps pipeline configuration to run options
func OptionsFromConfig(cfg config.PipelineConfig) Options {
	return Options{
		Forecaster:           cfg.Forecaster,
		MinHistoryDays:       cfg.MinHistoryDays,
		HorizonDays:          cfg.HorizonDays,
		TrainingLookbackDays: cfg.TrainingLookbackDays,
		HistoryLookbackDays:  cfg.HistoryLookbackDays,
		Workers:              cfg.Workers,
	}
}

// TrainingResult holds the outcome of a training run
type TrainingResult struct {
	RunID           string                      `json:"run_id"`
	Artifact        contracts.ModelArtifact     `json:"artifact"`
	Quality         contracts.DataQualityReport `json:"quality"`
	Summary         contracts.TrainingSummary   `json:"summary"`
	Skipped         int                         `json:"skipped"`
	SnapshotPath    string                      `json:"snapshot_path,omitempty"`
	TrackingRunID   string                      `json:"tracking_run_id,omitempty"`
	CompletedStages []string                    `json:"completed_stages"`
	Duration        time.Duration               `json:"duration"`
}

// PredictionResult holds the outcome of a prediction run
type PredictionResult struct {
	RunID           string                  `json:"run_id"`
	Artifact        contracts.ModelArtifact `json:"artifact"`
	Loop            LoopResult              `json:"loop"`
	Persisted       int                     `json:"persisted"`
	Notified        int                     `json:"notified"`
	CompletedStages []string                `json:"completed_stages"`
	Duration        time.Duration           `json:"duration"`
}

// Orchestrator runs the training and prediction pipelines.
// The loaded model lives only for the duration of one run.
// ⭐ SSOT: 파이프라인 단계 순서는 여기서만
type Orchestrator struct {
	deps   Deps
	opts   Options
	params *modelconfig.Params
	gate   *Gate
	now    func() time.Time
	logger *logger.Logger
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(deps Deps, opts Options, params *modelconfig.Params, log *logger.Logger) *Orchestrator {
	if params == nil {
		params = modelconfig.Default()
	}
	return &Orchestrator{
		deps:   deps,
		opts:   opts,
		params: params,
		gate:   NewGate(opts.MinHistoryDays),
		now:    time.Now,
		logger: log.WithComponent("orchestrator"),
	}
}

// RunTraining extracts the training window, gates and prepares every entity,
// fits the configured forecaster and saves the artifact. Any stage error
// aborts the run; no artifact is written for a failed run.
func (o *Orchestrator) RunTraining(ctx context.Context) (result *TrainingResult, err error) {
	start := time.Now()
	result = &TrainingResult{RunID: uuid.NewString(), CompletedStages: make([]string, 0, 6)}
	defer func() {
		result.Duration = time.Since(start)
		metrics.RecordRun(string(contracts.RunTraining), result.Duration, err)
	}()

	window := sales.LookbackWindow(o.now(), o.opts.TrainingLookbackDays)
	o.logger.WithFields(map[string]interface{}{
		"run_id":     result.RunID,
		"forecaster": o.opts.Forecaster,
		"from":       window.From.Format(contracts.DateLayout),
		"to":         window.To.Format(contracts.DateLayout),
	}).Info("Starting training run")

	// P0: extract
	obs, err := o.deps.Source.Observations(ctx, window.From, window.To)
	if err != nil {
		return result, fmt.Errorf("%s failed: %w", contracts.StageExtract.ShortName(), err)
	}
	result.CompletedStages = append(result.CompletedStages, contracts.StageExtract.String())

	// P1: catalog
	keys := sales.ResolveEntities(obs, window)
	groups := sales.GroupByEntity(obs)
	result.CompletedStages = append(result.CompletedStages, contracts.StageCatalog.String())

	// P2: gate (on deduplicated series)
	prepared := features.PrepareAll(keys, groups)
	eligible, skipped := o.gate.Filter(prepared)
	result.Skipped = len(skipped)
	for _, d := range skipped {
		o.logger.WithFields(map[string]interface{}{
			"entity":    d.Key.String(),
			"count":     d.Count,
			"threshold": d.Threshold,
		}).Info("Entity excluded from training: insufficient history")
	}
	result.Quality = sales.QualityReport(obs, window, len(eligible))
	o.logQuality(result.Quality)
	result.CompletedStages = append(result.CompletedStages, contracts.StageGate.String())

	if len(eligible) == 0 {
		return result, contracts.NewTrainingError(
			fmt.Sprintf("%d entities discovered, none with %d days of history", len(keys), o.gate.Threshold()),
			contracts.ErrNoEligibleEntities)
	}

	// P3: prepare
	data := contracts.TrainingData{Series: eligible, MeanPrices: sales.MeanPrices(groups)}
	if o.opts.Forecaster == config.ForecasterTabular && o.deps.Features != nil {
		result.SnapshotPath = o.snapshot(ctx, data)
	}
	result.CompletedStages = append(result.CompletedStages, contracts.StagePrepare.String())

	// P4: fit + save
	f, err := forecaster.New(o.opts.Forecaster, o.params, o.logger.Zerolog())
	if err != nil {
		return result, contracts.NewTrainingError("select forecaster", err)
	}
	state, err := f.Fit(ctx, data)
	if err != nil {
		o.track(ctx, result, nil, true)
		return result, fmt.Errorf("%s failed: %w", contracts.StageFit.ShortName(), err)
	}
	state.CreatedAt = o.now().UTC()

	artifact, err := o.deps.Registry.Save(ctx, state)
	if err != nil {
		return result, fmt.Errorf("%s failed: %w", contracts.StageFit.ShortName(), err)
	}
	result.Artifact = artifact
	result.Summary = state.Summary
	result.CompletedStages = append(result.CompletedStages, contracts.StageFit.String())

	o.track(ctx, result, state, false)

	o.logger.WithFields(map[string]interface{}{
		"run_id":        result.RunID,
		"version":       artifact.Version,
		"entities":      state.Summary.Entities,
		"skipped":       result.Skipped,
		"in_sample_mae": state.Summary.InSampleMAE,
		"duration":      time.Since(start).String(),
	}).Info("Training run completed")

	return result, nil
}

// RunPrediction loads the model behind artifact and forecasts every entity
// of the history window. A persistence failure is fatal to the run;
// notification is best effort.
func (o *Orchestrator) RunPrediction(ctx context.Context, artifact contracts.ModelArtifact) (result *PredictionResult, err error) {
	start := time.Now()
	result = &PredictionResult{RunID: uuid.NewString(), Artifact: artifact, CompletedStages: make([]string, 0, 8)}
	defer func() {
		result.Duration = time.Since(start)
		metrics.RecordRun(string(contracts.RunPrediction), result.Duration, err)
	}()

	o.logger.WithFields(map[string]interface{}{
		"run_id":  result.RunID,
		"version": artifact.Version,
		"uri":     artifact.URI,
	}).Info("Starting prediction run")

	// P4: load
	predictor, err := o.load(ctx, artifact)
	if err != nil {
		return result, err
	}
	result.CompletedStages = append(result.CompletedStages, contracts.StageFit.String())

	// P0: extract
	window := sales.LookbackWindow(o.now(), o.opts.HistoryLookbackDays)
	obs, err := o.deps.Source.Observations(ctx, window.From, window.To)
	if err != nil {
		return result, fmt.Errorf("%s failed: %w", contracts.StageExtract.ShortName(), err)
	}
	result.CompletedStages = append(result.CompletedStages, contracts.StageExtract.String())

	// P1: catalog
	keys := sales.ResolveEntities(obs, window)
	groups := sales.GroupByEntity(obs)
	result.CompletedStages = append(result.CompletedStages, contracts.StageCatalog.String())

	// P2 → P5: per-entity loop
	loop := NewLoop(o.gate, o.opts.HorizonDays, o.opts.Workers, o.logger.Zerolog())
	result.Loop = loop.Run(ctx, predictor, keys, groups)
	result.CompletedStages = append(result.CompletedStages,
		contracts.StageGate.String(), contracts.StagePrepare.String(), contracts.StagePredict.String())

	// P6: persist
	persisted, err := o.deps.Results.Persist(ctx, result.Loop.Rows)
	if err != nil {
		return result, fmt.Errorf("%s failed: %w", contracts.StagePersist.ShortName(), err)
	}
	result.Persisted = persisted
	metrics.RecordPersisted(persisted)
	result.CompletedStages = append(result.CompletedStages, contracts.StagePersist.String())

	// P7: notify
	if o.deps.Notifier != nil && persisted > 0 {
		result.Notified = o.deps.Notifier.NotifyPredictions(result.Loop.Rows)
	}
	result.CompletedStages = append(result.CompletedStages, contracts.StageNotify.String())

	o.logger.WithFields(map[string]interface{}{
		"run_id":     result.RunID,
		"version":    artifact.Version,
		"discovered": result.Loop.Discovered,
		"skipped":    result.Loop.Skipped,
		"failed":     result.Loop.Failed,
		"forecast":   result.Loop.Forecast,
		"persisted":  persisted,
		"notified":   result.Notified,
		"duration":   time.Since(start).String(),
	}).Info("Prediction run completed")

	return result, nil
}

// LatestArtifact resolves the newest registry artifact
func (o *Orchestrator) LatestArtifact(ctx context.Context) (contracts.ModelArtifact, error) {
	return o.deps.Registry.Latest(ctx)
}

// load materializes a predictor for one run. Every failure is a *contracts.ModelLoadError.
func (o *Orchestrator) load(ctx context.Context, artifact contracts.ModelArtifact) (contracts.Predictor, error) {
	if artifact.IsZero() {
		return nil, &contracts.ModelLoadError{Artifact: artifact, Err: fmt.Errorf("empty artifact handle")}
	}

	state, err := o.deps.Registry.Load(ctx, artifact)
	if err != nil {
		return nil, err
	}

	f, err := forecaster.New(state.Kind, o.params, o.logger.Zerolog())
	if err != nil {
		return nil, &contracts.ModelLoadError{Artifact: artifact, Err: err}
	}
	predictor, err := f.Load(state)
	if err != nil {
		return nil, &contracts.ModelLoadError{Artifact: artifact, Err: err}
	}
	return predictor, nil
}

// snapshot writes tabular features to the offline store. Failures are logged only.
func (o *Orchestrator) snapshot(ctx context.Context, data contracts.TrainingData) string {
	keys := make([]contracts.EntityKey, len(data.Series))
	for i, s := range data.Series {
		keys[i] = s.Key
	}
	rows, err := features.NewTabularBuilder(features.FitEntityEncoder(keys)).BuildAll(data)
	if err != nil {
		o.logger.WithError(err).Warn("Feature snapshot skipped")
		return ""
	}
	path, err := o.deps.Features.WriteSnapshot(ctx, rows)
	if err != nil {
		o.logger.WithError(err).Warn("Feature snapshot failed")
		return ""
	}
	return path
}

func (o *Orchestrator) track(ctx context.Context, result *TrainingResult, state *contracts.ModelState, failed bool) {
	if o.deps.Tracker == nil {
		return
	}

	rec := tracking.Record{
		Name: "training-" + result.RunID[:8],
		Params: map[string]string{
			"forecaster":       o.opts.Forecaster,
			"min_history_days": fmt.Sprint(o.opts.MinHistoryDays),
			"lookback_days":    fmt.Sprint(o.opts.TrainingLookbackDays),
			"interval_width":   fmt.Sprint(o.params.IntervalWidth),
		},
		Metrics: map[string]float64{
			"entities_eligible": float64(result.Quality.EligibleEntities),
			"entities_skipped":  float64(result.Skipped),
			"rows":              float64(result.Quality.TotalRows),
		},
		Tags:   map[string]string{"run_id": result.RunID},
		Failed: failed,
	}
	if state != nil {
		rec.Params["params_hash"] = state.Summary.ParamsHash
		rec.Tags["model_version"] = state.Version
		rec.Metrics["in_sample_mae"] = state.Summary.InSampleMAE
		rec.Metrics["in_sample_rmse"] = state.Summary.InSampleRMSE
		if state.Summary.HoldoutMAE > 0 || state.Summary.HoldoutRMSE > 0 {
			rec.Metrics["holdout_mae"] = state.Summary.HoldoutMAE
			rec.Metrics["holdout_rmse"] = state.Summary.HoldoutRMSE
		}
	}

	runID, err := o.deps.Tracker.Log(ctx, rec)
	if err != nil {
		o.logger.WithError(err).Warn("Experiment tracking failed")
		return
	}
	result.TrackingRunID = runID
}

func (o *Orchestrator) logQuality(r contracts.DataQualityReport) {
	o.logger.WithFields(map[string]interface{}{
		"rows":          r.TotalRows,
		"first_date":    r.FirstDate.Format(contracts.DateLayout),
		"last_date":     r.LastDate.Format(contracts.DateLayout),
		"stores":        r.Stores,
		"items":         r.Items,
		"entities":      r.Entities,
		"eligible":      r.EligibleEntities,
		"eligible_rate": r.EligibleRate(),
		"qty_min":       r.QuantityMin,
		"qty_max":       r.QuantityMax,
		"qty_mean":      r.QuantityMean,
		"qty_std":       r.QuantityStd,
		"negative_rows": r.NegativeRows,
	}).Info("Data quality report")
}
