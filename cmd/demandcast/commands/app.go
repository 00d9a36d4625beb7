package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/wonny/demandcast/backend/internal/featurestore"
	"github.com/wonny/demandcast/backend/internal/forecaster"
	"github.com/wonny/demandcast/backend/internal/notify"
	"github.com/wonny/demandcast/backend/internal/pipeline"
	"github.com/wonny/demandcast/backend/internal/registry"
	"github.com/wonny/demandcast/backend/internal/sales"
	"github.com/wonny/demandcast/backend/internal/scheduler"
	"github.com/wonny/demandcast/backend/internal/scheduler/jobs"
	"github.com/wonny/demandcast/backend/internal/store"
	"github.com/wonny/demandcast/backend/internal/tracking"
	"github.com/wonny/demandcast/backend/pkg/config"
	"github.com/wonny/demandcast/backend/pkg/database"
	"github.com/wonny/demandcast/backend/pkg/logger"
	"github.com/wonny/demandcast/backend/pkg/redis"
)

const (
	runQueueSize  = 8
	snapshotsKept = 8

	// RAW_DB_URL이 없을 때의 합성 데이터 규모
	syntheticStores = 3
	syntheticDays   = 365
	syntheticSeed   = 42
)

// app holds the wired components shared by the commands
type app struct {
	cfg *config.Config
	log *logger.Logger

	source   sales.Source
	rawDB    *database.DB
	db       *sqlx.DB
	results  *store.ForecastStore
	registry *registry.Registry
	redis    *redis.Client
	features *featurestore.Store
	tracker  *tracking.Client
	hub      *notify.Hub

	orch   *pipeline.Orchestrator
	runner *pipeline.Runner
}

// newApp wires config → source → stores → orchestrator → runner.
// withHub enables websocket push of new predictions.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger, withHub bool) (*app, error) {
	a := &app{cfg: cfg, log: log}

	// 1. Raw sales source
	if cfg.Database.URL == "" {
		synth, err := sales.NewSynthetic(sales.SyntheticConfig{
			Stores: syntheticStores,
			Items:  len(sales.MenuItems),
			Days:   syntheticDays,
			End:    time.Now().AddDate(0, 0, -1),
			Seed:   syntheticSeed,
		})
		if err != nil {
			return nil, fmt.Errorf("synthetic source: %w", err)
		}
		a.source = synth
		log.Warn("RAW_DB_URL not set, using synthetic sales data")
	} else {
		rawDB, err := database.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to raw database: %w", err)
		}
		a.rawDB = rawDB
		a.source = sales.NewRepository(rawDB.Pool)
		log.Info("Connected to raw sales database")
	}

	// 2. Forecast result store
	db, dialect, err := database.OpenStore(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.db = db
	if _, err := store.Migrate(db, dialect); err != nil {
		a.Close()
		return nil, err
	}
	a.results = store.NewForecastStore(db, dialect, log.Zerolog())

	// 3. Model registry
	blobs, err := registry.Open(ctx, cfg.Registry)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open model registry: %w", err)
	}
	a.registry = registry.New(blobs, cfg.Registry.URI, log.Zerolog())

	// 4. Feature store (+ online cache)
	a.redis, err = redis.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, feature cache disabled")
		a.redis = redis.Disabled()
	}
	a.features = featurestore.New(cfg.FeatureStorePath, redis.NewCache(a.redis, "demandcast"), log.Zerolog())

	// 5. Tracking (no-op without MLFLOW_TRACKING_URI)
	a.tracker = tracking.New(cfg.Tracking, log)

	// 6. Orchestrator
	params, err := forecaster.Params(cfg.Pipeline.ModelConfigPath, cfg.Pipeline.IntervalWidth)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load model params: %w", err)
	}

	deps := pipeline.Deps{
		Source:   a.source,
		Registry: a.registry,
		Results:  a.results,
		Features: a.features,
		Tracker:  a.tracker,
	}
	if withHub {
		a.hub = notify.NewHub(cfg.Pipeline.NotifyPreviewSize, log.Zerolog())
		deps.Notifier = a.hub
	}

	a.orch = pipeline.NewOrchestrator(deps, pipeline.OptionsFromConfig(cfg.Pipeline), params, log)
	a.runner = pipeline.NewRunner(a.orch, runQueueSize, log)

	return a, nil
}

// newScheduler registers the training, prediction and cleanup jobs
func (a *app) newScheduler() (*scheduler.Scheduler, error) {
	sched := scheduler.New(a.log)

	for _, job := range []scheduler.Job{
		jobs.NewTrainingJob(a.runner, a.cfg.Scheduler.TrainingSchedule, a.log),
		jobs.NewPredictionJob(a.runner, a.cfg.Scheduler.PredictionSchedule, a.log),
		jobs.NewSnapshotCleanupJob(a.features, snapshotsKept, a.log),
	} {
		if err := sched.AddJob(job); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// Close releases connections in reverse order of creation
func (a *app) Close() {
	if a.redis != nil {
		a.redis.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
	if a.rawDB != nil {
		a.rawDB.Close()
	}
}
