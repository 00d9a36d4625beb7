package jobs

import (
	"context"
	"fmt"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/internal/pipeline"
	"github.com/wonny/demandcast/backend/pkg/logger"
)

// Submitter queues pipeline runs (pipeline.Runner)
type Submitter interface {
	Submit(req pipeline.RunRequest) error
}

// PipelineJob enqueues one request and waits for its outcome, so the scheduler
// history reflects the run. Execution stays on the runner goroutine.
type PipelineJob struct {
	name     string
	schedule string
	kind     contracts.RunKind
	runner   Submitter
	logger   *logger.Logger
}

// Name returns the job name
func (j *PipelineJob) Name() string { return j.name }

// Schedule returns the cron schedule
func (j *PipelineJob) Schedule() string { return j.schedule }

// Run enqueues the run request
func (j *PipelineJob) Run(ctx context.Context) error {
	done := make(chan pipeline.RunOutcome, 1)
	if err := j.runner.Submit(pipeline.RunRequest{Kind: j.kind, Trigger: j.name, Done: done}); err != nil {
		return fmt.Errorf("enqueue %s run: %w", j.kind, err)
	}
	j.logger.WithField("job", j.name).Debug("Run request queued")

	select {
	case <-ctx.Done():
		return ctx.Err()
	case out := <-done:
		return out.Err()
	}
}

// NewTrainingJob retrains the model (weekly by default)
func NewTrainingJob(runner Submitter, schedule string, log *logger.Logger) *PipelineJob {
	return &PipelineJob{
		name:     "weekly_training",
		schedule: schedule,
		kind:     contracts.RunTraining,
		runner:   runner,
		logger:   log,
	}
}

// NewPredictionJob forecasts with the newest artifact (hourly by default)
func NewPredictionJob(runner Submitter, schedule string, log *logger.Logger) *PipelineJob {
	return &PipelineJob{
		name:     "recurring_prediction",
		schedule: schedule,
		kind:     contracts.RunPrediction,
		runner:   runner,
		logger:   log,
	}
}
