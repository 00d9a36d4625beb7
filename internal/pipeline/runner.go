package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/pkg/logger"
)

// ErrQueueFull is returned by Submit when the run queue is saturated
var ErrQueueFull = errors.New("pipeline run queue is full")

// Pipeline is the run surface the Runner drives
type Pipeline interface {
	RunTraining(ctx context.Context) (*TrainingResult, error)
	RunPrediction(ctx context.Context, artifact contracts.ModelArtifact) (*PredictionResult, error)
	LatestArtifact(ctx context.Context) (contracts.ModelArtifact, error)
}

// RunRequest asks the Runner for one pipeline run.
// A prediction request without an artifact uses the newest one at execution time.
type RunRequest struct {
	Kind     contracts.RunKind
	Artifact contracts.ModelArtifact
	Trigger  string // scheduler job name, "bootstrap", "cli"
	Done     chan<- RunOutcome
}

// RunOutcome reports one executed request
type RunOutcome struct {
	Kind       contracts.RunKind `json:"kind"`
	Trigger    string            `json:"trigger"`
	StartTime  time.Time         `json:"start_time"`
	Duration   time.Duration     `json:"duration"`
	Success    bool              `json:"success"`
	Error      string            `json:"error,omitempty"`
	Training   *TrainingResult   `json:"training,omitempty"`
	Prediction *PredictionResult `json:"prediction,omitempty"`

	err error
}

// Err returns the run error, if any
func (o RunOutcome) Err() error {
	return o.err
}

// Runner executes queued run requests one at a time.
// ⭐ SSOT: 파이프라인 실행은 이 큐를 통해 순차적으로만
type Runner struct {
	pipeline Pipeline
	requests chan RunRequest
	logger   *logger.Logger

	mu   sync.RWMutex
	last map[contracts.RunKind]RunOutcome
}

// NewRunner creates a runner with a request buffer of size buffer
func NewRunner(p Pipeline, buffer int, log *logger.Logger) *Runner {
	if buffer < 1 {
		buffer = 1
	}
	return &Runner{
		pipeline: p,
		requests: make(chan RunRequest, buffer),
		logger:   log.WithComponent("runner"),
		last:     make(map[contracts.RunKind]RunOutcome),
	}
}

// Submit enqueues req without blocking
func (r *Runner) Submit(req RunRequest) error {
	if req.Kind != contracts.RunTraining && req.Kind != contracts.RunPrediction {
		return fmt.Errorf("unknown run kind %q", req.Kind)
	}
	select {
	case r.requests <- req:
		return nil
	default:
		return ErrQueueFull
	}
}

// Start executes requests until ctx is cancelled. Blocks.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("Runner started")
	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Runner stopped")
			return
		case req := <-r.requests:
			out := r.Execute(ctx, req)
			if req.Done != nil {
				req.Done <- out
			}
		}
	}
}

// Execute runs one request synchronously
func (r *Runner) Execute(ctx context.Context, req RunRequest) RunOutcome {
	out := RunOutcome{Kind: req.Kind, Trigger: req.Trigger, StartTime: time.Now()}

	switch req.Kind {
	case contracts.RunTraining:
		out.Training, out.err = r.pipeline.RunTraining(ctx)
	case contracts.RunPrediction:
		artifact := req.Artifact
		if artifact.IsZero() {
			artifact, out.err = r.pipeline.LatestArtifact(ctx)
			if out.err != nil {
				out.err = &contracts.ModelLoadError{Artifact: artifact, Err: out.err}
			}
		}
		if out.err == nil {
			out.Prediction, out.err = r.pipeline.RunPrediction(ctx, artifact)
		}
	default:
		out.err = fmt.Errorf("unknown run kind %q", req.Kind)
	}

	out.Duration = time.Since(out.StartTime)
	out.Success = out.err == nil
	if out.err != nil {
		out.Error = out.err.Error()
		r.logger.WithError(out.err).WithFields(map[string]interface{}{
			"kind":    string(req.Kind),
			"trigger": req.Trigger,
		}).Error("Pipeline run failed")
	}

	r.mu.Lock()
	r.last[req.Kind] = out
	r.mu.Unlock()

	return out
}

// Last returns the most recent outcome of each run kind
func (r *Runner) Last() map[contracts.RunKind]RunOutcome {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[contracts.RunKind]RunOutcome, len(r.last))
	for k, v := range r.last {
		out[k] = v
	}
	return out
}

// Pending returns the number of queued requests
func (r *Runner) Pending() int {
	return len(r.requests)
}
