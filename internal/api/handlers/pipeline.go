package handlers

import (
	"errors"
	"net/http"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/internal/pipeline"
	"github.com/wonny/demandcast/backend/internal/scheduler"
	"github.com/wonny/demandcast/backend/pkg/logger"
)

// JobStatsProvider exposes scheduler statistics (scheduler.Scheduler)
type JobStatsProvider interface {
	GetJobStats() map[string]scheduler.JobStats
}

// RunQueue accepts and reports pipeline runs (pipeline.Runner)
type RunQueue interface {
	Submit(req pipeline.RunRequest) error
	Last() map[contracts.RunKind]pipeline.RunOutcome
	Pending() int
}

// JobsResponse is the GET /api/ai/pipeline/jobs response
type JobsResponse struct {
	Jobs     map[string]scheduler.JobStats             `json:"jobs"`
	LastRuns map[contracts.RunKind]pipeline.RunOutcome `json:"last_runs"`
	Pending  int                                       `json:"pending"`
}

// PipelineHandler handles pipeline status and manual run endpoints
// ⭐ SSOT: 파이프라인 API 핸들러는 여기서만
type PipelineHandler struct {
	jobs   JobStatsProvider
	runs   RunQueue
	logger *logger.Logger
}

// NewPipelineHandler creates a new pipeline handler. jobs may be nil when
// the scheduler is disabled.
func NewPipelineHandler(jobs JobStatsProvider, runs RunQueue, log *logger.Logger) *PipelineHandler {
	return &PipelineHandler{
		jobs:   jobs,
		runs:   runs,
		logger: log,
	}
}

// GetJobs returns scheduler statistics and the last run of each kind
// GET /api/ai/pipeline/jobs
func (h *PipelineHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	resp := JobsResponse{
		Jobs:     map[string]scheduler.JobStats{},
		LastRuns: h.runs.Last(),
		Pending:  h.runs.Pending(),
	}
	if h.jobs != nil {
		resp.Jobs = h.jobs.GetJobStats()
	}
	respondJSON(w, http.StatusOK, resp)
}

// SubmitRun queues a training or prediction run
// POST /api/ai/pipeline/runs?kind=training|prediction
func (h *PipelineHandler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	kind := contracts.RunKind(r.URL.Query().Get("kind"))
	if kind != contracts.RunTraining && kind != contracts.RunPrediction {
		respondErr(w, &contracts.ValidationError{Field: "kind", Message: "must be training or prediction"})
		return
	}

	if err := h.runs.Submit(pipeline.RunRequest{Kind: kind, Trigger: "api"}); err != nil {
		if errors.Is(err, pipeline.ErrQueueFull) {
			respondError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
		respondErr(w, err)
		return
	}

	h.logger.WithField("kind", string(kind)).Info("Pipeline run queued via API")
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"queued":  true,
		"kind":    kind,
		"pending": h.runs.Pending(),
	})
}
