package scheduler

import (
	"context"
	"time"
)

// Job represents a scheduled job
// ⭐ SSOT: 스케줄 작업 인터페이스는 여기서만 정의
type Job interface {
	// Name returns the job name
	Name() string

	// Run executes the job. Pipeline jobs block until the queued run finishes.
	Run(ctx context.Context) error

	// Schedule returns the cron schedule expression (with seconds)
	// Examples: "0 0 2 * * TUE" (weekly training), "0 1 * * * *" (hourly prediction)
	Schedule() string
}

// Triggers
const (
	TriggerCron   = "cron"
	TriggerManual = "manual"
)

// JobResult represents the result of a job execution
type JobResult struct {
	JobName   string        `json:"job_name"`
	Trigger   string        `json:"trigger"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// historyLimit bounds the results kept per job
const historyLimit = 50

// JobHistory keeps the recent results of one job plus lifetime counters
type JobHistory struct {
	Results []JobResult

	total       int
	failures    int
	lastSuccess *time.Time
	lastFailure *time.Time
}

// AddResult records a result, dropping the oldest beyond historyLimit
func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)
	if len(h.Results) > historyLimit {
		h.Results = h.Results[len(h.Results)-historyLimit:]
	}

	h.total++
	at := result.StartTime
	if result.Success {
		h.lastSuccess = &at
	} else {
		h.failures++
		h.lastFailure = &at
	}
}

// Last returns the most recent result
func (h *JobHistory) Last() (JobResult, bool) {
	if len(h.Results) == 0 {
		return JobResult{}, false
	}
	return h.Results[len(h.Results)-1], true
}

// SuccessRate returns the lifetime success rate (0.0 - 1.0)
func (h *JobHistory) SuccessRate() float64 {
	if h.total == 0 {
		return 0
	}
	return float64(h.total-h.failures) / float64(h.total)
}

// Stats summarizes the history; NextRun is filled in by the scheduler
func (h *JobHistory) Stats(jobName, schedule string) JobStats {
	st := JobStats{
		JobName:      jobName,
		Schedule:     schedule,
		TotalRuns:    h.total,
		SuccessCount: h.total - h.failures,
		FailureCount: h.failures,
		SuccessRate:  h.SuccessRate(),
		LastSuccess:  h.lastSuccess,
		LastFailure:  h.lastFailure,
	}
	if last, ok := h.Last(); ok {
		st.LastRun = &last.StartTime
		st.LastError = last.Error
	}
	return st
}

// JobStats represents statistics for a job
type JobStats struct {
	JobName      string     `json:"job_name"`
	Schedule     string     `json:"schedule"`
	TotalRuns    int        `json:"total_runs"`
	SuccessCount int        `json:"success_count"`
	FailureCount int        `json:"failure_count"`
	SuccessRate  float64    `json:"success_rate"`
	LastRun      *time.Time `json:"last_run,omitempty"`
	LastSuccess  *time.Time `json:"last_success,omitempty"`
	LastFailure  *time.Time `json:"last_failure,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	NextRun      *time.Time `json:"next_run,omitempty"`
}
