package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/backend/pkg/logger"
)

type countJob struct {
	name     string
	schedule string
	runs     int32
	err      error
}

func (j *countJob) Name() string { return j.name }

func (j *countJob) Schedule() string { return j.schedule }

func (j *countJob) Run(ctx context.Context) error {
	atomic.AddInt32(&j.runs, 1)
	return j.err
}

func TestScheduler_AddJob(t *testing.T) {
	s := New(logger.Nop())

	require.NoError(t, s.AddJob(&countJob{name: "b", schedule: "0 0 2 * * TUE"}))
	require.NoError(t, s.AddJob(&countJob{name: "a", schedule: "@hourly"}))
	assert.Error(t, s.AddJob(&countJob{name: "a", schedule: "@hourly"}), "duplicate name")
	assert.Error(t, s.AddJob(&countJob{name: "c", schedule: "not a cron"}))

	assert.Equal(t, []string{"a", "b"}, s.GetAllJobs())

	require.NoError(t, s.RemoveJob("a"))
	assert.Error(t, s.RemoveJob("a"))
	assert.Equal(t, []string{"b"}, s.GetAllJobs())

	st := s.GetJobStats()["b"]
	require.NotNil(t, st.NextRun, "next run is known before Start")
	assert.Equal(t, time.Tuesday, st.NextRun.Weekday())
	assert.Equal(t, 2, st.NextRun.Hour())
}

func TestScheduler_RunJobSync_NoRetry(t *testing.T) {
	s := New(logger.Nop())
	failing := &countJob{name: "train", schedule: "@weekly", err: errors.New("no eligible entities")}
	require.NoError(t, s.AddJob(failing))

	result, err := s.RunJobSync("train")
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "no eligible entities", result.Error)
	assert.Equal(t, TriggerManual, result.Trigger)
	assert.Equal(t, int32(1), atomic.LoadInt32(&failing.runs), "failed jobs are not retried")

	stats := s.GetJobStats()["train"]
	assert.Equal(t, 1, stats.TotalRuns)
	assert.Equal(t, 1, stats.FailureCount)
	assert.Equal(t, "no eligible entities", stats.LastError)
	require.NotNil(t, stats.LastFailure)

	_, err = s.RunJobSync("missing")
	assert.Error(t, err)
}

func TestScheduler_FiresOnSchedule(t *testing.T) {
	s := New(logger.Nop())
	job := &countJob{name: "tick", schedule: "* * * * * *"}
	require.NoError(t, s.AddJob(job))

	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool { return atomic.LoadInt32(&job.runs) >= 1 }, 3*time.Second, 50*time.Millisecond)

	stats := s.GetJobStats()["tick"]
	assert.NotNil(t, stats.NextRun)
}

func TestJobHistory(t *testing.T) {
	h := &JobHistory{}
	assert.Equal(t, 0.0, h.SuccessRate())
	_, ok := h.Last()
	assert.False(t, ok)

	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 120; i++ {
		r := JobResult{JobName: "x", StartTime: base.Add(time.Duration(i) * time.Hour), Success: i%4 != 0}
		if !r.Success {
			r.Error = "boom"
		}
		h.AddResult(r)
	}
	assert.Len(t, h.Results, historyLimit)
	assert.InDelta(t, 0.75, h.SuccessRate(), 1e-9)

	st := h.Stats("x", "@hourly")
	assert.Equal(t, 120, st.TotalRuns)
	assert.Equal(t, 30, st.FailureCount)
	assert.Equal(t, base.Add(119*time.Hour), *st.LastRun)
	assert.Equal(t, base.Add(119*time.Hour), *st.LastSuccess)
	assert.Equal(t, base.Add(116*time.Hour), *st.LastFailure)
	assert.Empty(t, st.LastError)
}
