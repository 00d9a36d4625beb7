package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/pkg/logger"
)

type fakePipeline struct {
	mu        sync.Mutex
	active    int
	maxActive int
	order     []string
	latest    contracts.ModelArtifact
	trainErr  error
}

func (f *fakePipeline) enter(name string) {
	f.mu.Lock()
	f.active++
	if f.active > f.maxActive {
		f.maxActive = f.active
	}
	f.order = append(f.order, name)
	f.mu.Unlock()
	time.Sleep(5 * time.Millisecond)
	f.mu.Lock()
	f.active--
	f.mu.Unlock()
}

func (f *fakePipeline) RunTraining(ctx context.Context) (*TrainingResult, error) {
	f.enter("training")
	if f.trainErr != nil {
		return &TrainingResult{}, f.trainErr
	}
	return &TrainingResult{Artifact: contracts.ModelArtifact{URI: "file:///r/v2", Version: "v2"}}, nil
}

func (f *fakePipeline) RunPrediction(ctx context.Context, artifact contracts.ModelArtifact) (*PredictionResult, error) {
	f.enter("prediction:" + artifact.Version)
	return &PredictionResult{Artifact: artifact, Persisted: 15}, nil
}

func (f *fakePipeline) LatestArtifact(ctx context.Context) (contracts.ModelArtifact, error) {
	if f.latest.IsZero() {
		return contracts.ModelArtifact{}, fmt.Errorf("no trained model")
	}
	return f.latest, nil
}

func TestRunner_SequentialExecution(t *testing.T) {
	p := &fakePipeline{latest: contracts.ModelArtifact{URI: "file:///r/v1", Version: "v1"}}
	r := NewRunner(p, 8, logger.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go r.Start(ctx)

	done := make(chan RunOutcome, 4)
	require.NoError(t, r.Submit(RunRequest{Kind: contracts.RunTraining, Trigger: "weekly_training", Done: done}))
	require.NoError(t, r.Submit(RunRequest{Kind: contracts.RunPrediction, Trigger: "hourly_prediction", Done: done}))
	require.NoError(t, r.Submit(RunRequest{
		Kind:     contracts.RunPrediction,
		Artifact: contracts.ModelArtifact{URI: "file:///r/v0", Version: "v0"},
		Done:     done,
	}))

	for i := 0; i < 3; i++ {
		select {
		case out := <-done:
			assert.True(t, out.Success, out.Error)
		case <-time.After(2 * time.Second):
			t.Fatal("run did not complete")
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	assert.Equal(t, 1, p.maxActive, "runs never overlap")
	assert.Equal(t, []string{"training", "prediction:v1", "prediction:v0"}, p.order)

	last := r.Last()
	assert.Equal(t, "v0", last[contracts.RunPrediction].Prediction.Artifact.Version)
}

func TestRunner_PredictionWithoutModel(t *testing.T) {
	r := NewRunner(&fakePipeline{}, 1, logger.Nop())

	out := r.Execute(context.Background(), RunRequest{Kind: contracts.RunPrediction})
	assert.False(t, out.Success)
	var lerr *contracts.ModelLoadError
	assert.True(t, errors.As(out.Err(), &lerr))
}

func TestRunner_RecordsFailure(t *testing.T) {
	p := &fakePipeline{trainErr: contracts.NewTrainingError("empty", contracts.ErrNoEligibleEntities)}
	r := NewRunner(p, 1, logger.Nop())

	out := r.Execute(context.Background(), RunRequest{Kind: contracts.RunTraining, Trigger: "cli"})
	assert.False(t, out.Success)
	assert.Contains(t, out.Error, "no eligible entities")
	assert.False(t, r.Last()[contracts.RunTraining].Success)
}

func TestRunner_SubmitQueueFull(t *testing.T) {
	r := NewRunner(&fakePipeline{}, 1, logger.Nop())

	require.NoError(t, r.Submit(RunRequest{Kind: contracts.RunTraining}))
	assert.ErrorIs(t, r.Submit(RunRequest{Kind: contracts.RunTraining}), ErrQueueFull)
	assert.Equal(t, 1, r.Pending())

	assert.Error(t, r.Submit(RunRequest{Kind: "backfill"}))
}
