package contracts

import (
	"errors"
	"fmt"
)

// Error taxonomy
// soft: InsufficientHistoryError, EntityError (배치 계속 진행)
// hard: TrainingError, ModelLoadError, ErrModelNotLoaded, PersistenceError (실행 중단)
// boundary: ValidationError (HTTP 400, core에 도달하지 않음)

// ErrModelNotLoaded is returned by Predict on an unfit / unloaded model
var ErrModelNotLoaded = errors.New("model not loaded: fit or load before predict")

// ErrNoEligibleEntities aborts a training run whose window has no entity past the gate
var ErrNoEligibleEntities = errors.New("no eligible entities in training window")

// InsufficientHistoryError marks an entity skipped by the sufficiency gate
type InsufficientHistoryError struct {
	Key       EntityKey
	Count     int
	Threshold int
}

func (e *InsufficientHistoryError) Error() string {
	return fmt.Sprintf("insufficient history for %s: %d observations, need %d", e.Key, e.Count, e.Threshold)
}

// TrainingError aborts a training run (empty or malformed input)
type TrainingError struct {
	Reason string
	Err    error
}

func (e *TrainingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("training failed: %s: %v", e.Reason, e.Err)
	}
	return "training failed: " + e.Reason
}

func (e *TrainingError) Unwrap() error { return e.Err }

// NewTrainingError builds a TrainingError
func NewTrainingError(reason string, err error) error {
	return &TrainingError{Reason: reason, Err: err}
}

// ModelLoadError reports a missing or incompatible artifact
type ModelLoadError struct {
	Artifact ModelArtifact
	Err      error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s (%s): %v", e.Artifact.Version, e.Artifact.URI, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// EntityError isolates a failure of one entity inside the prediction loop
type EntityError struct {
	Key   EntityKey
	Stage Stage
	Err   error
}

func (e *EntityError) Error() string {
	return fmt.Sprintf("%s failed at %s: %v", e.Key, e.Stage.ShortName(), e.Err)
}

func (e *EntityError) Unwrap() error { return e.Err }

// PersistenceError reports a rolled-back bulk insert
type PersistenceError struct {
	Rows int
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist %d forecast rows: %v", e.Rows, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ValidationError is a malformed request at the API boundary
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidation reports whether err is (or wraps) a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
