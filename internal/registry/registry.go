package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wonny/demandcast/backend/internal/contracts"
)

const stateFile = "model.json"

// Registry stores immutable, versioned model states.
// Versions start with a UTC timestamp so the lexicographic maximum is the newest.
type Registry struct {
	store Store
	uri   string
	now   func() time.Time
	log   zerolog.Logger
}

// New creates a registry over store; uri is the base used in artifact handles
func New(store Store, uri string, log zerolog.Logger) *Registry {
	return &Registry{
		store: store,
		uri:   strings.TrimRight(uri, "/"),
		now:   time.Now,
		log:   log.With().Str("component", "registry").Logger(),
	}
}

// NewVersion returns a version tag like 20261019T020000Z-series-ab12cd34
func NewVersion(at time.Time, kind string) string {
	return fmt.Sprintf("%s-%s-%s", at.UTC().Format("20060102T150405Z"), kind, uuid.NewString()[:8])
}

// Save assigns a fresh version to state and writes it create-only
func (r *Registry) Save(ctx context.Context, state *contracts.ModelState) (contracts.ModelArtifact, error) {
	if state == nil {
		return contracts.ModelArtifact{}, fmt.Errorf("nil model state")
	}

	state.Version = NewVersion(r.now(), state.Kind)
	data, err := json.Marshal(state)
	if err != nil {
		return contracts.ModelArtifact{}, fmt.Errorf("marshal model state: %w", err)
	}

	if err := r.store.Put(ctx, path.Join(state.Version, stateFile), data); err != nil {
		return contracts.ModelArtifact{}, fmt.Errorf("save model %s: %w", state.Version, err)
	}

	artifact := r.artifact(state.Version)
	r.log.Info().
		Str("version", artifact.Version).
		Str("uri", artifact.URI).
		Str("kind", state.Kind).
		Int("bytes", len(data)).
		Msg("model artifact saved")

	return artifact, nil
}

// Load reads the state behind artifact. Every failure is a *contracts.ModelLoadError.
func (r *Registry) Load(ctx context.Context, artifact contracts.ModelArtifact) (*contracts.ModelState, error) {
	version := artifact.Version
	if version == "" {
		version = path.Base(strings.TrimRight(artifact.URI, "/"))
	}
	if version == "" || version == "." || version == "/" {
		return nil, &contracts.ModelLoadError{Artifact: artifact, Err: fmt.Errorf("artifact has no version")}
	}

	data, err := r.store.Get(ctx, path.Join(version, stateFile))
	if err != nil {
		return nil, &contracts.ModelLoadError{Artifact: artifact, Err: err}
	}

	var state contracts.ModelState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, &contracts.ModelLoadError{Artifact: artifact, Err: fmt.Errorf("decode state: %w", err)}
	}
	if state.Version != version {
		return nil, &contracts.ModelLoadError{Artifact: artifact, Err: fmt.Errorf("state version %q does not match %q", state.Version, version)}
	}

	return &state, nil
}

// List returns every stored artifact, oldest first
func (r *Registry) List(ctx context.Context) ([]contracts.ModelArtifact, error) {
	keys, err := r.store.List(ctx, "")
	if err != nil {
		return nil, err
	}

	var versions []string
	for _, k := range keys {
		dir, file := path.Split(k)
		if file != stateFile || dir == "" {
			continue
		}
		versions = append(versions, strings.TrimSuffix(dir, "/"))
	}
	sort.Strings(versions)

	out := make([]contracts.ModelArtifact, len(versions))
	for i, v := range versions {
		out[i] = r.artifact(v)
	}
	return out, nil
}

// Latest returns the newest artifact, or ErrNotFound when the registry is empty
func (r *Registry) Latest(ctx context.Context) (contracts.ModelArtifact, error) {
	all, err := r.List(ctx)
	if err != nil {
		return contracts.ModelArtifact{}, err
	}
	if len(all) == 0 {
		return contracts.ModelArtifact{}, fmt.Errorf("no trained model: %w", ErrNotFound)
	}
	return all[len(all)-1], nil
}

// IsEmpty reports a Latest failure caused by an empty registry
func IsEmpty(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func (r *Registry) artifact(version string) contracts.ModelArtifact {
	return contracts.ModelArtifact{URI: r.uri + "/" + version, Version: version}
}
