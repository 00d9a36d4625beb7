package registry

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/pkg/config"
)

func TestFSStore_CreateOnly(t *testing.T) {
	s, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "v1/model.json", []byte(`{"a":1}`)))
	err = s.Put(ctx, "v1/model.json", []byte(`{"a":2}`))
	assert.ErrorIs(t, err, ErrExists)

	data, err := s.Get(ctx, "v1/model.json")
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1}`, string(data), "existing object is never overwritten")

	_, err = s.Get(ctx, "v2/model.json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "v0/model.json", []byte(`{}`)))
	keys, err := s.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"v0/model.json", "v1/model.json"}, keys)

	assert.Error(t, s.Put(ctx, "../escape", []byte(`{}`)))
}

func newTestRegistry(t *testing.T, store Store) *Registry {
	r := New(store, "file:///models/", zerolog.Nop())
	clock := time.Date(2026, 10, 19, 2, 0, 0, 0, time.UTC)
	r.now = func() time.Time {
		clock = clock.Add(time.Hour)
		return clock
	}
	return r
}

func TestRegistry_SaveLoadLatest(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	r := newTestRegistry(t, store)
	ctx := context.Background()

	_, err = r.Latest(ctx)
	assert.True(t, IsEmpty(err))

	first, err := r.Save(ctx, &contracts.ModelState{Kind: "series", Params: []byte(`{}`)})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(first.Version, "20261019T030000Z-series-"))
	assert.Equal(t, "file:///models/"+first.Version, first.URI)

	second, err := r.Save(ctx, &contracts.ModelState{Kind: "tabular", Params: []byte(`{}`)})
	require.NoError(t, err)

	latest, err := r.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, latest)

	all, err := r.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []contracts.ModelArtifact{first, second}, all)

	state, err := r.Load(ctx, first)
	require.NoError(t, err)
	assert.Equal(t, "series", state.Kind)
	assert.Equal(t, first.Version, state.Version)

	// URI alone resolves the version
	state, err = r.Load(ctx, contracts.ModelArtifact{URI: second.URI})
	require.NoError(t, err)
	assert.Equal(t, "tabular", state.Kind)
}

func TestRegistry_LoadMissing(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	r := newTestRegistry(t, store)

	_, err = r.Load(context.Background(), contracts.ModelArtifact{Version: "20200101T000000Z-series-deadbeef"})
	var lerr *contracts.ModelLoadError
	require.ErrorAs(t, err, &lerr)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = r.Load(context.Background(), contracts.ModelArtifact{})
	require.ErrorAs(t, err, &lerr)
}

func TestRegistry_LoadCorrupt(t *testing.T) {
	store, err := NewFSStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), "bad/model.json", []byte(`not json`)))

	r := newTestRegistry(t, store)
	_, err = r.Load(context.Background(), contracts.ModelArtifact{Version: "bad"})
	var lerr *contracts.ModelLoadError
	assert.ErrorAs(t, err, &lerr)
}

func TestNewVersion(t *testing.T) {
	at := time.Date(2026, 10, 19, 2, 0, 0, 0, time.FixedZone("KST", 9*3600))
	v := NewVersion(at, "series")
	assert.True(t, strings.HasPrefix(v, "20261018T170000Z-series-"))
	assert.Len(t, v, len("20261018T170000Z-series-")+8)
	assert.NotEqual(t, v, NewVersion(at, "series"))
}

func TestOpen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reg")

	s, err := Open(context.Background(), config.RegistryConfig{URI: "file://" + dir})
	require.NoError(t, err)
	assert.IsType(t, &FSStore{}, s)
	assert.DirExists(t, dir)

	_, err = Open(context.Background(), config.RegistryConfig{URI: "gs://bucket/x"})
	assert.Error(t, err)

	_, err = Open(context.Background(), config.RegistryConfig{URI: "s3:///nobucket"})
	assert.Error(t, err)
}
