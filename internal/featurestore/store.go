// Package featurestore keeps offline feature snapshots (JSONL) and an online
// cache of the latest feature row per entity.
package featurestore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/pkg/redis"
)

const snapshotPrefix = "features_"

// Store writes timestamped snapshots under dir and caches the newest row per entity
type Store struct {
	dir   string
	cache *redis.Cache
	now   func() time.Time
	log   zerolog.Logger
}

// New creates a feature store. cache may wrap a disabled client.
func New(dir string, cache *redis.Cache, log zerolog.Logger) *Store {
	return &Store{
		dir:   dir,
		cache: cache,
		now:   time.Now,
		log:   log.With().Str("component", "featurestore").Logger(),
	}
}

// WriteSnapshot writes rows as one JSONL file and refreshes the online cache.
// Cache failures are logged, not returned.
func (s *Store) WriteSnapshot(ctx context.Context, rows []contracts.FeatureRow) (string, error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create feature store dir: %w", err)
	}

	name := snapshotPrefix + s.now().UTC().Format("20060102T150405.000Z") + ".jsonl"
	path := filepath.Join(s.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("create snapshot: %w", err)
	}

	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for i := range rows {
		if err := enc.Encode(&rows[i]); err != nil {
			f.Close()
			return "", fmt.Errorf("encode feature row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return "", fmt.Errorf("flush snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close snapshot: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetMany(ctx, latestByEntity(rows), redis.TTLWeekly); err != nil {
			s.log.Warn().Err(err).Msg("online feature cache refresh failed")
		}
	}

	s.log.Info().Str("path", path).Int("rows", len(rows)).Msg("feature snapshot written")
	return path, nil
}

// Latest returns the cached newest row of key
func (s *Store) Latest(ctx context.Context, key contracts.EntityKey) (*contracts.FeatureRow, bool, error) {
	if s.cache == nil {
		return nil, false, nil
	}
	var row contracts.FeatureRow
	found, err := s.cache.Get(ctx, redis.FeatureKey(key.Store, key.Item), &row)
	if err != nil || !found {
		return nil, false, err
	}
	return &row, true, nil
}

// Snapshots lists snapshot files, oldest first
func (s *Store) Snapshots() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), snapshotPrefix) && strings.HasSuffix(e.Name(), ".jsonl") {
			out = append(out, filepath.Join(s.dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Prune deletes all but the newest keep snapshots and returns how many were removed
func (s *Store) Prune(keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	all, err := s.Snapshots()
	if err != nil {
		return 0, err
	}
	if len(all) <= keep {
		return 0, nil
	}

	removed := 0
	for _, path := range all[:len(all)-keep] {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove %s: %w", filepath.Base(path), err)
		}
		removed++
	}
	s.log.Info().Int("removed", removed).Int("kept", keep).Msg("old feature snapshots pruned")
	return removed, nil
}

// ReadSnapshot decodes one snapshot file
func ReadSnapshot(path string) ([]contracts.FeatureRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []contracts.FeatureRow
	dec := json.NewDecoder(bufio.NewReader(f))
	for dec.More() {
		var r contracts.FeatureRow
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", filepath.Base(path), err)
		}
		rows = append(rows, r)
	}
	return rows, nil
}

func latestByEntity(rows []contracts.FeatureRow) map[string]interface{} {
	latest := make(map[contracts.EntityKey]contracts.FeatureRow)
	for _, r := range rows {
		if cur, ok := latest[r.Key]; !ok || r.Date.After(cur.Date) {
			latest[r.Key] = r
		}
	}
	out := make(map[string]interface{}, len(latest))
	for k, r := range latest {
		out[redis.FeatureKey(k.Store, k.Item)] = r
	}
	return out
}
