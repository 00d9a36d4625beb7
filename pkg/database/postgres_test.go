package database

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/backend/pkg/config"
)

func TestNew_RequiresURL(t *testing.T) {
	_, err := New(context.Background(), &config.Config{})
	assert.Error(t, err)
}

func TestNew_Integration(t *testing.T) {
	url := os.Getenv("RAW_DB_URL")
	if testing.Short() || url == "" {
		t.Skip("RAW_DB_URL not set, skipping integration test")
	}

	cfg := &config.Config{Database: config.DatabaseConfig{
		URL:             url,
		MaxConns:        2,
		MinConns:        1,
		MaxConnLifetime: time.Hour,
		MaxConnIdleTime: time.Minute,
	}}

	db, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer db.Close()

	status, err := db.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Equal(t, int32(2), status.Stats.MaxConns)
}

func TestParseStoreURL(t *testing.T) {
	tests := []struct {
		raw         string
		wantDriver  string
		wantDSN     string
		wantDialect string
		wantErr     bool
	}{
		{"postgres://u:p@localhost/preds", "pgx", "postgres://u:p@localhost/preds", DialectPostgres, false},
		{"postgresql://u@h/db", "pgx", "postgresql://u@h/db", DialectPostgres, false},
		{"sqlite://./data/predictions.db", "sqlite", "./data/predictions.db", DialectSQLite, false},
		{"sqlite://:memory:", "sqlite", ":memory:", DialectSQLite, false},
		{"sqlite://", "", "", "", true},
		{"mysql://x", "", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			driver, dsn, dialect, err := ParseStoreURL(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDriver, driver)
			assert.Equal(t, tt.wantDSN, dsn)
			assert.Equal(t, tt.wantDialect, dialect)
		})
	}
}

func TestOpenStore_SQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "predictions.db")
	cfg := &config.Config{Predictions: config.PredictionsConfig{URL: "sqlite://" + path}}

	db, dialect, err := OpenStore(cfg)
	require.NoError(t, err)
	defer db.Close()

	assert.Equal(t, DialectSQLite, dialect)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
