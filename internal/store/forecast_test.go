package store

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/pkg/database"
)

var day0 = time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

func openSQLite(t *testing.T) *ForecastStore {
	t.Helper()
	db, err := sqlx.Open("sqlite", filepath.Join(t.TempDir(), "predictions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	db.SetMaxOpenConns(1)

	version, err := Migrate(db, database.DialectSQLite)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	return NewForecastStore(db, database.DialectSQLite, zerolog.Nop())
}

func row(item, offset int, yhat, lower, upper float64) contracts.ForecastRow {
	return contracts.ForecastRow{
		Key:          contracts.EntityKey{Store: 3, Item: item},
		ForecastDate: day0.AddDate(0, 0, offset),
		Yhat:         yhat,
		YhatLower:    lower,
		YhatUpper:    upper,
		ModelVersion: "v1",
	}
}

func TestPersist_RoundTrip(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	rows := []contracts.ForecastRow{
		row(1, 0, 12.25, 10.5, 14),
		row(1, 1, 13.125, 11, 15.75),
		row(2, 0, 7.5, 6.25, 8.75),
	}
	n, err := s.Persist(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := s.LatestForStore(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)

	for i, g := range got {
		assert.Equal(t, rows[i].Key.Item, g.Item)
		assert.True(t, rows[i].ForecastDate.Equal(g.ForecastDate.Time), "date %v vs %v", rows[i].ForecastDate, g.ForecastDate.Time)
		assert.Equal(t, rows[i].Yhat, g.Yhat)
		assert.Equal(t, rows[i].YhatLower, g.YhatLower)
		assert.Equal(t, "v1", g.ModelVersion)
	}

	other, err := s.LatestForStore(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestPersist_AppendsAndReadsLatest(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	clock := day0
	s.now = func() time.Time { return clock }

	_, err := s.Persist(ctx, []contracts.ForecastRow{row(1, 0, 5, 4, 6)})
	require.NoError(t, err)

	clock = clock.Add(time.Hour)
	second := row(1, 0, 9, 8, 10)
	second.ModelVersion = "v2"
	_, err = s.Persist(ctx, []contracts.ForecastRow{second})
	require.NoError(t, err)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count, "runs are not deduplicated")

	got, err := s.LatestForStore(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 9.0, got[0].Yhat)
	assert.Equal(t, "v2", got[0].ModelVersion)
	assert.True(t, got[0].CreatedAt.Equal(clock))
}

func TestPersist_ClampsNegative(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	_, err := s.Persist(ctx, []contracts.ForecastRow{row(1, 0, -3.2, -5, 1)})
	require.NoError(t, err)

	got, err := s.LatestForStore(ctx, 3)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 0.0, got[0].Yhat)
	assert.Equal(t, 0.0, got[0].YhatLower)
	assert.Equal(t, 1.0, got[0].YhatUpper)
}

func TestPersist_RollsBackWholeBatch(t *testing.T) {
	s := openSQLite(t)
	ctx := context.Background()

	_, err := s.Persist(ctx, []contracts.ForecastRow{
		row(1, 0, 5, 4, 6),
		row(1, 1, math.NaN(), 4, 6),
	})
	var perr *contracts.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 2, perr.Rows)

	count, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestPersist_Empty(t *testing.T) {
	s := openSQLite(t)
	n, err := s.Persist(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestPersist_InsertFailureRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForecastStore(sqlx.NewDb(db, "sqlmock"), database.DialectPostgres, zerolog.Nop())

	mock.ExpectBegin()
	prep := mock.ExpectPrepare("INSERT INTO forecasts")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	_, err = s.Persist(context.Background(), []contracts.ForecastRow{row(1, 0, 1, 0, 2), row(1, 1, 1, 0, 2)})
	var perr *contracts.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPersist_CommitFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	s := NewForecastStore(sqlx.NewDb(db, "sqlmock"), database.DialectPostgres, zerolog.Nop())

	mock.ExpectBegin()
	mock.ExpectPrepare("INSERT INTO forecasts").ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit().WillReturnError(errors.New("serialization failure"))

	_, err = s.Persist(context.Background(), []contracts.ForecastRow{row(1, 0, 1, 0, 2)})
	var perr *contracts.PersistenceError
	assert.ErrorAs(t, err, &perr)
}

func TestCoerceTime(t *testing.T) {
	tests := []struct {
		in   interface{}
		want time.Time
	}{
		{day0, day0},
		{"2026-04-01", day0},
		{[]byte("2026-04-01"), day0},
		{"2026-04-01T00:00:00.000000000Z", day0},
		{"2026-04-01T09:00:00+09:00", day0},
		{nil, time.Time{}},
	}
	for _, tt := range tests {
		got, err := coerceTime(tt.in)
		require.NoError(t, err)
		assert.True(t, tt.want.Equal(got), "%v → %v", tt.in, got)
	}

	_, err := coerceTime("yesterday")
	assert.Error(t, err)
	_, err = coerceTime(42)
	assert.Error(t, err)
}

func TestCoerceRow(t *testing.T) {
	r, err := coerceRow(contracts.ForecastRow{ForecastDate: day0.Add(15 * time.Hour), Yhat: 2, YhatLower: 3, YhatUpper: 1})
	require.NoError(t, err)
	assert.Equal(t, day0, r.ForecastDate)
	assert.True(t, r.IsBounded())

	_, err = coerceRow(contracts.ForecastRow{Yhat: 1})
	assert.Error(t, err)
	_, err = coerceRow(contracts.ForecastRow{ForecastDate: day0, Yhat: math.Inf(1)})
	assert.Error(t, err)
}
