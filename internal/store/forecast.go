// Package store persists forecast rows for the GET predict endpoint.
package store

import (
	"context"
	"database/sql/driver"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/pkg/database"
)

// sqlite는 TEXT로 저장하므로 고정 폭 포맷 사용 (문자열 정렬 = 시간 정렬)
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// StoredForecast is one persisted row as read back
type StoredForecast struct {
	ID           int64   `db:"id"`
	CreatedAt    DBTime  `db:"created_at"`
	Store        int     `db:"store"`
	Item         int     `db:"item"`
	ForecastDate DBTime  `db:"forecast_date"`
	Yhat         float64 `db:"yhat"`
	YhatLower    float64 `db:"yhat_lower"`
	YhatUpper    float64 `db:"yhat_upper"`
	ModelVersion string  `db:"model_version"`
}

// ForecastStore writes forecast batches in one transaction per call.
// No dedup across runs: re-running a window appends rows.
type ForecastStore struct {
	db      *sqlx.DB
	dialect string
	now     func() time.Time
	log     zerolog.Logger
}

// NewForecastStore wraps an open database of the given dialect
func NewForecastStore(db *sqlx.DB, dialect string, log zerolog.Logger) *ForecastStore {
	return &ForecastStore{
		db:      db,
		dialect: dialect,
		now:     time.Now,
		log:     log.With().Str("component", "store.forecasts").Logger(),
	}
}

const insertForecast = `
	INSERT INTO forecasts (created_at, store, item, forecast_date, yhat, yhat_lower, yhat_upper, model_version)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

// Persist inserts rows in a single transaction and returns the count.
// Any failure rolls the whole batch back and returns *contracts.PersistenceError.
func (s *ForecastStore) Persist(ctx context.Context, rows []contracts.ForecastRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	fail := func(err error) (int, error) {
		return 0, &contracts.PersistenceError{Rows: len(rows), Err: err}
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fail(fmt.Errorf("begin: %w", err))
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, tx.Rebind(insertForecast))
	if err != nil {
		return fail(fmt.Errorf("prepare: %w", err))
	}
	defer stmt.Close()

	createdAt := s.timeArg(s.now().UTC())
	for i, raw := range rows {
		r, err := coerceRow(raw)
		if err != nil {
			return fail(fmt.Errorf("row %d (%s): %w", i, raw.Key, err))
		}
		if _, err := stmt.ExecContext(ctx,
			createdAt, r.Key.Store, r.Key.Item, r.ForecastDate.Format(contracts.DateLayout),
			r.Yhat, r.YhatLower, r.YhatUpper, r.ModelVersion,
		); err != nil {
			return fail(fmt.Errorf("insert row %d (%s): %w", i, r.Key, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fail(fmt.Errorf("commit: %w", err))
	}

	s.log.Info().Int("rows", len(rows)).Msg("forecasts persisted")
	return len(rows), nil
}

// coerceRow normalizes the date to a UTC day and re-applies bounding.
// Non-finite values are rejected.
func coerceRow(r contracts.ForecastRow) (contracts.ForecastRow, error) {
	for _, v := range []float64{r.Yhat, r.YhatLower, r.YhatUpper} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return r, fmt.Errorf("non-finite forecast value %v", v)
		}
	}
	if r.ForecastDate.IsZero() {
		return r, fmt.Errorf("missing forecast date")
	}
	r.ForecastDate = contracts.Day(r.ForecastDate)
	return r.Bounded(), nil
}

func (s *ForecastStore) timeArg(t time.Time) interface{} {
	if s.dialect == database.DialectSQLite {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

const latestForStore = `
	SELECT f.id, f.created_at, f.store, f.item, f.forecast_date, f.yhat, f.yhat_lower, f.yhat_upper, f.model_version
	FROM forecasts f
	WHERE f.store = ?
	  AND f.id = (
		SELECT f2.id FROM forecasts f2
		WHERE f2.store = f.store AND f2.item = f.item AND f2.forecast_date = f.forecast_date
		ORDER BY f2.created_at DESC, f2.id DESC
		LIMIT 1
	  )
	ORDER BY f.item, f.forecast_date`

// LatestForStore returns the newest persisted forecast per (item, forecast_date)
func (s *ForecastStore) LatestForStore(ctx context.Context, store int) ([]StoredForecast, error) {
	var out []StoredForecast
	if err := s.db.SelectContext(ctx, &out, s.db.Rebind(latestForStore), store); err != nil {
		return nil, fmt.Errorf("select forecasts for store %d: %w", store, err)
	}
	return out, nil
}

// Count returns the number of persisted rows
func (s *ForecastStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM forecasts"); err != nil {
		return 0, err
	}
	return n, nil
}

// DBTime scans DATE/TIMESTAMP columns from either dialect (time.Time or text)
type DBTime struct {
	time.Time
}

// Scan implements sql.Scanner
func (t *DBTime) Scan(src interface{}) error {
	v, err := coerceTime(src)
	if err != nil {
		return err
	}
	t.Time = v
	return nil
}

// Value implements driver.Valuer
func (t DBTime) Value() (driver.Value, error) {
	return t.Time, nil
}

var timeLayouts = []string{
	sqliteTimeLayout,
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05",
	contracts.DateLayout,
}

// coerceTime accepts typed times and the string layouts drivers hand back
func coerceTime(src interface{}) (time.Time, error) {
	switch v := src.(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		return parseTime(v)
	case []byte:
		return parseTime(string(v))
	case nil:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("cannot coerce %T to time", src)
	}
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
