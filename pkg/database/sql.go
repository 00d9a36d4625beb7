package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // registers "pgx" for database/sql
	_ "modernc.org/sqlite"             // registers "sqlite"

	"github.com/wonny/demandcast/backend/pkg/config"
)

// Dialects supported by the forecast result store
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

func init() {
	// modernc 드라이버 이름은 sqlx 기본 바인드 목록에 없음
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// ParseStoreURL maps PREDICTIONS_DB_URL to a database/sql driver name, DSN and dialect
//
//	postgres://... | postgresql://...  -> pgx
//	sqlite://<path> | sqlite://:memory: -> sqlite
func ParseStoreURL(raw string) (driver, dsn, dialect string, err error) {
	switch {
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		return "pgx", raw, DialectPostgres, nil
	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(raw, "sqlite://")
		if path == "" {
			return "", "", "", fmt.Errorf("sqlite url has no path: %q", raw)
		}
		return "sqlite", path, DialectSQLite, nil
	default:
		return "", "", "", fmt.Errorf("unsupported predictions database url: %q", raw)
	}
}

// OpenStore opens the forecast result store (PREDICTIONS_DB_URL) through sqlx
// ⭐ SSOT: 예측 결과 DB 연결은 여기서만 생성
func OpenStore(cfg *config.Config) (*sqlx.DB, string, error) {
	driver, dsn, dialect, err := ParseStoreURL(cfg.Predictions.URL)
	if err != nil {
		return nil, "", err
	}

	if dialect == DialectSQLite && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
			return nil, "", fmt.Errorf("create sqlite dir: %w", err)
		}
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, "", fmt.Errorf("open predictions database: %w", err)
	}

	if dialect == DialectSQLite {
		// sqlite는 단일 writer
		db.SetMaxOpenConns(1)
	} else if cfg.Predictions.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Predictions.MaxOpenConns)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, "", fmt.Errorf("ping predictions database: %w", err)
	}

	return db, dialect, nil
}
