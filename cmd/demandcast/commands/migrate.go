package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wonny/demandcast/backend/internal/store"
	"github.com/wonny/demandcast/backend/pkg/database"
)

// migrateCmd applies forecast store migrations
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "예측 결과 DB 마이그레이션",
	Long: `PREDICTIONS_DB_URL (postgres:// 또는 sqlite://) 에
forecasts 테이블 마이그레이션을 적용합니다.

Example:
  go run ./cmd/demandcast migrate
  PREDICTIONS_DB_URL=sqlite://./data/predictions.db go run ./cmd/demandcast migrate`,
	RunE: runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, dialect, err := database.OpenStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	version, err := store.Migrate(db, dialect)
	if err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("%s forecast store at version %d", dialect, version))
	return nil
}
