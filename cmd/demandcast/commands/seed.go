package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/demandcast/backend/internal/sales"
	"github.com/wonny/demandcast/backend/pkg/database"
)

// seedCmd fills the raw sales database with synthetic orders
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "원천 판매 DB에 합성 주문 데이터 적재",
	Long: `RAW_DB_URL 데이터베이스에 Orders / OrderDetails / Items 테이블을 만들고
요일 계절성이 있는 합성 주문을 적재합니다. 개발/데모 용도.

Example:
  go run ./cmd/demandcast seed --stores 3 --days 180`,
	RunE: runSeed,
}

var (
	seedStores int
	seedDays   int
	seedValue  uint64
)

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().IntVar(&seedStores, "stores", syntheticStores, "식당 수")
	seedCmd.Flags().IntVar(&seedDays, "days", syntheticDays, "일수 (어제까지)")
	seedCmd.Flags().Uint64Var(&seedValue, "seed", syntheticSeed, "난수 seed")
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	db, err := database.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to raw database: %w", err)
	}
	defer db.Close()

	synth, err := sales.NewSynthetic(sales.SyntheticConfig{
		Stores: seedStores,
		Items:  len(sales.MenuItems),
		Days:   seedDays,
		End:    time.Now().AddDate(0, 0, -1),
		Seed:   seedValue,
	})
	if err != nil {
		return err
	}

	repo := sales.NewRepository(db.Pool)
	lines, err := repo.Seed(ctx, synth.All(), sales.MenuItems)
	if err != nil {
		return err
	}

	PrintSuccess(fmt.Sprintf("seeded %d order lines (%d stores × %d items × %d days)",
		lines, seedStores, len(sales.MenuItems), seedDays))

	// 적재 확인: 학습 윈도우 안의 엔티티 수
	window := sales.LookbackWindow(time.Now(), cfg.Pipeline.TrainingLookbackDays)
	keys, err := repo.DistinctEntities(ctx, window.From, window.To)
	if err != nil {
		return err
	}
	PrintKeyValue("entities in training window", fmt.Sprint(len(keys)), 28)
	return nil
}
