package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/wonny/demandcast/backend/internal/registry"
)

// modelsCmd inspects the model registry
var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "모델 레지스트리 조회",
}

var modelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "저장된 모델 버전 목록 (오래된 순)",
	RunE:  listModels,
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsListCmd)
}

func listModels(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	blobs, err := registry.Open(ctx, cfg.Registry)
	if err != nil {
		return fmt.Errorf("open model registry: %w", err)
	}
	reg := registry.New(blobs, cfg.Registry.URI, zerolog.Nop())

	artifacts, err := reg.List(ctx)
	if err != nil {
		return err
	}
	if len(artifacts) == 0 {
		PrintWarning("registry is empty, run `demandcast train` first")
		return nil
	}

	rows := make([][]string, len(artifacts))
	for i, art := range artifacts {
		rows[i] = []string{art.Version, art.URI}
	}
	PrintTable([]string{"VERSION", "URI"}, rows)
	return nil
}
