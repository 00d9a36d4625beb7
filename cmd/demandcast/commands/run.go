package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/internal/pipeline"
	"github.com/wonny/demandcast/backend/pkg/logger"
)

// trainCmd runs the training pipeline once
var trainCmd = &cobra.Command{
	Use:   "train",
	Short: "학습 파이프라인 1회 실행 (P0~P4)",
	Long: `최근 TRAINING_LOOKBACK_DAYS 판매 데이터로 모델을 학습하고
레지스트리에 새 버전으로 저장합니다.

Stages:
  P0 extract → P1 catalog → P2 features/gate → P3 fit → P4 register

Example:
  go run ./cmd/demandcast train
  FORECASTER=tabular go run ./cmd/demandcast train`,
	RunE: runTrain,
}

// predictCmd runs the prediction pipeline once
var predictCmd = &cobra.Command{
	Use:   "predict",
	Short: "예측 파이프라인 1회 실행 (P0, P1, P5~P7)",
	Long: `레지스트리의 모델로 모든 적격 엔티티의 수요를 예측하고
결과 DB에 저장합니다.

Example:
  go run ./cmd/demandcast predict
  go run ./cmd/demandcast predict --artifact 20260615T020000Z-series-1a2b3c4d`,
	RunE: runPredict,
}

var predictArtifact string

func init() {
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(predictCmd)

	predictCmd.Flags().StringVar(&predictArtifact, "artifact", "", "모델 버전 (default: latest)")
}

func runTrain(cmd *cobra.Command, args []string) error {
	out, err := executeRun(cmd.Context(), pipeline.RunRequest{Kind: contracts.RunTraining, Trigger: "cli"})
	if err != nil {
		return err
	}

	res := out.Training
	PrintTitle("Training Result")
	PrintKeyValue("Run ID", res.RunID, 14)
	PrintKeyValue("Artifact", res.Artifact.URI, 14)
	PrintKeyValue("Entities", fmt.Sprintf("%d (skipped %d)", res.Summary.Entities, res.Skipped), 14)
	PrintKeyValue("Rows", fmt.Sprintf("%d", res.Summary.Rows), 14)
	PrintKeyValue("In-sample MAE", fmt.Sprintf("%.3f", res.Summary.InSampleMAE), 14)
	if res.Summary.HoldoutMAE > 0 {
		PrintKeyValue("Holdout MAE", fmt.Sprintf("%.3f", res.Summary.HoldoutMAE), 14)
	}
	if res.SnapshotPath != "" {
		PrintKeyValue("Snapshot", res.SnapshotPath, 14)
	}
	PrintKeyValue("Stages", strings.Join(res.CompletedStages, " → "), 14)
	PrintSeparator()
	PrintSuccess(fmt.Sprintf("Training completed in %s", out.Duration.Round(time.Millisecond)))
	return nil
}

func runPredict(cmd *cobra.Command, args []string) error {
	req := pipeline.RunRequest{Kind: contracts.RunPrediction, Trigger: "cli"}
	if predictArtifact != "" {
		req.Artifact = contracts.ModelArtifact{Version: predictArtifact}
	}

	out, err := executeRun(cmd.Context(), req)
	if err != nil {
		return err
	}

	res := out.Prediction
	PrintTitle("Prediction Result")
	PrintKeyValue("Run ID", res.RunID, 10)
	PrintKeyValue("Model", res.Artifact.Version, 10)
	PrintKeyValue("Entities", fmt.Sprintf("%d discovered, %d forecast, %d skipped, %d failed",
		res.Loop.Discovered, res.Loop.Forecast, res.Loop.Skipped, res.Loop.Failed), 10)
	PrintKeyValue("Persisted", fmt.Sprintf("%d rows", res.Persisted), 10)
	PrintSeparator()

	if len(res.Loop.Errors) > 0 {
		PrintWarning(fmt.Sprintf("%d entities failed", len(res.Loop.Errors)))
		for _, e := range res.Loop.Errors {
			fmt.Printf("   • %v\n", e)
		}
	}
	PrintSuccess(fmt.Sprintf("Prediction completed in %s", out.Duration.Round(time.Millisecond)))
	return nil
}

// executeRun wires the pipeline and runs one request synchronously
func executeRun(ctx context.Context, req pipeline.RunRequest) (pipeline.RunOutcome, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return pipeline.RunOutcome{}, err
	}
	log := logger.New(cfg)

	a, err := newApp(ctx, cfg, log, false)
	if err != nil {
		return pipeline.RunOutcome{}, err
	}
	defer a.Close()

	out := a.runner.Execute(ctx, req)
	if err := out.Err(); err != nil {
		PrintError(fmt.Sprintf("%s run failed", req.Kind))
		return out, err
	}
	return out, nil
}
