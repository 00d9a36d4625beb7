package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/demandcast/backend/internal/scheduler"
	"github.com/wonny/demandcast/backend/pkg/logger"
)

// schedulerCmd represents the scheduler command
var schedulerCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "스케줄러 관리",
	Long: `스케줄러를 시작하거나 작업을 관리합니다.

Subcommands:
  start   - 스케줄러 시작 (API 없이)
  list    - 등록된 작업 목록
  run     - 특정 작업 즉시 실행 (완료까지 대기)
  status  - 작업 실행 상태 조회

Example:
  go run ./cmd/demandcast scheduler start
  go run ./cmd/demandcast scheduler list
  go run ./cmd/demandcast scheduler run weekly_training`,
}

var (
	schedulerStartCmd = &cobra.Command{
		Use:   "start",
		Short: "스케줄러 시작",
		Long: `스케줄러를 시작하고 등록된 모든 작업을 스케줄합니다.

등록되는 작업:
- weekly_training: TRAINING_SCHEDULE (기본 매주 화요일 02:00)
- recurring_prediction: PREDICTION_SCHEDULE (기본 매시 1분)
- snapshot_cleanup: 매일 03:30 (오래된 피처 스냅샷 정리)

스케줄러는 Ctrl+C로 종료할 수 있습니다.`,
		RunE: runScheduler,
	}

	schedulerListCmd = &cobra.Command{
		Use:   "list",
		Short: "등록된 작업 목록",
		RunE:  listJobs,
	}

	schedulerRunCmd = &cobra.Command{
		Use:   "run [job_name]",
		Short: "특정 작업 즉시 실행",
		Args:  cobra.ExactArgs(1),
		RunE:  runJob,
	}

	schedulerStatusCmd = &cobra.Command{
		Use:   "status",
		Short: "작업 실행 상태 조회",
		RunE:  showStatus,
	}
)

func init() {
	rootCmd.AddCommand(schedulerCmd)
	schedulerCmd.AddCommand(schedulerStartCmd)
	schedulerCmd.AddCommand(schedulerListCmd)
	schedulerCmd.AddCommand(schedulerRunCmd)
	schedulerCmd.AddCommand(schedulerStatusCmd)
}

func runScheduler(cmd *cobra.Command, args []string) error {
	fmt.Println("=== demandcast Scheduler ===")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, sched, err := initScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	go a.runner.Start(ctx)
	sched.Start()

	fmt.Println("\n✅ Scheduler started successfully")
	fmt.Println("\nRegistered jobs:")
	PrintList(sched.GetAllJobs())
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down scheduler...")
	sched.Stop()
	fmt.Println("Scheduler stopped")

	return nil
}

func listJobs(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler(context.Background())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	stats := sched.GetJobStats()
	var rows [][]string
	for _, name := range sched.GetAllJobs() {
		st := stats[name]
		rows = append(rows, []string{name, st.Schedule, formatTime(st.NextRun)})
	}
	PrintTable([]string{"JOB", "SCHEDULE", "NEXT RUN"}, rows)

	return nil
}

func runJob(cmd *cobra.Command, args []string) error {
	jobName := args[0]

	fmt.Printf("Running job: %s\n", jobName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, sched, err := initScheduler(ctx)
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	// 파이프라인 작업은 러너 큐를 거친다
	go a.runner.Start(ctx)

	result, err := sched.RunJobSync(jobName)
	if err != nil {
		return fmt.Errorf("run job: %w", err)
	}
	if !result.Success {
		PrintError(fmt.Sprintf("%s failed after %s: %s", jobName, result.Duration, result.Error))
		return fmt.Errorf("job %s failed", jobName)
	}

	PrintSuccess(fmt.Sprintf("%s completed in %s", jobName, result.Duration))
	return nil
}

// showStatus reports the runs of this process, which is only meaningful
// after `scheduler run`; the api process exposes GET /api/ai/pipeline/jobs.
func showStatus(cmd *cobra.Command, args []string) error {
	a, sched, err := initScheduler(context.Background())
	if err != nil {
		return fmt.Errorf("init scheduler: %w", err)
	}
	defer a.Close()

	stats := sched.GetJobStats()
	var rows [][]string
	for _, name := range sched.GetAllJobs() {
		st := stats[name]
		rows = append(rows, []string{
			name,
			fmt.Sprintf("%d", st.TotalRuns),
			fmt.Sprintf("%.0f%%", st.SuccessRate*100),
			formatTime(st.LastRun),
			formatTime(st.NextRun),
			st.LastError,
		})
	}
	PrintTable([]string{"JOB", "RUNS", "SUCCESS", "LAST RUN", "NEXT RUN", "LAST ERROR"}, rows)

	return nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func initScheduler(ctx context.Context) (*app, *scheduler.Scheduler, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	log := logger.New(cfg)

	a, err := newApp(ctx, cfg, log, false)
	if err != nil {
		return nil, nil, err
	}

	sched, err := a.newScheduler()
	if err != nil {
		a.Close()
		return nil, nil, err
	}
	return a, sched, nil
}
