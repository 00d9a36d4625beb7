package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/demandcast/backend/internal/api"
	"github.com/wonny/demandcast/backend/internal/api/handlers"
	"github.com/wonny/demandcast/backend/internal/contracts"
	"github.com/wonny/demandcast/backend/internal/pipeline"
	"github.com/wonny/demandcast/backend/internal/registry"
	"github.com/wonny/demandcast/backend/internal/scheduler"
	"github.com/wonny/demandcast/backend/pkg/logger"
	"github.com/wonny/demandcast/backend/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

이 명령어는:
- HTTP API 서버 시작
- 파이프라인 러너와 스케줄러 실행 (SCHEDULER_ENABLED)
- 새 예측을 websocket 구독자에게 전송

Endpoints:
  GET  /api/ai/health                  - Health check
  POST /api/ai/demandforecast/predict  - Ad-hoc 예측
  GET  /api/ai/demandforecast/predict  - 저장된 최신 예측 조회
  GET  /api/ai/pipeline/jobs           - 스케줄러/실행 상태
  POST /api/ai/pipeline/runs           - 학습/예측 실행 요청
  GET  /ws                             - 예측 알림 websocket
  GET  /metrics                        - Prometheus metrics

Example:
  go run ./cmd/demandcast api
  go run ./cmd/demandcast api --port 8080 --bootstrap`,
	RunE: runAPIServer,
}

var (
	apiPort      string
	apiBootstrap bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	// Flags
	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default PORT)")
	apiCmd.Flags().BoolVar(&apiBootstrap, "bootstrap", false, "모델이 없으면 시작 시 학습/예측 1회 실행")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	fmt.Println("=== demandcast API Server ===")

	// 1. Load config
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Override port if flag is set
	if apiPort != "" {
		cfg.Port = apiPort
	}

	// 2. Initialize logger
	log := logger.New(cfg)

	log.WithFields(map[string]interface{}{
		"port":       cfg.Port,
		"env":        cfg.Env,
		"forecaster": cfg.Pipeline.Forecaster,
	}).Info("Initializing API server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Wire pipeline
	a, err := newApp(ctx, cfg, log, true)
	if err != nil {
		return err
	}
	defer a.Close()

	// 4. Bootstrap model
	if apiBootstrap {
		bootstrap(ctx, a)
	}

	// 5. Pipeline runner
	go a.runner.Start(ctx)

	// 6. Scheduler
	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		sched, err = a.newScheduler()
		if err != nil {
			return fmt.Errorf("init scheduler: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	// 7. Create handlers
	limiter := redis.NewRateLimiter(a.redis, "demandcast")
	forecastHandler := handlers.NewForecastHandler(a.orch, a.results, limiter, cfg.Pipeline.AdhocRateLimit, log)

	var jobStats handlers.JobStatsProvider
	if sched != nil {
		jobStats = sched
	}
	pipelineHandler := handlers.NewPipelineHandler(jobStats, a.runner, log)

	// 8. Create router
	router := api.NewRouter(api.Routes{
		Forecast:       forecastHandler,
		Pipeline:       pipelineHandler,
		Notify:         a.hub.Handler(),
		MetricsEnabled: cfg.MetricsEnabled,
	}, log)

	// 9. Create server
	server := api.New(cfg, log, router)

	// 10. Start server with graceful shutdown
	go func() {
		if err := server.Start(); err != nil {
			log.WithError(err).Fatal("Failed to start server")
		}
	}()

	log.Info("API server started successfully")
	fmt.Printf("\n✅ Server running on http://localhost:%s\n", cfg.Port)
	fmt.Println("\nAvailable endpoints:")
	fmt.Println("  GET  /api/ai/health")
	fmt.Println("  POST /api/ai/demandforecast/predict")
	fmt.Println("  GET  /api/ai/demandforecast/predict?restaurant_id=")
	fmt.Println("  GET  /api/ai/pipeline/jobs")
	fmt.Println("  POST /api/ai/pipeline/runs?kind=training|prediction")
	fmt.Println("  GET  /ws")
	fmt.Println("\nPress Ctrl+C to stop")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	a.hub.Close()

	log.Info("Server stopped")
	return nil
}

// bootstrap trains and predicts once when the registry is empty
func bootstrap(ctx context.Context, a *app) {
	_, err := a.registry.Latest(ctx)
	if err == nil {
		return
	}
	if !registry.IsEmpty(err) {
		a.log.WithError(err).Warn("Registry check failed, skipping bootstrap")
		return
	}

	a.log.Info("No trained model, bootstrapping")
	for _, kind := range []contracts.RunKind{contracts.RunTraining, contracts.RunPrediction} {
		if out := a.runner.Execute(ctx, pipeline.RunRequest{Kind: kind, Trigger: "bootstrap"}); !out.Success {
			return
		}
	}
}
