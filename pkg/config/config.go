package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Raw sales database (Orders / OrderDetails)
	Database DatabaseConfig

	// Forecast result store (postgres:// or sqlite://)
	Predictions PredictionsConfig

	// Redis (online feature cache, ad-hoc rate limit)
	Redis RedisConfig

	// Model registry
	Registry RegistryConfig

	// Experiment tracking
	Tracking TrackingConfig

	// Forecasting pipeline
	Pipeline PipelineConfig

	// Scheduler
	Scheduler SchedulerConfig

	// Feature store snapshots
	FeatureStorePath string

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// DatabaseConfig holds raw sales PostgreSQL configuration
// URL이 비어 있으면 합성 데이터 소스를 사용
type DatabaseConfig struct {
	URL string

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// PredictionsConfig holds the forecast result store configuration
type PredictionsConfig struct {
	URL          string
	MaxOpenConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// RegistryConfig holds model registry configuration
type RegistryConfig struct {
	URI         string // file://<dir> or s3://<bucket>/<prefix>
	S3Region    string
	S3Endpoint  string // optional (MinIO 등)
	S3PathStyle bool
}

// TrackingConfig holds experiment tracking configuration
type TrackingConfig struct {
	URI     string // MLflow tracking server; empty disables tracking
	Project string
	APIKey  string
}

// PipelineConfig holds forecasting pipeline parameters
type PipelineConfig struct {
	Forecaster           string // series, tabular
	ModelConfigPath      string
	MinHistoryDays       int
	HorizonDays          int
	TrainingLookbackDays int
	HistoryLookbackDays  int
	IntervalWidth        float64
	Workers              int
	NotifyPreviewSize    int
	AdhocRateLimit       int // ad-hoc predict requests per minute per restaurant
}

// SchedulerConfig holds cron expressions (with seconds)
type SchedulerConfig struct {
	Enabled            bool
	TrainingSchedule   string
	PredictionSchedule string
}

// Forecaster kinds
const (
	ForecasterSeries  = "series"
	ForecasterTabular = "tabular"
)

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8080"),
		Env:  getEnv("ENV", "development"),

		Database: DatabaseConfig{
			URL:             getEnv("RAW_DB_URL", ""),
			MaxConns:        getEnvAsInt("RAW_DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("RAW_DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("RAW_DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("RAW_DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		Predictions: PredictionsConfig{
			URL:          getEnv("PREDICTIONS_DB_URL", "sqlite://./data/predictions.db"),
			MaxOpenConns: getEnvAsInt("PREDICTIONS_DB_MAX_OPEN_CONNS", 5),
		},

		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		Registry: RegistryConfig{
			URI:         getEnv("MODEL_REGISTRY_URI", "file://./model_registry"),
			S3Region:    getEnv("MODEL_REGISTRY_S3_REGION", "us-east-1"),
			S3Endpoint:  getEnv("MODEL_REGISTRY_S3_ENDPOINT", ""),
			S3PathStyle: getEnvAsBool("MODEL_REGISTRY_S3_PATH_STYLE", false),
		},

		Tracking: TrackingConfig{
			URI:     getEnv("MLFLOW_TRACKING_URI", ""),
			Project: getEnv("TRACKING_PROJECT", "restaurant-demand-forecast"),
			APIKey:  getEnv("TRACKING_API_KEY", ""),
		},

		Pipeline: PipelineConfig{
			Forecaster:           getEnv("FORECASTER", ForecasterSeries),
			ModelConfigPath:      getEnv("MODEL_CONFIG_PATH", ""),
			MinHistoryDays:       getEnvAsInt("MIN_HISTORY_DAYS", 90),
			HorizonDays:          getEnvAsInt("FORECAST_HORIZON_DAYS", 15),
			TrainingLookbackDays: getEnvAsInt("TRAINING_LOOKBACK_DAYS", 90),
			HistoryLookbackDays:  getEnvAsInt("HISTORY_LOOKBACK_DAYS", 180),
			IntervalWidth:        getEnvAsFloat("INTERVAL_WIDTH", 0.95),
			Workers:              getEnvAsInt("PIPELINE_WORKERS", 4),
			NotifyPreviewSize:    getEnvAsInt("NOTIFY_PREVIEW_SIZE", 5),
			AdhocRateLimit:       getEnvAsInt("ADHOC_RATE_LIMIT", 30),
		},

		Scheduler: SchedulerConfig{
			Enabled:            getEnvAsBool("SCHEDULER_ENABLED", true),
			TrainingSchedule:   getEnv("TRAINING_SCHEDULE", "0 0 2 * * TUE"),
			PredictionSchedule: getEnv("PREDICTION_SCHEDULE", "0 1 * * * *"),
		},

		FeatureStorePath: getEnv("FEATURE_STORE_PATH", "./feature_store"),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if configuration values are usable
func (c *Config) validate() error {
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	p := c.Pipeline
	if p.Forecaster != ForecasterSeries && p.Forecaster != ForecasterTabular {
		return fmt.Errorf("FORECASTER must be one of: %s, %s", ForecasterSeries, ForecasterTabular)
	}
	if p.MinHistoryDays < 2 {
		return fmt.Errorf("MIN_HISTORY_DAYS must be at least 2, got %d", p.MinHistoryDays)
	}
	if p.HorizonDays < 1 {
		return fmt.Errorf("FORECAST_HORIZON_DAYS must be at least 1, got %d", p.HorizonDays)
	}
	if p.TrainingLookbackDays < 1 || p.HistoryLookbackDays < 1 {
		return fmt.Errorf("lookback windows must be positive")
	}
	// 윈도우가 임계값보다 짧으면 어떤 엔티티도 학습 대상이 될 수 없음
	if p.TrainingLookbackDays < p.MinHistoryDays || p.HistoryLookbackDays < p.MinHistoryDays {
		return fmt.Errorf("lookback windows (%d, %d days) must cover MIN_HISTORY_DAYS=%d",
			p.TrainingLookbackDays, p.HistoryLookbackDays, p.MinHistoryDays)
	}
	if p.IntervalWidth <= 0 || p.IntervalWidth >= 1 {
		return fmt.Errorf("INTERVAL_WIDTH must be in (0, 1), got %v", p.IntervalWidth)
	}
	if p.Workers < 1 {
		return fmt.Errorf("PIPELINE_WORKERS must be at least 1, got %d", p.Workers)
	}

	if c.Predictions.URL == "" {
		return fmt.Errorf("PREDICTIONS_DB_URL is required")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	paths := []string{
		".env",         // Current directory
		"backend/.env", // From project root
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
