package config

import (
	"path/filepath"
	"strings"
	"time"
)

// Config holds all application configuration in a structured way.
type Config struct {
	App       AppConfig
	Paths     PathsConfig
	Database  DatabaseConfig
	Scheduler SchedulerConfig
	Platforms PlatformsConfig
	Media     MediaConfig
}

type AppConfig struct {
	Version            string
	Port               string
	Debug              bool
	Environment        string
	BasicAuth          []string
	BasePath           string
	CorsAllowedOrigins []string
}

type PathsConfig struct {
	Storages string
}

type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	Name     string // File path for SQLite, DB name for Postgres
}

// SchedulerConfig carries every knob the publication loop recognizes.
type SchedulerConfig struct {
	CronExpression      string
	MaxRetries          int
	InitialRetryDelay   time.Duration
	BackoffMultiplier   float64
	MaxRetryDelay       time.Duration
	MaxQueueSize        int
	MaxResultsHistory   int
	MaxErrorHistory     int
	QueueStaleAfter     time.Duration
	DegradedThreshold   int
	UnhealthyThreshold  int
	PublishTimeout      time.Duration
	DispatchParallelism int
	TokenRefreshWindow  time.Duration
	TokenExpiryPenalty  time.Duration // health scorer full-penalty window
}

type PlatformAPIConfig struct {
	Enabled      bool
	BaseURL      string
	ClientID     string
	ClientSecret string
}

type PlatformsConfig struct {
	Facebook  PlatformAPIConfig
	Instagram PlatformAPIConfig
	TikTok    PlatformAPIConfig
}

type MediaConfig struct {
	Enabled bool
	BaseURL string
}

// Global provides access to the loaded configuration globally.
var Global *Config

// LoadConfig loads configuration from environment variables or defaults.
func LoadConfig() (*Config, error) {
	baseDir := getEnv("APP_BASE_DIR", "storages")

	appCfg := AppConfig{
		Version:            "v1.3.0",
		Port:               getEnv("APP_PORT", "3000"),
		Debug:              getEnvBool("APP_DEBUG", false),
		Environment:        getEnv("APP_ENV", "development"),
		BasePath:           getEnv("APP_BASE_PATH", ""),
		CorsAllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}
	if v := getEnv("APP_BASIC_AUTH", ""); v != "" {
		appCfg.BasicAuth = strings.Split(v, ",")
	}
	if v := getEnv("APP_CORS_ALLOWED_ORIGINS", ""); v != "" {
		appCfg.CorsAllowedOrigins = strings.Split(v, ",")
	}

	pathsCfg := PathsConfig{
		Storages: baseDir,
	}

	dbCfg := DatabaseConfig{
		Driver:   getEnv("DB_DRIVER", "sqlite"),
		Name:     getEnv("DB_NAME", filepath.Join(pathsCfg.Storages, "publisher.db")),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "postgres"),
		Password: getEnv("DB_PASSWORD", ""),
	}

	schedCfg := SchedulerConfig{
		CronExpression:      getEnv("CRON_EXPRESSION", "*/5 * * * *"),
		MaxRetries:          getEnvInt("MAX_RETRIES", 5),
		InitialRetryDelay:   getEnvDurationMs("INITIAL_RETRY_DELAY_MS", 5000),
		BackoffMultiplier:   getEnvFloat("BACKOFF_MULTIPLIER", 2),
		MaxRetryDelay:       getEnvDurationMs("MAX_RETRY_DELAY_MS", 60000),
		MaxQueueSize:        getEnvInt("MAX_QUEUE_SIZE", 200),
		MaxResultsHistory:   getEnvInt("MAX_RESULTS_HISTORY", 500),
		MaxErrorHistory:     getEnvInt("MAX_ERROR_HISTORY", 5),
		QueueStaleAfter:     getEnvDurationMs("QUEUE_STALE_AFTER_MS", int64((24 * time.Hour).Milliseconds())),
		DegradedThreshold:   getEnvInt("DEGRADED_THRESHOLD", 3),
		UnhealthyThreshold:  getEnvInt("UNHEALTHY_THRESHOLD", 10),
		PublishTimeout:      getEnvDurationMs("PUBLISH_TIMEOUT_MS", 30000),
		DispatchParallelism: getEnvInt("DISPATCH_PARALLELISM", 1),
		TokenRefreshWindow:  getEnvDurationMs("TOKEN_REFRESH_WINDOW_MS", int64((24 * time.Hour).Milliseconds())),
		TokenExpiryPenalty:  getEnvDurationMs("TOKEN_EXPIRY_PENALTY_MS", int64((7 * 24 * time.Hour).Milliseconds())),
	}

	platformsCfg := PlatformsConfig{
		Facebook: PlatformAPIConfig{
			Enabled:      getEnvBool("FACEBOOK_ENABLED", true),
			BaseURL:      getEnv("FACEBOOK_API_URL", "https://graph.facebook.com/v19.0"),
			ClientID:     getEnv("FACEBOOK_APP_ID", ""),
			ClientSecret: getEnv("FACEBOOK_APP_SECRET", ""),
		},
		Instagram: PlatformAPIConfig{
			Enabled:      getEnvBool("INSTAGRAM_ENABLED", true),
			BaseURL:      getEnv("INSTAGRAM_API_URL", "https://graph.facebook.com/v19.0"),
			ClientID:     getEnv("INSTAGRAM_APP_ID", ""),
			ClientSecret: getEnv("INSTAGRAM_APP_SECRET", ""),
		},
		TikTok: PlatformAPIConfig{
			Enabled:      getEnvBool("TIKTOK_ENABLED", true),
			BaseURL:      getEnv("TIKTOK_API_URL", "https://open.tiktokapis.com/v2"),
			ClientID:     getEnv("TIKTOK_CLIENT_KEY", ""),
			ClientSecret: getEnv("TIKTOK_CLIENT_SECRET", ""),
		},
	}

	mediaCfg := MediaConfig{
		Enabled: getEnvBool("MEDIA_SERVICE_ENABLED", true),
		BaseURL: getEnv("MEDIA_SERVICE_URL", "http://localhost:4000"),
	}

	cfg := &Config{
		App:       appCfg,
		Paths:     pathsCfg,
		Database:  dbCfg,
		Scheduler: schedCfg,
		Platforms: platformsCfg,
		Media:     mediaCfg,
	}

	Global = cfg
	return cfg, nil
}
