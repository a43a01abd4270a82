package app

import (
	"strings"
	"time"

	"github.com/sinag-platform/vantage-backend/internal/data/db"
	"github.com/sinag-platform/vantage-backend/internal/platform/envutil"
	"github.com/sinag-platform/vantage-backend/internal/platform/logger"
)

type Config struct {
	Port        string
	Environment string
	ServiceName string
	CORSOrigins []string

	DB db.Options

	RedisAddr     string
	RedisChannel  string
	DraftCacheTTL time.Duration

	AutosaveInterval    time.Duration
	AutosaveConcurrency int
	SessionIdleTTL      time.Duration

	MetricsAddr string
}

func LoadConfig(log *logger.Logger) Config {
	cfg := Config{
		Port:        envutil.String("PORT", "8080"),
		Environment: envutil.String("ENVIRONMENT", "development"),
		ServiceName: envutil.String("OTEL_SERVICE_NAME", "vantage-backend"),
		CORSOrigins: splitList(envutil.String("CORS_ALLOWED_ORIGINS", "")),

		DB: db.Options{
			Driver:           strings.ToLower(envutil.String("DB_DRIVER", "postgres")),
			PostgresHost:     envutil.String("POSTGRES_HOST", "localhost"),
			PostgresPort:     envutil.String("POSTGRES_PORT", "5432"),
			PostgresUser:     envutil.String("POSTGRES_USER", "postgres"),
			PostgresPassword: envutil.String("POSTGRES_PASSWORD", ""),
			PostgresName:     envutil.String("POSTGRES_NAME", "vantage"),
			SQLitePath:       envutil.String("SQLITE_PATH", "vantage.db"),
		},

		RedisAddr:     envutil.String("REDIS_ADDR", ""),
		RedisChannel:  envutil.String("REDIS_CHANNEL", "vantage:sse"),
		DraftCacheTTL: envutil.Duration("DRAFT_CACHE_TTL", 24*time.Hour),

		AutosaveInterval:    envutil.Duration("AUTOSAVE_INTERVAL", 30*time.Second),
		AutosaveConcurrency: envutil.Int("AUTOSAVE_CONCURRENCY", 4),
		SessionIdleTTL:      envutil.Duration("SESSION_IDLE_TTL", 30*time.Minute),

		MetricsAddr: envutil.String("METRICS_ADDR", ""),
	}
	if log != nil {
		log.Info("Loaded config",
			"port", cfg.Port,
			"db_driver", cfg.DB.Driver,
			"redis", cfg.RedisAddr != "",
			"autosave_interval", cfg.AutosaveInterval,
			"session_idle_ttl", cfg.SessionIdleTTL,
		)
	}
	return cfg
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
