package app

import (
	"testing"
	"time"

	"github.com/sinag-platform/vantage-backend/internal/platform/logger"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("SQLITE_PATH", "/tmp/v.db")
	t.Setenv("AUTOSAVE_INTERVAL", "5")
	t.Setenv("SESSION_IDLE_TTL", "2m")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("REDIS_ADDR", "")

	cfg := LoadConfig(logger.Nop())
	if cfg.DB.Driver != "sqlite" || cfg.DB.SQLitePath != "/tmp/v.db" {
		t.Fatalf("db options: %+v", cfg.DB)
	}
	if cfg.AutosaveInterval != 5*time.Second || cfg.SessionIdleTTL != 2*time.Minute {
		t.Fatalf("durations: %v %v", cfg.AutosaveInterval, cfg.SessionIdleTTL)
	}
	if len(cfg.CORSOrigins) != 2 || cfg.CORSOrigins[1] != "https://b.example" {
		t.Fatalf("cors origins: %v", cfg.CORSOrigins)
	}
	if cfg.RedisAddr != "" || cfg.AutosaveConcurrency != 4 {
		t.Fatalf("defaults: %+v", cfg)
	}
}
