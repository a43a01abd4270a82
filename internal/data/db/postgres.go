package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/sinag-platform/vantage-backend/internal/platform/logger"
)

type Options struct {
	Driver string

	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresName     string

	SQLitePath string
}

// Open connects to the configured database driver ("postgres" or "sqlite").
func Open(logg *logger.Logger, opts Options) (*gorm.DB, error) {
	switch opts.Driver {
	case "", "postgres":
		return OpenPostgres(logg, opts)
	case "sqlite":
		return OpenSQLite(logg, opts.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", opts.Driver)
	}
}

func OpenPostgres(logg *logger.Logger, opts Options) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		opts.PostgresUser,
		opts.PostgresPassword,
		opts.PostgresHost,
		opts.PostgresPort,
		opts.PostgresName,
	)
	db, err := gorm.Open(postgres.Open(dsn), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}
	logg.Info("Connected to Postgres", "host", opts.PostgresHost, "database", opts.PostgresName)
	return db, nil
}

// OpenSQLite opens a file-backed or in-memory (":memory:" / "") database.
func OpenSQLite(logg *logger.Logger, path string) (*gorm.DB, error) {
	if path == "" {
		path = "file::memory:?cache=shared"
	}
	db, err := gorm.Open(sqlite.Open(path), gormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite %q: %w", path, err)
	}
	logg.Info("Opened sqlite database", "path", path)
	return db, nil
}

func gormConfig() *gorm.Config {
	return &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger: gormLogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormLogger.Config{
				SlowThreshold:             1 * time.Second,
				LogLevel:                  gormLogger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
	}
}
