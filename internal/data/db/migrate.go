package db

import (
	"gorm.io/gorm"

	"github.com/sinag-platform/vantage-backend/internal/domain/indicators"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&indicators.IndicatorDraft{},
		&indicators.Indicator{},
	)
}
