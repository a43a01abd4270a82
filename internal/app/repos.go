package app

import (
	"gorm.io/gorm"

	"github.com/sinag-platform/vantage-backend/internal/data/repos/indicators"
	"github.com/sinag-platform/vantage-backend/internal/platform/logger"
)

type Repos struct {
	Draft     indicators.DraftRepo
	Indicator indicators.IndicatorRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Draft:     indicators.NewDraftRepo(db, log),
		Indicator: indicators.NewIndicatorRepo(db, log),
	}
}
