package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/sinag-platform/vantage-backend/internal/data/cache"
	"github.com/sinag-platform/vantage-backend/internal/platform/logger"
	"github.com/sinag-platform/vantage-backend/internal/realtime/bus"
	"github.com/sinag-platform/vantage-backend/internal/services"
)

type Services struct {
	Bus       bus.Bus
	Drafts    services.IndicatorDraftService
	Autosaver *services.Autosaver
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, clients Clients, repos Repos) (Services, error) {
	log.Info("Wiring services...")

	draftCache := cache.NewNopDraftCache()
	eventBus := bus.NewLocalBus()
	if clients.Redis != nil {
		draftCache = cache.NewRedisDraftCache(clients.Redis, cfg.DraftCacheTTL, log)
		b, err := bus.NewRedisBus(clients.Redis, cfg.RedisChannel, log)
		if err != nil {
			return Services{}, fmt.Errorf("init redis SSE bus: %w", err)
		}
		eventBus = b
	}

	drafts := services.NewIndicatorDraftService(db, log, repos.Draft, repos.Indicator, draftCache, eventBus)
	autosaver := services.NewAutosaver(log, drafts, services.AutosaveConfig{
		Interval:    cfg.AutosaveInterval,
		Concurrency: cfg.AutosaveConcurrency,
		IdleTTL:     cfg.SessionIdleTTL,
	})

	return Services{
		Bus:       eventBus,
		Drafts:    drafts,
		Autosaver: autosaver,
	}, nil
}
