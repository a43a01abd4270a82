package app

import (
	"gorm.io/gorm"

	apphttp "github.com/sinag-platform/vantage-backend/internal/http"
	httpH "github.com/sinag-platform/vantage-backend/internal/http/handlers"
	"github.com/sinag-platform/vantage-backend/internal/observability"
	"github.com/sinag-platform/vantage-backend/internal/platform/logger"
	"github.com/sinag-platform/vantage-backend/internal/realtime"
)

type Handlers struct {
	Health         *httpH.HealthHandler
	IndicatorDraft *httpH.IndicatorDraftHandler
	Realtime       *httpH.RealtimeHandler
}

func wireHandlers(db *gorm.DB, log *logger.Logger, services Services, sseHub *realtime.SSEHub) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:         httpH.NewHealthHandler(db),
		IndicatorDraft: httpH.NewIndicatorDraftHandler(services.Drafts),
		Realtime:       httpH.NewRealtimeHandler(log, sseHub, services.Drafts),
	}
}

func wireServer(log *logger.Logger, cfg Config, metrics *observability.Metrics, handlers Handlers) *apphttp.Server {
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:                   log,
		Metrics:               metrics,
		ServiceName:           cfg.ServiceName,
		CORSOrigins:           cfg.CORSOrigins,
		HealthHandler:         handlers.Health,
		IndicatorDraftHandler: handlers.IndicatorDraft,
		RealtimeHandler:       handlers.Realtime,
	})
}
