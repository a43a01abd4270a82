package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/sinag-platform/vantage-backend/internal/http/handlers"
	httpMW "github.com/sinag-platform/vantage-backend/internal/http/middleware"
	"github.com/sinag-platform/vantage-backend/internal/observability"
	"github.com/sinag-platform/vantage-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log         *logger.Logger
	Metrics     *observability.Metrics
	ServiceName string
	CORSOrigins []string

	HealthHandler         *httpH.HealthHandler
	IndicatorDraftHandler *httpH.IndicatorDraftHandler
	RealtimeHandler       *httpH.RealtimeHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.RequestScope())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	api := r.Group("/api")

	// Indicator drafts
	if h := cfg.IndicatorDraftHandler; h != nil {
		drafts := api.Group("/indicator-drafts")
		drafts.POST("", h.CreateDraft)
		drafts.GET("", h.ListDrafts)
		drafts.POST("/import", h.ImportTemplate)

		drafts.GET("/:id", h.GetDraft)
		drafts.DELETE("/:id", h.CloseDraft)

		drafts.POST("/:id/nodes", h.AddNode)
		drafts.GET("/:id/nodes/:nodeId", h.GetNode)
		drafts.PATCH("/:id/nodes/:nodeId", h.UpdateNode)
		drafts.DELETE("/:id/nodes/:nodeId", h.DeleteNode)
		drafts.GET("/:id/nodes/:nodeId/children", h.GetChildren)
		drafts.POST("/:id/nodes/:nodeId/duplicate", h.DuplicateNode)
		drafts.POST("/:id/nodes/:nodeId/move", h.MoveNode)
		drafts.POST("/:id/reorder", h.ReorderNodes)

		drafts.POST("/:id/select", h.SelectNode)
		drafts.PUT("/:id/workflow", h.SetWorkflow)

		drafts.POST("/:id/save", h.SaveDraft)
		drafts.POST("/:id/submit", h.SubmitDraft)
		drafts.GET("/:id/export", h.Export)
	}

	// Realtime (SSE)
	if cfg.RealtimeHandler != nil {
		api.GET("/indicator-drafts/:id/stream", cfg.RealtimeHandler.DraftStream)
	}

	return r
}
