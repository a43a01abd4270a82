package handlers

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/sinag-platform/vantage-backend/internal/http/response"
	"github.com/sinag-platform/vantage-backend/internal/platform/logger"
	"github.com/sinag-platform/vantage-backend/internal/realtime"
	"github.com/sinag-platform/vantage-backend/internal/services"
)

type RealtimeHandler struct {
	log    *logger.Logger
	hub    *realtime.SSEHub
	drafts services.IndicatorDraftService

	mu      sync.Mutex
	clients map[uuid.UUID]*realtime.SSEClient
}

func NewRealtimeHandler(log *logger.Logger, hub *realtime.SSEHub, drafts services.IndicatorDraftService) *RealtimeHandler {
	return &RealtimeHandler{
		log:     log.With("handler", "RealtimeHandler"),
		hub:     hub,
		drafts:  drafts,
		clients: make(map[uuid.UUID]*realtime.SSEClient),
	}
}

// GET /api/indicator-drafts/:id/stream?client_id=
//
// EventSource cannot set headers, so the editor's client id comes from the
// query string. Edits sent with the same X-Client-Id are not echoed back.
func (h *RealtimeHandler) DraftStream(c *gin.Context) {
	draftID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_draft_id", err)
		return
	}
	if _, err := h.drafts.GetDraft(c.Request.Context(), draftID); err != nil {
		response.RespondAPIError(c, "draft_load_failed", err)
		return
	}

	origin := c.Query("client_id")
	if origin == "" {
		origin = c.GetHeader("X-Client-Id")
	}
	client := h.hub.NewSSEClient(origin)
	h.mu.Lock()
	h.clients[client.ID] = client
	h.mu.Unlock()
	h.hub.AddChannel(client, realtime.DraftChannel(draftID.String()))
	h.log.Debug("SSE stream open", "draft_id", draftID, "client_id", client.ID)

	h.hub.ServeHTTP(c.Writer, c.Request, client)

	h.mu.Lock()
	_, live := h.clients[client.ID]
	delete(h.clients, client.ID)
	h.mu.Unlock()
	if live {
		h.hub.CloseClient(client)
	}
}

// CloseAll disconnects every open stream.
func (h *RealtimeHandler) CloseAll() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[uuid.UUID]*realtime.SSEClient)
	h.mu.Unlock()
	for _, c := range clients {
		h.hub.CloseClient(c)
	}
}
