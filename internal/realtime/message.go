package realtime

import "strings"

type SSEEvent string

const (
	SSEEventIndicatorDraftChanged   SSEEvent = "IndicatorDraftChanged"
	SSEEventIndicatorDraftSaved     SSEEvent = "IndicatorDraftSaved"
	SSEEventIndicatorDraftSubmitted SSEEvent = "IndicatorDraftSubmitted"
	SSEEventIndicatorDraftClosed    SSEEvent = "IndicatorDraftClosed"
)

type SSEMessage struct {
	Channel string   `json:"channel"`
	Event   SSEEvent `json:"event"`
	Origin  string   `json:"origin,omitempty"`
	Data    any      `json:"data,omitempty"`
}

const draftChannelPrefix = "draft:"

// DraftChannel is the channel editors of a draft subscribe to.
func DraftChannel(draftID string) string {
	return draftChannelPrefix + strings.TrimSpace(draftID)
}
