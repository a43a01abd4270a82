package realtime

import (
	"github.com/google/uuid"

	"github.com/sinag-platform/vantage-backend/internal/platform/logger"
)

// SSEClient is one open event stream. Origin is the editor's client id;
// messages carrying the same origin are not echoed back to it.
type SSEClient struct {
	ID       uuid.UUID
	Origin   string
	Channels map[string]bool
	Outbound chan SSEMessage
	done     chan struct{}
	Logger   *logger.Logger
}

func (c *SSEClient) echoes(msg SSEMessage) bool {
	return c.Origin != "" && c.Origin == msg.Origin
}
