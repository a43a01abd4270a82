// Package bus fans draft events out across server replicas.
package bus

import (
	"context"

	"github.com/sinag-platform/vantage-backend/internal/realtime"
)

type Bus interface {
	Publish(ctx context.Context, msg realtime.SSEMessage) error
	StartForwarder(ctx context.Context, onMsg func(m realtime.SSEMessage)) error
	Close() error
}
