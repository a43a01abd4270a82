package bus

import (
	"context"
	"testing"

	"github.com/sinag-platform/vantage-backend/internal/realtime"
)

func TestLocalBusForwardsToHub(t *testing.T) {
	b := NewLocalBus()
	var got []realtime.SSEMessage
	if err := b.StartForwarder(context.Background(), func(m realtime.SSEMessage) { got = append(got, m) }); err != nil {
		t.Fatalf("StartForwarder: %v", err)
	}
	msg := realtime.SSEMessage{Channel: realtime.DraftChannel("x"), Event: realtime.SSEEventIndicatorDraftChanged}
	if err := b.Publish(context.Background(), msg); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if len(got) != 1 || got[0].Channel != "draft:x" {
		t.Fatalf("forwarded: %+v", got)
	}

	_ = b.Close()
	_ = b.Publish(context.Background(), msg)
	if len(got) != 1 {
		t.Fatalf("closed bus still forwarding")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := b.Publish(ctx, msg); err == nil {
		t.Fatalf("publish with cancelled context should fail")
	}
}

func TestLocalBusSubscriberMaySubscribeDuringPublish(t *testing.T) {
	b := NewLocalBus()
	ctx := context.Background()
	var first, second int
	_ = b.StartForwarder(ctx, func(realtime.SSEMessage) {
		first++
		if first == 1 {
			_ = b.StartForwarder(ctx, func(realtime.SSEMessage) { second++ })
		}
	})
	msg := realtime.SSEMessage{Channel: realtime.DraftChannel("y")}
	_ = b.Publish(ctx, msg)
	if first != 1 || second != 0 {
		t.Fatalf("first publish: first=%d second=%d", first, second)
	}
	_ = b.Publish(ctx, msg)
	if first != 2 || second != 1 {
		t.Fatalf("second publish: first=%d second=%d", first, second)
	}
}
