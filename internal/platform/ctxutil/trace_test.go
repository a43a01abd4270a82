package ctxutil

import (
	"context"
	"testing"
)

func TestLogFields(t *testing.T) {
	if got := LogFields(context.Background()); got != nil {
		t.Fatalf("empty ctx: %v", got)
	}
	ctx := WithScope(context.Background(), &RequestScope{TraceID: "t1", ClientID: "tab-2"})
	got := LogFields(ctx)
	if len(got) != 4 || got[0] != "trace_id" || got[1] != "t1" || got[2] != "client_id" || got[3] != "tab-2" {
		t.Fatalf("fields: %v", got)
	}
}
