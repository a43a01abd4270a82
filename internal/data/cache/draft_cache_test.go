package cache

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/datatypes"

	"github.com/sinag-platform/vantage-backend/internal/indicatortree"
	"github.com/sinag-platform/vantage-backend/internal/platform/codec"
	"github.com/sinag-platform/vantage-backend/internal/platform/logger"
)

func sampleSnapshot() indicatortree.Snapshot {
	parent := "root"
	return indicatortree.Snapshot{
		Nodes: indicatortree.NodeSet{
			"root": {TempID: "root", Order: 1, Name: "Budget", IsActive: true, FormSchema: datatypes.JSON(`{"fields":[]}`)},
			"kid":  {TempID: "kid", ParentTempID: &parent, Order: 1, Name: "Posting", IsActive: true},
		},
		RootIDs:          []string{"root"},
		GovernanceAreaID: 4,
		Version:          3,
		CurrentStep:      2,
	}
}

func TestSnapshotCodecRoundTrip(t *testing.T) {
	raw, err := codec.Marshal(sampleSnapshot())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var got indicatortree.Snapshot
	if err := codec.Unmarshal(raw, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	tr := indicatortree.FromSnapshot(got)
	if tr.Len() != 2 || tr.Version() != 3 || tr.GovernanceAreaID() != 4 {
		t.Fatalf("restored tree: len=%d version=%d gov=%d", tr.Len(), tr.Version(), tr.GovernanceAreaID())
	}
	kid := tr.GetNodeByID("kid")
	if kid == nil || kid.Code != "4.1.1" {
		t.Fatalf("kid code: %+v", kid)
	}
	root := tr.GetNodeByID("root")
	if string(root.FormSchema) != `{"fields":[]}` {
		t.Fatalf("form schema lost: %q", root.FormSchema)
	}
}

func TestNopDraftCacheMisses(t *testing.T) {
	c := NewNopDraftCache()
	ctx := context.Background()
	id := uuid.New()
	if err := c.Put(ctx, id, sampleSnapshot()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	snap, err := c.Get(ctx, id)
	if err != nil || snap != nil {
		t.Fatalf("Get: snap=%v err=%v", snap, err)
	}
}

func TestRedisDraftCacheIntegration(t *testing.T) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	ctx := context.Background()
	if err := rdb.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	c := NewRedisDraftCache(rdb, time.Minute, logger.Nop())
	id := uuid.New()
	t.Cleanup(func() { _ = c.Delete(context.Background(), id) })

	if snap, err := c.Get(ctx, id); err != nil || snap != nil {
		t.Fatalf("cold Get: snap=%v err=%v", snap, err)
	}
	if err := c.Put(ctx, id, sampleSnapshot()); err != nil {
		t.Fatalf("Put: %v", err)
	}
	snap, err := c.Get(ctx, id)
	if err != nil || snap == nil || len(snap.Nodes) != 2 {
		t.Fatalf("warm Get: snap=%v err=%v", snap, err)
	}

	if err := rdb.Set(ctx, Key(id), []byte{0xff, 0x00}, time.Minute).Err(); err != nil {
		t.Fatalf("seed garbage: %v", err)
	}
	if snap, err := c.Get(ctx, id); err != nil || snap != nil {
		t.Fatalf("garbage Get should miss: snap=%v err=%v", snap, err)
	}
}
