// Package cache keeps hot copies of draft snapshots in Redis so a session can
// be rebuilt without reading the draft row.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/sinag-platform/vantage-backend/internal/indicatortree"
	"github.com/sinag-platform/vantage-backend/internal/platform/codec"
	"github.com/sinag-platform/vantage-backend/internal/platform/logger"
)

const keyPrefix = "indicator_draft:"

type DraftCache interface {
	// Get returns the cached snapshot for draftID. A miss is (nil, nil).
	Get(ctx context.Context, draftID uuid.UUID) (*indicatortree.Snapshot, error)
	Put(ctx context.Context, draftID uuid.UUID, snap indicatortree.Snapshot) error
	Delete(ctx context.Context, draftID uuid.UUID) error
}

type redisDraftCache struct {
	log *logger.Logger
	rdb goredis.UniversalClient
	ttl time.Duration
}

// NewRedisDraftCache stores snapshots as CBOR under indicator_draft:<id>.
// A zero ttl keeps entries until they are deleted.
func NewRedisDraftCache(rdb goredis.UniversalClient, ttl time.Duration, baseLog *logger.Logger) DraftCache {
	return &redisDraftCache{
		log: baseLog.With("cache", "DraftCache"),
		rdb: rdb,
		ttl: ttl,
	}
}

func Key(draftID uuid.UUID) string { return keyPrefix + draftID.String() }

func (c *redisDraftCache) Get(ctx context.Context, draftID uuid.UUID) (*indicatortree.Snapshot, error) {
	raw, err := c.rdb.Get(ctx, Key(draftID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("draft cache get: %w", err)
	}
	var snap indicatortree.Snapshot
	if err := codec.Unmarshal(raw, &snap); err != nil {
		// A stale encoding is treated as a miss and dropped.
		c.log.Warn("discarding undecodable cached draft", "draft_id", draftID, "error", err)
		_ = c.rdb.Del(ctx, Key(draftID)).Err()
		return nil, nil
	}
	return &snap, nil
}

func (c *redisDraftCache) Put(ctx context.Context, draftID uuid.UUID, snap indicatortree.Snapshot) error {
	raw, err := codec.Marshal(snap)
	if err != nil {
		return fmt.Errorf("draft cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, Key(draftID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("draft cache put: %w", err)
	}
	return nil
}

func (c *redisDraftCache) Delete(ctx context.Context, draftID uuid.UUID) error {
	if err := c.rdb.Del(ctx, Key(draftID)).Err(); err != nil {
		return fmt.Errorf("draft cache delete: %w", err)
	}
	return nil
}

type nopDraftCache struct{}

// NewNopDraftCache is used when no Redis is configured. Every Get misses.
func NewNopDraftCache() DraftCache { return nopDraftCache{} }

func (nopDraftCache) Get(context.Context, uuid.UUID) (*indicatortree.Snapshot, error) {
	return nil, nil
}
func (nopDraftCache) Put(context.Context, uuid.UUID, indicatortree.Snapshot) error { return nil }
func (nopDraftCache) Delete(context.Context, uuid.UUID) error                      { return nil }
