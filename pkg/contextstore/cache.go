package contextstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/ledgerflow/workflowengine/pkg/types"
)

// CachedStore fronts a durable Store (pkg/storage/postgres in production)
// with a Redis cache of snapshot payloads keyed by (executionID, version).
// Every Snapshot call still reads the durable store to learn the current
// version, so the cache does not save that round trip. Commit always goes
// straight to the durable store; only the resulting snapshot is cached.
type CachedStore struct {
	inner Store
	redis *redis.Client
	ttl   time.Duration
	log   *logrus.Entry
}

func NewCachedStore(inner Store, client *redis.Client, log *logrus.Entry) *CachedStore {
	return &CachedStore{inner: inner, redis: client, ttl: 5 * time.Minute, log: log}
}

func cacheKey(executionID string, version int64) string {
	return fmt.Sprintf("ctxsnap:%s:%d", executionID, version)
}

func (c *CachedStore) Snapshot(ctx context.Context, executionID string) (types.ContextSnapshot, error) {
	// We don't know the current version without asking the durable store
	// (or trusting a caller-supplied hint), so Snapshot always consults the
	// durable store for the version, then tries the cache for the payload.
	snap, err := c.inner.Snapshot(ctx, executionID)
	if err != nil {
		return types.ContextSnapshot{}, err
	}

	key := cacheKey(executionID, snap.Metadata.Version)
	if cached, ok := c.readCache(ctx, key); ok {
		return cached, nil
	}

	c.writeCache(ctx, key, snap)
	return snap, nil
}

func (c *CachedStore) readCache(ctx context.Context, key string) (types.ContextSnapshot, bool) {
	if c.redis == nil {
		return types.ContextSnapshot{}, false
	}
	raw, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil && c.log != nil {
			c.log.WithError(err).Warn("context cache read failed, falling back to durable store")
		}
		return types.ContextSnapshot{}, false
	}
	var snap types.ContextSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return types.ContextSnapshot{}, false
	}
	return snap, true
}

func (c *CachedStore) writeCache(ctx context.Context, key string, snap types.ContextSnapshot) {
	if c.redis == nil {
		return
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := c.redis.Set(ctx, key, raw, c.ttl).Err(); err != nil && c.log != nil {
		c.log.WithError(err).Warn("context cache write failed")
	}
}

func (c *CachedStore) Commit(ctx context.Context, executionID, stepID string, delta types.Delta, expectedVersion int64) (int64, error) {
	return c.inner.Commit(ctx, executionID, stepID, delta, expectedVersion)
}

func (c *CachedStore) History(ctx context.Context, executionID string) ([]types.ContextCommit, error) {
	return c.inner.History(ctx, executionID)
}

func (c *CachedStore) Purge(ctx context.Context, executionID string) error {
	if c.redis != nil {
		// Best-effort: scan is avoided in the hot path, so stale snapshot
		// keys for a purged execution simply expire via TTL.
		_ = c.redis.Del(ctx, cacheKey(executionID, 0)).Err()
	}
	return c.inner.Purge(ctx, executionID)
}
