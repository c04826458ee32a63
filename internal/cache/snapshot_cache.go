package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"letsee/internal/model"
)

// SnapshotCache handles Redis operations for finished-session snapshots.
// It is the fast read path for result/export queries once the reaper has
// evicted a session from the in-memory registry.
type SnapshotCache interface {
	Set(ctx context.Context, snap *model.SessionSnapshot) error
	Get(ctx context.Context, sessionID string) (*model.SessionSnapshot, error)
	Delete(ctx context.Context, sessionID string) error
}

type snapshotCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSnapshotCache creates a snapshot cache. Returns nil when no Redis
// client is available.
func NewSnapshotCache(client *redis.Client) SnapshotCache {
	if client == nil {
		return nil
	}
	return &snapshotCache{
		client: client,
		ttl:    24 * time.Hour, // Finished sessions expire after 24h
	}
}

func (c *snapshotCache) key(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

func (c *snapshotCache) Set(ctx context.Context, snap *model.SessionSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(snap.SessionID), data, c.ttl).Err()
}

func (c *snapshotCache) Get(ctx context.Context, sessionID string) (*model.SessionSnapshot, error) {
	data, err := c.client.Get(ctx, c.key(sessionID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap model.SessionSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *snapshotCache) Delete(ctx context.Context, sessionID string) error {
	return c.client.Del(ctx, c.key(sessionID)).Err()
}
