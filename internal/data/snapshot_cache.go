package data

import (
	"context"
	"errors"

	"IntelHarvest/internal/model"
)

// SnapshotCache publishes the latest snapshot under snapshot:latest for
// readers in other processes.
type SnapshotCache struct {
	cache CacheClient
}

// NewSnapshotCache creates a snapshot cache on top of the cache client.
func NewSnapshotCache(cache CacheClient) *SnapshotCache {
	return &SnapshotCache{cache: cache}
}

// Publish stores s as the latest snapshot. Without Redis it does nothing.
func (c *SnapshotCache) Publish(ctx context.Context, s *model.DashboardSnapshot) error {
	err := c.cache.Set(ctx, BuildCacheKey(CacheKeySnapshot, "latest"), s, TTLSnapshot)
	if errors.Is(err, ErrRedisUnavailable) {
		return nil
	}
	return err
}

// Latest returns the published snapshot, ErrSnapshotNotFound when none is.
func (c *SnapshotCache) Latest(ctx context.Context) (*model.DashboardSnapshot, error) {
	s := &model.DashboardSnapshot{}
	if err := c.cache.Get(ctx, BuildCacheKey(CacheKeySnapshot, "latest"), s); err != nil {
		if errors.Is(err, ErrCacheNotFound) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}
	return s, nil
}
