// Package data provides data access layer implementations.
// It handles the snapshot document, Redis-backed shared state, the MySQL
// history table and the outbound source client.
package data

import (
	"IntelHarvest/internal/conf"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewData,
	NewRedisClient,
	NewCacheClient,
	NewMySQLClient,
)

// Data contains all data layer dependencies.
type Data struct {
	// redisClient is nil when Redis is not configured or unreachable
	redisClient *redis.Client
	// cache is the cache interface for repository use
	cache CacheClient
	// db is nil when no database DSN is configured
	db *gorm.DB
}

// NewData creates a new Data instance with all data layer dependencies.
// Neither Redis nor MySQL is required to start (graceful degradation).
func NewData(_ *conf.Data, logger log.Logger, rdb *redis.Client, cache CacheClient, db *gorm.DB) (*Data, func(), error) {
	helper := log.NewHelper(logger)

	if rdb == nil {
		helper.Warn("Redis client is nil, shared rate windows and breaker persistence will be unavailable")
	}
	if db == nil {
		helper.Warn("Database is not configured, snapshot history and audit log will be log-only")
	}

	d := &Data{
		redisClient: rdb,
		cache:       cache,
		db:          db,
	}

	cleanup := func() {
		helper.Info("closing the data resources")
		// Redis and MySQL cleanup is handled by their own cleanup functions
		// which are called automatically by Wire
	}

	return d, cleanup, nil
}

// GetCache returns the cache client for repository use.
func (d *Data) GetCache() CacheClient {
	return d.cache
}

// GetRedisClient returns the Redis client, nil when unavailable.
func (d *Data) GetRedisClient() *redis.Client {
	return d.redisClient
}

// GetDB returns the database handle, nil when unavailable.
func (d *Data) GetDB() *gorm.DB {
	return d.db
}
