package data

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// MemoryRateWindowRepo keeps rate windows in process memory.
// Safe for concurrent use.
type MemoryRateWindowRepo struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

// NewMemoryRateWindowRepo creates an empty in-memory window store.
func NewMemoryRateWindowRepo() *MemoryRateWindowRepo {
	return &MemoryRateWindowRepo{windows: make(map[string][]time.Time)}
}

// Window drops timestamps at or before since and returns the rest, oldest first.
func (r *MemoryRateWindowRepo) Window(_ context.Context, key string, since time.Time) ([]time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	calls := r.windows[key]
	i := sort.Search(len(calls), func(i int) bool { return calls[i].After(since) })
	calls = calls[i:]
	r.windows[key] = calls

	out := make([]time.Time, len(calls))
	copy(out, calls)
	return out, nil
}

// Add records a call. Out-of-order times are inserted in place.
func (r *MemoryRateWindowRepo) Add(_ context.Context, key string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	calls := r.windows[key]
	i := sort.Search(len(calls), func(i int) bool { return calls[i].After(at) })
	calls = append(calls, time.Time{})
	copy(calls[i+1:], calls[i:])
	calls[i] = at
	r.windows[key] = calls
	return nil
}

// RedisRateWindowRepo keeps rate windows in Redis sorted sets so that
// several harvesters can share one provider quota.
// Key: ratewin:{group}, score: call time in microseconds, member: unique id.
type RedisRateWindowRepo struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewRedisRateWindowRepo creates a Redis-backed window store. rdb may be nil,
// in which case Available reports false.
func NewRedisRateWindowRepo(rdb *redis.Client, logger log.Logger) *RedisRateWindowRepo {
	return &RedisRateWindowRepo{
		rdb:    rdb,
		logger: log.NewHelper(logger),
	}
}

// Available reports whether a Redis client is configured.
func (r *RedisRateWindowRepo) Available() bool {
	return r != nil && r.rdb != nil
}

// Window drops entries at or before since and returns the rest, oldest first.
func (r *RedisRateWindowRepo) Window(ctx context.Context, key string, since time.Time) ([]time.Time, error) {
	if !r.Available() {
		return nil, ErrRedisUnavailable
	}

	pipe := r.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(since.UnixMicro(), 10))
	rangeCmd := pipe.ZRangeWithScores(ctx, key, 0, -1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read rate window %s: %w", key, err)
	}

	entries := rangeCmd.Val()
	out := make([]time.Time, 0, len(entries))
	for _, z := range entries {
		out = append(out, time.UnixMicro(int64(z.Score)))
	}
	return out, nil
}

// Add records a call and refreshes the key expiration.
func (r *RedisRateWindowRepo) Add(ctx context.Context, key string, at time.Time) error {
	if !r.Available() {
		return ErrRedisUnavailable
	}

	pipe := r.rdb.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(at.UnixMicro()), Member: uuid.NewString()})
	pipe.Expire(ctx, key, TTLRateWindow)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record call in rate window %s: %w", key, err)
	}
	r.logger.Debugf("rate window %s: call recorded at %s", key, at.Format(time.RFC3339Nano))
	return nil
}
