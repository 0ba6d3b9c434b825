package data

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"IntelHarvest/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/redis/go-redis/v9"
)

// CircuitStateRepo persists breaker state in a Redis hash per group
// (circuit:{group}). Without Redis it loads nothing and saves nothing.
type CircuitStateRepo struct {
	rdb    *redis.Client
	logger *log.Helper
}

// NewCircuitStateRepo creates a new circuit state repository
func NewCircuitStateRepo(rdb *redis.Client, logger log.Logger) *CircuitStateRepo {
	return &CircuitStateRepo{
		rdb:    rdb,
		logger: log.NewHelper(logger),
	}
}

// Load returns the saved state of group, nil when none was saved.
func (r *CircuitStateRepo) Load(ctx context.Context, group string) (*model.CircuitStateRecord, error) {
	if r.rdb == nil {
		return nil, nil
	}

	key := BuildCacheKey(CacheKeyCircuit, group)
	fields, err := r.rdb.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load circuit state %s: %w", key, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}

	record := &model.CircuitStateRecord{State: fields["state"]}
	if v := fields["failures"]; v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid failures in %s: %w", key, err)
		}
		record.Failures = n
	}
	if record.LastFailure, err = parseStateTime(fields["last_failure"]); err != nil {
		return nil, fmt.Errorf("invalid last_failure in %s: %w", key, err)
	}
	if record.OpenedAt, err = parseStateTime(fields["opened_at"]); err != nil {
		return nil, fmt.Errorf("invalid opened_at in %s: %w", key, err)
	}
	return record, nil
}

// Save stores the state of group.
func (r *CircuitStateRepo) Save(ctx context.Context, group string, record *model.CircuitStateRecord) error {
	if r.rdb == nil || record == nil {
		return nil
	}

	key := BuildCacheKey(CacheKeyCircuit, group)
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"state":        record.State,
		"failures":     record.Failures,
		"last_failure": formatStateTime(record.LastFailure),
		"opened_at":    formatStateTime(record.OpenedAt),
	})
	pipe.Expire(ctx, key, TTLCircuit)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save circuit state %s: %w", key, err)
	}
	r.logger.Debugf("circuit state saved: group=%s state=%s failures=%d", group, record.State, record.Failures)
	return nil
}

func formatStateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseStateTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339Nano, s)
}
