package biz

import (
	"context"
	"time"

	"IntelHarvest/internal/model"
)

// Repository interfaces for the harvest engine.
// Following Kratos v2 DDD architecture, interfaces are defined in biz layer.
// Implementations are in data layer.

// RateWindowRepo stores the sliding call window of a rate limiter.
type RateWindowRepo interface {
	// Window drops timestamps at or before since and returns the remaining
	// ones in ascending order.
	Window(ctx context.Context, key string, since time.Time) ([]time.Time, error)
	// Add records a call at the given time.
	Add(ctx context.Context, key string, at time.Time) error
}

// SharedRateWindowRepo is a RateWindowRepo that may be shared between
// processes and can be unavailable (no Redis configured).
type SharedRateWindowRepo interface {
	RateWindowRepo
	Available() bool
}

// CircuitStateRepo persists breaker state between runs.
type CircuitStateRepo interface {
	// Load returns nil, nil when no state was saved for the group.
	Load(ctx context.Context, group string) (*model.CircuitStateRecord, error)
	Save(ctx context.Context, group string, record *model.CircuitStateRecord) error
}

// SnapshotStore is the local, authoritative snapshot document.
type SnapshotStore interface {
	// Load returns an error matching data.ErrSnapshotNotFound when no
	// snapshot has been persisted yet.
	Load(ctx context.Context) (*model.DashboardSnapshot, error)
	// Save backs up the current document, then replaces it atomically.
	Save(ctx context.Context, snapshot *model.DashboardSnapshot) error
	// Path returns the document location, for logs.
	Path() string
}

// SnapshotHistoryRepo keeps one row per distinct snapshot version.
type SnapshotHistoryRepo interface {
	// Record inserts the snapshot unless its version already exists.
	Record(ctx context.Context, snapshot *model.DashboardSnapshot) (inserted bool, err error)
	Get(ctx context.Context, version string) (*model.DashboardSnapshot, error)
}

// SnapshotCache publishes the latest snapshot for readers in other processes.
type SnapshotCache interface {
	Publish(ctx context.Context, snapshot *model.DashboardSnapshot) error
	Latest(ctx context.Context) (*model.DashboardSnapshot, error)
}

// SourceClient retrieves a normalized signal envelope from a source URL.
type SourceClient interface {
	FetchEnvelope(ctx context.Context, sourceID, url string) (*model.SignalEnvelope, error)
}
