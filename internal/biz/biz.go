// Package biz contains business logic layer implementations.
// This layer holds the resilience primitives, the risk rules and the
// harvest run.
package biz

import (
	"IntelHarvest/internal/conf"
	"IntelHarvest/internal/data"

	"github.com/google/wire"
)

// ProviderSet is biz providers.
var ProviderSet = wire.NewSet(
	NewHarvestUsecase,
	NewGroupRegistry,
	NewSnapshotManager,
	NewCircuitObserver,
	NewEntityTableFromConfig,
	// Import data layer providers
	data.NewRedisRateWindowRepo,
	data.NewCircuitStateRepo,
	data.NewSnapshotFileStore,
	data.NewSnapshotHistoryRepo,
	data.NewSnapshotCache,
	data.NewAuditLogger,
	data.NewNoopWebhookService,
	data.NewHTTPSourceClient,
	// Bind data layer implementations to biz layer interfaces
	wire.Bind(new(SharedRateWindowRepo), new(*data.RedisRateWindowRepo)),
	wire.Bind(new(CircuitStateRepo), new(*data.CircuitStateRepo)),
	wire.Bind(new(SnapshotStore), new(*data.SnapshotFileStore)),
	wire.Bind(new(SnapshotHistoryRepo), new(*data.SnapshotHistoryRepo)),
	wire.Bind(new(SnapshotCache), new(*data.SnapshotCache)),
	wire.Bind(new(AuditLogger), new(*data.AuditLoggerImpl)),
	wire.Bind(new(WebhookService), new(*data.NoopWebhookService)),
	wire.Bind(new(SourceClient), new(*data.HTTPSourceClient)),
)

// NewEntityTableFromConfig loads the entity table named by the harvest
// configuration.
func NewEntityTableFromConfig(c *conf.Harvest) (*EntityTable, error) {
	return LoadEntityTable(c.EntityFile)
}
