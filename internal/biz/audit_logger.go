package biz

import (
	"context"

	"IntelHarvest/internal/model"
)

// AuditLogger defines the interface for audit logging
type AuditLogger interface {
	// LogCircuitOpened logs a dependency group's breaker opening
	LogCircuitOpened(ctx context.Context, event *model.CircuitOpenedEvent)

	// LogCircuitRecovered logs a successful half-open trial call
	LogCircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent)

	// LogSnapshotFallback logs a run that re-emitted the previous snapshot
	LogSnapshotFallback(ctx context.Context, version string, validationErr error)

	// LogHarvestAlert logs a run whose ledger warrants operator attention
	LogHarvestAlert(ctx context.Context, event *model.HarvestAlertEvent)
}
