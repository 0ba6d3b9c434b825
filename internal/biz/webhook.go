package biz

import (
	"context"

	"IntelHarvest/internal/model"
)

// WebhookService defines the interface for operator notifications
type WebhookService interface {
	// NotifyCircuitOpened sends notification when a breaker opens
	NotifyCircuitOpened(ctx context.Context, event *model.CircuitOpenedEvent) error

	// NotifyCircuitRecovered sends notification when a breaker recovers
	NotifyCircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent) error

	// NotifyHarvestAlert sends notification when a run should alert
	NotifyHarvestAlert(ctx context.Context, event *model.HarvestAlertEvent) error
}

// circuitNotifier fans breaker transitions out to the audit log and webhook.
type circuitNotifier struct {
	audit   AuditLogger
	webhook WebhookService
}

// NewCircuitObserver returns a CircuitObserver that audits and notifies.
// Either collaborator may be nil.
func NewCircuitObserver(audit AuditLogger, webhook WebhookService) CircuitObserver {
	return &circuitNotifier{audit: audit, webhook: webhook}
}

func (n *circuitNotifier) CircuitOpened(ctx context.Context, event *model.CircuitOpenedEvent) {
	if n.audit != nil {
		n.audit.LogCircuitOpened(ctx, event)
	}
	if n.webhook != nil {
		_ = n.webhook.NotifyCircuitOpened(ctx, event)
	}
}

func (n *circuitNotifier) CircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent) {
	if n.audit != nil {
		n.audit.LogCircuitRecovered(ctx, event)
	}
	if n.webhook != nil {
		_ = n.webhook.NotifyCircuitRecovered(ctx, event)
	}
}
