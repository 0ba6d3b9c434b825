package data

import (
	"context"

	"IntelHarvest/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// NoopWebhookService only logs events. Operator alerting is left to the
// external scheduler, which watches the exit code of -once runs.
type NoopWebhookService struct {
	logger *log.Helper
}

// NewNoopWebhookService creates a new noop webhook service
func NewNoopWebhookService(logger log.Logger) *NoopWebhookService {
	return &NoopWebhookService{
		logger: log.NewHelper(logger),
	}
}

// NotifyCircuitOpened logs circuit opened event (webhook disabled)
func (s *NoopWebhookService) NotifyCircuitOpened(_ context.Context, event *model.CircuitOpenedEvent) error {
	s.logger.Infow("msg", "circuit opened (webhook disabled)",
		"group", event.Group,
		"failures", event.Failures,
		"from_state", event.FromState,
		"opened_at", event.OpenedAt)
	return nil
}

// NotifyCircuitRecovered logs circuit recovered event (webhook disabled)
func (s *NoopWebhookService) NotifyCircuitRecovered(_ context.Context, event *model.CircuitRecoveredEvent) error {
	s.logger.Infow("msg", "circuit recovered (webhook disabled)",
		"group", event.Group,
		"recover_time", event.RecoverTime)
	return nil
}

// NotifyHarvestAlert logs harvest alert event (webhook disabled)
func (s *NoopWebhookService) NotifyHarvestAlert(_ context.Context, event *model.HarvestAlertEvent) error {
	s.logger.Infow("msg", "harvest alert (webhook disabled)",
		"run_id", event.RunID,
		"version", event.Version,
		"total_errors", event.TotalErrors,
		"critical_failed", event.CriticalFailed)
	return nil
}
