package data

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"IntelHarvest/internal/model"
	pkglog "IntelHarvest/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// AuditLog is the GORM model for harvest_audit_logs table
type AuditLog struct {
	ID         int64     `gorm:"primaryKey;column:id"`
	Subject    string    `gorm:"column:subject;type:varchar(64);not null;index"` // group name or run id
	ActionType string    `gorm:"column:action_type;type:varchar(50);not null"`
	Details    string    `gorm:"column:details;type:json"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (AuditLog) TableName() string {
	return "harvest_audit_logs"
}

// AuditLoggerImpl implements biz.AuditLogger interface.
// Events are written by a background goroutine; without a database they are
// only logged.
type AuditLoggerImpl struct {
	db      *gorm.DB
	logChan chan *AuditLog
	logger  *pkglog.LogHelper
	wg      sync.WaitGroup
	once    sync.Once
}

// NewAuditLogger creates a new audit logger with async channel
func NewAuditLogger(db *gorm.DB, logger log.Logger) (*AuditLoggerImpl, func()) {
	al := &AuditLoggerImpl{
		db:      db,
		logChan: make(chan *AuditLog, 256), // Buffer to prevent blocking the harvest
		logger:  pkglog.NewLogHelper(logger),
	}

	al.wg.Add(1)
	go al.start()

	return al, al.Close
}

// Close drains pending events and stops the writer.
func (a *AuditLoggerImpl) Close() {
	a.once.Do(func() {
		close(a.logChan)
		a.wg.Wait()
	})
}

// start processes audit log events from channel
func (a *AuditLoggerImpl) start() {
	defer a.wg.Done()
	for event := range a.logChan {
		if a.db == nil {
			a.logger.Infow("msg", "audit event", "type", "audit",
				"subject", event.Subject,
				"action_type", event.ActionType,
				"details", event.Details)
			continue
		}
		if err := a.db.WithContext(context.Background()).Create(event).Error; err != nil {
			a.logger.Errorw("msg", "failed to write audit log",
				"subject", event.Subject,
				"action_type", event.ActionType,
				"error", err)
		} else {
			a.logger.Database("audit log written",
				"subject", event.Subject,
				"action_type", event.ActionType)
		}
	}
}

func (a *AuditLoggerImpl) enqueue(subject, actionType string, details map[string]interface{}) {
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("msg", "failed to marshal audit log details", "error", err)
		return
	}

	event := &AuditLog{
		Subject:    subject,
		ActionType: actionType,
		Details:    string(detailsJSON),
	}

	// Send to channel (non-blocking)
	select {
	case a.logChan <- event:
	default:
		a.logger.Warnw("msg", "audit log channel full, dropping event",
			"subject", subject,
			"action_type", actionType)
	}
}

// LogCircuitOpened logs a dependency group's breaker opening
func (a *AuditLoggerImpl) LogCircuitOpened(_ context.Context, event *model.CircuitOpenedEvent) {
	a.enqueue(event.Group, model.AuditEventCircuitOpened, map[string]interface{}{
		"failures":   event.Failures,
		"from_state": event.FromState,
		"opened_at":  event.OpenedAt.UTC().Format(time.RFC3339),
	})
}

// LogCircuitRecovered logs a successful half-open trial call
func (a *AuditLoggerImpl) LogCircuitRecovered(_ context.Context, event *model.CircuitRecoveredEvent) {
	a.enqueue(event.Group, model.AuditEventCircuitRecovered, map[string]interface{}{
		"recover_time_seconds": event.RecoverTime.Seconds(),
	})
}

// LogSnapshotFallback logs a run that re-emitted the previous snapshot
func (a *AuditLoggerImpl) LogSnapshotFallback(ctx context.Context, version string, validationErr error) {
	reason := ""
	if validationErr != nil {
		reason = validationErr.Error()
	}
	a.enqueue(pkglog.GetRunID(ctx), model.AuditEventSnapshotFallback, map[string]interface{}{
		"version": version,
		"reason":  reason,
	})
}

// LogHarvestAlert logs a run whose ledger warrants operator attention
func (a *AuditLoggerImpl) LogHarvestAlert(_ context.Context, event *model.HarvestAlertEvent) {
	a.enqueue(event.RunID, model.AuditEventHarvestAlert, map[string]interface{}{
		"version":         event.Version,
		"status":          event.Status,
		"total_errors":    event.TotalErrors,
		"failed_sources":  event.FailedSources,
		"critical_failed": event.CriticalFailed,
	})
}
