package model

// Audit event type constants
const (
	AuditEventCircuitOpened    = "CIRCUIT_OPENED"
	AuditEventCircuitRecovered = "CIRCUIT_RECOVERED"
	AuditEventSnapshotFallback = "SNAPSHOT_FALLBACK"
	AuditEventHarvestAlert     = "HARVEST_ALERT"
)
