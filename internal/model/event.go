package model

import "time"

// CircuitOpenedEvent represents a dependency group's breaker opening
type CircuitOpenedEvent struct {
	Group     string
	Failures  int
	OpenedAt  time.Time
	FromState string // closed or half-open
}

// CircuitRecoveredEvent represents a successful half-open trial call
type CircuitRecoveredEvent struct {
	Group       string
	RecoverTime time.Duration
}

// HarvestAlertEvent is raised when a run's ledger warrants operator attention
type HarvestAlertEvent struct {
	RunID          string
	Version        string
	Status         string
	TotalErrors    int
	FailedSources  []string
	CriticalFailed []string
}

// CircuitStateRecord is the persisted form of a breaker, so that one-shot
// runs launched by an external scheduler keep breaker state between runs.
type CircuitStateRecord struct {
	State       string    `json:"state"`
	Failures    int       `json:"failures"`
	LastFailure time.Time `json:"last_failure"`
	OpenedAt    time.Time `json:"opened_at"`
}
