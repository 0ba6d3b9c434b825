package model

import "time"

// RAG scores
const (
	RAGGreen = "GREEN"
	RAGAmber = "AMBER"
	RAGRed   = "RED"
)

// Pillar and entity fetch status
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Overall snapshot status
const (
	SnapshotHealthy  = "healthy"
	SnapshotPartial  = "partial"
	SnapshotDegraded = "degraded"
	SnapshotFallback = "fallback"
)

// Pillar names. The first three are required in every snapshot.
const (
	PillarMacro     = "macro"
	PillarPeers     = "peers"
	PillarSuppliers = "suppliers"
	PillarCyber     = "cyber"
	PillarMarket    = "market"
)

// RequiredPillars lists the pillars a snapshot must carry, in report order.
var RequiredPillars = []string{PillarMacro, PillarPeers, PillarSuppliers}

// DashboardSnapshot is the persisted document consumed by the dashboard.
// Pillars are pointers so that a missing pillar survives a JSON round trip
// as missing.
type DashboardSnapshot struct {
	LastUpdated  time.Time        `json:"last_updated"`
	Version      string           `json:"version"`
	Status       string           `json:"status"`
	Macro        *PillarAggregate `json:"macro,omitempty"`
	Peers        *PillarAggregate `json:"peers,omitempty"`
	Suppliers    *PillarAggregate `json:"suppliers,omitempty"`
	Health       *HealthReport    `json:"health,omitempty"`
	HarvestStats *HarvestSummary  `json:"harvest_stats,omitempty"`
}

// Pillar returns the named required pillar, nil when absent or unknown.
func (s *DashboardSnapshot) Pillar(name string) *PillarAggregate {
	switch name {
	case PillarMacro:
		return s.Macro
	case PillarPeers:
		return s.Peers
	case PillarSuppliers:
		return s.Suppliers
	}
	return nil
}

// PillarAggregate is one top-level intelligence category.
type PillarAggregate struct {
	Status   string             `json:"status"`
	RAGScore string             `json:"rag_score"`
	Summary  string             `json:"summary,omitempty"`
	Entities []EntityAssessment `json:"entities"`
	Metrics  map[string]float64 `json:"metrics,omitempty"`
}

// EntityAssessment is the scored view of one region, peer or supplier.
type EntityAssessment struct {
	Name       string             `json:"name"`
	Category   string             `json:"category,omitempty"`
	Status     string             `json:"status"`
	RAGScore   string             `json:"rag_score,omitempty"`
	RiskLevel  string             `json:"risk_level"`
	LastSignal string             `json:"last_signal"`
	Keyword    string             `json:"keyword,omitempty"`
	Summary    string             `json:"summary,omitempty"`
	Attributes map[string]string  `json:"attributes,omitempty"`
	Metrics    map[string]float64 `json:"metrics,omitempty"`

	MatchingVulnerabilities []VulnMatch `json:"matching_vulnerabilities,omitempty"`
	Filings                 []Filing    `json:"filings,omitempty"`
}

// HealthReport summarizes how the run went, per pillar and dependency group.
type HealthReport struct {
	Pillars       map[string]string `json:"pillars"`
	ErrorsCount   int               `json:"errors_count"`
	WarningsCount int               `json:"warnings_count"`
	Breakers      map[string]string `json:"circuit_breakers,omitempty"`
}

// HarvestRecord is one ledger entry kept in the persisted summary.
type HarvestRecord struct {
	Kind    string    `json:"kind"`
	Source  string    `json:"source"`
	Message string    `json:"message,omitempty"`
	Time    time.Time `json:"time"`
}

// HarvestSummary is the bounded view of the run ledger.
type HarvestSummary struct {
	TotalErrors     int             `json:"total_errors"`
	TotalWarnings   int             `json:"total_warnings"`
	TotalSuccesses  int             `json:"total_successes"`
	Errors          []HarvestRecord `json:"errors"`
	Warnings        []HarvestRecord `json:"warnings"`
	DurationSeconds float64         `json:"duration_seconds"`
}
