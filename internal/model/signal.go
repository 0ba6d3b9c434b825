package model

import "time"

// SignalEnvelope is the normalized document every source adapter returns.
// Vendor formats (ECB XML, SEC Atom, KEV JSON, quote APIs) are translated
// into this shape before they reach the engine.
type SignalEnvelope struct {
	Source    string         `json:"source"`
	FetchedAt time.Time      `json:"fetched_at,omitempty"`
	Signals   []EntitySignal `json:"signals"`
}

// EntitySignal carries the raw signals for one entity. Absent values stay nil.
type EntitySignal struct {
	Entity          string             `json:"entity"`
	Headline        *string            `json:"headline,omitempty"`
	PriceChangePct  *float64           `json:"price_change_pct,omitempty"`
	FXRate          *float64           `json:"fx_rate,omitempty"`
	Indicators      map[string]float64 `json:"indicators,omitempty"`
	Vulnerabilities []VulnMatch        `json:"vulnerabilities,omitempty"`
	Filings         []Filing           `json:"filings,omitempty"`
}

// VulnMatch is one known-exploited vulnerability entry.
// DateAdded is a calendar date (2006-01-02) as published by the catalog.
type VulnMatch struct {
	CVEID      string `json:"cve_id"`
	Vendor     string `json:"vendor,omitempty"`
	Product    string `json:"product,omitempty"`
	Name       string `json:"name,omitempty"`
	DateAdded  string `json:"date_added"`
	Ransomware bool   `json:"ransomware,omitempty"`
}

// Filing is one regulatory filing (SEC 8-K) entry.
type Filing struct {
	Title     string `json:"title"`
	Summary   string `json:"summary,omitempty"`
	Published string `json:"published,omitempty"`
}
