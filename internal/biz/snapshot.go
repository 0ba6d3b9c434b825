package biz

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"IntelHarvest/internal/data"
	"IntelHarvest/internal/model"
	pkglog "IntelHarvest/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/gowebpki/jcs"
)

// versionLength is the number of hex characters kept from the content hash.
const versionLength = 12

// volatileFields change on every run and never take part in the version.
var volatileFields = []string{"last_updated", "version", "harvest_stats", "health"}

// ValidationError names the first field that made a snapshot invalid.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid snapshot field %s: %s", e.Field, e.Reason)
}

// SnapshotManager validates, versions and persists dashboard snapshots.
type SnapshotManager struct {
	store   SnapshotStore
	history SnapshotHistoryRepo
	cache   SnapshotCache
	audit   AuditLogger

	now    func() time.Time
	logger *pkglog.LogHelper
}

// NewSnapshotManager creates a snapshot manager. history, cache and audit
// are optional.
func NewSnapshotManager(store SnapshotStore, history SnapshotHistoryRepo, cache SnapshotCache, audit AuditLogger, logger log.Logger) *SnapshotManager {
	return &SnapshotManager{
		store:   store,
		history: history,
		cache:   cache,
		audit:   audit,
		now:     time.Now,
		logger:  pkglog.NewLogHelper(logger),
	}
}

// Validate checks that every required pillar is present and carries a
// status and a rag_score, and that no entity reports ghost risk.
func (m *SnapshotManager) Validate(s *model.DashboardSnapshot) error {
	if s == nil {
		return &ValidationError{Field: "snapshot", Reason: "missing"}
	}
	if s.LastUpdated.IsZero() {
		return &ValidationError{Field: "last_updated", Reason: "missing"}
	}
	for _, name := range model.RequiredPillars {
		p := s.Pillar(name)
		if p == nil {
			return &ValidationError{Field: name, Reason: "missing required pillar"}
		}
		if p.Status == "" {
			return &ValidationError{Field: name + ".status", Reason: "missing"}
		}
		if !validPillarStatus(p.Status) {
			return &ValidationError{Field: name + ".status", Reason: fmt.Sprintf("unknown value %q", p.Status)}
		}
		if p.RAGScore == "" {
			return &ValidationError{Field: name + ".rag_score", Reason: "missing"}
		}
		if !validRAG(p.RAGScore) {
			return &ValidationError{Field: name + ".rag_score", Reason: fmt.Sprintf("unknown value %q", p.RAGScore)}
		}
		for i, e := range p.Entities {
			if e.RiskLevel == "" {
				continue
			}
			a := RiskAssessment{Level: RiskLevel(e.RiskLevel), Signal: e.LastSignal}
			if err := a.Validate(); err != nil {
				return &ValidationError{Field: fmt.Sprintf("%s.entities[%d].last_signal", name, i), Reason: err.Error()}
			}
		}
	}
	return nil
}

func validPillarStatus(s string) bool {
	return s == model.StatusSuccess || s == model.StatusError || s == model.StatusSkipped
}

func validRAG(s string) bool {
	return s == model.RAGGreen || s == model.RAGAmber || s == model.RAGRed
}

// ComputeVersion returns a short content hash of s. The document is
// canonicalized (RFC 8785) with the volatile fields removed, so two runs
// that harvested the same data share a version.
func (m *SnapshotManager) ComputeVersion(s *model.DashboardSnapshot) (string, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	doc := make(map[string]interface{})
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return "", fmt.Errorf("decode snapshot: %w", err)
	}
	for _, field := range volatileFields {
		delete(doc, field)
	}

	stripped, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("marshal stripped snapshot: %w", err)
	}
	canonical, err := jcs.Transform(stripped)
	if err != nil {
		return "", fmt.Errorf("canonicalize snapshot: %w", err)
	}
	sum := md5.Sum(canonical)
	return hex.EncodeToString(sum[:])[:versionLength], nil
}

// LoadPrevious returns the last persisted snapshot, nil when none exists.
func (m *SnapshotManager) LoadPrevious(ctx context.Context) (*model.DashboardSnapshot, error) {
	prev, err := m.store.Load(ctx)
	if err != nil {
		if data.IsSnapshotNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return prev, nil
}

// Finalize versions state and applies the fallback policy. When state is
// invalid and previous is available, it returns a copy of previous with a
// refreshed timestamp, status "fallback" and the current harvest stats.
// When state is invalid and there is nothing to fall back to, the
// validation error is returned.
func (m *SnapshotManager) Finalize(ctx context.Context, state, previous *model.DashboardSnapshot) (*model.DashboardSnapshot, bool, error) {
	if state != nil {
		version, err := m.ComputeVersion(state)
		if err != nil {
			return nil, false, err
		}
		state.Version = version
	}

	verr := m.Validate(state)
	if verr == nil {
		return state, false, nil
	}

	m.logger.Errorf("Snapshot validation failed: %v", verr)
	if previous == nil {
		return nil, false, fmt.Errorf("no previous snapshot to fall back to: %w", verr)
	}

	fallback, err := cloneSnapshot(previous)
	if err != nil {
		return nil, false, err
	}
	fallback.LastUpdated = m.now().UTC()
	fallback.Status = model.SnapshotFallback
	if state != nil {
		fallback.HarvestStats = state.HarvestStats
	}

	m.logger.Snapshot("Using previous state as fallback", "version", fallback.Version, "reason", verr.Error())
	if m.audit != nil {
		m.audit.LogSnapshotFallback(ctx, fallback.Version, verr)
	}
	return fallback, true, nil
}

// Persist writes s to the store, keeping the previous document as backup.
// Write failures are returned and never retried. History and cache are
// best effort.
func (m *SnapshotManager) Persist(ctx context.Context, s *model.DashboardSnapshot) error {
	if err := m.store.Save(ctx, s); err != nil {
		return fmt.Errorf("persist snapshot to %s: %w", m.store.Path(), err)
	}
	m.logger.Snapshot("Saved snapshot", "path", m.store.Path(), "version", s.Version, "status", s.Status)

	if m.history != nil {
		inserted, err := m.history.Record(ctx, s)
		switch {
		case err != nil:
			m.logger.Warnf("Failed to record snapshot history (version=%s): %v", s.Version, err)
		case !inserted:
			m.logger.Snapshot("Snapshot content unchanged", "version", s.Version)
		}
	}
	if m.cache != nil {
		if err := m.cache.Publish(ctx, s); err != nil {
			m.logger.Warnf("Failed to publish latest snapshot: %v", err)
		}
	}
	return nil
}

// Latest returns the newest snapshot, preferring the shared cache and
// falling back to the local store.
func (m *SnapshotManager) Latest(ctx context.Context) (*model.DashboardSnapshot, error) {
	if m.cache != nil {
		if s, err := m.cache.Latest(ctx); err == nil && s != nil {
			return s, nil
		}
	}
	return m.store.Load(ctx)
}

// ByVersion returns a snapshot from history, or the latest one when its
// version matches.
func (m *SnapshotManager) ByVersion(ctx context.Context, version string) (*model.DashboardSnapshot, error) {
	if latest, err := m.Latest(ctx); err == nil && latest.Version == version {
		return latest, nil
	}
	if m.history == nil {
		return nil, data.ErrSnapshotNotFound
	}
	return m.history.Get(ctx, version)
}

// OverallStatus maps the number of successful required pillars to the
// snapshot status: all successful is healthy, at least one is partial,
// none is degraded.
func OverallStatus(pillars ...*model.PillarAggregate) string {
	ok := 0
	for _, p := range pillars {
		if p != nil && p.Status == model.StatusSuccess {
			ok++
		}
	}
	switch {
	case ok == len(model.RequiredPillars) && ok == len(pillars):
		return model.SnapshotHealthy
	case ok >= 1:
		return model.SnapshotPartial
	default:
		return model.SnapshotDegraded
	}
}

// BuildHealth summarizes pillar statuses, ledger counts and breaker states.
func BuildHealth(s *model.DashboardSnapshot, summary *model.HarvestSummary, breakers map[string]string) *model.HealthReport {
	h := &model.HealthReport{Pillars: make(map[string]string, len(model.RequiredPillars))}
	for _, name := range model.RequiredPillars {
		status := "unknown"
		if p := s.Pillar(name); p != nil && p.Status != "" {
			status = p.Status
		}
		h.Pillars[name] = status
	}
	if summary != nil {
		h.ErrorsCount = summary.TotalErrors
		h.WarningsCount = summary.TotalWarnings
	}
	if len(breakers) > 0 {
		h.Breakers = breakers
	}
	return h
}

func cloneSnapshot(s *model.DashboardSnapshot) (*model.DashboardSnapshot, error) {
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("copy snapshot: %w", err)
	}
	out := &model.DashboardSnapshot{}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("copy snapshot: %w", err)
	}
	return out, nil
}
