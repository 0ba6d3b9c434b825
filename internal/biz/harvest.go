package biz

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"IntelHarvest/internal/conf"
	"IntelHarvest/internal/model"
	pkglog "IntelHarvest/pkg/log"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"golang.org/x/sync/errgroup"
)

// ErrHarvestInProgress is returned when a run is requested while another
// one is active.
var ErrHarvestInProgress = errors.Conflict("HARVEST_IN_PROGRESS", "a harvest run is already in progress")

// Run triggers
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerStartup  = "startup"
	TriggerOnce     = "once"
)

// RunReport is the outcome of one harvest run.
type RunReport struct {
	RunID      string
	Trigger    string
	Snapshot   *model.DashboardSnapshot
	Summary    *model.HarvestSummary
	Alert      bool
	Fallback   bool
	FinishedAt time.Time
}

// HarvestUsecase runs the harvest: fetch every source through its group's
// limiter and breaker, score the pillars, then version and persist the
// snapshot.
type HarvestUsecase struct {
	sources   []Source
	registry  *GroupRegistry
	fetcher   *Fetcher
	table     *EntityTable
	snapshots *SnapshotManager
	audit     AuditLogger
	webhook   WebhookService

	critical   []string
	runTimeout time.Duration

	running   atomic.Bool
	mu        sync.RWMutex
	last      *RunReport
	listeners []func(*RunReport)

	now    func() time.Time
	logger log.Logger
	log    *pkglog.LogHelper
}

// NewHarvestUsecase wires the harvest run from configuration.
func NewHarvestUsecase(
	cfg *conf.Harvest,
	client SourceClient,
	registry *GroupRegistry,
	table *EntityTable,
	snapshots *SnapshotManager,
	audit AuditLogger,
	webhook WebhookService,
	logger log.Logger,
) *HarvestUsecase {
	return &HarvestUsecase{
		sources:    NewSources(cfg, client),
		registry:   registry,
		fetcher:    NewFetcher(RetryPolicyFromConfig(cfg), logger),
		table:      table,
		snapshots:  snapshots,
		audit:      audit,
		webhook:    webhook,
		critical:   cfg.CriticalSources,
		runTimeout: cfg.RunTimeout.AsDuration(),
		now:        time.Now,
		logger:     logger,
		log:        pkglog.NewLogHelper(logger),
	}
}

// RetryPolicyFromConfig converts the harvest settings into a RetryPolicy.
func RetryPolicyFromConfig(cfg *conf.Harvest) RetryPolicy {
	p := DefaultRetryPolicy()
	if cfg == nil {
		return p
	}
	if cfg.MaxRetries > 0 {
		p.MaxAttempts = int(cfg.MaxRetries)
	}
	if cfg.FetchTimeout != nil {
		p.Timeout = cfg.FetchTimeout.AsDuration()
	}
	if cfg.BackoffBase != nil {
		p.BackoffBase = cfg.BackoffBase.AsDuration()
	}
	if cfg.BackoffCap != nil {
		p.BackoffCap = cfg.BackoffCap.AsDuration()
	}
	return p
}

// Running reports whether a run is active.
func (uc *HarvestUsecase) Running() bool {
	return uc.running.Load()
}

// LastReport returns the report of the last finished run, nil before the
// first one.
func (uc *HarvestUsecase) LastReport() *RunReport {
	uc.mu.RLock()
	defer uc.mu.RUnlock()
	return uc.last
}

// OnRunCompleted registers fn to be called after every successful run.
func (uc *HarvestUsecase) OnRunCompleted(fn func(*RunReport)) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	uc.listeners = append(uc.listeners, fn)
}

// Snapshots exposes the snapshot manager to the read API.
func (uc *HarvestUsecase) Snapshots() *SnapshotManager {
	return uc.snapshots
}

// Run performs one harvest. Per-source failures never abort it; only a
// failed validation without fallback or a failed write return an error.
// A concurrent call returns ErrHarvestInProgress.
func (uc *HarvestUsecase) Run(ctx context.Context, trigger string) (*RunReport, error) {
	if !uc.running.CompareAndSwap(false, true) {
		return nil, ErrHarvestInProgress
	}
	defer uc.running.Store(false)

	runID := pkglog.GenerateRunID()
	ctx = pkglog.WithRunContext(ctx, runID, trigger)
	if uc.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.runTimeout)
		defer cancel()
	}
	uc.log.Harvest(ctx, "run", "Starting intelligence harvest", "trigger", trigger, "sources", len(uc.sources))

	stats := NewHarvestStats(uc.critical, uc.logger)

	previous, err := uc.snapshots.LoadPrevious(ctx)
	if err != nil {
		stats.RecordWarning("previous_state", fmt.Sprintf("Could not load: %v", err))
	}

	uc.registry.RestoreBreakers(ctx)
	outcomes := uc.collect(ctx, stats)
	uc.registry.PersistBreakers(ctx)

	state := uc.assemble(outcomes, previous, stats)

	final, fallback, err := uc.snapshots.Finalize(ctx, state, previous)
	if err != nil {
		return nil, fmt.Errorf("finalize snapshot: %w", err)
	}
	if err := uc.snapshots.Persist(ctx, final); err != nil {
		return nil, err
	}

	report := &RunReport{
		RunID:      runID,
		Trigger:    trigger,
		Snapshot:   final,
		Summary:    final.HarvestStats,
		Alert:      stats.ShouldAlert(),
		Fallback:   fallback,
		FinishedAt: uc.now().UTC(),
	}
	if report.Alert {
		uc.raiseAlert(ctx, report, stats)
	}

	uc.mu.Lock()
	uc.last = report
	listeners := slices.Clone(uc.listeners)
	uc.mu.Unlock()
	for _, fn := range listeners {
		fn(report)
	}

	successes, warnings, errs := stats.Counts()
	uc.log.RunCompleted(ctx, final.Version, final.Status, successes, warnings, errs)
	return report, nil
}

// collect fetches every source. Groups run concurrently; the sources of one
// group run in order, so a group's limiter and breaker only see their own
// calls. Results land in source order.
func (uc *HarvestUsecase) collect(ctx context.Context, stats *HarvestStats) []SourceOutcome {
	outcomes := make([]SourceOutcome, len(uc.sources))

	byGroup := make(map[string][]int)
	for i, src := range uc.sources {
		byGroup[src.Group] = append(byGroup[src.Group], i)
	}
	names := make([]string, 0, len(byGroup))
	for name := range byGroup {
		names = append(names, name)
	}
	sort.Strings(names)

	var g errgroup.Group
	for _, name := range names {
		group := uc.registry.Group(name)
		indexes := byGroup[name]
		g.Go(func() error {
			for _, i := range indexes {
				outcomes[i] = uc.fetchSource(ctx, group, uc.sources[i], stats)
			}
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func (uc *HarvestUsecase) fetchSource(ctx context.Context, group *DependencyGroup, src Source, stats *HarvestStats) SourceOutcome {
	out := SourceOutcome{SourceID: src.ID, Pillar: src.Pillar, Entity: src.Entity}

	if group.Breaker != nil && !group.Breaker.CanExecute() {
		stats.RecordWarning(src.ID, "Circuit breaker open - using fallback data")
		out.Err = ErrCircuitOpen
		return out
	}

	res := uc.fetcher.Do(ctx, src.ID, src.Fetch, WithRateLimit(group.Limiter))
	out.Attempts = res.Attempts
	if res.OK() {
		if group.Breaker != nil {
			group.Breaker.RecordSuccess()
		}
		stats.RecordSuccess(src.ID)
		out.Envelope = res.Envelope
		uc.log.Harvest(ctx, src.ID, "Fetched", "signals", len(res.Envelope.Signals), "attempts", res.Attempts)
		return out
	}

	if group.Breaker != nil {
		group.Breaker.RecordFailure()
	}
	stats.RecordError(src.ID, res.Err.Error())
	out.Err = res.Err
	return out
}

// assemble builds the snapshot from the outcomes. Version is set later by
// the snapshot manager.
func (uc *HarvestUsecase) assemble(outcomes []SourceOutcome, previous *model.DashboardSnapshot, stats *HarvestStats) *model.DashboardSnapshot {
	now := uc.now().UTC()
	market := outcomesFor(outcomes, model.PillarMarket)

	s := &model.DashboardSnapshot{
		LastUpdated: now,
		Macro:       BuildMacroPillar(outcomesFor(outcomes, model.PillarMacro), uc.table.Regions(), previous),
		Peers:       BuildPeersPillar(outcomesFor(outcomes, model.PillarPeers), market, uc.table.Peers()),
		Suppliers: BuildSuppliersPillar(
			outcomesFor(outcomes, model.PillarCyber),
			outcomesFor(outcomes, model.PillarSuppliers),
			market,
			uc.table,
			now,
		),
	}
	s.Status = OverallStatus(s.Macro, s.Peers, s.Suppliers)
	s.HarvestStats = stats.Summary()
	s.Health = BuildHealth(s, s.HarvestStats, uc.registry.BreakerStates())
	return s
}

func (uc *HarvestUsecase) raiseAlert(ctx context.Context, report *RunReport, stats *HarvestStats) {
	failed, critical := stats.FailedSources()
	event := &model.HarvestAlertEvent{
		RunID:          report.RunID,
		Version:        report.Snapshot.Version,
		Status:         report.Snapshot.Status,
		TotalErrors:    report.Summary.TotalErrors,
		FailedSources:  failed,
		CriticalFailed: critical,
	}
	uc.log.Alert(ctx, "ALERT: Critical errors detected during harvest",
		"total_errors", event.TotalErrors,
		"failed_sources", failed,
		"critical_failed", critical)
	if uc.audit != nil {
		uc.audit.LogHarvestAlert(ctx, event)
	}
	if uc.webhook != nil {
		if err := uc.webhook.NotifyHarvestAlert(ctx, event); err != nil {
			uc.log.Warnf("Failed to send harvest alert: %v", err)
		}
	}
}
