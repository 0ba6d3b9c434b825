package service

import (
	"context"
	"time"

	"IntelHarvest/internal/biz"
	"IntelHarvest/internal/conf"
	"IntelHarvest/internal/data"
	"IntelHarvest/internal/model"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	snapshotCacheSize     = 64
	defaultStaleThreshold = 24 * time.Hour
)

// GetSnapshotRequest selects a snapshot. An empty version means the latest.
type GetSnapshotRequest struct {
	Version string `json:"version"`
}

// HealthRequest is the empty health query.
type HealthRequest struct{}

// LastRun describes the last finished harvest run of this process.
type LastRun struct {
	RunID      string    `json:"run_id"`
	Trigger    string    `json:"trigger"`
	FinishedAt time.Time `json:"finished_at"`
	Alert      bool      `json:"alert"`
	Fallback   bool      `json:"fallback"`
}

// HealthReply reports the freshness of the latest snapshot.
type HealthReply struct {
	Status      string              `json:"status"`
	Version     string              `json:"version,omitempty"`
	LastUpdated *time.Time          `json:"last_updated,omitempty"`
	AgeSeconds  float64             `json:"age_seconds"`
	Stale       bool                `json:"stale"`
	Running     bool                `json:"running"`
	LastRun     *LastRun            `json:"last_run,omitempty"`
	Health      *model.HealthReport `json:"health,omitempty"`
}

// TriggerHarvestRequest is the empty manual trigger request.
type TriggerHarvestRequest struct{}

// TriggerHarvestReply acknowledges a manual trigger.
type TriggerHarvestReply struct {
	Accepted bool   `json:"accepted"`
	Trigger  string `json:"trigger"`
}

// HarvestService serves snapshots and accepts manual harvest triggers.
type HarvestService struct {
	uc         *biz.HarvestUsecase
	snapshots  *lru.Cache[string, *model.DashboardSnapshot]
	staleAfter time.Duration
	now        func() time.Time
	logger     *log.Helper
}

// NewHarvestService creates a new HarvestService instance.
func NewHarvestService(uc *biz.HarvestUsecase, c *conf.Harvest, logger log.Logger) (*HarvestService, error) {
	cache, err := lru.New[string, *model.DashboardSnapshot](snapshotCacheSize)
	if err != nil {
		return nil, err
	}
	staleAfter := defaultStaleThreshold
	if c != nil && c.StaleThreshold != nil && c.StaleThreshold.AsDuration() > 0 {
		staleAfter = c.StaleThreshold.AsDuration()
	}
	return &HarvestService{
		uc:         uc,
		snapshots:  cache,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     log.NewHelper(logger),
	}, nil
}

// GetSnapshot returns the latest snapshot, or the one stored under
// req.Version. The latest document is never cached: a fallback or a run with
// unchanged data keeps the version but refreshes status and last_updated.
// Older versions only come from history, whose rows never change, so those
// are kept in an LRU.
func (s *HarvestService) GetSnapshot(ctx context.Context, req *GetSnapshotRequest) (*model.DashboardSnapshot, error) {
	latest, err := s.uc.Snapshots().Latest(ctx)
	if req.Version == "" {
		if err != nil {
			return nil, s.wrap("latest", err)
		}
		return latest, nil
	}
	if err != nil && !data.IsSnapshotNotFound(err) {
		s.logger.Warnw("msg", "failed to load latest snapshot", "version", req.Version, "error", err)
	}
	if latest != nil && latest.Version == req.Version {
		return latest, nil
	}

	if snapshot, ok := s.snapshots.Get(req.Version); ok {
		return snapshot, nil
	}
	s.logger.Debugw("msg", "GetSnapshot cache miss", "version", req.Version)

	snapshot, err := s.uc.Snapshots().ByVersion(ctx, req.Version)
	if err != nil {
		return nil, s.wrap(req.Version, err)
	}
	if latest == nil || snapshot.Version != latest.Version {
		s.snapshots.Add(snapshot.Version, snapshot)
	}
	return snapshot, nil
}

func (s *HarvestService) wrap(version string, err error) error {
	if data.IsSnapshotNotFound(err) {
		return err
	}
	s.logger.Errorw("msg", "failed to load snapshot", "version", version, "error", err)
	return errors.InternalServer("SNAPSHOT_UNAVAILABLE", "failed to load snapshot").WithCause(err)
}

// Health reports the age of the latest snapshot. A missing snapshot is
// reported as stale, not as an error.
func (s *HarvestService) Health(ctx context.Context, _ *HealthRequest) (*HealthReply, error) {
	reply := &HealthReply{Running: s.uc.Running()}
	if r := s.uc.LastReport(); r != nil {
		reply.LastRun = &LastRun{
			RunID:      r.RunID,
			Trigger:    r.Trigger,
			FinishedAt: r.FinishedAt,
			Alert:      r.Alert,
			Fallback:   r.Fallback,
		}
	}

	snapshot, err := s.uc.Snapshots().Latest(ctx)
	if err != nil {
		if !data.IsSnapshotNotFound(err) {
			return nil, s.wrap("latest", err)
		}
		reply.Status = "missing"
		reply.Stale = true
		return reply, nil
	}

	age := s.now().Sub(snapshot.LastUpdated)
	updated := snapshot.LastUpdated
	reply.Status = snapshot.Status
	reply.Version = snapshot.Version
	reply.LastUpdated = &updated
	reply.AgeSeconds = age.Seconds()
	reply.Stale = age > s.staleAfter
	reply.Health = snapshot.Health
	return reply, nil
}

// TriggerHarvest starts a manual run in the background. It is rejected with
// HARVEST_IN_PROGRESS while a run is active.
func (s *HarvestService) TriggerHarvest(_ context.Context, _ *TriggerHarvestRequest) (*TriggerHarvestReply, error) {
	if s.uc.Running() {
		return nil, biz.ErrHarvestInProgress
	}

	s.logger.Infow("msg", "manual harvest triggered")
	go func() {
		if _, err := s.uc.Run(context.Background(), biz.TriggerManual); err != nil {
			s.logger.Errorw("msg", "manual harvest failed", "error", err)
		}
	}()

	return &TriggerHarvestReply{Accepted: true, Trigger: biz.TriggerManual}, nil
}
