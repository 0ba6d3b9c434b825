package service

import (
	"context"
	"encoding/json"
	nethttp "net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"IntelHarvest/internal/biz"
	"IntelHarvest/internal/conf"
	"IntelHarvest/internal/data"
	"IntelHarvest/internal/model"

	"github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

// gatedSourceClient serves one fixed envelope per source. When gate is set,
// every call blocks until it is closed.
type gatedSourceClient struct {
	mu      sync.Mutex
	gate    chan struct{}
	errs    map[string]error
	entered chan struct{}
	once    sync.Once
}

func (c *gatedSourceClient) FetchEnvelope(ctx context.Context, sourceID, _ string) (*model.SignalEnvelope, error) {
	c.mu.Lock()
	gate, err := c.gate, c.errs[sourceID]
	c.mu.Unlock()

	if gate != nil {
		c.once.Do(func() { close(c.entered) })
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &model.SignalEnvelope{Signals: []model.EntitySignal{{Indicators: map[string]float64{"cpi_yoy": 2.9}}}}, nil
}

// memoryHistory keeps the first document recorded per version.
type memoryHistory struct {
	mu   sync.Mutex
	docs map[string]*model.DashboardSnapshot
	gets int
}

func (h *memoryHistory) Record(_ context.Context, s *model.DashboardSnapshot) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.docs[s.Version]; ok {
		return false, nil
	}
	h.docs[s.Version] = s
	return true, nil
}

func (h *memoryHistory) Get(_ context.Context, version string) (*model.DashboardSnapshot, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gets++
	if s, ok := h.docs[version]; ok {
		return s, nil
	}
	return nil, data.ErrSnapshotNotFound
}

func (h *memoryHistory) getCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gets
}

type serviceFixture struct {
	svc     *HarvestService
	uc      *biz.HarvestUsecase
	store   *data.SnapshotFileStore
	history *memoryHistory
	client  *gatedSourceClient
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	cfg := &conf.Harvest{
		MaxRetries:     1,
		FetchTimeout:   durationpb.New(time.Second),
		BackoffBase:    durationpb.New(time.Millisecond),
		BackoffCap:     durationpb.New(time.Millisecond),
		SnapshotPath:   filepath.Join(t.TempDir(), "intel_snapshot.json"),
		StaleThreshold: durationpb.New(time.Hour),
		Groups:         map[string]*conf.Group{"gov": {CallsPerMinute: 600}},
		Sources: []*conf.Source{
			{ID: "fred_us", Group: "gov", Pillar: model.PillarMacro, Entity: "US", URL: "http://fred"},
			{ID: "cisa_kev", Group: "gov", Pillar: model.PillarCyber, URL: "http://kev"},
		},
	}

	table, err := biz.ParseEntityTable([]byte("regions: [US]\n"))
	require.NoError(t, err)

	client := &gatedSourceClient{errs: map[string]error{}, entered: make(chan struct{})}
	registry := biz.NewGroupRegistry(cfg, nil, nil, nil, log.DefaultLogger)
	store := data.NewSnapshotFileStore(cfg, log.DefaultLogger)
	history := &memoryHistory{docs: map[string]*model.DashboardSnapshot{}}
	snapshots := biz.NewSnapshotManager(store, history, nil, nil, log.DefaultLogger)
	uc := biz.NewHarvestUsecase(cfg, client, registry, table, snapshots, nil, nil, log.DefaultLogger)

	svc, err := NewHarvestService(uc, cfg, log.DefaultLogger)
	require.NoError(t, err)
	return &serviceFixture{svc: svc, uc: uc, store: store, history: history, client: client}
}

func storedSnapshot(version string, updated time.Time) *model.DashboardSnapshot {
	return &model.DashboardSnapshot{
		LastUpdated: updated,
		Version:     version,
		Status:      model.SnapshotPartial,
		Macro:       &model.PillarAggregate{Status: model.StatusSuccess, RAGScore: model.RAGGreen},
		Peers:       &model.PillarAggregate{Status: model.StatusSkipped, RAGScore: model.RAGGreen},
		Suppliers:   &model.PillarAggregate{Status: model.StatusError, RAGScore: model.RAGRed},
	}
}

func TestNewHarvestService_DefaultStaleThreshold(t *testing.T) {
	svc, err := NewHarvestService(nil, nil, log.DefaultLogger)
	require.NoError(t, err)
	assert.Equal(t, defaultStaleThreshold, svc.staleAfter)

	svc, err = NewHarvestService(nil, &conf.Harvest{StaleThreshold: durationpb.New(0)}, log.DefaultLogger)
	require.NoError(t, err)
	assert.Equal(t, defaultStaleThreshold, svc.staleAfter)
}

func TestHarvestService_GetSnapshotMissing(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.GetSnapshot(context.Background(), &GetSnapshotRequest{})
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
}

func TestHarvestService_GetSnapshotByVersion(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	older := storedSnapshot("aaaaaaaaaaaa", time.Now().UTC().Add(-6*time.Hour))
	_, err := f.history.Record(ctx, older)
	require.NoError(t, err)
	require.NoError(t, f.store.Save(ctx, storedSnapshot("bbbbbbbbbbbb", time.Now().UTC())))

	latest, err := f.svc.GetSnapshot(ctx, &GetSnapshotRequest{})
	require.NoError(t, err)
	assert.Equal(t, "bbbbbbbbbbbb", latest.Version)

	current, err := f.svc.GetSnapshot(ctx, &GetSnapshotRequest{Version: "bbbbbbbbbbbb"})
	require.NoError(t, err)
	assert.Equal(t, "bbbbbbbbbbbb", current.Version)
	assert.Zero(t, f.history.getCount())

	// Older versions come from history once, then from the cache.
	for i := 0; i < 2; i++ {
		got, err := f.svc.GetSnapshot(ctx, &GetSnapshotRequest{Version: "aaaaaaaaaaaa"})
		require.NoError(t, err)
		assert.Same(t, older, got)
	}
	assert.Equal(t, 1, f.history.getCount())

	_, err = f.svc.GetSnapshot(ctx, &GetSnapshotRequest{Version: "cccccccccccc"})
	assert.True(t, errors.IsNotFound(err))
}

func TestHarvestService_GetSnapshotRefreshedVersion(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	first := storedSnapshot("aaaaaaaaaaaa", time.Date(2024, 5, 1, 6, 0, 0, 0, time.UTC))
	require.NoError(t, f.store.Save(ctx, first))
	got, err := f.svc.GetSnapshot(ctx, &GetSnapshotRequest{Version: "aaaaaaaaaaaa"})
	require.NoError(t, err)
	assert.Equal(t, model.SnapshotPartial, got.Status)

	// A fallback keeps the version but refreshes status and timestamp.
	refreshed := storedSnapshot("aaaaaaaaaaaa", time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	refreshed.Status = model.SnapshotFallback
	require.NoError(t, f.store.Save(ctx, refreshed))

	for _, req := range []*GetSnapshotRequest{{}, {Version: "aaaaaaaaaaaa"}} {
		got, err := f.svc.GetSnapshot(ctx, req)
		require.NoError(t, err)
		assert.Equal(t, model.SnapshotFallback, got.Status)
		assert.True(t, refreshed.LastUpdated.Equal(got.LastUpdated))
	}
}

func TestHarvestService_GetSnapshotCorrupt(t *testing.T) {
	f := newServiceFixture(t)
	require.NoError(t, os.WriteFile(f.store.Path(), []byte("{broken"), 0o600))

	_, err := f.svc.GetSnapshot(context.Background(), &GetSnapshotRequest{})
	require.Error(t, err)
	se := errors.FromError(err)
	assert.Equal(t, int32(500), se.Code)
	assert.Equal(t, "SNAPSHOT_UNAVAILABLE", se.Reason)
}

func TestHarvestService_Health(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		updated   *time.Time
		wantState string
		wantStale bool
		wantAge   float64
	}{
		{name: "missing snapshot", wantState: "missing", wantStale: true},
		{name: "fresh", updated: timePtr(now.Add(-10 * time.Minute)), wantState: model.SnapshotPartial, wantAge: 600},
		{name: "stale", updated: timePtr(now.Add(-2 * time.Hour)), wantState: model.SnapshotPartial, wantStale: true, wantAge: 7200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newServiceFixture(t)
			f.svc.now = func() time.Time { return now }
			if tt.updated != nil {
				require.NoError(t, f.store.Save(context.Background(), storedSnapshot("aaaaaaaaaaaa", *tt.updated)))
			}

			reply, err := f.svc.Health(context.Background(), &HealthRequest{})
			require.NoError(t, err)
			assert.Equal(t, tt.wantState, reply.Status)
			assert.Equal(t, tt.wantStale, reply.Stale)
			assert.Equal(t, tt.wantAge, reply.AgeSeconds)
			assert.False(t, reply.Running)
			assert.Nil(t, reply.LastRun)
			if tt.updated != nil {
				assert.Equal(t, "aaaaaaaaaaaa", reply.Version)
				require.NotNil(t, reply.LastUpdated)
				assert.True(t, tt.updated.Equal(*reply.LastUpdated))
			}
		})
	}
}

func TestHarvestService_HealthAfterRun(t *testing.T) {
	f := newServiceFixture(t)

	report, err := f.uc.Run(context.Background(), biz.TriggerSchedule)
	require.NoError(t, err)

	reply, err := f.svc.Health(context.Background(), &HealthRequest{})
	require.NoError(t, err)
	assert.False(t, reply.Stale)
	assert.Equal(t, report.Snapshot.Version, reply.Version)
	require.NotNil(t, reply.LastRun)
	assert.Equal(t, report.RunID, reply.LastRun.RunID)
	assert.Equal(t, biz.TriggerSchedule, reply.LastRun.Trigger)
	assert.NotNil(t, reply.Health)
}

func TestHarvestService_TriggerHarvest(t *testing.T) {
	f := newServiceFixture(t)

	reply, err := f.svc.TriggerHarvest(context.Background(), &TriggerHarvestRequest{})
	require.NoError(t, err)
	assert.True(t, reply.Accepted)
	assert.Equal(t, biz.TriggerManual, reply.Trigger)

	require.Eventually(t, func() bool { return f.uc.LastReport() != nil }, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, biz.TriggerManual, f.uc.LastReport().Trigger)
}

func TestHarvestService_TriggerHarvestInProgress(t *testing.T) {
	f := newServiceFixture(t)
	f.client.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		_, err := f.uc.Run(context.Background(), biz.TriggerSchedule)
		done <- err
	}()
	<-f.client.entered

	_, err := f.svc.TriggerHarvest(context.Background(), &TriggerHarvestRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, biz.ErrHarvestInProgress))
	assert.Equal(t, int32(409), errors.FromError(err).Code)

	close(f.client.gate)
	require.NoError(t, <-done)
}

func TestRegisterHarvestHTTPServer(t *testing.T) {
	f := newServiceFixture(t)
	require.NoError(t, f.store.Save(context.Background(), storedSnapshot("aaaaaaaaaaaa", time.Now().UTC())))

	srv := http.NewServer()
	RegisterHarvestHTTPServer(srv, f.svc)
	ts := httptest.NewServer(srv)
	defer ts.Close()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{"latest snapshot", nethttp.MethodGet, "/v1/snapshot", nethttp.StatusOK},
		{"snapshot by version", nethttp.MethodGet, "/v1/snapshot/aaaaaaaaaaaa", nethttp.StatusOK},
		{"unknown version", nethttp.MethodGet, "/v1/snapshot/ffffffffffff", nethttp.StatusNotFound},
		{"health", nethttp.MethodGet, "/v1/health", nethttp.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := nethttp.NewRequest(tt.method, ts.URL+tt.path, nil)
			require.NoError(t, err)
			resp, err := nethttp.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}

	resp, err := nethttp.Get(ts.URL + "/v1/snapshot")
	require.NoError(t, err)
	defer resp.Body.Close()
	var got model.DashboardSnapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "aaaaaaaaaaaa", got.Version)
	assert.Equal(t, model.RAGRed, got.Suppliers.RAGScore)
}

func timePtr(t time.Time) *time.Time {
	return &t
}
