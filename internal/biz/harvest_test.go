package biz

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"IntelHarvest/internal/conf"
	"IntelHarvest/internal/data"
	"IntelHarvest/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/durationpb"
)

type fakeSourceClient struct {
	mu        sync.Mutex
	envelopes map[string]*model.SignalEnvelope
	errs      map[string]error
	calls     map[string]int
}

func newFakeSourceClient() *fakeSourceClient {
	return &fakeSourceClient{
		envelopes: make(map[string]*model.SignalEnvelope),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (c *fakeSourceClient) FetchEnvelope(_ context.Context, sourceID, _ string) (*model.SignalEnvelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[sourceID]++
	if err, ok := c.errs[sourceID]; ok {
		return nil, err
	}
	if env, ok := c.envelopes[sourceID]; ok {
		return env, nil
	}
	return nil, fmt.Errorf("unexpected source %s", sourceID)
}

func (c *fakeSourceClient) fail(sourceID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs[sourceID] = err
}

func (c *fakeSourceClient) callCount(sourceID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[sourceID]
}

type recordingWebhook struct {
	mu     sync.Mutex
	alerts []*model.HarvestAlertEvent
}

func (w *recordingWebhook) NotifyCircuitOpened(context.Context, *model.CircuitOpenedEvent) error {
	return nil
}

func (w *recordingWebhook) NotifyCircuitRecovered(context.Context, *model.CircuitRecoveredEvent) error {
	return nil
}

func (w *recordingWebhook) NotifyHarvestAlert(_ context.Context, event *model.HarvestAlertEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.alerts = append(w.alerts, event)
	return nil
}

type harvestFixture struct {
	uc      *HarvestUsecase
	client  *fakeSourceClient
	webhook *recordingWebhook
	path    string
}

func newHarvestFixture(t *testing.T) *harvestFixture {
	t.Helper()
	path := filepath.Join(t.TempDir(), "intel_snapshot.json")
	cfg := &conf.Harvest{
		MaxRetries:   2,
		FetchTimeout: durationpb.New(time.Second),
		BackoffBase:  durationpb.New(time.Millisecond),
		BackoffCap:   durationpb.New(time.Millisecond),
		SnapshotPath: path,
		Groups: map[string]*conf.Group{
			"gov": {CallsPerMinute: 60},
			"market": {
				CallsPerMinute: 60,
				Breaker:        &conf.Breaker{Enabled: true, FailureThreshold: 1, ResetTimeout: durationpb.New(time.Hour)},
			},
		},
		Sources: []*conf.Source{
			{ID: "fred_us", Group: "gov", Pillar: model.PillarMacro, Entity: "US", URL: "http://fred"},
			{ID: "ecb_fx", Group: "gov", Pillar: model.PillarMacro, Entity: "EU", URL: "http://ecb"},
			{ID: "cisa_kev", Group: "gov", Pillar: model.PillarCyber, URL: "http://kev"},
			{ID: "sec_edgar_bat", Group: "gov", Pillar: model.PillarPeers, Entity: "BAT", URL: "http://sec"},
			{ID: "market_quotes", Group: "market", Pillar: model.PillarMarket, URL: "http://quotes"},
			{ID: "supplier_news", Group: "news", Pillar: model.PillarSuppliers, Entity: "Jabil", URL: "http://news"},
		},
	}

	client := newFakeSourceClient()
	client.envelopes["fred_us"] = &model.SignalEnvelope{Signals: []model.EntitySignal{{Indicators: map[string]float64{"cpi_yoy": 3.1}}}}
	client.envelopes["ecb_fx"] = &model.SignalEnvelope{Signals: []model.EntitySignal{{FXRate: floatPtr(1.08)}}}
	client.envelopes["cisa_kev"] = &model.SignalEnvelope{Signals: []model.EntitySignal{{}}}
	client.envelopes["sec_edgar_bat"] = &model.SignalEnvelope{Signals: []model.EntitySignal{{Filings: []model.Filing{{Title: "8-K", Summary: "Item 8.01 Other Events"}}}}}
	client.envelopes["market_quotes"] = &model.SignalEnvelope{Signals: []model.EntitySignal{{Entity: "BTI", PriceChangePct: floatPtr(0.4)}}}
	client.envelopes["supplier_news"] = &model.SignalEnvelope{Signals: []model.EntitySignal{{Headline: strPtr("Jabil opens new plant")}}}

	table := mustEntityTable(t, testEntityYAML)
	registry := NewGroupRegistry(cfg, nil, nil, nil, log.DefaultLogger)
	store := data.NewSnapshotFileStore(cfg, log.DefaultLogger)
	snapshots := NewSnapshotManager(store, nil, nil, nil, log.DefaultLogger)
	webhook := &recordingWebhook{}

	uc := NewHarvestUsecase(cfg, client, registry, table, snapshots, nil, webhook, log.DefaultLogger)
	return &harvestFixture{uc: uc, client: client, webhook: webhook, path: path}
}

func TestHarvestUsecase_Run(t *testing.T) {
	f := newHarvestFixture(t)

	var notified []*RunReport
	f.uc.OnRunCompleted(func(r *RunReport) { notified = append(notified, r) })

	report, err := f.uc.Run(context.Background(), TriggerManual)
	require.NoError(t, err)

	assert.Equal(t, TriggerManual, report.Trigger)
	assert.NotEmpty(t, report.RunID)
	assert.False(t, report.Alert)
	assert.False(t, report.Fallback)
	assert.Equal(t, model.SnapshotHealthy, report.Snapshot.Status)
	assert.Len(t, report.Snapshot.Version, 12)
	assert.Equal(t, 6, report.Summary.TotalSuccesses)
	assert.Zero(t, report.Summary.TotalErrors)

	require.NotNil(t, report.Snapshot.Health)
	assert.Equal(t, "closed", report.Snapshot.Health.Breakers["market"])

	bat := entityByName(t, report.Snapshot.Peers, "BAT")
	assert.Equal(t, "Neutral", bat.Attributes["sentiment"])

	_, err = os.Stat(f.path)
	require.NoError(t, err)

	require.Len(t, notified, 1)
	assert.Same(t, report, notified[0])
	assert.Same(t, report, f.uc.LastReport())
	assert.False(t, f.uc.Running())

	for _, id := range []string{"fred_us", "ecb_fx", "cisa_kev", "sec_edgar_bat", "market_quotes", "supplier_news"} {
		assert.Equal(t, 1, f.client.callCount(id), id)
	}
	assert.Empty(t, f.webhook.alerts)
}

func TestHarvestUsecase_SameDataSameVersion(t *testing.T) {
	f := newHarvestFixture(t)
	ctx := context.Background()

	first, err := f.uc.Run(ctx, TriggerSchedule)
	require.NoError(t, err)
	second, err := f.uc.Run(ctx, TriggerSchedule)
	require.NoError(t, err)
	third, err := f.uc.Run(ctx, TriggerSchedule)
	require.NoError(t, err)

	// The first run has no previous EUR/USD rate, so its macro pillar carries
	// no volatility and differs from the later ones.
	assert.NotContains(t, first.Snapshot.Macro.Metrics, "volatility_pct")
	assert.Contains(t, second.Snapshot.Macro.Metrics, "volatility_pct")
	assert.Equal(t, model.RAGGreen, second.Snapshot.Macro.RAGScore)
	assert.NotEqual(t, first.Snapshot.Version, second.Snapshot.Version)

	assert.Equal(t, second.Snapshot.Version, third.Snapshot.Version)
	assert.NotEqual(t, second.RunID, third.RunID)
	_, err = os.Stat(data.BackupPath(f.path))
	assert.NoError(t, err)
}

func TestHarvestUsecase_CriticalSourceFailureAlerts(t *testing.T) {
	f := newHarvestFixture(t)
	f.client.fail("cisa_kev", errors.New("HTTP 503"))

	report, err := f.uc.Run(context.Background(), TriggerOnce)
	require.NoError(t, err)

	assert.True(t, report.Alert)
	assert.Equal(t, 2, f.client.callCount("cisa_kev"))
	assert.Equal(t, 1, report.Summary.TotalErrors)
	require.Len(t, report.Summary.Errors, 1)
	assert.Equal(t, "cisa_kev", report.Summary.Errors[0].Source)
	assert.Equal(t, "HTTP 503", report.Summary.Errors[0].Message)

	require.Len(t, f.webhook.alerts, 1)
	assert.Equal(t, []string{"cisa_kev"}, f.webhook.alerts[0].CriticalFailed)
	assert.Equal(t, report.Snapshot.Version, f.webhook.alerts[0].Version)

	// The supplier pillar still reports, on news alone
	assert.Equal(t, model.StatusSuccess, report.Snapshot.Suppliers.Status)
}

func TestHarvestUsecase_OpenBreakerSkipsGroup(t *testing.T) {
	f := newHarvestFixture(t)
	ctx := context.Background()
	f.client.fail("market_quotes", errors.New("HTTP 429"))

	first, err := f.uc.Run(ctx, TriggerSchedule)
	require.NoError(t, err)
	assert.Equal(t, 2, f.client.callCount("market_quotes"))
	assert.Equal(t, "open", first.Snapshot.Health.Breakers["market"])

	second, err := f.uc.Run(ctx, TriggerSchedule)
	require.NoError(t, err)
	assert.Equal(t, 2, f.client.callCount("market_quotes"), "no call while the breaker is open")
	assert.Zero(t, second.Summary.TotalErrors)
	require.Len(t, second.Summary.Warnings, 1)
	assert.Equal(t, "market_quotes", second.Summary.Warnings[0].Source)

	bat := entityByName(t, second.Snapshot.Peers, "BAT")
	assert.Equal(t, "fallback: circuit breaker open", bat.Attributes["market_data"])
}

func TestHarvestUsecase_RejectsConcurrentRun(t *testing.T) {
	f := newHarvestFixture(t)
	f.uc.running.Store(true)

	report, err := f.uc.Run(context.Background(), TriggerManual)
	assert.Nil(t, report)
	assert.ErrorIs(t, err, ErrHarvestInProgress)
	assert.Zero(t, f.client.callCount("fred_us"))
}

func TestRetryPolicyFromConfig(t *testing.T) {
	assert.Equal(t, DefaultRetryPolicy(), RetryPolicyFromConfig(nil))

	p := RetryPolicyFromConfig(&conf.Harvest{
		MaxRetries:   5,
		FetchTimeout: durationpb.New(3 * time.Second),
		BackoffBase:  durationpb.New(500 * time.Millisecond),
	})
	assert.Equal(t, 5, p.MaxAttempts)
	assert.Equal(t, 3*time.Second, p.Timeout)
	assert.Equal(t, 500*time.Millisecond, p.BackoffBase)
	assert.Equal(t, 30*time.Second, p.BackoffCap)
}
