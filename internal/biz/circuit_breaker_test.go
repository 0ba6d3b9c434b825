package biz

import (
	"context"
	"sync"
	"testing"
	"time"

	"IntelHarvest/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock is a manually advanced clock shared by the time-dependent tests.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type recordingObserver struct {
	mu        sync.Mutex
	opened    []*model.CircuitOpenedEvent
	recovered []*model.CircuitRecoveredEvent
}

func (o *recordingObserver) CircuitOpened(_ context.Context, e *model.CircuitOpenedEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opened = append(o.opened, e)
}

func (o *recordingObserver) CircuitRecovered(_ context.Context, e *model.CircuitRecoveredEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.recovered = append(o.recovered, e)
}

func newTestBreaker(threshold int, reset time.Duration, observer CircuitObserver) (*CircuitBreaker, *fakeClock) {
	clock := newFakeClock()
	cb := NewCircuitBreaker("market", threshold, reset, observer, log.DefaultLogger)
	cb.now = clock.Now
	return cb, clock
}

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	obs := &recordingObserver{}
	cb, _ := newTestBreaker(5, 120*time.Second, obs)

	for i := 0; i < 4; i++ {
		assert.True(t, cb.CanExecute())
		cb.RecordFailure()
		assert.Equal(t, StateClosed, cb.State(), "failure %d", i+1)
	}

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.CanExecute())

	require.Len(t, obs.opened, 1)
	assert.Equal(t, "market", obs.opened[0].Group)
	assert.Equal(t, 5, obs.opened[0].Failures)
	assert.Equal(t, "closed", obs.opened[0].FromState)
}

func TestCircuitBreaker_SuccessResetsCounter(t *testing.T) {
	cb, _ := newTestBreaker(3, time.Minute, nil)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	assert.Equal(t, 0, cb.Failures())
	assert.Equal(t, StateClosed, cb.State())

	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
}

func TestCircuitBreaker_HalfOpenAfterResetTimeout(t *testing.T) {
	obs := &recordingObserver{}
	cb, clock := newTestBreaker(2, 120*time.Second, obs)

	cb.RecordFailure()
	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	// Exactly at the timeout the breaker stays open
	clock.Advance(120 * time.Second)
	assert.False(t, cb.CanExecute())
	assert.Equal(t, StateOpen, cb.State())

	clock.Advance(time.Second)
	assert.True(t, cb.CanExecute())
	assert.Equal(t, StateHalfOpen, cb.State())

	// Only one trial call is granted
	assert.False(t, cb.CanExecute())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.True(t, cb.CanExecute())

	require.Len(t, obs.recovered, 1)
	assert.Equal(t, 121*time.Second, obs.recovered[0].RecoverTime)
}

func TestCircuitBreaker_TrialFailureReopens(t *testing.T) {
	obs := &recordingObserver{}
	cb, clock := newTestBreaker(1, 10*time.Second, obs)

	cb.RecordFailure()
	require.Equal(t, StateOpen, cb.State())

	clock.Advance(11 * time.Second)
	require.True(t, cb.CanExecute())
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())

	// last failure time was refreshed by the failed trial call
	clock.Advance(5 * time.Second)
	assert.False(t, cb.CanExecute())
	clock.Advance(6 * time.Second)
	assert.True(t, cb.CanExecute())

	require.Len(t, obs.opened, 2)
	assert.Equal(t, "half-open", obs.opened[1].FromState)
}

func TestCircuitBreaker_SnapshotRestore(t *testing.T) {
	cb, clock := newTestBreaker(2, time.Minute, nil)
	cb.RecordFailure()
	cb.RecordFailure()
	record := cb.Snapshot()
	assert.Equal(t, "open", record.State)
	assert.Equal(t, 2, record.Failures)
	assert.Equal(t, clock.Now(), record.LastFailure)

	restored, restoredClock := newTestBreaker(2, time.Minute, nil)
	restored.Restore(record)
	assert.Equal(t, StateOpen, restored.State())
	assert.False(t, restored.CanExecute())

	restoredClock.Advance(2 * time.Minute)
	assert.True(t, restored.CanExecute())
}

func TestCircuitBreaker_RestoreHalfOpenGrantsTrial(t *testing.T) {
	cb, _ := newTestBreaker(2, time.Minute, nil)
	cb.Restore(&model.CircuitStateRecord{State: "half-open", Failures: 2})
	assert.True(t, cb.CanExecute())
	assert.False(t, cb.CanExecute())
}

func TestParseCircuitState(t *testing.T) {
	tests := []struct {
		in   string
		want CircuitState
	}{
		{"closed", StateClosed},
		{"open", StateOpen},
		{"half-open", StateHalfOpen},
		{"", StateClosed},
		{"garbage", StateClosed},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseCircuitState(tt.in))
		})
	}
	assert.Equal(t, "half-open", StateHalfOpen.String())
}
