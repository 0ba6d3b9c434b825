package biz

import (
	"context"
	"sync"
	"time"

	"IntelHarvest/internal/model"
	pkglog "IntelHarvest/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// CircuitState is the state of a circuit breaker.
type CircuitState int

const (
	// StateClosed lets every call through.
	StateClosed CircuitState = iota
	// StateOpen blocks calls until the reset timeout has elapsed.
	StateOpen
	// StateHalfOpen lets exactly one trial call through.
	StateHalfOpen
)

// String returns the state name used in logs and persisted records.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ParseCircuitState parses a persisted state name. Unknown names map to closed.
func ParseCircuitState(s string) CircuitState {
	switch s {
	case "open":
		return StateOpen
	case "half-open":
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// CircuitObserver is notified of breaker transitions worth auditing.
type CircuitObserver interface {
	CircuitOpened(ctx context.Context, event *model.CircuitOpenedEvent)
	CircuitRecovered(ctx context.Context, event *model.CircuitRecoveredEvent)
}

// CircuitBreaker suspends calls to a degrading dependency group and retries
// after a cooldown.
//
// Transitions:
//   - Closed -> Open after threshold consecutive failures
//   - Open -> HalfOpen when CanExecute is queried after the reset timeout
//   - HalfOpen -> Closed on trial success
//   - HalfOpen -> Open on trial failure, refreshing the last failure time
//
// Safe for concurrent use.
type CircuitBreaker struct {
	mu sync.Mutex

	name         string
	threshold    int
	resetTimeout time.Duration

	state         CircuitState
	failures      int
	lastFailure   time.Time
	openedAt      time.Time
	trialInFlight bool

	now      func() time.Time
	observer CircuitObserver
	logger   *pkglog.LogHelper
}

// NewCircuitBreaker creates a closed breaker. observer may be nil.
func NewCircuitBreaker(name string, threshold int, resetTimeout time.Duration, observer CircuitObserver, logger log.Logger) *CircuitBreaker {
	if threshold < 1 {
		threshold = 1
	}
	return &CircuitBreaker{
		name:         name,
		threshold:    threshold,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		now:          time.Now,
		observer:     observer,
		logger:       pkglog.NewLogHelper(logger),
	}
}

// Name returns the dependency group the breaker guards.
func (cb *CircuitBreaker) Name() string {
	return cb.name
}

// CanExecute reports whether a call may be attempted. Its only side effect is
// the Open -> HalfOpen transition once the reset timeout has elapsed; in
// HalfOpen a single trial call is granted and later callers get false until the
// trial outcome is recorded.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return true
	case StateOpen:
		if cb.now().Sub(cb.lastFailure) > cb.resetTimeout {
			cb.transitionTo(StateHalfOpen)
			cb.trialInFlight = true
			return true
		}
		return false
	case StateHalfOpen:
		if cb.trialInFlight {
			return false
		}
		cb.trialInFlight = true
		return true
	}
	return false
}

// RecordSuccess resets the failure count and closes the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	from := cb.state
	openedAt := cb.openedAt
	cb.failures = 0
	cb.trialInFlight = false
	cb.transitionTo(StateClosed)
	cb.mu.Unlock()

	if from == StateHalfOpen && cb.observer != nil {
		cb.observer.CircuitRecovered(context.Background(), &model.CircuitRecoveredEvent{
			Group:       cb.name,
			RecoverTime: cb.now().Sub(openedAt),
		})
	}
}

// RecordFailure counts a failure. A failed trial call reopens the breaker; in
// Closed the breaker opens once the threshold is reached.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	from := cb.state
	cb.failures++
	cb.lastFailure = cb.now()
	cb.trialInFlight = false

	opened := false
	switch cb.state {
	case StateHalfOpen:
		cb.transitionTo(StateOpen)
		opened = true
	case StateClosed:
		if cb.failures >= cb.threshold {
			cb.transitionTo(StateOpen)
			opened = true
		}
	}
	event := &model.CircuitOpenedEvent{
		Group:     cb.name,
		Failures:  cb.failures,
		OpenedAt:  cb.openedAt,
		FromState: from.String(),
	}
	cb.mu.Unlock()

	if opened && cb.observer != nil {
		cb.observer.CircuitOpened(context.Background(), event)
	}
}

// State returns the current state without side effects.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Failures returns the consecutive failure count.
func (cb *CircuitBreaker) Failures() int {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.failures
}

// Snapshot returns the persistable state.
func (cb *CircuitBreaker) Snapshot() *model.CircuitStateRecord {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return &model.CircuitStateRecord{
		State:       cb.state.String(),
		Failures:    cb.failures,
		LastFailure: cb.lastFailure,
		OpenedAt:    cb.openedAt,
	}
}

// Restore loads persisted state. A half-open record is restored without a
// trial call in flight, so the next CanExecute grants the trial call.
func (cb *CircuitBreaker) Restore(record *model.CircuitStateRecord) {
	if record == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.state = ParseCircuitState(record.State)
	cb.failures = record.Failures
	cb.lastFailure = record.LastFailure
	cb.openedAt = record.OpenedAt
	cb.trialInFlight = false
}

// transitionTo must be called with mu held.
func (cb *CircuitBreaker) transitionTo(to CircuitState) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if to == StateOpen {
		cb.openedAt = cb.now()
	}
	cb.logger.Circuit(cb.name, from.String(), to.String(), "failures", cb.failures)
}
