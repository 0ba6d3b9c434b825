package biz

import (
	"context"
	"sort"
	"sync"
	"time"

	"IntelHarvest/internal/conf"
	"IntelHarvest/internal/data"
	pkglog "IntelHarvest/pkg/log"

	"github.com/go-kratos/kratos/v2/log"
)

// Defaults for groups missing from the configuration.
const (
	defaultCallsPerMinute   = 20
	defaultFailureThreshold = 5
	defaultResetTimeout     = 120 * time.Second
)

// DependencyGroup is the limiter and optional breaker shared by every
// source calling one external provider.
type DependencyGroup struct {
	Name    string
	Limiter *RateLimiter
	// Breaker is nil for groups without a circuit breaker.
	Breaker *CircuitBreaker
}

// GroupRegistry builds one DependencyGroup per configured group. Nothing is
// shared between groups.
type GroupRegistry struct {
	mu     sync.Mutex
	groups map[string]*DependencyGroup

	shared   SharedRateWindowRepo
	states   CircuitStateRepo
	observer CircuitObserver
	logger   log.Logger
	helper   *pkglog.LogHelper
}

// NewGroupRegistry creates the groups declared in cfg. shared and states may
// be nil.
func NewGroupRegistry(cfg *conf.Harvest, shared SharedRateWindowRepo, states CircuitStateRepo, observer CircuitObserver, logger log.Logger) *GroupRegistry {
	r := &GroupRegistry{
		groups:   make(map[string]*DependencyGroup),
		shared:   shared,
		states:   states,
		observer: observer,
		logger:   logger,
		helper:   pkglog.NewLogHelper(logger),
	}
	if cfg != nil {
		for name, g := range cfg.Groups {
			r.groups[name] = r.build(name, g)
		}
	}
	return r
}

func (r *GroupRegistry) build(name string, g *conf.Group) *DependencyGroup {
	cpm := defaultCallsPerMinute
	if g != nil && g.CallsPerMinute > 0 {
		cpm = int(g.CallsPerMinute)
	}

	var repo RateWindowRepo
	if g != nil && g.SharedWindow && r.shared != nil && r.shared.Available() {
		repo = r.shared
	} else {
		if g != nil && g.SharedWindow {
			r.helper.Warnf("Shared rate window unavailable for group %s, using in-memory window", name)
		}
		repo = data.NewMemoryRateWindowRepo()
	}

	group := &DependencyGroup{
		Name:    name,
		Limiter: NewRateLimiter("ratewin:"+name, cpm, repo, r.logger),
	}
	if g != nil && g.Breaker != nil && g.Breaker.Enabled {
		threshold := defaultFailureThreshold
		if g.Breaker.FailureThreshold > 0 {
			threshold = int(g.Breaker.FailureThreshold)
		}
		reset := defaultResetTimeout
		if g.Breaker.ResetTimeout != nil {
			reset = g.Breaker.ResetTimeout.AsDuration()
		}
		group.Breaker = NewCircuitBreaker(name, threshold, reset, r.observer, r.logger)
	}
	return group
}

// Group returns the named group, creating an unguarded one with the default
// rate for names missing from the configuration.
func (r *GroupRegistry) Group(name string) *DependencyGroup {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g, ok := r.groups[name]; ok {
		return g
	}
	g := r.build(name, nil)
	r.groups[name] = g
	return g
}

// Names returns the group names in sorted order.
func (r *GroupRegistry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BreakerStates returns the state name of every breaker-guarded group.
func (r *GroupRegistry) BreakerStates() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	states := make(map[string]string)
	for name, g := range r.groups {
		if g.Breaker != nil {
			states[name] = g.Breaker.State().String()
		}
	}
	return states
}

func (r *GroupRegistry) breakers() []*CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*CircuitBreaker
	for _, g := range r.groups {
		if g.Breaker != nil {
			out = append(out, g.Breaker)
		}
	}
	return out
}

// RestoreBreakers loads persisted breaker state. Failures are logged and the
// breaker keeps its in-memory state.
func (r *GroupRegistry) RestoreBreakers(ctx context.Context) {
	if r.states == nil {
		return
	}
	for _, cb := range r.breakers() {
		record, err := r.states.Load(ctx, cb.Name())
		if err != nil {
			r.helper.Warnf("Failed to load circuit state for %s: %v", cb.Name(), err)
			continue
		}
		if record != nil {
			cb.Restore(record)
		}
	}
}

// PersistBreakers saves the state of every breaker.
func (r *GroupRegistry) PersistBreakers(ctx context.Context) {
	if r.states == nil {
		return
	}
	for _, cb := range r.breakers() {
		if err := r.states.Save(ctx, cb.Name(), cb.Snapshot()); err != nil {
			r.helper.Warnf("Failed to save circuit state for %s: %v", cb.Name(), err)
		}
	}
}
