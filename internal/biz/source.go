package biz

import (
	"context"
	"errors"
	"strings"

	"IntelHarvest/internal/conf"
	"IntelHarvest/internal/model"
)

// Source is one external call the harvest makes.
type Source struct {
	ID     string
	Group  string
	Pillar string
	// Entity optionally names the region, peer or supplier the source
	// reports on, for envelopes whose signals carry no entity.
	Entity string
	Fetch  FetchFunc
}

// NewSources builds the configured sources on top of client.
func NewSources(cfg *conf.Harvest, client SourceClient) []Source {
	if cfg == nil {
		return nil
	}
	sources := make([]Source, 0, len(cfg.Sources))
	for _, s := range cfg.Sources {
		if s == nil {
			continue
		}
		id, url := s.ID, s.URL
		sources = append(sources, Source{
			ID:     id,
			Group:  s.Group,
			Pillar: s.Pillar,
			Entity: s.Entity,
			Fetch: func(ctx context.Context) FetchResult {
				envelope, err := client.FetchEnvelope(ctx, id, url)
				if err != nil {
					return Failed(err)
				}
				return Succeeded(envelope)
			},
		})
	}
	return sources
}

// SourceOutcome is what one source contributed to a run.
type SourceOutcome struct {
	SourceID string
	Pillar   string
	Entity   string
	Envelope *model.SignalEnvelope
	Err      error
	Attempts int
}

// OK reports whether the source delivered an envelope.
func (o SourceOutcome) OK() bool {
	return o.Err == nil && o.Envelope != nil
}

// CircuitOpen reports whether the source was skipped by its breaker.
func (o SourceOutcome) CircuitOpen() bool {
	return errors.Is(o.Err, ErrCircuitOpen)
}

// outcomesFor returns the outcomes of the given pillar, in source order.
func outcomesFor(outcomes []SourceOutcome, pillar string) []SourceOutcome {
	var out []SourceOutcome
	for _, o := range outcomes {
		if o.Pillar == pillar {
			out = append(out, o)
		}
	}
	return out
}

// addressedTo reports whether outcome o reports on one of names.
func addressedTo(o SourceOutcome, names ...string) bool {
	for _, n := range names {
		if n != "" && strings.EqualFold(o.Entity, n) {
			return true
		}
	}
	return false
}

// signalsFor returns the signals of successful outcomes that concern one of
// names. A signal without an entity belongs to its source's entity.
func signalsFor(outcomes []SourceOutcome, names ...string) []model.EntitySignal {
	var out []model.EntitySignal
	for _, o := range outcomes {
		if !o.OK() {
			continue
		}
		for _, sig := range o.Envelope.Signals {
			entity := sig.Entity
			if entity == "" {
				entity = o.Entity
			}
			for _, n := range names {
				if n != "" && strings.EqualFold(entity, n) {
					out = append(out, sig)
					break
				}
			}
		}
	}
	return out
}

// pillarStatus is skipped when nothing was attempted, error when every
// attempt failed, success otherwise.
func pillarStatus(outcomes []SourceOutcome) string {
	if len(outcomes) == 0 {
		return model.StatusSkipped
	}
	for _, o := range outcomes {
		if o.OK() {
			return model.StatusSuccess
		}
	}
	return model.StatusError
}
