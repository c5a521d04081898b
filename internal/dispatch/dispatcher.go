package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog/log"
)

var (
	// ErrPoolExhausted is returned by a Pool with no usable account.
	ErrPoolExhausted = errors.New("account pool exhausted")
	// ErrNoTarget means neither the pool nor the provider can serve the request.
	ErrNoTarget = errors.New("no upstream available")
)

// ProviderName identifies the secondary provider target.
const ProviderName = "provider"

// Target is the upstream chosen for one request.
type Target struct {
	Name     string
	BaseURL  string
	APIKey   string
	Protocol string
	Model    string
}

// Request describes what needs routing.
type Request struct {
	Protocol  string
	Model     string
	SessionID string
}

// Pool supplies primary upstream candidates. Selection, stickiness and retry
// policies live behind this interface.
type Pool interface {
	Candidates(ctx context.Context, req Request) ([]Target, error)
}

// Picker chooses one target among candidates.
type Picker interface {
	Pick(req Request, candidates []Target) Target
}

// RoundRobin cycles through candidates.
type RoundRobin struct {
	counter atomic.Uint64
}

func (r *RoundRobin) Pick(_ Request, candidates []Target) Target {
	idx := r.counter.Add(1) - 1
	return candidates[idx%uint64(len(candidates))]
}

// StaticPool always offers the same targets, filtered by protocol.
type StaticPool struct {
	targets []Target
}

// NewStaticPool creates a pool from fixed targets.
func NewStaticPool(targets ...Target) *StaticPool {
	return &StaticPool{targets: targets}
}

func (p *StaticPool) Candidates(_ context.Context, req Request) ([]Target, error) {
	out := make([]Target, 0, len(p.targets))
	for _, t := range p.targets {
		if t.Protocol == "" || t.Protocol == req.Protocol {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, ErrPoolExhausted
	}
	return out, nil
}

// Dispatcher applies the provider dispatch mode on top of the primary pool.
type Dispatcher struct {
	pool     Pool
	picker   Picker
	provider ProviderConfig
}

// NewDispatcher creates a dispatcher. A nil picker defaults to round-robin.
func NewDispatcher(pool Pool, picker Picker, provider ProviderConfig) *Dispatcher {
	if picker == nil {
		picker = &RoundRobin{}
	}
	return &Dispatcher{pool: pool, picker: picker, provider: provider}
}

// Provider returns the provider configuration.
func (d *Dispatcher) Provider() ProviderConfig {
	return d.provider
}

// Pick selects the upstream target for req.
func (d *Dispatcher) Pick(ctx context.Context, req Request) (Target, error) {
	participates := d.provider.Participates(req.Protocol)

	if participates && d.provider.DispatchMode == ModeExclusive {
		return d.providerTarget(req), nil
	}

	candidates, poolErr := d.candidates(ctx, req)
	if poolErr != nil && !errors.Is(poolErr, ErrPoolExhausted) {
		return Target{}, fmt.Errorf("failed to list pool candidates: %w", poolErr)
	}

	if participates {
		switch d.provider.DispatchMode {
		case ModePooled:
			candidates = append(candidates, d.providerTarget(req))
		case ModeFallback:
			if len(candidates) == 0 {
				log.Warn().Str("model", req.Model).Msg("primary pool unavailable, using fallback provider")
				return d.providerTarget(req), nil
			}
		}
	}

	if len(candidates) == 0 {
		return Target{}, ErrNoTarget
	}

	t := d.picker.Pick(req, candidates)
	if t.Model == "" {
		t.Model = req.Model
	}
	return t, nil
}

func (d *Dispatcher) candidates(ctx context.Context, req Request) ([]Target, error) {
	if d.pool == nil {
		return nil, ErrPoolExhausted
	}
	c, err := d.pool.Candidates(ctx, req)
	if err != nil {
		return nil, err
	}
	return append([]Target(nil), c...), nil
}

func (d *Dispatcher) providerTarget(req Request) Target {
	return Target{
		Name:     ProviderName,
		BaseURL:  d.provider.BaseURL,
		APIKey:   d.provider.APIKey,
		Protocol: d.provider.Protocol,
		Model:    d.provider.ResolveModel(req.Model),
	}
}
