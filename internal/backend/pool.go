package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/aman-churiwal/chat-admission/internal/loadbalancer"
)

// Pool spreads completions over several interchangeable upstreams. A failed
// call moves on to an upstream not yet tried for the same prompt.
type Pool struct {
	names     []string
	upstreams map[string]Completer
	strategy  loadbalancer.Strategy
	logger    *slog.Logger
}

func NewPool(upstreams map[string]Completer, strategy loadbalancer.Strategy, logger *slog.Logger) (*Pool, error) {
	if len(upstreams) == 0 {
		return nil, errors.New("at least one upstream is required")
	}
	if strategy == nil {
		strategy = loadbalancer.NewRoundRobin()
	}
	if logger == nil {
		logger = slog.Default()
	}

	names := make([]string, 0, len(upstreams))
	for name := range upstreams {
		names = append(names, name)
	}
	slices.Sort(names)

	return &Pool{
		names:     names,
		upstreams: upstreams,
		strategy:  strategy,
		logger:    logger.With("component", "backend_pool", "strategy", strategy.Name()),
	}, nil
}

func (p *Pool) Complete(ctx context.Context, prompt Prompt) (Completion, error) {
	candidates := slices.Clone(p.names)
	var errs []error

	for len(candidates) > 0 {
		name := p.strategy.Next(candidates)
		out, err := p.call(ctx, name, prompt)
		if err == nil {
			return out, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", name, err))

		if ctx.Err() != nil {
			break
		}
		p.logger.Warn("upstream failed, trying next", "upstream", name, "error", err)
		candidates = slices.DeleteFunc(candidates, func(c string) bool { return c == name })
	}

	return Completion{}, errors.Join(errs...)
}

func (p *Pool) call(ctx context.Context, name string, prompt Prompt) (Completion, error) {
	if t, ok := p.strategy.(loadbalancer.Tracker); ok {
		t.Begin(name)
		defer t.Done(name)
	}
	return p.upstreams[name].Complete(ctx, prompt)
}

// Ping succeeds while any upstream answers
func (p *Pool) Ping(ctx context.Context) error {
	var errs []error
	for _, name := range p.names {
		pinger, ok := p.upstreams[name].(interface{ Ping(context.Context) error })
		if !ok {
			return nil
		}
		if err := pinger.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		return nil
	}
	return errors.Join(errs...)
}

func (p *Pool) Upstreams() []string {
	return slices.Clone(p.names)
}
