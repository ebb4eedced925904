// Package orchestrator tries providers in order under a per-provider time budget
// and falls back to static content when every provider fails.
package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Denis-Chistyakov/Medguide/internal/analytics"
	"github.com/Denis-Chistyakov/Medguide/internal/cache"
	"github.com/Denis-Chistyakov/Medguide/internal/prompt"
	"github.com/Denis-Chistyakov/Medguide/internal/router/providers"
	"github.com/Denis-Chistyakov/Medguide/internal/router/selection"
	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

const (
	DefaultTimeout  = 30 * time.Second
	DefaultCacheTTL = time.Hour
)

// HealthSource supplies last-known provider health
type HealthSource interface {
	Snapshot() map[types.ProviderKind]types.ProviderHealth
}

// Options configures ordering and time budgets
type Options struct {
	Priority       []types.ProviderKind
	Primary        types.ProviderKind
	Timeout        time.Duration // per provider attempt
	Tolerance      time.Duration
	WarmupRequests int
	CacheTTL       time.Duration
	StaleAfter     time.Duration // health older than this is ignored; 0 keeps all
}

// Orchestrator runs guidance and chat requests against the configured providers
type Orchestrator struct {
	clients   map[types.ProviderKind]providers.Client
	policy    selection.Policy
	cache     cache.Cache
	breakers  *providers.BreakerSet
	collector *analytics.Collector
	health    HealthSource

	timeout    time.Duration
	ttl        time.Duration
	staleAfter time.Duration
	warmup     int64
	calls      atomic.Int64
}

// New creates an orchestrator. A nil cache disables caching; nil breakers and
// collector disable circuit breaking and metrics.
func New(clients []providers.Client, opts Options, c cache.Cache, breakers *providers.BreakerSet, collector *analytics.Collector) *Orchestrator {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if c == nil {
		c = cache.Nop{}
	}

	registered := make(map[types.ProviderKind]providers.Client, len(clients))
	var fallbackOrder []types.ProviderKind
	for _, client := range clients {
		registered[client.Kind()] = client
		fallbackOrder = append(fallbackOrder, client.Kind())
	}

	priority := opts.Priority
	if len(priority) == 0 {
		priority = fallbackOrder
	}

	o := &Orchestrator{
		clients:    registered,
		policy:     selection.NewPolicy(opts.Primary, priority, opts.Tolerance),
		cache:      c,
		breakers:   breakers,
		collector:  collector,
		timeout:    opts.Timeout,
		ttl:        opts.CacheTTL,
		staleAfter: opts.StaleAfter,
		warmup:     int64(opts.WarmupRequests),
	}

	log.Info().
		Interface("priority", priority).
		Str("primary", string(o.policy.Primary)).
		Dur("timeout", o.timeout).
		Int("warmup_requests", opts.WarmupRequests).
		Msg("Orchestrator initialized")
	return o
}

// SetHealthSource attaches a health source used to reorder providers
func (o *Orchestrator) SetHealthSource(h HealthSource) {
	o.health = h
}

// Policy returns the selection policy in use
func (o *Orchestrator) Policy() selection.Policy {
	return o.policy
}

// call is one logical orchestration task
type call struct {
	kind       types.RequestKind
	normalized interface{}
	build      func(target types.ProviderKind) *prompt.Payload
	static     func() *types.ProviderResult
}

// Order returns the providers the next call would try, in order.
// It does not advance the warmup counter.
func (o *Orchestrator) Order() []types.ProviderKind {
	return o.order(false)
}

func (o *Orchestrator) order(count bool) []types.ProviderKind {
	order := o.policy.Order(o.snapshot())

	if o.warmup > 0 {
		n := o.calls.Load() + 1
		if count {
			n = o.calls.Add(1)
		}
		if n <= o.warmup {
			order = demote(order, o.policy.Primary)
		}
	}
	return order
}

// snapshot returns usable health; stale records count as unknown
func (o *Orchestrator) snapshot() map[types.ProviderKind]types.ProviderHealth {
	if o.health == nil {
		return nil
	}
	snap := o.health.Snapshot()
	if o.staleAfter <= 0 {
		return snap
	}
	now := time.Now()
	for kind, h := range snap {
		if now.Sub(h.LastCheckedAt) > o.staleAfter {
			delete(snap, kind)
		}
	}
	return snap
}

// demote moves kind to the end of order
func demote(order []types.ProviderKind, kind types.ProviderKind) []types.ProviderKind {
	out := make([]types.ProviderKind, 0, len(order))
	found := false
	for _, k := range order {
		if k == kind {
			found = true
			continue
		}
		out = append(out, k)
	}
	if found {
		out = append(out, kind)
	}
	return out
}

// orchestrate produces exactly one result and never fails
func (o *Orchestrator) orchestrate(ctx context.Context, c call) *types.ProviderResult {
	o.collector.StartOrchestration()
	defer o.collector.EndOrchestration()

	order := o.order(true)

	keys := make(map[types.ProviderKind]string, len(order))
	for _, kind := range order {
		keys[kind] = cache.Key(c.kind, kind, c.normalized)
	}

	if res := o.cached(ctx, order, keys); res != nil {
		return res
	}

	var attempts []types.Attempt
	for _, kind := range order {
		if ctx.Err() != nil {
			break
		}
		client, ok := o.clients[kind]
		if !ok {
			continue
		}

		payload := c.build(kind)
		start := time.Now()
		res, err := o.attempt(ctx, client, payload)
		elapsed := time.Since(start)

		if err == nil {
			if res.GenerationTimeMs == 0 {
				res.GenerationTimeMs = elapsed.Milliseconds()
			}
			o.collector.RecordAttempt(analytics.Attempt{Provider: kind, Kind: c.kind, Duration: elapsed, Tokens: res.TokensUsed})

			if err := o.cache.Put(ctx, keys[kind], res, o.ttl); err != nil {
				log.Debug().Err(err).Str("provider", string(kind)).Msg("Cache write failed")
			}

			res.Attempts = attempts
			log.Info().
				Str("provider", string(kind)).
				Str("kind", string(c.kind)).
				Int64("generation_ms", res.GenerationTimeMs).
				Int("failed_attempts", len(attempts)).
				Msg("Provider succeeded")
			return res
		}

		f := providers.AsFailure(kind, err)
		attempts = append(attempts, f.Attempt(elapsed.Milliseconds()))
		o.collector.RecordAttempt(analytics.Attempt{Provider: kind, Kind: c.kind, Duration: elapsed, Failure: string(f.Kind)})

		failureEvent(f).
			Str("provider", string(kind)).
			Str("kind", string(f.Kind)).
			Int("status", f.Status).
			Dur("elapsed", elapsed).
			Msg(f.Message)

		if f.Kind == providers.KindCanceled {
			break
		}
	}

	res := c.static()
	res.Attempts = attempts
	o.collector.RecordStaticFallback(c.kind)

	event := log.Warn()
	if ctx.Err() != nil {
		event = log.Info()
	}
	event.
		Str("kind", string(c.kind)).
		Int("attempts", len(attempts)).
		Bool("canceled", ctx.Err() != nil).
		Msg("All providers failed, using static content")
	return res
}

// failureEvent picks the log level for a provider failure
func failureEvent(f *providers.Failure) *zerolog.Event {
	if f.Expected() || f.Kind == providers.KindCanceled {
		return log.Info()
	}
	return log.Warn()
}

// cached returns the first live cache entry across providers in order.
// Cache errors count as misses.
func (o *Orchestrator) cached(ctx context.Context, order []types.ProviderKind, keys map[types.ProviderKind]string) *types.ProviderResult {
	for _, kind := range order {
		res, ok, err := o.cache.Get(ctx, keys[kind])
		if err != nil {
			o.collector.RecordCacheLookup(analytics.CacheError)
			log.Debug().Err(err).Str("provider", string(kind)).Msg("Cache read failed, treating as miss")
			continue
		}
		if ok && res != nil {
			o.collector.RecordCacheLookup(analytics.CacheHit)
			res.Cached = true
			res.Attempts = nil
			return res
		}
	}
	o.collector.RecordCacheLookup(analytics.CacheMiss)
	return nil
}

type outcome struct {
	res *types.ProviderResult
	err error
}

// attempt races one client call against the per-provider timeout. The call
// goroutine always has room to send, so it exits even when it loses the race.
func (o *Orchestrator) attempt(parent context.Context, client providers.Client, payload *prompt.Payload) (*types.ProviderResult, error) {
	kind := client.Kind()

	ctx, cancel := context.WithTimeout(parent, o.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: providers.NewFailure(kind, providers.KindHTTPError, nil, "provider panicked: %v", r)}
			}
		}()
		res, err := o.breakers.Execute(kind, func() (*types.ProviderResult, error) {
			return client.Call(ctx, payload)
		})
		done <- outcome{res: res, err: err}
	}()

	select {
	case out := <-done:
		if out.err == nil && out.res == nil {
			return nil, providers.NewFailure(kind, providers.KindParseError, nil, "provider returned no result")
		}
		if out.err != nil && parent.Err() != nil {
			return nil, providers.NewFailure(kind, providers.KindCanceled, parent.Err(), "request canceled")
		}
		return out.res, out.err
	case <-ctx.Done():
		if parent.Err() != nil {
			return nil, providers.NewFailure(kind, providers.KindCanceled, parent.Err(), "request canceled")
		}
		return nil, providers.NewFailure(kind, providers.KindTimeout, ctx.Err(), "no response within %s", o.timeout)
	}
}

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}
