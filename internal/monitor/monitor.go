// Package monitor probes providers in the background and keeps their last-known health
package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Denis-Chistyakov/Medguide/internal/analytics"
	"github.com/Denis-Chistyakov/Medguide/internal/router/providers"
	"github.com/Denis-Chistyakov/Medguide/internal/router/selection"
	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

const (
	DefaultInterval = 60 * time.Second
	DefaultTimeout  = 5 * time.Second
)

// Monitor owns the provider health map; nothing else writes to it
type Monitor struct {
	clients   map[types.ProviderKind]providers.Client
	order     []types.ProviderKind
	policy    selection.Policy
	collector *analytics.Collector
	interval  time.Duration
	timeout   time.Duration

	mu     sync.RWMutex
	health map[types.ProviderKind]types.ProviderHealth

	runMu   sync.Mutex // guards cancel across Start and Stop
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running atomic.Bool
	now     func() time.Time
}

// New creates a monitor for the given clients
func New(clients []providers.Client, policy selection.Policy, cfg types.MonitorConfig, collector *analytics.Collector) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}

	m := &Monitor{
		clients:   make(map[types.ProviderKind]providers.Client, len(clients)),
		policy:    policy,
		collector: collector,
		interval:  cfg.Interval,
		timeout:   cfg.Timeout,
		health:    make(map[types.ProviderKind]types.ProviderHealth),
		now:       time.Now,
	}
	for _, c := range clients {
		if _, dup := m.clients[c.Kind()]; dup {
			continue
		}
		m.clients[c.Kind()] = c
		m.order = append(m.order, c.Kind())
	}
	return m
}

// CheckHealth probes one provider under the monitor timeout and records the result.
// Probe failures become Available=false records.
func (m *Monitor) CheckHealth(ctx context.Context, kind types.ProviderKind) types.ProviderHealth {
	h := types.ProviderHealth{Provider: kind}

	client, ok := m.clients[kind]
	if !ok {
		h.LastCheckedAt = m.now()
		h.Error = fmt.Sprintf("unknown provider: %s", kind)
		return h
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := m.now()
	err := probe(ctx, client)
	h.LastCheckedAt = m.now()
	h.ResponseTimeMs = h.LastCheckedAt.Sub(start).Milliseconds()

	if err != nil {
		h.Error = err.Error()
		f := providers.AsFailure(kind, err)
		event := log.Warn()
		if f.Expected() {
			event = log.Info()
		}
		event.Str("provider", string(kind)).Str("kind", string(f.Kind)).Msg("Provider health check failed")
	} else {
		h.Available = true
	}

	m.mu.Lock()
	m.health[kind] = h
	m.mu.Unlock()

	m.collector.SetAvailable(kind, h.Available)
	return h
}

// probe runs the client probe, converting a panic into a failure so one
// provider cannot take the monitor down
func probe(ctx context.Context, client providers.Client) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = providers.NewFailure(client.Kind(), providers.KindHTTPError, nil, "probe panicked: %v", r)
		}
	}()
	return client.Probe(ctx)
}

// CheckAll probes every provider concurrently
func (m *Monitor) CheckAll(ctx context.Context) map[types.ProviderKind]types.ProviderHealth {
	var wg sync.WaitGroup
	for _, kind := range m.order {
		wg.Add(1)
		go func(kind types.ProviderKind) {
			defer wg.Done()
			m.CheckHealth(ctx, kind)
		}(kind)
	}
	wg.Wait()

	snap := m.Snapshot()
	log.Debug().
		Str("recommended", string(m.policy.Recommend(snap))).
		Int("providers", len(snap)).
		Msg("Provider health refreshed")
	return snap
}

// Start runs a check immediately and then on every interval until Stop or ctx ends
func (m *Monitor) Start(ctx context.Context) error {
	m.runMu.Lock()
	defer m.runMu.Unlock()

	if !m.running.CompareAndSwap(false, true) {
		return fmt.Errorf("monitor already running")
	}

	ctx, m.cancel = context.WithCancel(ctx)

	m.wg.Add(1)
	go m.loop(ctx)

	log.Info().
		Dur("interval", m.interval).
		Dur("timeout", m.timeout).
		Int("providers", len(m.order)).
		Msg("Status monitor started")
	return nil
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()

	m.CheckAll(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.CheckAll(ctx)
		}
	}
}

// Stop stops the loop and waits for an in-flight check to finish
func (m *Monitor) Stop() {
	m.runMu.Lock()
	if !m.running.CompareAndSwap(true, false) {
		m.runMu.Unlock()
		return
	}
	cancel := m.cancel
	m.runMu.Unlock()

	cancel()
	m.wg.Wait()
	log.Info().Msg("Status monitor stopped")
}

// Snapshot returns a copy of the health map
func (m *Monitor) Snapshot() map[types.ProviderKind]types.ProviderHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := make(map[types.ProviderKind]types.ProviderHealth, len(m.health))
	for k, v := range m.health {
		snap[k] = v
	}
	return snap
}

// List returns the last-known health in provider registration order
func (m *Monitor) List() []types.ProviderHealth {
	snap := m.Snapshot()
	list := make([]types.ProviderHealth, 0, len(snap))
	for _, kind := range m.order {
		if h, ok := snap[kind]; ok {
			list = append(list, h)
		}
	}
	return list
}

// Recommend returns the provider the selection policy prefers right now
func (m *Monitor) Recommend() types.ProviderKind {
	return m.policy.Recommend(m.Snapshot())
}
