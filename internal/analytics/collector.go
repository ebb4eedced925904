package analytics

// Package analytics records provider attempts, cache lookups and fallbacks.
// Exposes Prometheus metrics and an in-memory summary for the /stats endpoint.

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

// Cache lookup results
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// Collector handles analytics collection and metrics
type Collector struct {
	// Prometheus metrics
	attempts        *prometheus.CounterVec
	failures        *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	cacheLookups    *prometheus.CounterVec
	staticFallbacks *prometheus.CounterVec
	available       *prometheus.GaugeVec
	active          prometheus.Gauge

	// In-memory stats
	stats     *Stats
	successes map[string]int64
	mu        sync.RWMutex
	enabled   bool
}

// Stats holds aggregated statistics
type Stats struct {
	TotalAttempts      int64            `json:"total_attempts"`
	TotalFailures      int64            `json:"total_failures"`
	TotalTokens        int64            `json:"total_tokens"`
	CacheHits          int64            `json:"cache_hits"`
	CacheMisses        int64            `json:"cache_misses"`
	StaticFallbacks    int64            `json:"static_fallbacks"`
	AvgLatencyMs       float64          `json:"avg_latency_ms"`
	TopProviders       []ProviderStats  `json:"top_providers"`
	AttemptsByProvider map[string]int64 `json:"attempts_by_provider"`
	FailuresByKind     map[string]int64 `json:"failures_by_kind"`
	lastUpdate         time.Time
}

// ProviderStats represents provider-level statistics
type ProviderStats struct {
	Provider  string `json:"provider"`
	Successes int64  `json:"successes"`
}

// Attempt describes one finished provider call
type Attempt struct {
	Provider types.ProviderKind
	Kind     types.RequestKind
	Duration time.Duration
	Tokens   int
	Failure  string // empty on success
}

func newStats() *Stats {
	return &Stats{
		AttemptsByProvider: make(map[string]int64),
		FailuresByKind:     make(map[string]int64),
		TopProviders:       []ProviderStats{},
		lastUpdate:         time.Now(),
	}
}

// NewCollector creates a new analytics collector. A nil registerer uses the
// Prometheus default registry.
func NewCollector(enabled bool, reg prometheus.Registerer) *Collector {
	collector := &Collector{
		enabled:   enabled,
		stats:     newStats(),
		successes: make(map[string]int64),
	}

	if !enabled {
		log.Info().Msg("Analytics collector disabled")
		return collector
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	collector.attempts = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medguide_provider_attempts_total",
			Help: "Total number of provider attempts",
		},
		[]string{"provider", "kind", "outcome"},
	))

	collector.failures = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medguide_provider_failures_total",
			Help: "Provider failures by failure kind",
		},
		[]string{"provider", "failure"},
	))

	collector.latency = register(reg, prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "medguide_provider_latency_seconds",
			Help:    "Provider call latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	))

	collector.cacheLookups = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medguide_cache_lookups_total",
			Help: "Response cache lookups by result",
		},
		[]string{"result"},
	))

	collector.staticFallbacks = register(reg, prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "medguide_static_fallbacks_total",
			Help: "Requests answered from static content",
		},
		[]string{"kind"},
	))

	collector.available = register(reg, prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "medguide_provider_available",
			Help: "Last probed availability per provider (1 available, 0 unavailable)",
		},
		[]string{"provider"},
	))

	collector.active = register(reg, prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "medguide_active_orchestrations",
			Help: "Number of orchestration calls in flight",
		},
	))

	log.Info().Bool("enabled", enabled).Msg("Analytics collector initialized")
	return collector
}

// register adds c to reg, reusing an identical collector that is already registered
func register[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing
			}
		}
		log.Warn().Err(err).Msg("Failed to register metric")
	}
	return c
}

// RecordAttempt records one provider call
func (c *Collector) RecordAttempt(a Attempt) {
	if c == nil || !c.enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	latencyMs := a.Duration.Milliseconds()
	provider := string(a.Provider)

	c.stats.TotalAttempts++
	c.stats.AttemptsByProvider[provider]++
	c.stats.TotalTokens += int64(a.Tokens)
	if a.Failure != "" {
		c.stats.TotalFailures++
		c.stats.FailuresByKind[a.Failure]++
	} else {
		c.successes[provider]++
	}

	// Running average
	c.stats.AvgLatencyMs = (c.stats.AvgLatencyMs*float64(c.stats.TotalAttempts-1) + float64(latencyMs)) / float64(c.stats.TotalAttempts)
	c.stats.lastUpdate = time.Now()

	outcome := "success"
	if a.Failure != "" {
		outcome = "failure"
		c.failures.WithLabelValues(provider, a.Failure).Inc()
	}
	c.attempts.WithLabelValues(provider, string(a.Kind), outcome).Inc()
	c.latency.WithLabelValues(provider).Observe(a.Duration.Seconds())

	log.Debug().
		Str("provider", provider).
		Str("kind", string(a.Kind)).
		Int64("latency_ms", latencyMs).
		Str("outcome", outcome).
		Msg("Provider attempt recorded")
}

// RecordCacheLookup records a cache hit, miss or error
func (c *Collector) RecordCacheLookup(result string) {
	if c == nil || !c.enabled {
		return
	}

	c.mu.Lock()
	switch result {
	case CacheHit:
		c.stats.CacheHits++
	case CacheMiss, CacheError:
		c.stats.CacheMisses++
	}
	c.mu.Unlock()

	c.cacheLookups.WithLabelValues(result).Inc()
}

// RecordStaticFallback records a request answered from static content
func (c *Collector) RecordStaticFallback(kind types.RequestKind) {
	if c == nil || !c.enabled {
		return
	}

	c.mu.Lock()
	c.stats.StaticFallbacks++
	c.mu.Unlock()

	c.staticFallbacks.WithLabelValues(string(kind)).Inc()
}

// SetAvailable publishes the last probed availability of a provider
func (c *Collector) SetAvailable(provider types.ProviderKind, available bool) {
	if c == nil || !c.enabled {
		return
	}
	v := 0.0
	if available {
		v = 1
	}
	c.available.WithLabelValues(string(provider)).Set(v)
}

// StartOrchestration increments the in-flight gauge
func (c *Collector) StartOrchestration() {
	if c == nil || !c.enabled {
		return
	}
	c.active.Inc()
}

// EndOrchestration decrements the in-flight gauge
func (c *Collector) EndOrchestration() {
	if c == nil || !c.enabled {
		return
	}
	c.active.Dec()
}

// GetStats returns current statistics
func (c *Collector) GetStats() *Stats {
	if c == nil {
		return newStats()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	statsCopy := &Stats{
		TotalAttempts:      c.stats.TotalAttempts,
		TotalFailures:      c.stats.TotalFailures,
		TotalTokens:        c.stats.TotalTokens,
		CacheHits:          c.stats.CacheHits,
		CacheMisses:        c.stats.CacheMisses,
		StaticFallbacks:    c.stats.StaticFallbacks,
		AvgLatencyMs:       c.stats.AvgLatencyMs,
		AttemptsByProvider: make(map[string]int64, len(c.stats.AttemptsByProvider)),
		FailuresByKind:     make(map[string]int64, len(c.stats.FailuresByKind)),
		lastUpdate:         c.stats.lastUpdate,
	}

	for k, v := range c.stats.AttemptsByProvider {
		statsCopy.AttemptsByProvider[k] = v
	}
	for k, v := range c.stats.FailuresByKind {
		statsCopy.FailuresByKind[k] = v
	}

	statsCopy.TopProviders = c.computeTopProviders()
	return statsCopy
}

// computeTopProviders orders providers by successful attempts
func (c *Collector) computeTopProviders() []ProviderStats {
	providers := make([]ProviderStats, 0, len(c.successes))
	for provider, n := range c.successes {
		providers = append(providers, ProviderStats{Provider: provider, Successes: n})
	}

	sort.Slice(providers, func(i, j int) bool {
		if providers[i].Successes != providers[j].Successes {
			return providers[i].Successes > providers[j].Successes
		}
		return providers[i].Provider < providers[j].Provider
	})
	return providers
}

// Reset resets all statistics
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stats = newStats()
	c.successes = make(map[string]int64)
	log.Info().Msg("Analytics statistics reset")
}
