package providers

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

// BreakerSet manages one circuit breaker per provider
type BreakerSet struct {
	mu       sync.RWMutex
	breakers map[types.ProviderKind]*gobreaker.CircuitBreaker
	config   types.BreakerConfig
}

// NewBreakerSet creates a breaker set; a disabled config yields a pass-through set
func NewBreakerSet(cfg types.BreakerConfig) *BreakerSet {
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 5
	}
	if cfg.FailureRatio <= 0 {
		cfg.FailureRatio = 0.6
	}
	if cfg.Interval == 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	return &BreakerSet{
		breakers: make(map[types.ProviderKind]*gobreaker.CircuitBreaker),
		config:   cfg,
	}
}

// get returns or creates the breaker for a provider
func (s *BreakerSet) get(kind types.ProviderKind) *gobreaker.CircuitBreaker {
	s.mu.RLock()
	if b, ok := s.breakers[kind]; ok {
		s.mu.RUnlock()
		return b
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if b, ok := s.breakers[kind]; ok {
		return b
	}

	minRequests := s.config.MinRequests
	ratio := s.config.FailureRatio
	b := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(kind),
		MaxRequests: 1,
		Interval:    s.config.Interval,
		Timeout:     s.config.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= minRequests && failureRatio >= ratio
		},
		// Missing credentials and provisioning endpoints say nothing about upstream health
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			var f *Failure
			return errors.As(err, &f) && (f.Expected() || f.Kind == KindCanceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
	s.breakers[kind] = b
	return b
}

// Execute runs fn behind the provider's breaker. When the breaker rejects the
// call a circuit_open Failure is returned and fn is not invoked.
func (s *BreakerSet) Execute(kind types.ProviderKind, fn func() (*types.ProviderResult, error)) (*types.ProviderResult, error) {
	if s == nil || !s.config.Enabled {
		return fn()
	}

	out, err := s.get(kind).Execute(func() (interface{}, error) {
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, NewFailure(kind, KindCircuitOpen, err, "circuit breaker is %s", s.State(kind))
		}
		return nil, AsFailure(kind, err)
	}

	res, _ := out.(*types.ProviderResult)
	return res, nil
}

// State returns the breaker state of a provider
func (s *BreakerSet) State(kind types.ProviderKind) gobreaker.State {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if b, ok := s.breakers[kind]; ok {
		return b.State()
	}
	return gobreaker.StateClosed
}

// Metrics returns counters for every breaker
func (s *BreakerSet) Metrics() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	metrics := make(map[string]interface{})
	for kind, b := range s.breakers {
		counts := b.Counts()
		metrics[string(kind)] = map[string]interface{}{
			"state":                b.State().String(),
			"requests":             counts.Requests,
			"total_failures":       counts.TotalFailures,
			"consecutive_failures": counts.ConsecutiveFailures,
		}
	}
	return metrics
}
