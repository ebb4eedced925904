// Package app wires configuration into the running components
package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Denis-Chistyakov/Medguide/internal/analytics"
	"github.com/Denis-Chistyakov/Medguide/internal/cache"
	"github.com/Denis-Chistyakov/Medguide/internal/monitor"
	"github.com/Denis-Chistyakov/Medguide/internal/orchestrator"
	"github.com/Denis-Chistyakov/Medguide/internal/router/providers"
	"github.com/Denis-Chistyakov/Medguide/internal/router/selection"
	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

// healthStaleFactor multiplies the probe interval to get the health expiry
const healthStaleFactor = 3

// App holds the wired components
type App struct {
	Config       *types.Config
	Clients      []providers.Client
	Cache        cache.Cache
	Breakers     *providers.BreakerSet
	Collector    *analytics.Collector
	Orchestrator *orchestrator.Orchestrator
	Monitor      *monitor.Monitor // nil when monitor.enabled is false
}

// SetupLogging configures the global zerolog logger
func SetupLogging(cfg types.LoggingConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if strings.EqualFold(cfg.Format, "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// New builds every component from cfg using the default Prometheus registry
func New(ctx context.Context, cfg *types.Config) (*App, error) {
	return build(ctx, cfg, prometheus.DefaultRegisterer)
}

func build(ctx context.Context, cfg *types.Config, reg prometheus.Registerer) (*App, error) {
	clients := buildClients(ctx, cfg.Providers)
	if len(clients) == 0 {
		log.Warn().Msg("No providers enabled, every request will use static content")
	}

	c, err := cache.New(cfg.Cache)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	log.Info().Str("backend", cfg.Cache.Backend).Dur("ttl", cfg.Cache.TTL).Msg("Response cache initialized")

	collector := analytics.NewCollector(cfg.Analytics.Enabled, reg)

	breakers := providers.NewBreakerSet(cfg.Orchestration.Breaker)

	opts := orchestrator.Options{
		Priority:       selection.ParseKinds(cfg.Orchestration.Priority),
		Primary:        types.ProviderKind(cfg.Orchestration.Primary),
		Timeout:        cfg.Orchestration.Timeout,
		Tolerance:      cfg.Orchestration.LatencyTolerance,
		WarmupRequests: cfg.Orchestration.WarmupRequests,
		CacheTTL:       cfg.Cache.TTL,
	}

	a := &App{
		Config:    cfg,
		Clients:   clients,
		Cache:     c,
		Breakers:  breakers,
		Collector: collector,
	}

	if cfg.Monitor.Enabled {
		interval := cfg.Monitor.Interval
		if interval <= 0 {
			interval = monitor.DefaultInterval
		}
		opts.StaleAfter = healthStaleFactor * interval
	}

	a.Orchestrator = orchestrator.New(clients, opts, c, breakers, collector)

	if cfg.Monitor.Enabled {
		a.Monitor = monitor.New(clients, a.Orchestrator.Policy(), cfg.Monitor, collector)
		a.Orchestrator.SetHealthSource(a.Monitor)
	}

	return a, nil
}

// buildClients creates a client per enabled provider in configuration order
func buildClients(ctx context.Context, cfg types.ProvidersConfig) []providers.Client {
	var clients []providers.Client
	if cfg.SageMaker.Enabled {
		clients = append(clients, providers.NewSageMakerProvider(ctx, cfg.SageMaker))
	}
	if cfg.OpenAI.Enabled {
		clients = append(clients, providers.NewOpenAIProvider(cfg.OpenAI))
	}
	return clients
}

// Close stops the monitor and releases the cache
func (a *App) Close() error {
	var errs []error
	if a.Monitor != nil {
		a.Monitor.Stop()
	}
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("cache close: %w", err))
		}
	}
	return errors.Join(errs...)
}
