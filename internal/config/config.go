// Package config loads medguide.yaml with environment overrides
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/Denis-Chistyakov/Medguide/internal/cache"
	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

// EnvPrefix prefixes every environment override (MEDGUIDE_SERVER_PORT, ...)
const EnvPrefix = "MEDGUIDE"

// setDefaults registers a default for every key so env overrides apply to all of them
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 60*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("providers.sagemaker.enabled", true)
	v.SetDefault("providers.sagemaker.endpoint_name", "")
	v.SetDefault("providers.sagemaker.region", "")
	v.SetDefault("providers.sagemaker.base_endpoint", "")
	v.SetDefault("providers.sagemaker.input_format", "inputs")
	v.SetDefault("providers.sagemaker.health_mode", "describe")
	v.SetDefault("providers.sagemaker.generation.max_tokens", 400)
	v.SetDefault("providers.sagemaker.generation.temperature", 0.3)
	v.SetDefault("providers.sagemaker.generation.top_p", 0.9)

	v.SetDefault("providers.openai.enabled", true)
	v.SetDefault("providers.openai.api_key", "")
	v.SetDefault("providers.openai.base_url", "")
	v.SetDefault("providers.openai.model", "gpt-4o-mini")
	v.SetDefault("providers.openai.generation.max_tokens", 400)
	v.SetDefault("providers.openai.generation.temperature", 0.3)
	v.SetDefault("providers.openai.generation.top_p", 0.9)

	v.SetDefault("orchestration.priority", []string{"sagemaker", "openai"})
	v.SetDefault("orchestration.primary", "sagemaker")
	v.SetDefault("orchestration.timeout", 30*time.Second)
	v.SetDefault("orchestration.latency_tolerance", time.Second)
	v.SetDefault("orchestration.warmup_requests", 0)
	v.SetDefault("orchestration.breaker.enabled", true)
	v.SetDefault("orchestration.breaker.min_requests", 5)
	v.SetDefault("orchestration.breaker.failure_ratio", 0.6)
	v.SetDefault("orchestration.breaker.interval", 30*time.Second)
	v.SetDefault("orchestration.breaker.open_timeout", 30*time.Second)

	v.SetDefault("cache.backend", cache.BackendMemory)
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.max_size", 1000)
	v.SetDefault("cache.sweep_interval", 5*time.Minute)
	v.SetDefault("cache.badger.path", "./data/cache")
	v.SetDefault("cache.badger.in_memory", false)
	v.SetDefault("cache.redis.addr", "localhost:6379")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.key_prefix", "medguide:cache:")

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.interval", 60*time.Second)
	v.SetDefault("monitor.timeout", 5*time.Second)

	v.SetDefault("analytics.enabled", true)

	v.SetDefault("observability.logging.level", "info")
	v.SetDefault("observability.logging.format", "console")
}

// Load reads configuration. An empty path searches ./configs, . and /etc/medguide
// for medguide.yaml; finding none is fine and leaves the defaults.
func Load(path string) (*types.Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("medguide")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/medguide")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		log.Debug().Msg("No config file found, using defaults")
	} else {
		log.Info().Str("config", v.ConfigFileUsed()).Msg("Configuration loaded")
	}

	var config types.Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvFallbacks(&config)
	if err := validate(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

// applyEnvFallbacks resolves credentials from the conventional variables
func applyEnvFallbacks(config *types.Config) {
	sm := &config.Providers.SageMaker
	oa := &config.Providers.OpenAI

	oa.APIKey = resolve(oa.APIKey, "OPENAI_API_KEY")
	sm.EndpointName = resolve(sm.EndpointName, "SAGEMAKER_ENDPOINT_NAME")
	sm.Region = resolve(sm.Region, "AWS_REGION", "AWS_DEFAULT_REGION")
}

// resolve expands ${VAR} placeholders and falls back to the first set variable
func resolve(value string, envs ...string) string {
	if strings.Contains(value, "${") {
		value = os.ExpandEnv(value)
	}
	if value != "" {
		return value
	}
	for _, env := range envs {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return ""
}

func validate(config *types.Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d", config.Server.Port)
	}

	switch config.Cache.Backend {
	case cache.BackendMemory, cache.BackendBadger, cache.BackendRedis, cache.BackendNone:
	default:
		return fmt.Errorf("invalid cache.backend: %s", config.Cache.Backend)
	}

	for _, name := range config.Orchestration.Priority {
		switch types.ProviderKind(name) {
		case types.ProviderSageMaker, types.ProviderOpenAI:
		default:
			return fmt.Errorf("invalid orchestration.priority entry: %s", name)
		}
	}

	// Health probes must never outlast a user-facing attempt
	if config.Monitor.Timeout >= config.Orchestration.Timeout {
		config.Monitor.Timeout = config.Orchestration.Timeout / 2
		log.Warn().
			Dur("timeout", config.Monitor.Timeout).
			Msg("monitor.timeout must be shorter than orchestration.timeout, clamped")
	}
	return nil
}
