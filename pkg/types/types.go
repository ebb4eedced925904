package types

// Package types provides shared type definitions for Medguide.
// Contains the request/result contracts used across the orchestration core.
import (
	"encoding/json"
	"time"
)

// Core Types

// DeviceType identifies a supported medical device
type DeviceType string

const (
	DeviceThermometer          DeviceType = "thermometer"
	DeviceBloodPressureMonitor DeviceType = "blood_pressure_monitor"
	DevicePulseOximeter        DeviceType = "pulse_oximeter"
	DeviceGlucoseMeter         DeviceType = "glucose_meter"
	DeviceNebulizer            DeviceType = "nebulizer"
)

// Language is a supported base language code
type Language string

const (
	LanguageEnglish    Language = "en"
	LanguageMandarin   Language = "zh"
	LanguageThai       Language = "th"
	LanguageTamil      Language = "ta"
	LanguageKhmer      Language = "km"
	LanguageLao        Language = "lo"
	LanguageBurmese    Language = "my"
	LanguageVietnamese Language = "vi"
	LanguageMalay      Language = "ms"
	LanguageIndonesian Language = "id"
	LanguageFilipino   Language = "tl"

	DefaultLanguage = LanguageEnglish
)

// SupportedLanguages lists every language the detector and prompt templates know
var SupportedLanguages = []Language{
	LanguageEnglish, LanguageMandarin, LanguageThai, LanguageTamil, LanguageKhmer, LanguageLao,
	LanguageBurmese, LanguageVietnamese, LanguageMalay, LanguageIndonesian, LanguageFilipino,
}

// IsSupported reports whether l is one of SupportedLanguages
func (l Language) IsSupported() bool {
	for _, s := range SupportedLanguages {
		if s == l {
			return true
		}
	}
	return false
}

// Style selects the tone of guidance instructions
type Style string

const (
	StyleDirect   Style = "direct"
	StyleGentle   Style = "gentle"
	StyleDetailed Style = "detailed"
)

// Valid reports whether s is a known style
func (s Style) Valid() bool {
	switch s {
	case StyleDirect, StyleGentle, StyleDetailed:
		return true
	}
	return false
}

// Role is a chat message author
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// RequestKind distinguishes guidance and chat orchestration
type RequestKind string

const (
	KindGuidance RequestKind = "guidance"
	KindChat     RequestKind = "chat"
)

// ProviderKind identifies where a result came from
type ProviderKind string

const (
	ProviderSageMaker ProviderKind = "sagemaker"
	ProviderOpenAI    ProviderKind = "openai"
	ProviderStatic    ProviderKind = "static"
)

// GuidanceRequest asks for instructions for one step of a device
type GuidanceRequest struct {
	DeviceType  DeviceType `json:"device_type"`
	StepNumber  int        `json:"step_number"`
	Language    Language   `json:"language"`
	Style       Style      `json:"style"`
	DeviceBrand string     `json:"device_brand,omitempty"`
	DeviceModel string     `json:"device_model,omitempty"`
}

// ChatMessage is one turn of a conversation
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest carries the conversation history; the last user message is the active question
type ChatRequest struct {
	Messages []ChatMessage `json:"messages"`
}

// ActiveQuestion returns the content of the last user message
func (r ChatRequest) ActiveQuestion() (string, bool) {
	for i := len(r.Messages) - 1; i >= 0; i-- {
		if r.Messages[i].Role == RoleUser {
			return r.Messages[i].Content, true
		}
	}
	return "", false
}

// Attempt records one failed provider attempt within an orchestration call
type Attempt struct {
	Provider   ProviderKind `json:"provider"`
	Kind       string       `json:"kind"`
	Status     int          `json:"status,omitempty"`
	Message    string       `json:"message"`
	DurationMs int64        `json:"duration_ms"`
}

// ProviderResult is the normalized result every provider produces
type ProviderResult struct {
	Text             string          `json:"text"`
	Provider         ProviderKind    `json:"provider"`
	IsAIGenerated    bool            `json:"is_ai_generated"`
	GenerationTimeMs int64           `json:"generation_time_ms"`
	TokensUsed       int             `json:"tokens_used,omitempty"`
	Model            string          `json:"model,omitempty"`
	Language         Language        `json:"language,omitempty"`
	Cached           bool            `json:"cached"`
	Raw              json.RawMessage `json:"raw,omitempty"`
	Attempts         []Attempt       `json:"attempts,omitempty"`
}

// Clone returns a copy that shares no slices with r
func (r *ProviderResult) Clone() *ProviderResult {
	if r == nil {
		return nil
	}
	c := *r
	if r.Raw != nil {
		c.Raw = append(json.RawMessage(nil), r.Raw...)
	}
	if r.Attempts != nil {
		c.Attempts = append([]Attempt(nil), r.Attempts...)
	}
	return &c
}

// ProviderHealth is the last-known availability and latency of a provider
type ProviderHealth struct {
	Provider       ProviderKind `json:"provider"`
	Available      bool         `json:"available"`
	LastCheckedAt  time.Time    `json:"last_checked_at"`
	ResponseTimeMs int64        `json:"response_time_ms"`
	Error          string       `json:"error,omitempty"`
}

// CacheEntry is a stored provider result with its expiry
type CacheEntry struct {
	Key       string          `json:"key"`
	Value     *ProviderResult `json:"value"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the entry must no longer be served at now
func (e *CacheEntry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Config Types

// Config represents the entire application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server" mapstructure:"server"`
	Providers     ProvidersConfig     `yaml:"providers" mapstructure:"providers"`
	Orchestration OrchestrationConfig `yaml:"orchestration" mapstructure:"orchestration"`
	Cache         CacheConfig         `yaml:"cache" mapstructure:"cache"`
	Monitor       MonitorConfig       `yaml:"monitor" mapstructure:"monitor"`
	Analytics     AnalyticsConfig     `yaml:"analytics" mapstructure:"analytics"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// ProvidersConfig holds the upstream provider settings
type ProvidersConfig struct {
	SageMaker SageMakerConfig `yaml:"sagemaker" mapstructure:"sagemaker"`
	OpenAI    OpenAIConfig    `yaml:"openai" mapstructure:"openai"`
}

// GenerationConfig holds sampling parameters shared by providers
type GenerationConfig struct {
	MaxTokens   int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float32 `yaml:"temperature" mapstructure:"temperature"`
	TopP        float32 `yaml:"top_p" mapstructure:"top_p"`
}

// SageMakerConfig represents the self-hosted model endpoint
type SageMakerConfig struct {
	Enabled      bool             `yaml:"enabled" mapstructure:"enabled"`
	EndpointName string           `yaml:"endpoint_name" mapstructure:"endpoint_name"`
	Region       string           `yaml:"region" mapstructure:"region"`
	BaseEndpoint string           `yaml:"base_endpoint" mapstructure:"base_endpoint"` // LocalStack and tests
	InputFormat  string           `yaml:"input_format" mapstructure:"input_format"`   // "inputs" or "messages"
	HealthMode   string           `yaml:"health_mode" mapstructure:"health_mode"`     // "describe" or "invoke"
	Generation   GenerationConfig `yaml:"generation" mapstructure:"generation"`
}

// OpenAIConfig represents the commercial chat-completion API
type OpenAIConfig struct {
	Enabled    bool             `yaml:"enabled" mapstructure:"enabled"`
	APIKey     string           `yaml:"api_key" mapstructure:"api_key"`
	BaseURL    string           `yaml:"base_url" mapstructure:"base_url"`
	Model      string           `yaml:"model" mapstructure:"model"`
	Generation GenerationConfig `yaml:"generation" mapstructure:"generation"`
}

// OrchestrationConfig controls provider order and time budgets
type OrchestrationConfig struct {
	Priority         []string      `yaml:"priority" mapstructure:"priority"`
	Primary          string        `yaml:"primary" mapstructure:"primary"`
	Timeout          time.Duration `yaml:"timeout" mapstructure:"timeout"`
	LatencyTolerance time.Duration `yaml:"latency_tolerance" mapstructure:"latency_tolerance"`
	WarmupRequests   int           `yaml:"warmup_requests" mapstructure:"warmup_requests"`
	Breaker          BreakerConfig `yaml:"breaker" mapstructure:"breaker"`
}

// BreakerConfig configures per-provider circuit breakers
type BreakerConfig struct {
	Enabled      bool          `yaml:"enabled" mapstructure:"enabled"`
	MinRequests  uint32        `yaml:"min_requests" mapstructure:"min_requests"`
	FailureRatio float64       `yaml:"failure_ratio" mapstructure:"failure_ratio"`
	Interval     time.Duration `yaml:"interval" mapstructure:"interval"`
	OpenTimeout  time.Duration `yaml:"open_timeout" mapstructure:"open_timeout"`
}

// CacheConfig represents response cache configuration
type CacheConfig struct {
	Backend       string        `yaml:"backend" mapstructure:"backend"` // "memory", "badger", "redis", "none"
	TTL           time.Duration `yaml:"ttl" mapstructure:"ttl"`
	MaxSize       int           `yaml:"max_size" mapstructure:"max_size"`
	SweepInterval time.Duration `yaml:"sweep_interval" mapstructure:"sweep_interval"`
	Badger        BadgerConfig  `yaml:"badger" mapstructure:"badger"`
	Redis         RedisConfig   `yaml:"redis" mapstructure:"redis"`
}

// BadgerConfig represents BadgerDB configuration
type BadgerConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	InMemory bool   `yaml:"in_memory" mapstructure:"in_memory"`
}

// RedisConfig represents the shared cache connection
type RedisConfig struct {
	Addr      string `yaml:"addr" mapstructure:"addr"`
	Password  string `yaml:"password" mapstructure:"password"`
	DB        int    `yaml:"db" mapstructure:"db"`
	KeyPrefix string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// MonitorConfig controls provider health probing
type MonitorConfig struct {
	Enabled  bool          `yaml:"enabled" mapstructure:"enabled"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
	Timeout  time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// AnalyticsConfig represents analytics configuration
type AnalyticsConfig struct {
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
}

// ObservabilityConfig represents observability configuration
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}
