package providers

// OpenAI provider: commercial chat-completion API.
import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	openai "github.com/sashabaranov/go-openai"

	"github.com/Denis-Chistyakov/Medguide/internal/prompt"
	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

const defaultOpenAIModel = "gpt-4o-mini"

// OpenAIProvider calls the OpenAI chat completions API
type OpenAIProvider struct {
	client *openai.Client
	config types.OpenAIConfig
}

// NewOpenAIProvider creates a new OpenAI provider. An empty API key is allowed
// here and reported as a config_error before any network call.
func NewOpenAIProvider(cfg types.OpenAIConfig) *OpenAIProvider {
	if cfg.Model == "" {
		cfg.Model = defaultOpenAIModel
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	// Deadlines come from the caller's context
	clientCfg.HTTPClient = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        10,
			IdleConnTimeout:     30 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}

	log.Info().
		Str("model", cfg.Model).
		Bool("has_key", cfg.APIKey != "").
		Msg("OpenAI provider initialized")

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientCfg),
		config: cfg,
	}
}

// Kind returns the provider kind
func (p *OpenAIProvider) Kind() types.ProviderKind {
	return types.ProviderOpenAI
}

// Model returns the configured model
func (p *OpenAIProvider) Model() string {
	return p.config.Model
}

// Call sends the payload messages as a chat completion
func (p *OpenAIProvider) Call(ctx context.Context, payload *prompt.Payload) (*types.ProviderResult, error) {
	if p.config.APIKey == "" {
		return nil, NewFailure(types.ProviderOpenAI, KindConfigError, nil, "API key is not set")
	}

	params := mergeParams(payload.Params, p.config.Generation)
	messages := make([]openai.ChatCompletionMessage, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(m.Role),
			Content: m.Content,
		})
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       p.config.Model,
		Messages:    messages,
		MaxTokens:   params.MaxTokens,
		Temperature: params.Temperature,
		TopP:        params.TopP,
	})
	if err != nil {
		return nil, p.classify(ctx, err)
	}

	if len(resp.Choices) == 0 {
		return nil, NewFailure(types.ProviderOpenAI, KindParseError, nil, "no choices in response")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, NewFailure(types.ProviderOpenAI, KindParseError, nil, "empty message content")
	}

	raw, _ := json.Marshal(resp)

	return &types.ProviderResult{
		Text:             text,
		Provider:         types.ProviderOpenAI,
		IsAIGenerated:    true,
		GenerationTimeMs: time.Since(start).Milliseconds(),
		TokensUsed:       resp.Usage.TotalTokens,
		Model:            resp.Model,
		Language:         payload.Language,
		Raw:              raw,
	}, nil
}

// Probe makes a minimal 1-token completion
func (p *OpenAIProvider) Probe(ctx context.Context) error {
	if p.config.APIKey == "" {
		return NewFailure(types.ProviderOpenAI, KindConfigError, nil, "API key is not set")
	}

	_, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.config.Model,
		Messages:  []openai.ChatCompletionMessage{{Role: openai.ChatMessageRoleUser, Content: "ping"}},
		MaxTokens: 1,
	})
	if err != nil {
		return p.classify(ctx, err)
	}
	return nil
}

func (p *OpenAIProvider) classify(ctx context.Context, err error) *Failure {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return AsFailure(types.ProviderOpenAI, ctxErr(ctx, err))
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		f := NewFailure(types.ProviderOpenAI, KindHTTPError, err, "%s", apiErr.Message)
		f.Status = apiErr.HTTPStatusCode
		return f
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		f := NewFailure(types.ProviderOpenAI, KindHTTPError, err, "%v", reqErr.Err)
		f.Status = reqErr.HTTPStatusCode
		return f
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return NewFailure(types.ProviderOpenAI, KindParseError, err, "malformed response: %v", err)
	}

	return NewFailure(types.ProviderOpenAI, KindHTTPError, err, "%v", err)
}
