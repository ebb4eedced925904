package providers

// SageMaker provider: invokes a self-hosted model behind a managed inference endpoint.
import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sagemaker"
	smtypes "github.com/aws/aws-sdk-go-v2/service/sagemaker/types"
	"github.com/aws/aws-sdk-go-v2/service/sagemakerruntime"
	rttypes "github.com/aws/aws-sdk-go-v2/service/sagemakerruntime/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"

	"github.com/Denis-Chistyakov/Medguide/internal/prompt"
	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

const (
	InputFormatInputs   = "inputs"
	InputFormatMessages = "messages"

	HealthModeDescribe = "describe"
	HealthModeInvoke   = "invoke"
)

// endpointInvoker is the subset of the SageMaker runtime client we use
type endpointInvoker interface {
	InvokeEndpoint(ctx context.Context, params *sagemakerruntime.InvokeEndpointInput, optFns ...func(*sagemakerruntime.Options)) (*sagemakerruntime.InvokeEndpointOutput, error)
}

// endpointDescriber is the subset of the SageMaker control-plane client we use
type endpointDescriber interface {
	DescribeEndpoint(ctx context.Context, params *sagemaker.DescribeEndpointInput, optFns ...func(*sagemaker.Options)) (*sagemaker.DescribeEndpointOutput, error)
}

// SageMakerProvider calls a model hosted on a SageMaker endpoint
type SageMakerProvider struct {
	config    types.SageMakerConfig
	runtime   endpointInvoker
	control   endpointDescriber
	configErr error
}

// sageMakerRequest is the body sent to the endpoint
type sageMakerRequest struct {
	Inputs     string                 `json:"inputs,omitempty"`
	Messages   []types.ChatMessage    `json:"messages,omitempty"`
	Parameters map[string]interface{} `json:"parameters"`
}

// credentialsTimeout bounds the one-time credential resolution at startup
const credentialsTimeout = 5 * time.Second

// NewSageMakerProvider creates a SageMaker provider using the default AWS credential chain.
// Configuration problems are reported as config_error failures on Call, never here.
func NewSageMakerProvider(ctx context.Context, cfg types.SageMakerConfig) *SageMakerProvider {
	cfg = sageMakerDefaults(cfg)
	if cfg.Region == "" {
		return &SageMakerProvider{config: cfg, configErr: fmt.Errorf("region is not set")}
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return &SageMakerProvider{config: cfg, configErr: fmt.Errorf("failed to load AWS config: %w", err)}
	}
	return newSageMakerProviderFromConfig(ctx, cfg, awsCfg)
}

// newSageMakerProviderFromConfig resolves credentials once and builds the clients
func newSageMakerProviderFromConfig(ctx context.Context, cfg types.SageMakerConfig, awsCfg aws.Config) *SageMakerProvider {
	cfg = sageMakerDefaults(cfg)
	p := &SageMakerProvider{config: cfg}

	if awsCfg.Credentials == nil {
		p.configErr = fmt.Errorf("no AWS credentials provider configured")
		return p
	}
	credCtx, cancel := context.WithTimeout(ctx, credentialsTimeout)
	defer cancel()
	if _, err := awsCfg.Credentials.Retrieve(credCtx); err != nil {
		p.configErr = fmt.Errorf("failed to resolve AWS credentials: %w", err)
		log.Warn().Err(err).Str("region", cfg.Region).Msg("SageMaker provider has no usable credentials")
		return p
	}

	p.runtime = sagemakerruntime.NewFromConfig(awsCfg, func(o *sagemakerruntime.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
	})
	p.control = sagemaker.NewFromConfig(awsCfg, func(o *sagemaker.Options) {
		if cfg.BaseEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.BaseEndpoint)
		}
	})

	log.Info().
		Str("endpoint", cfg.EndpointName).
		Str("region", cfg.Region).
		Str("input_format", cfg.InputFormat).
		Msg("SageMaker provider initialized")

	return p
}

// newSageMakerProviderWithClients wires explicit clients (tests)
func newSageMakerProviderWithClients(cfg types.SageMakerConfig, runtime endpointInvoker, control endpointDescriber) *SageMakerProvider {
	return &SageMakerProvider{
		config:  sageMakerDefaults(cfg),
		runtime: runtime,
		control: control,
	}
}

func sageMakerDefaults(cfg types.SageMakerConfig) types.SageMakerConfig {
	if cfg.InputFormat == "" {
		cfg.InputFormat = InputFormatInputs
	}
	if cfg.HealthMode == "" {
		cfg.HealthMode = HealthModeDescribe
	}
	return cfg
}

// Kind returns the provider kind
func (p *SageMakerProvider) Kind() types.ProviderKind {
	return types.ProviderSageMaker
}

func (p *SageMakerProvider) ready() *Failure {
	if p.configErr != nil {
		return NewFailure(types.ProviderSageMaker, KindConfigError, p.configErr, "%v", p.configErr)
	}
	if p.config.EndpointName == "" {
		return NewFailure(types.ProviderSageMaker, KindConfigError, nil, "endpoint name is not set")
	}
	if p.runtime == nil {
		return NewFailure(types.ProviderSageMaker, KindConfigError, nil, "runtime client is not configured")
	}
	return nil
}

// Call invokes the endpoint with the rendered payload
func (p *SageMakerProvider) Call(ctx context.Context, payload *prompt.Payload) (*types.ProviderResult, error) {
	if f := p.ready(); f != nil {
		return nil, f
	}

	params := mergeParams(payload.Params, p.config.Generation)
	body, err := json.Marshal(p.buildRequest(payload, params))
	if err != nil {
		return nil, NewFailure(types.ProviderSageMaker, KindConfigError, err, "failed to marshal request: %v", err)
	}

	start := time.Now()
	out, err := p.runtime.InvokeEndpoint(ctx, &sagemakerruntime.InvokeEndpointInput{
		EndpointName: aws.String(p.config.EndpointName),
		ContentType:  aws.String("application/json"),
		Accept:       aws.String("application/json"),
		Body:         body,
	})
	if err != nil {
		return nil, p.classify(ctx, err)
	}

	ext, err := extractResponse(out.Body)
	if err != nil {
		return nil, NewFailure(types.ProviderSageMaker, KindParseError, err, "%v", err)
	}

	log.Debug().
		Str("endpoint", p.config.EndpointName).
		Str("shape", ext.Shape).
		Dur("duration", time.Since(start)).
		Msg("SageMaker response extracted")

	return &types.ProviderResult{
		Text:             ext.Text,
		Provider:         types.ProviderSageMaker,
		IsAIGenerated:    true,
		GenerationTimeMs: time.Since(start).Milliseconds(),
		TokensUsed:       ext.Tokens,
		Model:            p.config.EndpointName,
		Language:         payload.Language,
		Raw:              json.RawMessage(out.Body),
	}, nil
}

func (p *SageMakerProvider) buildRequest(payload *prompt.Payload, params prompt.Params) sageMakerRequest {
	if p.config.InputFormat == InputFormatMessages {
		return sageMakerRequest{
			Messages: payload.Messages,
			Parameters: map[string]interface{}{
				"max_tokens":  params.MaxTokens,
				"temperature": params.Temperature,
				"top_p":       params.TopP,
			},
		}
	}

	text := payload.Prompt
	if text == "" {
		text = prompt.Flatten(payload.Messages)
	}
	return sageMakerRequest{
		Inputs: text,
		Parameters: map[string]interface{}{
			"max_new_tokens": params.MaxTokens,
			"temperature":    params.Temperature,
			"top_p":          params.TopP,
		},
	}
}

// Probe reports whether the endpoint is in service
func (p *SageMakerProvider) Probe(ctx context.Context) error {
	if f := p.ready(); f != nil {
		return f
	}

	if p.config.HealthMode == HealthModeInvoke || p.control == nil {
		body, _ := json.Marshal(sageMakerRequest{
			Inputs:     "ping",
			Parameters: map[string]interface{}{"max_new_tokens": 1},
		})
		_, err := p.runtime.InvokeEndpoint(ctx, &sagemakerruntime.InvokeEndpointInput{
			EndpointName: aws.String(p.config.EndpointName),
			ContentType:  aws.String("application/json"),
			Body:         body,
		})
		if err != nil {
			return p.classify(ctx, err)
		}
		return nil
	}

	out, err := p.control.DescribeEndpoint(ctx, &sagemaker.DescribeEndpointInput{
		EndpointName: aws.String(p.config.EndpointName),
	})
	if err != nil {
		return p.classify(ctx, err)
	}
	if out.EndpointStatus != smtypes.EndpointStatusInService {
		return NewFailure(types.ProviderSageMaker, KindNotReady, nil, "endpoint status is %s", out.EndpointStatus)
	}
	return nil
}

// classify converts an AWS SDK error into a Failure
func (p *SageMakerProvider) classify(ctx context.Context, err error) *Failure {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return AsFailure(types.ProviderSageMaker, ctxErr(ctx, err))
	}

	var notReady *rttypes.ModelNotReadyException
	if errors.As(err, &notReady) {
		return NewFailure(types.ProviderSageMaker, KindNotReady, err, "model is not ready: %s", notReady.ErrorMessage())
	}

	var modelErr *rttypes.ModelError
	if errors.As(err, &modelErr) {
		f := NewFailure(types.ProviderSageMaker, KindHTTPError, err, "model error: %s", modelErr.ErrorMessage())
		if modelErr.OriginalStatusCode != nil {
			f.Status = int(*modelErr.OriginalStatusCode)
		}
		return f
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ValidationError" && endpointMissing(apiErr.ErrorMessage()) {
		return NewFailure(types.ProviderSageMaker, KindNotReady, err, "endpoint is not in service: %s", apiErr.ErrorMessage())
	}

	f := NewFailure(types.ProviderSageMaker, KindHTTPError, err, "%v", err)
	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		f.Status = respErr.HTTPStatusCode()
	}
	return f
}

func endpointMissing(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "not found") ||
		strings.Contains(msg, "not in service") ||
		strings.Contains(msg, "inservice")
}

// ctxErr prefers the context's own error so timeouts are classified consistently
func ctxErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}
