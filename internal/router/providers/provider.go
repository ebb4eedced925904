package providers

// Package providers implements the upstream LLM clients behind one interface.
// Every client normalizes its own response envelope into types.ProviderResult.
import (
	"context"

	"github.com/Denis-Chistyakov/Medguide/internal/prompt"
	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

// Client is a single upstream provider.
// Call never panics and every returned error is a *Failure. The per-provider
// timeout is the deadline carried by ctx.
type Client interface {
	Kind() types.ProviderKind
	Call(ctx context.Context, payload *prompt.Payload) (*types.ProviderResult, error)
	// Probe is a lightweight availability check used by the status monitor
	Probe(ctx context.Context) error
}

// mergeParams overlays configured generation settings on the payload defaults
func mergeParams(p prompt.Params, cfg types.GenerationConfig) prompt.Params {
	if cfg.MaxTokens > 0 {
		p.MaxTokens = cfg.MaxTokens
	}
	if cfg.Temperature > 0 {
		p.Temperature = cfg.Temperature
	}
	if cfg.TopP > 0 {
		p.TopP = cfg.TopP
	}
	return p
}
