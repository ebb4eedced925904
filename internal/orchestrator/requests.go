package orchestrator

import (
	"context"
	"strings"

	"github.com/Denis-Chistyakov/Medguide/internal/cache"
	"github.com/Denis-Chistyakov/Medguide/internal/content"
	"github.com/Denis-Chistyakov/Medguide/internal/language"
	"github.com/Denis-Chistyakov/Medguide/internal/prompt"
	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

// Guidance returns instructions for one device step. The only error is a
// *ValidationError; provider trouble always ends in a result.
func (o *Orchestrator) Guidance(ctx context.Context, req types.GuidanceRequest) (*types.ProviderResult, error) {
	req, device, err := NormalizeGuidance(req)
	if err != nil {
		return nil, err
	}

	return o.orchestrate(ctx, call{
		kind: types.KindGuidance,
		normalized: struct {
			Device types.DeviceType `json:"device"`
			Step   int              `json:"step"`
			Lang   types.Language   `json:"lang"`
			Style  types.Style      `json:"style"`
			Brand  string           `json:"brand"`
			Model  string           `json:"model"`
		}{req.DeviceType, req.StepNumber, req.Language, req.Style, cache.Fold(req.DeviceBrand), cache.Fold(req.DeviceModel)},
		build: func(target types.ProviderKind) *prompt.Payload {
			return prompt.BuildGuidance(req, device, target)
		},
		static: func() *types.ProviderResult {
			return content.StaticGuidance(req)
		},
	}), nil
}

// Chat answers the active question of a conversation
func (o *Orchestrator) Chat(ctx context.Context, req types.ChatRequest) (*types.ProviderResult, error) {
	req, err := NormalizeChat(req)
	if err != nil {
		return nil, err
	}

	folded := make([]types.ChatMessage, len(req.Messages))
	for i, m := range req.Messages {
		folded[i] = types.ChatMessage{Role: m.Role, Content: cache.Fold(m.Content)}
	}

	return o.orchestrate(ctx, call{
		kind:       types.KindChat,
		normalized: folded,
		build: func(target types.ProviderKind) *prompt.Payload {
			return prompt.BuildChat(req, target)
		},
		static: content.StaticChat,
	}), nil
}

// NormalizeGuidance validates req against the device catalog and fills defaults
func NormalizeGuidance(req types.GuidanceRequest) (types.GuidanceRequest, *content.Device, error) {
	req.DeviceType = types.DeviceType(strings.ToLower(strings.TrimSpace(string(req.DeviceType))))
	device, ok := content.Lookup(req.DeviceType)
	if !ok {
		return req, nil, invalid("device_type", "unknown device %q", req.DeviceType)
	}

	if req.StepNumber < 1 || req.StepNumber > device.TotalSteps() {
		return req, nil, invalid("step_number", "step %d is outside 1..%d for %s", req.StepNumber, device.TotalSteps(), req.DeviceType)
	}

	req.Style = types.Style(strings.ToLower(strings.TrimSpace(string(req.Style))))
	if req.Style == "" {
		req.Style = types.StyleDirect
	}
	if !req.Style.Valid() {
		return req, nil, invalid("style", "unknown style %q", req.Style)
	}

	req.Language = normalizeLanguage(req.Language)
	req.DeviceBrand = strings.TrimSpace(req.DeviceBrand)
	req.DeviceModel = strings.TrimSpace(req.DeviceModel)
	return req, device, nil
}

// NormalizeChat validates the conversation
func NormalizeChat(req types.ChatRequest) (types.ChatRequest, error) {
	if len(req.Messages) == 0 {
		return req, invalid("messages", "conversation is empty")
	}

	messages := make([]types.ChatMessage, 0, len(req.Messages))
	for i, m := range req.Messages {
		role := types.Role(strings.ToLower(strings.TrimSpace(string(m.Role))))
		switch role {
		case types.RoleSystem, types.RoleUser, types.RoleAssistant:
		default:
			return req, invalid("messages", "message %d has unsupported role %q", i, m.Role)
		}
		messages = append(messages, types.ChatMessage{Role: role, Content: m.Content})
	}
	req.Messages = messages

	question, ok := req.ActiveQuestion()
	if !ok {
		return req, invalid("messages", "no user message")
	}
	if strings.TrimSpace(question) == "" {
		return req, invalid("messages", "the last user message is empty")
	}
	return req, nil
}

// normalizeLanguage maps tags like "th-TH" to a supported code. Codes without a
// template stay as given so the prompt builder can record the English fallback.
func normalizeLanguage(code types.Language) types.Language {
	raw := strings.ToLower(strings.TrimSpace(string(code)))
	if raw == "" {
		return types.DefaultLanguage
	}
	lang := language.Normalize(raw)
	if lang == types.DefaultLanguage && !strings.HasPrefix(raw, string(types.DefaultLanguage)) {
		return types.Language(raw)
	}
	return lang
}
