package prompt

// Package prompt renders provider-agnostic requests into provider payloads.
// Pure functions, no I/O.
import (
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Denis-Chistyakov/Medguide/internal/content"
	"github.com/Denis-Chistyakov/Medguide/internal/language"
	"github.com/Denis-Chistyakov/Medguide/pkg/types"
)

// Params are generation parameters sent to a provider
type Params struct {
	MaxTokens   int     `json:"max_tokens"`
	Temperature float32 `json:"temperature"`
	TopP        float32 `json:"top_p"`
}

// DefaultParams returns the parameters used when a provider has none configured
func DefaultParams() Params {
	return Params{MaxTokens: 400, Temperature: 0.3, TopP: 0.9}
}

// Payload is the rendered request for one provider
type Payload struct {
	Kind     types.RequestKind
	Target   types.ProviderKind
	Prompt   string              // flattened single-string prompt (self-hosted models)
	Messages []types.ChatMessage // chat message list
	Params   Params
	Language types.Language

	// FallbackTemplate is set when the language had no template and English was used
	FallbackTemplate bool
}

// BuildGuidance renders a guidance request for target
func BuildGuidance(req types.GuidanceRequest, device *content.Device, target types.ProviderKind) *Payload {
	tmpl, fallback := templateFor(req.Language)
	style, ok := stylePrefixes[req.Style]
	if !ok {
		style = stylePrefixes[types.StyleDirect]
	}

	name := device.DisplayName
	if brand := strings.TrimSpace(strings.Join([]string{req.DeviceBrand, req.DeviceModel}, " ")); brand != "" {
		name = fmt.Sprintf("%s (%s)", name, brand)
	}

	system := fmt.Sprintf("You write step-by-step instructions for home medical devices. %s "+
		"Do not give diagnostic medical advice. Write everything in %s (%s).",
		style, tmpl.Name, tmpl.Native)

	user := fmt.Sprintf(`Explain step %d of %d for using a %s.

Reply ONLY with a JSON object in %s:
{"title": "short step title", "instructions": "what to do in this step", "checkpoints": ["2 to 4 short items the user can verify"]}`,
		req.StepNumber, device.TotalSteps(), name, tmpl.Name)

	if current, ok := device.Step(req.StepNumber); ok {
		user += fmt.Sprintf("\n\nReference content for this step (English): %s. %s", current.Title, current.Instructions)
	}

	messages := []types.ChatMessage{
		{Role: types.RoleSystem, Content: system},
		{Role: types.RoleUser, Content: user},
	}

	return finish(&Payload{
		Kind:             types.KindGuidance,
		Target:           target,
		Messages:         messages,
		Params:           DefaultParams(),
		Language:         effectiveLanguage(req.Language, fallback),
		FallbackTemplate: fallback,
	})
}

// BuildChat renders a chat request for target. The reply language is detected
// from the active question.
func BuildChat(req types.ChatRequest, target types.ProviderKind) *Payload {
	question, _ := req.ActiveQuestion()
	lang := language.Detect(question)
	tmpl, fallback := templateFor(lang)

	system := fmt.Sprintf("%s\n- Reply in %s (%s).", chatPreamble, tmpl.Name, tmpl.Native)

	messages := make([]types.ChatMessage, 0, len(req.Messages)+1)
	messages = append(messages, types.ChatMessage{Role: types.RoleSystem, Content: system})
	for _, m := range req.Messages {
		// Callers cannot replace the safety preamble
		if m.Role == types.RoleSystem {
			continue
		}
		messages = append(messages, m)
	}

	return finish(&Payload{
		Kind:             types.KindChat,
		Target:           target,
		Messages:         messages,
		Params:           DefaultParams(),
		Language:         effectiveLanguage(lang, fallback),
		FallbackTemplate: fallback,
	})
}

// finish fills the flattened prompt for self-hosted targets
func finish(p *Payload) *Payload {
	if p.Target == types.ProviderSageMaker {
		p.Prompt = Flatten(p.Messages)
	}
	return p
}

// Flatten renders messages with turn markers understood by instruction-tuned models
func Flatten(messages []types.ChatMessage) string {
	var b strings.Builder
	for _, m := range messages {
		b.WriteString("<|")
		b.WriteString(string(m.Role))
		b.WriteString("|>\n")
		b.WriteString(strings.TrimSpace(m.Content))
		b.WriteString("\n")
	}
	b.WriteString("<|assistant|>\n")
	return b.String()
}

func templateFor(lang types.Language) (languageTemplate, bool) {
	if tmpl, ok := languageTemplates[lang]; ok {
		return tmpl, false
	}
	log.Debug().
		Str("language", string(lang)).
		Msg("No prompt template for language, using default")
	return languageTemplates[types.DefaultLanguage], true
}

func effectiveLanguage(lang types.Language, fallback bool) types.Language {
	if fallback {
		return types.DefaultLanguage
	}
	return lang
}
