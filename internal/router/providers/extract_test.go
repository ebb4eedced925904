package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractResponse_Shapes(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		text   string
		shape  string
		tokens int
	}{
		{"tgi array", `[{"generated_text": " Step one "}]`, "Step one", "generated_text", 0},
		{"tgi object", `{"generated_text": "hi", "details": {"generated_tokens": 12}}`, "hi", "generated_text", 12},
		{"openai compatible", `{"choices": [{"message": {"content": "from choices"}}], "usage": {"total_tokens": 33}}`, "from choices", "choices.message.content", 33},
		{"text", `{"text": "plain"}`, "plain", "text", 0},
		{"output", `{"output": "out"}`, "out", "output", 0},
		{"first match wins", `{"text": "second", "generated_text": "first"}`, "first", "generated_text", 0},
		{"skips empty fields", `{"generated_text": "  ", "output": "fallback"}`, "fallback", "output", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ext, err := extractResponse([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.text, ext.Text)
			assert.Equal(t, tt.shape, ext.Shape)
			assert.Equal(t, tt.tokens, ext.Tokens)
		})
	}
}

func TestExtractResponse_Errors(t *testing.T) {
	for _, body := range []string{`not json`, `[]`, `{"unknown": "x"}`, `{"choices": []}`, `{"generated_text": 42}`} {
		_, err := extractResponse([]byte(body))
		assert.Error(t, err, "body %s", body)
	}
}
