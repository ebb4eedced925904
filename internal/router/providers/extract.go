package providers

import (
	"encoding/json"
	"fmt"
	"strings"
)

// responseShape extracts generated text from one known response layout
type responseShape struct {
	Name string
	Path []interface{} // string keys and int indexes
}

// responseShapes lists the self-hosted response layouts in probing order.
// Supporting a new deployment is a new row here.
var responseShapes = []responseShape{
	{Name: "generated_text", Path: []interface{}{"generated_text"}},
	{Name: "choices.message.content", Path: []interface{}{"choices", 0, "message", "content"}},
	{Name: "text", Path: []interface{}{"text"}},
	{Name: "output", Path: []interface{}{"output"}},
}

// tokenPaths lists where token usage may be reported
var tokenPaths = [][]interface{}{
	{"usage", "total_tokens"},
	{"details", "generated_tokens"},
}

// extracted is the normalized content of a response body
type extracted struct {
	Text   string
	Tokens int
	Shape  string
}

// extractResponse probes body against responseShapes, first match wins.
// A top-level array is unwrapped to its first element.
func extractResponse(body []byte) (*extracted, error) {
	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %w", err)
	}
	if arr, ok := doc.([]interface{}); ok {
		if len(arr) == 0 {
			return nil, fmt.Errorf("response is an empty array")
		}
		doc = arr[0]
	}

	for _, shape := range responseShapes {
		v, ok := lookup(doc, shape.Path)
		if !ok {
			continue
		}
		s, ok := v.(string)
		if !ok || strings.TrimSpace(s) == "" {
			continue
		}
		out := &extracted{Text: strings.TrimSpace(s), Shape: shape.Name}
		for _, p := range tokenPaths {
			if n, ok := lookup(doc, p); ok {
				if f, ok := n.(float64); ok {
					out.Tokens = int(f)
					break
				}
			}
		}
		return out, nil
	}

	return nil, fmt.Errorf("no known text field in response")
}

func lookup(doc interface{}, path []interface{}) (interface{}, bool) {
	cur := doc
	for _, step := range path {
		switch key := step.(type) {
		case string:
			m, ok := cur.(map[string]interface{})
			if !ok {
				return nil, false
			}
			if cur, ok = m[key]; !ok {
				return nil, false
			}
		case int:
			arr, ok := cur.([]interface{})
			if !ok || key >= len(arr) {
				return nil, false
			}
			cur = arr[key]
		default:
			return nil, false
		}
	}
	return cur, true
}
