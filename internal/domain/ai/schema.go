package ai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Schema describes a flat JSON object whose properties are all strings
// drawn from Enum.
type Schema struct {
	Name        string
	Description string
	Properties  []string
	Enum        []string
}

// Has reports whether the schema declares property name.
func (s Schema) Has(name string) bool {
	for _, p := range s.Properties {
		if p == name {
			return true
		}
	}
	return false
}

func (s Schema) allowed(v string) bool {
	for _, e := range s.Enum {
		if e == v {
			return true
		}
	}
	return false
}

// Decode parses a provider response and keeps only declared properties
// whose value is in the enum. A response that is not a JSON object is
// ErrMalformedResponse.
func (s Schema) Decode(text string) (map[string]string, error) {
	text = stripFences(text)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedResponse)
	}

	out := make(map[string]string, len(raw))
	for k, v := range raw {
		str, ok := v.(string)
		if !ok || !s.Has(k) || !s.allowed(str) {
			continue
		}
		out[k] = str
	}
	return out, nil
}

// stripFences removes a ```json ... ``` wrapper some models add even in
// JSON mode.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[i+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
