package llm

import (
	"encoding/json"
	"fmt"
	"strings"
)

// CleanJSON strips the markdown code fences models like to wrap JSON in.
func CleanJSON(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// DecodeJSON parses generated text into T. When the cleaned text is not valid JSON it
// retries on the outermost {...} substring. Failures are *ProviderError so callers treat
// malformed output like any other generation failure.
func DecodeJSON[T any](provider, text string) (T, error) {
	var out T
	cleaned := CleanJSON(text)
	if cleaned == "" {
		return out, &ProviderError{Provider: provider, Reason: "empty response"}
	}
	err := json.Unmarshal([]byte(cleaned), &out)
	if err == nil {
		return out, nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		var inner T
		if err2 := json.Unmarshal([]byte(cleaned[start:end+1]), &inner); err2 == nil {
			return inner, nil
		}
	}
	var zero T
	return zero, &ProviderError{Provider: provider, Reason: fmt.Sprintf("malformed JSON response (%d bytes)", len(text)), Err: err}
}
