package generation

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var errNoPayload = errors.New("no structured payload in response")

// fenced returns the body of the first ```lang fence in s, or of the first
// bare ``` fence, and whether one was found.
func fenced(s, lang string) (string, bool) {
	for _, open := range []string{"```" + lang, "```"} {
		i := strings.Index(s, open)
		if i < 0 {
			continue
		}
		body := s[i+len(open):]
		if nl := strings.IndexByte(body, '\n'); nl >= 0 && open == "```" {
			// Skip an info string such as ```JSON.
			body = body[nl+1:]
		}
		if j := strings.Index(body, "```"); j >= 0 {
			body = body[:j]
		}
		return strings.TrimSpace(body), true
	}
	return "", false
}

// ExtractJSON returns the JSON document embedded in an LLM response: the
// contents of a ```json fence if present, otherwise the outermost array or
// object span.
func ExtractJSON(raw string) (string, error) {
	if body, ok := fenced(raw, "json"); ok && body != "" {
		raw = body
	}
	raw = strings.TrimSpace(raw)

	start := strings.IndexAny(raw, "[{")
	if start < 0 {
		return "", errNoPayload
	}
	closer := byte(']')
	if raw[start] == '{' {
		closer = '}'
	}
	end := strings.LastIndexByte(raw, closer)
	if end < start {
		return "", errNoPayload
	}
	return raw[start : end+1], nil
}

// decodeJSON extracts and unmarshals the JSON payload of raw into v.
func decodeJSON(raw string, v any) error {
	payload, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(payload), v); err != nil {
		return fmt.Errorf("decoding JSON payload: %w", err)
	}
	return nil
}

// ExtractYAML returns the contents of a ```yaml fence, or raw trimmed when
// the response is not fenced.
func ExtractYAML(raw string) string {
	if body, ok := fenced(raw, "yaml"); ok {
		return body
	}
	return strings.TrimSpace(raw)
}

// cleanText strips fences and wrapping quotes from a free-text answer.
func cleanText(raw string) string {
	s := strings.TrimSpace(raw)
	if body, ok := fenced(s, ""); ok {
		s = body
	}
	s = strings.Trim(s, "\"“”")
	return strings.TrimSpace(s)
}
