package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when a completion contains no JSON value.
var ErrNoJSON = errors.New("llm: no JSON value in completion")

// ExtractJSON returns the first balanced JSON object or array in s. Models
// wrap structured answers in prose or code fences often enough that callers
// should never unmarshal a completion directly.
func ExtractJSON(s string) (string, error) {
	s = stripFences(s)

	start := -1
	for i, r := range s {
		if r == '{' || r == '[' {
			start = i
			break
		}
	}
	if start < 0 {
		return "", ErrNoJSON
	}

	open := s[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				return s[start : i+1], nil
			}
		}
	}
	return "", ErrNoJSON
}

// Unmarshal extracts the first JSON value in s and decodes it into v.
// A decode failure is a content error the pipeline treats as a stage failure.
func Unmarshal(s string, v any) error {
	raw, err := ExtractJSON(s)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("llm: decode completion JSON: %w", err)
	}
	return nil
}

// stripFences removes markdown code fences around the payload if present.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if idx := strings.Index(s, "\n"); idx >= 0 {
		s = s[idx+1:]
	}
	if idx := strings.LastIndex(s, "```"); idx >= 0 {
		s = s[:idx]
	}
	return strings.TrimSpace(s)
}
