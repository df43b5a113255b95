package common

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

const fence = "```"

// StripCodeFence removes a surrounding markdown code fence (with or without
// a language tag) and surrounding whitespace from an LLM response.
func StripCodeFence(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, fence) {
		if nl := strings.IndexByte(text, '\n'); nl != -1 {
			text = text[nl+1:]
		}
		text = strings.TrimSuffix(strings.TrimRight(text, " \t\r\n"), fence)
	}
	return strings.TrimSpace(text)
}

// ParseJSON strips code fences and unmarshals the response into a type T.
// Unlike a lenient scan for the first bracket, any chatter outside the fence
// is a parse error.
func ParseJSON[T any](response string) (T, error) {
	var result T
	jsonStr := StripCodeFence(response)
	if jsonStr == "" {
		return result, fmt.Errorf("empty response")
	}
	if err := json.Unmarshal([]byte(jsonStr), &result); err != nil {
		return result, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return result, nil
}

// Marshal encodes v without HTML escaping, keeping non-ASCII text as is.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// MarshalIndent is Marshal with two-space indentation.
func MarshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
