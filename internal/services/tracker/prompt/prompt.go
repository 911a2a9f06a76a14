// Package prompt renders extractor templates and digs structured JSON out
// of model responses. Models wrap their answers in code fences and prose
// often enough that every parser goes through the extraction helpers here
// before unmarshalling.
package prompt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"
)

// Render executes a text/template over data. Missing keys are errors so a
// broken override file fails loudly instead of producing a silent blank.
func Render(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// ExtractJSONObject returns the outermost JSON object in raw, tolerating
// code fences and surrounding prose. Returns false when no valid object is
// found.
func ExtractJSONObject(raw string) ([]byte, bool) {
	return extractDelimited(raw, '{', '}')
}

// ExtractJSONArray returns the outermost JSON array in raw.
func ExtractJSONArray(raw string) ([]byte, bool) {
	return extractDelimited(raw, '[', ']')
}

func extractDelimited(raw string, open, close byte) ([]byte, bool) {
	s := stripFences(raw)
	start := strings.IndexByte(s, open)
	end := strings.LastIndexByte(s, close)
	if start < 0 || end <= start {
		return nil, false
	}
	candidate := []byte(s[start : end+1])
	if !json.Valid(candidate) {
		return nil, false
	}
	return candidate, true
}

// stripFences unwraps the first ``` code fence when one is present,
// dropping an optional language tag on the opening line.
func stripFences(raw string) string {
	s := strings.TrimSpace(raw)
	open := strings.Index(s, "```")
	if open < 0 {
		return s
	}
	rest := s[open+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		// Anything between ``` and the newline is a language tag.
		if first := strings.TrimSpace(rest[:nl]); first == "" || isLanguageTag(first) {
			rest = rest[nl+1:]
		}
	}
	if closing := strings.Index(rest, "```"); closing >= 0 {
		rest = rest[:closing]
	}
	return strings.TrimSpace(rest)
}

func isLanguageTag(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

// DecodeObject extracts and unmarshals a JSON object into T.
func DecodeObject[T any](raw string) (T, bool) {
	var out T
	data, ok := ExtractJSONObject(raw)
	if !ok {
		return out, false
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, false
	}
	return out, true
}

// DecodeArray extracts and unmarshals a JSON array into a slice of T.
func DecodeArray[T any](raw string) ([]T, bool) {
	data, ok := ExtractJSONArray(raw)
	if !ok {
		return nil, false
	}
	var out []T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, false
	}
	return out, true
}
