// Package llm contains best-effort structured extraction for free-text model
// output. Responses are prose that is merely expected to contain JSON, so
// extraction is a parser with defined failure modes, never a panic path.
package llm

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ExtractObject returns the first-`{`-to-last-`}` span of raw, or "" when no
// object-shaped span exists. Surrounding prose is tolerated by construction.
func ExtractObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

// ExtractArray returns the first-`[`-to-last-`]` span of raw, or "".
func ExtractArray(raw string) string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start == -1 || end == -1 || end <= start {
		return ""
	}
	return raw[start : end+1]
}

// UnmarshalObject extracts the object span from raw, repairs it if needed,
// and unmarshals into target. Fails with an error rather than panicking when
// no parseable object exists.
func UnmarshalObject(raw string, target interface{}) error {
	candidate := ExtractObject(raw)
	if candidate == "" {
		return fmt.Errorf("llm: no JSON object found in response")
	}

	repaired, ok := RepairJSON(candidate)
	if !ok {
		return fmt.Errorf("llm: JSON object could not be repaired")
	}

	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		return fmt.Errorf("llm: unmarshal extracted object: %w", err)
	}
	return nil
}

// UnmarshalArray extracts a bare array span from raw, repairs it, and
// unmarshals into target.
func UnmarshalArray(raw string, target interface{}) error {
	candidate := ExtractArray(raw)
	if candidate == "" {
		return fmt.Errorf("llm: no JSON array found in response")
	}

	repaired, ok := RepairJSON(candidate)
	if !ok {
		return fmt.Errorf("llm: JSON array could not be repaired")
	}

	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		return fmt.Errorf("llm: unmarshal extracted array: %w", err)
	}
	return nil
}

// Snippet returns roughly the first max bytes of raw with whitespace
// collapsed, for embedding a hint of an unparseable response in an error
// result. The cut lands on a rune boundary so multi-byte text stays valid.
func Snippet(raw string, max int) string {
	s := strings.Join(strings.Fields(raw), " ")
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
