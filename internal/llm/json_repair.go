package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// RepairJSON attempts to make a malformed JSON candidate parseable. Model
// output commonly suffers from trailing commas, truncated objects, or
// markdown fences; the cheap fixes run first and the jsonrepair library is
// the sophisticated fallback. Returns the repaired text and whether the
// final result actually parses.
func RepairJSON(raw string) (string, bool) {
	var probe interface{}
	if json.Unmarshal([]byte(raw), &probe) == nil {
		return raw, true
	}

	repaired := removeTrailingCommas(raw)
	repaired = completeJSON(repaired)

	if json.Unmarshal([]byte(repaired), &probe) == nil {
		return repaired, true
	}

	if libRepaired, err := jsonrepair.JSONRepair(repaired); err == nil {
		if json.Unmarshal([]byte(libRepaired), &probe) == nil {
			return libRepaired, true
		}
	}

	return repaired, false
}

var (
	trailingCommaBrace   = regexp.MustCompile(`,\s*}`)
	trailingCommaBracket = regexp.MustCompile(`,\s*]`)
)

func removeTrailingCommas(s string) string {
	s = trailingCommaBrace.ReplaceAllString(s, "}")
	return trailingCommaBracket.ReplaceAllString(s, "]")
}

// completeJSON appends missing closing braces/brackets in last-opened
// first-closed order, for responses truncated by an output-token cap.
func completeJSON(s string) string {
	s = strings.TrimSpace(s)

	var stack []rune
	inString := false
	escaped := false
	for _, char := range s {
		if escaped {
			escaped = false
			continue
		}
		switch char {
		case '\\':
			escaped = inString
		case '"':
			inString = !inString
		case '{':
			if !inString {
				stack = append(stack, '}')
			}
		case '[':
			if !inString {
				stack = append(stack, ']')
			}
		case '}', ']':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == char {
				stack = stack[:len(stack)-1]
			}
		}
	}

	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}
