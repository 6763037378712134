package llm

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractObject(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{
			name:     "bare object",
			raw:      `{"a": 1}`,
			expected: `{"a": 1}`,
		},
		{
			name:     "object with surrounding prose",
			raw:      "Here is the result you asked for:\n{\"a\": 1}\nLet me know if you need more.",
			expected: `{"a": 1}`,
		},
		{
			name:     "markdown fenced",
			raw:      "```json\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "no object",
			raw:      "I could not find any matching positions.",
			expected: "",
		},
		{
			name:     "nested objects span to last brace",
			raw:      `prefix {"a": {"b": 2}} suffix`,
			expected: `{"a": {"b": 2}}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractObject(tt.raw))
		})
	}
}

func TestUnmarshalObject(t *testing.T) {
	var out struct {
		Template    string `json:"template"`
		Definitions string `json:"definitions"`
	}

	raw := "Sure! Here's the template:\n{\"template\": \"Dear {{FIRM_NAME}}\", \"definitions\": \"[CUSTOM_1]: opener\"}"
	require.NoError(t, UnmarshalObject(raw, &out))
	assert.Equal(t, "Dear {{FIRM_NAME}}", out.Template)
	assert.Equal(t, "[CUSTOM_1]: opener", out.Definitions)
}

func TestUnmarshalObject_RepairedTrailingComma(t *testing.T) {
	var out map[string]string
	raw := `{"firm": "Acme", "position": "Architect",}`
	require.NoError(t, UnmarshalObject(raw, &out))
	assert.Equal(t, "Acme", out["firm"])
}

func TestUnmarshalObject_NoObject(t *testing.T) {
	var out map[string]string
	err := UnmarshalObject("no structured data here", &out)
	assert.Error(t, err)
}

func TestUnmarshalArray(t *testing.T) {
	var out []map[string]string
	raw := "The targets are:\n[{\"firm\": \"A\"}, {\"firm\": \"B\"}]"
	require.NoError(t, UnmarshalArray(raw, &out))
	require.Len(t, out, 2)
	assert.Equal(t, "B", out[1]["firm"])
}

func TestRepairJSON_CompletesTruncated(t *testing.T) {
	repaired, ok := RepairJSON(`{"targets": [{"firm": "Acme"`)
	assert.True(t, ok)
	assert.Contains(t, repaired, "}]}")
}

func TestRepairJSON_ValidPassthrough(t *testing.T) {
	raw := `{"a": [1, 2, 3]}`
	repaired, ok := RepairJSON(raw)
	assert.True(t, ok)
	assert.Equal(t, raw, repaired)
}

func TestSnippet(t *testing.T) {
	long := "line one\nline two\n" + string(make([]byte, 0))
	assert.Equal(t, "line one line two", Snippet(long, 300))

	s := Snippet("abcdefghij", 5)
	assert.Equal(t, "abcde...", s)
}

func TestSnippetCutsOnRuneBoundary(t *testing.T) {
	// every rune here is 3 bytes, so a byte cut at 5 lands mid-rune
	s := Snippet("日本語のテキスト", 5)
	assert.True(t, utf8.ValidString(s))
	assert.Equal(t, "日...", s)

	for max := 1; max <= 12; max++ {
		assert.True(t, utf8.ValidString(Snippet("音楽家の応募書類", max)), "max=%d", max)
	}
}
