package template

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applydraft/internal/ai"
	"github.com/applydraft/pkg/models"
)

// fakeGenerator replays canned responses and records the requests it saw.
type fakeGenerator struct {
	response string
	usage    models.TokenUsage
	err      error
	requests []ai.GenerateRequest
}

func (f *fakeGenerator) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &ai.GenerateResult{Text: f.response, Usage: f.usage}, nil
}

func TestSynthesize_ParsesJSONResponse(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{
		"template":    "<html><body><p>{{CUSTOM_1}}</p></body></html>",
		"definitions": "[CUSTOM_1]: opener\nPROMPT: write an opener\nEXAMPLES: sample\nCONSTRAINTS: 30 words\nKEY INFORMATIONS: skills",
	})
	gen := &fakeGenerator{
		response: "Here is the result:\n" + string(payload),
		usage:    models.TokenUsage{InputTokens: 1200, OutputTokens: 800, APICalls: 1},
	}

	s := NewSynthesizer(gen)
	result, err := s.Synthesize(context.Background(), []string{"letter one", "letter two"}, "Cover Letter")
	require.NoError(t, err)

	assert.False(t, result.ManualEditRequired)
	assert.Contains(t, result.Body, "{{CUSTOM_1}}")
	assert.Contains(t, result.Definitions, "[CUSTOM_1]:")
	assert.Equal(t, 2000, result.Usage.Total())

	// Slot grouping guidance must be part of the prompt so near-identical
	// examples yield one slot, not one per sentence.
	require.Len(t, gen.requests, 1)
	assert.Contains(t, gen.requests[0].System, "2-5 max")
	assert.Contains(t, gen.requests[0].Prompt, "2 Cover Letter examples")
}

func TestSynthesize_FallsBackToRawText(t *testing.T) {
	gen := &fakeGenerator{response: "I could not produce structured output, sorry."}

	s := NewSynthesizer(gen)
	result, err := s.Synthesize(context.Background(), []string{"only example"}, "Cover Letter")
	require.NoError(t, err)

	assert.True(t, result.ManualEditRequired)
	assert.Equal(t, "I could not produce structured output, sorry.", result.Body)
	assert.Empty(t, result.Definitions)
}

func TestSynthesize_RequiresExamples(t *testing.T) {
	s := NewSynthesizer(&fakeGenerator{})
	_, err := s.Synthesize(context.Background(), nil, "Cover Letter")
	assert.Error(t, err)
}

func TestSynthesizeEmail(t *testing.T) {
	payload, _ := json.Marshal(map[string]string{
		"template":    "Dear {{FIRM_NAME}},\n{{CUSTOM_1}}\nBest, {{NAME}}",
		"definitions": "[CUSTOM_1]: hook",
	})
	gen := &fakeGenerator{response: string(payload)}

	s := NewSynthesizer(gen)
	result, err := s.SynthesizeEmail(context.Background(), "Dear Acme, I love your work. Best, Jo")
	require.NoError(t, err)
	assert.Contains(t, result.Body, "{{CUSTOM_1}}")
}

func TestGenerateInstructions_PassesRequirements(t *testing.T) {
	gen := &fakeGenerator{
		response: "# Search Instructions\n- Berlin first",
		usage:    models.TokenUsage{InputTokens: 400, OutputTokens: 300, APICalls: 1},
	}

	s := NewSynthesizer(gen)
	text, usage, err := s.GenerateInstructions(context.Background(), "junior architect roles in Berlin", models.Identity{Name: "Jo"})
	require.NoError(t, err)
	assert.Contains(t, text, "Search Instructions")
	assert.Equal(t, 1, usage.APICalls)
	assert.Contains(t, gen.requests[0].Prompt, "junior architect roles in Berlin")
}
