package discovery

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applydraft/internal/ai"
	"github.com/applydraft/pkg/models"
)

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

func TestSearchRejectsBadInput(t *testing.T) {
	s := NewSearcher(&fakeGenerator{})

	_, err := s.Search(context.Background(), Request{Count: 0, Requirements: "engineering roles"})
	assert.Error(t, err)

	_, err = s.Search(context.Background(), Request{Count: 3, Requirements: "   "})
	assert.Error(t, err)
}

func TestSearchLimits(t *testing.T) {
	gen := &fakeGenerator{response: `{"targets": []}`}
	s := NewSearcher(gen)

	_, err := s.Search(context.Background(), Request{Count: 5, Requirements: "orchestra positions"})
	require.NoError(t, err)
	require.Len(t, gen.requests, 1)
	req := gen.requests[0]
	assert.True(t, req.SearchEnabled)
	assert.Equal(t, 7, req.MaxSearchOps)
	assert.Equal(t, 7000, req.MaxOutputTokens)
}

func TestSearchOutputTokenCap(t *testing.T) {
	gen := &fakeGenerator{response: `{"targets": []}`}
	s := NewSearcher(gen)

	// count above 10 is clamped, and the output cap tops out at 12000
	_, err := s.Search(context.Background(), Request{Count: 25, Requirements: "roles"})
	require.NoError(t, err)
	req := gen.requests[0]
	assert.Equal(t, 12, req.MaxSearchOps)
	assert.Equal(t, 12000, req.MaxOutputTokens)
}

func TestSearchParsesEnvelope(t *testing.T) {
	gen := &fakeGenerator{
		response: `Here are the results:
{"targets": [{"firm": "Berlin Philharmonic", "email": "jobs@berliner-philharmoniker.de", "location": "Berlin", "position": "Violin"}],
 "skipped": [{"firm": "Vienna Opera", "reason": "portal only"}]}`,
		usage: models.TokenUsage{InputTokens: 90000, OutputTokens: 1200, APICalls: 1},
	}
	s := NewSearcher(gen)

	res, err := s.Search(context.Background(), Request{Count: 2, Requirements: "violin positions in Europe"})
	require.NoError(t, err)
	require.Len(t, res.Targets, 1)
	assert.Equal(t, "Berlin Philharmonic", res.Targets[0].Firm)
	assert.Equal(t, "search", res.Targets[0].Source)
	require.Len(t, res.Skipped, 1)
	assert.Equal(t, "portal only", res.Skipped[0].Reason)
	assert.Equal(t, 1, res.Usage.APICalls)
	assert.Empty(t, res.Err)
}

// When the cover letter defines custom sections, the search prompt asks for
// per-target custom_K values; without sections it stays quiet about them.
func TestSearchPromptRequestsCustomSections(t *testing.T) {
	gen := &fakeGenerator{response: `{"targets": []}`}
	s := NewSearcher(gen)

	_, err := s.Search(context.Background(), Request{
		Count:        2,
		Requirements: "roles",
		Definitions:  "CUSTOM_MOTIVATION: why this firm",
	})
	require.NoError(t, err)
	assert.Contains(t, gen.requests[0].Prompt, `"custom_1"`)
	assert.Contains(t, gen.requests[0].Prompt, "custom_K field per custom section")

	gen2 := &fakeGenerator{response: `{"targets": []}`}
	s2 := NewSearcher(gen2)
	_, err = s2.Search(context.Background(), Request{Count: 2, Requirements: "roles"})
	require.NoError(t, err)
	assert.NotContains(t, gen2.requests[0].Prompt, "custom_1")
}

func TestSearchParsesTopLevelCustomFields(t *testing.T) {
	res := parseSearchResponse(`{"targets": [
		{"firm": "Oslo Ensemble", "email": "apply@oslo.example",
		 "custom_1": "Their chamber series fits my repertoire.",
		 "custom_2": ""}
	]}`)
	require.Len(t, res.Targets, 1)
	got := res.Targets[0].Custom
	assert.Equal(t, "Their chamber series fits my repertoire.", got["CUSTOM_1"])
	_, hasEmpty := got["CUSTOM_2"]
	assert.False(t, hasEmpty)
}

func TestSearchSingleObjectFallback(t *testing.T) {
	res := parseSearchResponse(`{"firm": "Oslo Ensemble", "email": "apply@oslo.example"}`)
	require.Len(t, res.Targets, 1)
	assert.Equal(t, "Oslo Ensemble", res.Targets[0].Firm)
}

func TestSearchBareArrayFallback(t *testing.T) {
	res := parseSearchResponse(`[{"firm": "A"}, {"firm": "B"}]`)
	require.Len(t, res.Targets, 2)
}

func TestSearchUnparseable(t *testing.T) {
	long := strings.Repeat("I could not find any matching positions today. ", 20)
	res := parseSearchResponse(long)
	assert.Empty(t, res.Targets)
	assert.NotEmpty(t, res.Err)
	assert.LessOrEqual(t, len(res.Err), len("could not parse search response: ")+300+3)
}

func TestSearchFiltersExcludedFirms(t *testing.T) {
	gen := &fakeGenerator{
		response: `{"targets": [{"firm": "Acme Corp"}, {"firm": "Beta GmbH"}]}`,
	}
	s := NewSearcher(gen)

	res, err := s.Search(context.Background(), Request{
		Count:        2,
		Requirements: "roles",
		Excluded:     []string{"acme corp"},
	})
	require.NoError(t, err)
	require.Len(t, res.Targets, 1)
	assert.Equal(t, "Beta GmbH", res.Targets[0].Firm)

	// exclusion list is embedded in the prompt too
	assert.Contains(t, gen.requests[0].Prompt, "acme corp")
}

func TestSearchGeneratorError(t *testing.T) {
	s := NewSearcher(&fakeGenerator{err: errors.New("boom")})
	_, err := s.Search(context.Background(), Request{Count: 1, Requirements: "roles"})
	assert.Error(t, err)
}

func TestClampCount(t *testing.T) {
	assert.Equal(t, 1, ClampCount(0))
	assert.Equal(t, 1, ClampCount(-5))
	assert.Equal(t, 7, ClampCount(7))
	assert.Equal(t, 10, ClampCount(99))
}

func TestResolveSubject(t *testing.T) {
	gen := &fakeGenerator{response: `"Application Violin II - Ref 2026-14"`}
	s := NewSearcher(gen)

	subject, _, err := s.ResolveSubject(context.Background(), models.Target{Firm: "Berlin Philharmonic", Position: "Violin II"}, "")
	require.NoError(t, err)
	assert.Equal(t, "Application Violin II - Ref 2026-14", subject)

	req := gen.requests[0]
	assert.Equal(t, 3, req.MaxSearchOps)
	assert.Equal(t, 200, req.MaxOutputTokens)
}

func TestResolveSubjectNone(t *testing.T) {
	gen := &fakeGenerator{response: "NONE"}
	s := NewSearcher(gen)

	subject, _, err := s.ResolveSubject(context.Background(), models.Target{Firm: "X"}, "Violin")
	require.NoError(t, err)
	assert.Empty(t, subject)
}
