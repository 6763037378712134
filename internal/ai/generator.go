package ai

import (
	"context"
	"errors"
	"strings"

	"github.com/applydraft/pkg/models"
)

// Output token caps per request kind.
const (
	MaxOutputTokens         = 6000 // template synthesis
	MaxOutputTokensGenerate = 2400 // per-target custom content
	MaxOutputTokensSubject  = 200  // subject line only
)

// GenerateRequest describes one call to the text-generation capability.
type GenerateRequest struct {
	System          string
	Prompt          string
	MaxOutputTokens int
	SearchEnabled   bool
	MaxSearchOps    int
}

// GenerateResult is the raw capability output plus realized token usage.
// Text is unstructured; embedded JSON is extracted by the caller
// (see internal/llm).
type GenerateResult struct {
	Text  string
	Usage models.TokenUsage
}

// Generator is the text-generation capability. Implementations may block for
// non-trivial wall-clock time and must honor ctx cancellation.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error)
}

// ErrRateLimited is the distinguished transient condition retried with
// bounded backoff at the call site. All other errors propagate immediately.
var ErrRateLimited = errors.New("ai: rate limited")

// IsRateLimited reports whether err is the provider's rate-limit condition,
// either the sentinel or a provider error mentioning 429/rate limiting.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "too many requests")
}
