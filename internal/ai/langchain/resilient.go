package langchain

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/applydraft/internal/ai"
	"github.com/applydraft/internal/logging"
	"github.com/applydraft/internal/retry"
)

// ResilientGenerator wraps a Generator with a cooperative rate limiter, a
// per-call timeout, and bounded retry for rate-limit responses. Other error
// classes propagate immediately so genuine failures are not masked as
// transient ones.
type ResilientGenerator struct {
	inner       ai.Generator
	retryConfig retry.Config
	limiter     *rate.Limiter
	timeout     time.Duration
}

// NewResilientGenerator wraps inner with the standard rate-limit retry policy
// and a shared limiter. The limiter is cooperative: every caller, including
// parallel batch workers, funnels through it.
func NewResilientGenerator(inner ai.Generator) *ResilientGenerator {
	return &ResilientGenerator{
		inner:       inner,
		retryConfig: retry.RateLimitConfig(),
		limiter:     rate.NewLimiter(rate.Every(2*time.Second), 2),
		timeout:     5 * time.Minute,
	}
}

// Generate issues the call with timeout, limiter and retry applied.
func (r *ResilientGenerator) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var result *ai.GenerateResult
	outcome := retry.WithBackoff(ctx, r.retryConfig, func() (error, bool) {
		if err := r.limiter.Wait(ctx); err != nil {
			return err, false
		}

		res, err := r.inner.Generate(ctx, req)
		if err != nil {
			// Only the rate-limit class is retried; everything else is
			// a genuine failure the caller must see.
			return err, ai.IsRateLimited(err)
		}
		result = res
		return nil, false
	}, logging.GetCurrentLogger())

	if !outcome.Success {
		return nil, outcome.LastError
	}
	return result, nil
}
