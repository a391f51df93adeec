package llm

import (
	"context"
	"errors"
	"time"

	"github.com/abhisek/codequiz/internal/retry"
)

// RetryProvider retries transient provider errors with exponential backoff.
type RetryProvider struct {
	inner  Provider
	config RetryConfig
}

// WithRetry wraps p with retry logic.
func WithRetry(p Provider, cfg RetryConfig) Provider {
	return &RetryProvider{inner: p, config: cfg}
}

func (r *RetryProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	policy := retry.Policy{
		MaxAttempts: r.config.MaxAttempts,
		InitialWait: r.config.InitialWait,
		MaxWait:     r.config.MaxWait,
		Multiplier:  r.config.Multiplier,
	}

	invalidRetried := false
	resp, err := retry.Do(ctx, policy, func(ctx context.Context, _ int) (*Response, error) {
		resp, err := r.inner.Generate(ctx, req)
		if err == nil {
			return resp, nil
		}
		if !shouldRetry(err, &invalidRetried) {
			return nil, retry.Permanent(err)
		}
		if wait := rateLimitWait(err); wait > 0 {
			select {
			case <-ctx.Done():
				return nil, retry.Permanent(ctx.Err())
			case <-time.After(wait):
			}
		}
		return nil, err
	})

	var ex *retry.ExhaustedError
	if errors.As(err, &ex) {
		return nil, ex.Last
	}
	return resp, err
}

func (r *RetryProvider) ModelID() string {
	return r.inner.ModelID()
}

// shouldRetry classifies err. Invalid responses get a single retry.
func shouldRetry(err error, invalidRetried *bool) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var maxTok *ErrMaxTokensExceeded
	if errors.As(err, &maxTok) {
		return false
	}

	var invResp *ErrInvalidResponse
	if errors.As(err, &invResp) {
		if *invalidRetried {
			return false
		}
		*invalidRetried = true
		return true
	}

	// Rate limits, outages and network errors are transient.
	return true
}

// rateLimitWait honours a provider's Retry-After hint on top of the
// policy backoff.
func rateLimitWait(err error) time.Duration {
	var rl *ErrRateLimit
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
