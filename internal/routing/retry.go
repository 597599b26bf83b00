package routing

import (
	"math"
	"math/rand"
	"time"

	"github.com/ignite/courier/internal/domain"
)

// retryRule is one row of the per-error-code retry table.
type retryRule struct {
	retry       bool
	baseDelay   time.Duration
	maxAttempts int
}

var retryRules = map[string]retryRule{
	domain.ErrCodeNetwork:        {retry: true, baseDelay: 1000 * time.Millisecond, maxAttempts: 3},
	domain.ErrCodeRateLimit:      {retry: true, baseDelay: 5000 * time.Millisecond, maxAttempts: 5},
	domain.ErrCodeProvider:       {retry: true, baseDelay: 2000 * time.Millisecond, maxAttempts: 3},
	domain.ErrCodeAuthentication: {retry: false},
	domain.ErrCodeValidation:     {retry: false},
}

// maxRetryDelay caps the computed exponential backoff. An explicit
// retry-after from a rate-limiting provider may exceed it.
const maxRetryDelay = 30 * time.Second

// RetryDecision is a recommendation: whether to retry a failed delivery and
// how long to wait first. Callers remain free to apply stricter limits.
type RetryDecision struct {
	Retry bool
	Delay time.Duration
}

// RetryPolicy decides retries from the error classification and attempt
// count. The zero value is not usable; construct with NewRetryPolicy.
type RetryPolicy struct {
	jitter func() float64 // in [0,1)
}

// NewRetryPolicy returns the standard policy with randomized jitter.
func NewRetryPolicy() *RetryPolicy {
	return &RetryPolicy{jitter: rand.Float64}
}

// Decide returns the retry recommendation for the given failure at the given
// attempt count (1-based: the first failed attempt passes 1). Delay is
// base * 2^(attempt-1) plus up to 10% jitter, capped at 30s. For rate-limit
// failures an explicit retryAfterMs wins when it is larger.
func (p *RetryPolicy) Decide(err domain.CommError, attemptCount int) RetryDecision {
	rule, ok := retryRules[err.Code()]
	if !ok || !rule.retry {
		return RetryDecision{}
	}
	if attemptCount >= rule.maxAttempts {
		return RetryDecision{}
	}

	exp := float64(rule.baseDelay) * math.Pow(2, float64(attemptCount-1))
	delay := time.Duration(exp + p.jitter()*0.1*exp)
	if delay > maxRetryDelay {
		delay = maxRetryDelay
	}

	if err.Code() == domain.ErrCodeRateLimit {
		if after := time.Duration(err.RetryAfterMs()) * time.Millisecond; after > delay {
			delay = after
		}
	}

	return RetryDecision{Retry: true, Delay: delay}
}
