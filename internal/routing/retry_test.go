package routing

import (
	"testing"
	"time"

	"github.com/ignite/courier/internal/domain"
)

// fixedPolicy pins the jitter so delays are deterministic.
func fixedPolicy(j float64) *RetryPolicy {
	return &RetryPolicy{jitter: func() float64 { return j }}
}

func TestDecideNonRetryableCodes(t *testing.T) {
	p := NewRetryPolicy()
	for _, err := range []domain.CommError{
		domain.AuthenticationError("bad key", nil),
		domain.ValidationError("bad input", nil),
	} {
		if d := p.Decide(err, 1); d.Retry {
			t.Errorf("%s: should never retry", err.Code())
		}
	}

	unknown, _ := domain.NewCommError("SOMETHING_ELSE", "mystery", true, nil)
	if d := p.Decide(unknown, 1); d.Retry {
		t.Error("unknown code should not retry")
	}
}

func TestDecideMaxAttempts(t *testing.T) {
	p := fixedPolicy(0)
	cases := []struct {
		err domain.CommError
		max int
	}{
		{domain.NetworkError("down", nil), 3},
		{domain.RateLimitError("throttled", 0), 5},
		{domain.ProviderError("boom", ""), 3},
	}
	for _, tc := range cases {
		if d := p.Decide(tc.err, tc.max-1); !d.Retry {
			t.Errorf("%s: attempt %d should retry", tc.err.Code(), tc.max-1)
		}
		if d := p.Decide(tc.err, tc.max); d.Retry {
			t.Errorf("%s: attempt %d should not retry", tc.err.Code(), tc.max)
		}
	}
}

func TestDecideExponentialBackoff(t *testing.T) {
	p := fixedPolicy(0)
	err := domain.NetworkError("down", nil)

	if d := p.Decide(err, 1); d.Delay != 1000*time.Millisecond {
		t.Errorf("attempt 1 delay = %v, want 1s", d.Delay)
	}
	if d := p.Decide(err, 2); d.Delay != 2000*time.Millisecond {
		t.Errorf("attempt 2 delay = %v, want 2s", d.Delay)
	}
}

func TestDecideJitterBounded(t *testing.T) {
	err := domain.ProviderError("boom", "")
	lo := fixedPolicy(0).Decide(err, 1).Delay
	hi := fixedPolicy(0.999999).Decide(err, 1).Delay
	if lo != 2000*time.Millisecond {
		t.Errorf("no-jitter delay = %v, want 2s", lo)
	}
	if hi < lo || hi > lo+lo/10 {
		t.Errorf("max-jitter delay = %v, want within 10%% above %v", hi, lo)
	}
}

func TestDecideDelayCap(t *testing.T) {
	p := fixedPolicy(0.5)
	err := domain.RateLimitError("throttled", 0)
	if d := p.Decide(err, 4); d.Delay != maxRetryDelay {
		// 5000 * 2^3 = 40s before jitter, so the cap applies.
		t.Errorf("delay = %v, want capped at %v", d.Delay, maxRetryDelay)
	}
}

func TestDecideRetryAfterDominates(t *testing.T) {
	p := fixedPolicy(0)
	err := domain.RateLimitError("throttled", 45000)
	d := p.Decide(err, 1)
	if !d.Retry || d.Delay != 45*time.Second {
		t.Errorf("decision = %+v, want retry after 45s", d)
	}

	// A smaller retry-after than the computed backoff is ignored.
	small := domain.RateLimitError("throttled", 1)
	if d := p.Decide(small, 1); d.Delay != 5000*time.Millisecond {
		t.Errorf("delay = %v, want 5s backoff", d.Delay)
	}
}
