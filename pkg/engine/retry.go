package engine

import (
	"math/rand"
	"time"

	"github.com/ledgerflow/workflowengine/pkg/steplibrary"
)

// DefaultRetryPolicy is spec.md §4.5's default: 3 attempts, exponential
// backoff from 500ms capped at 30s, ±20% jitter.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:  3,
	BaseBackoff:  500 * time.Millisecond,
	BackoffCap:   30 * time.Second,
	JitterFrac:   0.2,
}

// RetryPolicy governs how many times a step is re-dispatched after a
// retryable failure and how long the scheduler waits between attempts.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	BackoffCap  time.Duration
	JitterFrac  float64
}

// PolicyFor resolves the effective retry policy for a step: its own
// config.retry override, if present, otherwise DefaultRetryPolicy.
func PolicyFor(override *steplibrary.RetryPolicy) RetryPolicy {
	if override == nil {
		return DefaultRetryPolicy
	}
	p := DefaultRetryPolicy
	if override.MaxAttempts > 0 {
		p.MaxAttempts = override.MaxAttempts
	}
	if override.BackoffMS > 0 {
		p.BaseBackoff = time.Duration(override.BackoffMS) * time.Millisecond
	}
	if override.BackoffCapMS > 0 {
		p.BackoffCap = time.Duration(override.BackoffCapMS) * time.Millisecond
	}
	if override.JitterFrac > 0 {
		p.JitterFrac = override.JitterFrac
	}
	return p
}

// Backoff returns the delay before attempt (1-indexed) given p, jittered by
// ±p.JitterFrac using rng (injected so tests are deterministic).
func (p RetryPolicy) Backoff(attempt int, rng *rand.Rand) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := float64(p.BaseBackoff) * float64(int64(1)<<uint(attempt-1))
	if ceiling := float64(p.BackoffCap); base > ceiling {
		base = ceiling
	}
	jitter := 1 + p.JitterFrac*(2*rng.Float64()-1)
	d := time.Duration(base * jitter)
	if d < 0 {
		d = 0
	}
	return d
}

// ExhaustedAt reports whether attempt has used up the policy's budget.
func (p RetryPolicy) ExhaustedAt(attempt int) bool {
	return attempt >= p.MaxAttempts
}
