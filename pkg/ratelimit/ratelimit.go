// Package ratelimit wraps an external call with a token-bucket limiter and a
// circuit breaker, shared by pkg/ai and pkg/marketdata so both of C3's
// external provider boundaries degrade the same way under load (spec.md §6
// RateLimited/Timeout handling).
package ratelimit

import (
	"context"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/ledgerflow/workflowengine/internal/apperror"
)

// Guard bounds calls to one named external dependency: rate.Limiter caps
// request rate, gobreaker.CircuitBreaker trips after a run of failures and
// fails fast while open.
type Guard struct {
	name    string
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

// Config is the tunable shape of a Guard; zero-value fields fall back to
// conservative defaults.
type Config struct {
	Name              string
	RequestsPerSecond float64
	Burst             int
	FailureThreshold  uint32        // consecutive failures before the breaker opens
	OpenTimeout       time.Duration // how long the breaker stays open before a trial request
}

func New(cfg Config) *Guard {
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = int(cfg.RequestsPerSecond)
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name: cfg.Name,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		Timeout: cfg.OpenTimeout,
	}

	return &Guard{
		name:    cfg.Name,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Do waits for rate-limiter headroom, then runs fn through the circuit
// breaker. A breaker trip surfaces as Transient (the caller's retry policy
// decides whether to back off further); a limiter wait that outlives ctx
// surfaces as RateLimited.
func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, apperror.NewRateLimited(g.name)
	}

	result, err := g.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, apperror.Wrapf(err, apperror.KindTransient, "%s: circuit open", g.name)
		}
		return nil, err
	}
	return result, nil
}

// State reports the breaker's current state, for health endpoints.
func (g *Guard) State() gobreaker.State {
	return g.breaker.State()
}
