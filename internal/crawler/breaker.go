package crawler

import (
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// Breaker stops hammering a target that keeps failing.
type Breaker struct {
	cb *gobreaker.TwoStepCircuitBreaker
}

// NewBreaker trips after at least 5 requests with a failure ratio of 60% or
// more, and lets 3 probe requests through after 30 seconds.
func NewBreaker(name string, logger *slog.Logger) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				slog.String("name", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		},
	}

	return &Breaker{
		cb: gobreaker.NewTwoStepCircuitBreaker(settings),
	}
}

// Allow reserves a request slot. The returned func must be called exactly
// once with the outcome.
func (b *Breaker) Allow() (func(success bool), error) {
	return b.cb.Allow()
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
