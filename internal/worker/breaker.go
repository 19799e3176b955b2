package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/studybuddy/studybuddy-api/internal/queue"
)

// BreakerConfig holds circuit breaker tuning for an external dependency.
type BreakerConfig struct {
	// Name identifies the guarded dependency in logs.
	Name string

	// Threshold is the number of consecutive failures that opens the
	// breaker. Defaults to 5.
	Threshold int

	// ResetWindow is the cool-down before the breaker half-opens to
	// probe recovery. Defaults to 30s.
	ResetWindow time.Duration
}

// Breaker guards calls to an unreliable external dependency. After
// Threshold consecutive failures it opens and short-circuits further
// calls for ResetWindow, then half-opens to probe recovery and closes on
// success. Short-circuited calls never reach the callee and are reported
// as external service failures, which the orchestrator retries with
// backoff.
type Breaker struct {
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// NewBreaker creates a circuit breaker policy with the given settings.
func NewBreaker(config BreakerConfig, log *slog.Logger) *Breaker {
	if config.Threshold <= 0 {
		config.Threshold = 5
	}
	if config.ResetWindow <= 0 {
		config.ResetWindow = 30 * time.Second
	}

	breakerLogger := log.With("component", "circuit_breaker", "breaker", config.Name)

	settings := gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: 1,
		Timeout:     config.ResetWindow,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.Threshold)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			breakerLogger.Warn("circuit breaker state change",
				"from", from.String(),
				"to", to.String())
		},
	}

	return &Breaker{
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: breakerLogger,
	}
}

// Call runs fn under the breaker. An open breaker returns an external
// service failure immediately without invoking fn.
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: circuit breaker open: %v", queue.ErrExternalService, err)
		}
		return err
	}
	return nil
}

// State returns the breaker's current state for operational visibility.
func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}
