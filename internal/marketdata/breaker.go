package marketdata

import (
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/straddle_signal/internal/retry"
)

// BreakerSettings configures the per-provider circuit breaker.
type BreakerSettings struct {
	MaxRequests         uint32        // Max requests when half-open
	Interval            time.Duration // Reset counts interval
	Timeout             time.Duration // Open circuit duration
	ConsecutiveFailures uint32        // Trip after this many transport failures in a row
}

// DefaultBreakerSettings trips a provider after five consecutive transport failures.
var DefaultBreakerSettings = BreakerSettings{
	MaxRequests:         1,
	Interval:            time.Minute,
	Timeout:             30 * time.Second,
	ConsecutiveFailures: 5,
}

func newBreaker(name string, settings BreakerSettings, logger zerolog.Logger) *gobreaker.CircuitBreaker {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = DefaultBreakerSettings.ConsecutiveFailures
	}
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		// Only transport faults count; a bad payload says nothing about reachability.
		IsSuccessful: func(err error) bool {
			return err == nil || !retry.IsTransient(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state changed")
		},
	})
}

// execBreaker runs fn through breaker. An open breaker is reported as a
// permanent failure so the caller moves on to the next source.
func execBreaker[T any](breaker *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var zero T
	res, err := breaker.Execute(func() (interface{}, error) { return fn() })
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, retry.Permanent(err)
		}
		return zero, err
	}
	if res == nil {
		return zero, nil
	}
	v, ok := res.(T)
	if !ok {
		return zero, errors.New("circuit breaker: type assertion failed")
	}
	return v, nil
}
