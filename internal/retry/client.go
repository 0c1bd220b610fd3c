// Package retry runs fetch operations with a bounded number of attempts and a
// linear wait between them.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Config bounds a single retried operation.
type Config struct {
	MaxAttempts int           // total attempts, including the first
	Delay       time.Duration // wait before attempt n+1 is n × Delay
	Timeout     time.Duration // per-attempt timeout
}

// DefaultConfig matches the market data defaults.
var DefaultConfig = Config{
	MaxAttempts: 3,
	Delay:       2 * time.Second,
	Timeout:     10 * time.Second,
}

// StatusError is implemented by errors that carry an HTTP status code.
type StatusError interface {
	error
	StatusCode() int
}

// LinearBackOff waits Delay, 2×Delay, 3×Delay, ... between attempts.
type LinearBackOff struct {
	Delay   time.Duration
	attempt int
}

// NextBackOff implements backoff.BackOff.
func (b *LinearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.Delay
}

// Reset implements backoff.BackOff.
func (b *LinearBackOff) Reset() {
	b.attempt = 0
}

// Client retries operations and logs every failed attempt.
type Client struct {
	logger zerolog.Logger
	config Config
}

// NewClient creates a Client. Non-positive config values fall back to DefaultConfig.
func NewClient(logger zerolog.Logger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0]
		if cfg.MaxAttempts <= 0 {
			cfg.MaxAttempts = DefaultConfig.MaxAttempts
		}
		if cfg.Delay < 0 {
			cfg.Delay = DefaultConfig.Delay
		}
		if cfg.Timeout <= 0 {
			cfg.Timeout = DefaultConfig.Timeout
		}
	}

	return &Client{
		logger: logger.With().Str("component", "retry").Logger(),
		config: cfg,
	}
}

// Config returns the effective configuration.
func (c *Client) Config() Config {
	return c.config
}

// Do calls op until it succeeds, returns a non-retryable error, or the
// attempts run out. Each call gets its own timeout derived from ctx.
func Do[T any](ctx context.Context, c *Client, name string, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("%s canceled: %w", name, err)
	}

	attempt := 0
	operation := func() (T, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()

		res, err := op(attemptCtx)
		if err == nil {
			return res, nil
		}
		if IsPermanent(err) {
			c.logger.Warn().
				Str("source", name).
				Int("attempt", attempt).
				Err(err).
				Msg("Non-retryable failure")
			return zero, backoff.Permanent(err)
		}
		return zero, err
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Warn().
			Str("source", name).
			Int("attempt", attempt).
			Int("max_attempts", c.config.MaxAttempts).
			Dur("wait", wait).
			Err(err).
			Msg("Attempt failed, retrying")
	}

	b := backoff.WithContext(
		backoff.WithMaxRetries(&LinearBackOff{Delay: c.config.Delay}, uint64(c.config.MaxAttempts-1)),
		ctx,
	)

	res, err := backoff.RetryNotifyWithData(operation, b, notify)
	if err != nil {
		if ctx.Err() != nil {
			return zero, fmt.Errorf("%s canceled after %d attempts: %w", name, attempt, err)
		}
		c.logger.Warn().Str("source", name).Int("attempts", attempt).Err(err).Msg("Source exhausted")
		return zero, fmt.Errorf("%s failed after %d attempts: %w", name, attempt, err)
	}
	if attempt > 1 {
		c.logger.Info().Str("source", name).Int("attempt", attempt).Msg("Succeeded after retry")
	}
	return res, nil
}

// PermanentError marks a failure that retrying cannot fix.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }

// Unwrap returns the wrapped error.
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so that Do stops retrying it.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether retrying err cannot help: an error wrapped by
// Permanent, or an HTTP 4xx other than 429.
func IsPermanent(err error) bool {
	var pe *PermanentError
	if errors.As(err, &pe) {
		return true
	}
	var se StatusError
	if errors.As(err, &se) {
		code := se.StatusCode()
		return code >= 400 && code < 500 && code != 429
	}
	return false
}

// IsTransient reports whether err looks like a transport-level fault:
// network errors, timeouts, HTTP 429 and 5xx.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var se StatusError
	if errors.As(err, &se) {
		code := se.StatusCode()
		return code == 429 || code >= 500
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	transientPatterns := []string{
		"timeout",
		"connection refused",
		"connection reset",
		"temporary failure",
		"server error",
		"rate limit",
		"429", // HTTP 429 Too Many Requests
		"502", // HTTP 502 Bad Gateway
		"503", // HTTP 503 Service Unavailable
		"504", // HTTP 504 Gateway Timeout
		"network",
		"dns",
		"tcp",
		"eof",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}
