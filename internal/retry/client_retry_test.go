package retry

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// --- Test helpers ---

type statusErr struct{ code int }

func (e *statusErr) Error() string   { return fmt.Sprintf("http status %d", e.code) }
func (e *statusErr) StatusCode() int { return e.code }

// scriptedOp fails with errs in order, then succeeds with "ok".
type scriptedOp struct {
	calls int32
	errs  []error
}

func (s *scriptedOp) run(ctx context.Context) (string, error) {
	n := int(atomic.AddInt32(&s.calls, 1))
	if n <= len(s.errs) {
		return "", s.errs[n-1]
	}
	return "ok", nil
}

func (s *scriptedOp) count() int {
	return int(atomic.LoadInt32(&s.calls))
}

func makeClient(t *testing.T, cfg Config) (*Client, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	c := NewClient(zerolog.New(&buf), cfg)
	return c, &buf
}

var fastConfig = Config{
	MaxAttempts: 3,
	Delay:       time.Millisecond,
	Timeout:     250 * time.Millisecond,
}

// --- Tests ---

func TestNewClient_ConfigSanitization(t *testing.T) {
	c := NewClient(zerolog.Nop(), Config{MaxAttempts: 0, Delay: -1, Timeout: 0})
	if c.Config() != DefaultConfig {
		t.Fatalf("config not sanitized: got %+v want %+v", c.Config(), DefaultConfig)
	}

	c2 := NewClient(zerolog.Nop())
	if c2.Config() != DefaultConfig {
		t.Fatalf("expected DefaultConfig without explicit config, got %+v", c2.Config())
	}

	c3 := NewClient(zerolog.Nop(), Config{MaxAttempts: 5, Delay: 0, Timeout: time.Second})
	if c3.Config().Delay != 0 || c3.Config().MaxAttempts != 5 {
		t.Fatalf("explicit zero delay should be kept: %+v", c3.Config())
	}
}

func TestLinearBackOff(t *testing.T) {
	b := &LinearBackOff{Delay: 2 * time.Second}
	want := []time.Duration{2 * time.Second, 4 * time.Second, 6 * time.Second}
	for i, w := range want {
		if got := b.NextBackOff(); got != w {
			t.Fatalf("NextBackOff #%d = %v, want %v", i+1, got, w)
		}
	}
	b.Reset()
	if got := b.NextBackOff(); got != 2*time.Second {
		t.Fatalf("after Reset NextBackOff = %v, want 2s", got)
	}
}

func TestIsTransient_Patterns(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", errors.New("request TIMEOUT while processing"), true},
		{"conn refused", errors.New("connection refused by target"), true},
		{"conn reset", errors.New("read: connection reset by peer"), true},
		{"temporary failure", errors.New("temporary failure in name resolution"), true},
		{"server error", errors.New("internal server error"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"dns", errors.New("dns lookup failed"), true},
		{"deadline", fmt.Errorf("fetch: %w", context.DeadlineExceeded), true},
		{"status 429", &statusErr{429}, true},
		{"status 503", fmt.Errorf("wrapped: %w", &statusErr{503}), true},
		{"status 404", &statusErr{404}, false},
		{"empty series", errors.New("empty series"), false},
		{"decode", errors.New("invalid character 'x' looking for beginning of value"), false},
		{"empty string", errors.New(""), false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v)=%v want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsPermanent(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&statusErr{400}, true},
		{&statusErr{404}, true},
		{fmt.Errorf("x: %w", &statusErr{403}), true},
		{&statusErr{429}, false},
		{&statusErr{500}, false},
		{errors.New("connection reset"), false},
		{errors.New("empty series"), false},
	}
	for _, tc := range cases {
		if got := IsPermanent(tc.err); got != tc.want {
			t.Errorf("IsPermanent(%v)=%v want %v", tc.err, got, tc.want)
		}
	}
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	c, buf := makeClient(t, fastConfig)
	op := &scriptedOp{}

	got, err := Do(context.Background(), c, "primary", op.run)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "ok" {
		t.Fatalf("got %q, want ok", got)
	}
	if op.count() != 1 {
		t.Fatalf("expected 1 call, got %d", op.count())
	}
	if strings.Contains(buf.String(), "retrying") {
		t.Fatalf("no retry should be logged, got: %s", buf.String())
	}
}

func TestDo_RetriesAnyFailureThenSucceeds(t *testing.T) {
	c, buf := makeClient(t, fastConfig)
	op := &scriptedOp{errs: []error{
		errors.New("connection reset"),
		errors.New("empty series"),
	}}

	start := time.Now()
	got, err := Do(context.Background(), c, "primary", op.run)
	if err != nil {
		t.Fatalf("expected success after retries, got err: %v", err)
	}
	if got != "ok" || op.count() != 3 {
		t.Fatalf("got %q after %d calls, want ok after 3", got, op.count())
	}
	// 1ms then 2ms
	if elapsed := time.Since(start); elapsed < 3*time.Millisecond {
		t.Fatalf("expected linear waits to elapse, got %v", elapsed)
	}
	if !strings.Contains(buf.String(), `"source":"primary"`) || !strings.Contains(buf.String(), `"attempt":2`) {
		t.Fatalf("expected per-attempt log lines, got: %s", buf.String())
	}
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	c, _ := makeClient(t, fastConfig)
	last := errors.New("still down")
	op := &scriptedOp{errs: []error{errors.New("down"), errors.New("down"), last, errors.New("never reached")}}

	_, err := Do(context.Background(), c, "primary", op.run)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
	if !errors.Is(err, last) {
		t.Fatalf("expected last attempt error to be wrapped, got: %v", err)
	}
	if op.count() != 3 {
		t.Fatalf("expected 3 attempts, got %d", op.count())
	}
	if !strings.Contains(err.Error(), "after 3 attempts") {
		t.Fatalf("unexpected error text: %v", err)
	}
}

func TestDo_FailFastOnClientError(t *testing.T) {
	cfg := fastConfig
	cfg.MaxAttempts = 5
	c, buf := makeClient(t, cfg)
	op := &scriptedOp{errs: []error{&statusErr{404}}}

	_, err := Do(context.Background(), c, "primary", op.run)
	if err == nil {
		t.Fatal("expected error on non-retryable status")
	}
	if op.count() != 1 {
		t.Fatalf("expected only 1 attempt, got %d", op.count())
	}
	var se StatusError
	if !errors.As(err, &se) || se.StatusCode() != 404 {
		t.Fatalf("expected status error to survive unwrapping, got: %v", err)
	}
	if !strings.Contains(buf.String(), "Non-retryable") {
		t.Fatalf("expected non-retryable log, got: %s", buf.String())
	}
}

func TestDo_RetriesRateLimit(t *testing.T) {
	c, _ := makeClient(t, fastConfig)
	op := &scriptedOp{errs: []error{&statusErr{429}}}

	if _, err := Do(context.Background(), c, "primary", op.run); err != nil {
		t.Fatalf("expected 429 to be retried, got: %v", err)
	}
	if op.count() != 2 {
		t.Fatalf("expected 2 attempts, got %d", op.count())
	}
}

func TestDo_ContextCanceledBeforeStart(t *testing.T) {
	c, _ := makeClient(t, fastConfig)
	op := &scriptedOp{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Do(ctx, c, "primary", op.run)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got: %v", err)
	}
	if op.count() != 0 {
		t.Fatalf("expected 0 calls, got %d", op.count())
	}
}

func TestDo_ContextCanceledDuringWait(t *testing.T) {
	cfg := Config{MaxAttempts: 5, Delay: time.Hour, Timeout: time.Second}
	c, _ := makeClient(t, cfg)
	op := &scriptedOp{errs: []error{errors.New("down"), errors.New("down")}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := Do(ctx, c, "primary", op.run)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !strings.Contains(err.Error(), "canceled") {
		t.Fatalf("expected cancellation in error, got: %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("wait did not honor context cancellation")
	}
	if op.count() != 1 {
		t.Fatalf("expected 1 call before cancellation, got %d", op.count())
	}
}

func TestDo_PerAttemptTimeout(t *testing.T) {
	cfg := Config{MaxAttempts: 2, Delay: time.Millisecond, Timeout: 5 * time.Millisecond}
	c, _ := makeClient(t, cfg)

	var calls int32
	_, err := Do(context.Background(), c, "slow", func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		<-ctx.Done()
		return 0, ctx.Err()
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected per-attempt deadline, got: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected both attempts to run, got %d", calls)
	}
}

func TestDo_StopsOnPermanentWrapper(t *testing.T) {
	c, _ := makeClient(t, fastConfig)
	inner := errors.New("breaker open")
	op := &scriptedOp{errs: []error{Permanent(inner)}}

	_, err := Do(context.Background(), c, "primary", op.run)
	if !errors.Is(err, inner) {
		t.Fatalf("expected wrapped error, got: %v", err)
	}
	if op.count() != 1 {
		t.Fatalf("expected 1 attempt, got %d", op.count())
	}
	if Permanent(nil) != nil {
		t.Fatal("Permanent(nil) should be nil")
	}
}
