package marketdata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"
	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"
)

const (
	maxErrorBody    = 64 << 10
	maxErrorDetail  = 256
	maxResponseBody = 8 << 20
)

// provider is one upstream host with its own pacing and circuit breaker.
type provider struct {
	name      string
	baseURL   string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
	breaker   *gobreaker.CircuitBreaker
	logger    zerolog.Logger
}

func newProvider(name, baseURL string, cfg Config, client *http.Client, logger zerolog.Logger) *provider {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	l := logger.With().Str("provider", name).Logger()
	return &provider{
		name:      name,
		baseURL:   strings.TrimRight(baseURL, "/"),
		userAgent: cfg.UserAgent,
		client:    client,
		limiter:   rate.NewLimiter(limit, burst),
		breaker:   newBreaker(name, cfg.Breaker, l),
		logger:    l,
	}
}

// getJSON issues a GET and returns the body once it is known to be valid JSON.
func (p *provider) getJSON(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%s rate limiter: %w", p.name, err)
	}
	return execBreaker(p.breaker, func() ([]byte, error) {
		return p.do(ctx, path, query)
	})
}

func (p *provider) do(ctx context.Context, path string, query url.Values) ([]byte, error) {
	endpoint := p.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, err
	}
	req.Header.Add("Accept", "application/json")
	req.Header.Add("User-Agent", p.userAgent)

	start := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			p.logger.Debug().Err(err).Msg("Failed to close response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if err != nil {
			return nil, &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> failed to read error body", path)}
		}
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			return nil, &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s (retry-after: %s)", path, errorDetail(body), ra)}
		}
		return nil, &APIError{Status: resp.StatusCode, Body: fmt.Sprintf("GET %s -> %s", path, errorDetail(body))}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", path, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%s returned invalid JSON", path)
	}
	p.logger.Debug().
		Str("path", path).
		Int("bytes", len(body)).
		Dur("elapsed", time.Since(start)).
		Msg("Provider response")
	return body, nil
}

// errorDetail flattens an error body to a single line of at most
// maxErrorDetail bytes.
func errorDetail(body []byte) string {
	detail := strings.Join(strings.Fields(string(body)), " ")
	if len(detail) <= maxErrorDetail {
		return detail
	}
	return strings.ToValidUTF8(detail[:maxErrorDetail], "") + "..."
}
