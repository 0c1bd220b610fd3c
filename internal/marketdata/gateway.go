// Package marketdata fetches BTC spot candles, the DVOL volatility index and
// the BTC spot price from public exchange APIs, walking an ordered list of
// sources per operation.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/eddiefleurent/straddle_signal/internal/models"
	"github.com/eddiefleurent/straddle_signal/internal/retry"
)

// Operation names used in errors and logs.
const (
	OpSpotCandles     = "spot candles"
	OpVolatilityIndex = "volatility index"
	OpSpotPrice       = "spot price"
)

// Config controls provider hosts, retries and pacing.
type Config struct {
	MaxAttempts       int
	RetryDelay        time.Duration
	RequestTimeout    time.Duration
	UserAgent         string
	RequestsPerSecond float64
	Burst             int
	Breaker           BreakerSettings

	DeribitURL        string
	DeribitHistoryURL string
	BinanceURL        string
	CoinbaseURL       string
}

// DefaultConfig returns the production hosts and retry policy.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		RetryDelay:        2 * time.Second,
		RequestTimeout:    10 * time.Second,
		UserAgent:         "straddle-signal/1.0",
		RequestsPerSecond: 5,
		Burst:             1,
		Breaker:           DefaultBreakerSettings,
		DeribitURL:        "https://www.deribit.com",
		DeribitHistoryURL: "https://history.deribit.com",
		BinanceURL:        "https://api.binance.com",
		CoinbaseURL:       "https://api.coinbase.com",
	}
}

// Window is the time range and bar size a series source is asked for.
type Window struct {
	Start    time.Time
	End      time.Time
	Interval time.Duration
}

// Source is one named way of producing T. Sources are tried in order.
type Source[T any] struct {
	Name     string
	Provider string
	Fetch    func(ctx context.Context, w Window) (T, error)
}

// AttemptObserver is told about every fetch attempt.
type AttemptObserver func(operation, source string, err error)

// Gateway implements strategy.MarketData over ordered source lists.
type Gateway struct {
	retry    *retry.Client
	logger   zerolog.Logger
	now      func() time.Time
	observer AttemptObserver

	candleSources []Source[[]models.PriceCandle]
	volSources    []Source[[]models.VolatilitySample]
	priceSources  []Source[float64]
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithClock overrides the time source used to build fetch windows.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithObserver registers a callback for every fetch attempt.
func WithObserver(o AttemptObserver) Option {
	return func(g *Gateway) { g.observer = o }
}

// WithCandleSources replaces the spot candle sources.
func WithCandleSources(s ...Source[[]models.PriceCandle]) Option {
	return func(g *Gateway) { g.candleSources = s }
}

// WithVolatilitySources replaces the volatility index sources.
func WithVolatilitySources(s ...Source[[]models.VolatilitySample]) Option {
	return func(g *Gateway) { g.volSources = s }
}

// WithPriceSources replaces the spot price sources.
func WithPriceSources(s ...Source[float64]) Option {
	return func(g *Gateway) { g.priceSources = s }
}

// NewGateway creates a Gateway over the default providers.
func NewGateway(cfg Config, logger zerolog.Logger, opts ...Option) *Gateway {
	client := &http.Client{Timeout: cfg.RequestTimeout}
	l := logger.With().Str("component", "marketdata").Logger()

	deribit := &DeribitClient{p: newProvider("deribit", cfg.DeribitURL, cfg, client, l)}
	history := &DeribitClient{p: newProvider("deribit-history", cfg.DeribitHistoryURL, cfg, client, l)}
	binance := &BinanceClient{p: newProvider("binance", cfg.BinanceURL, cfg, client, l)}
	coinbase := &CoinbaseClient{p: newProvider("coinbase", cfg.CoinbaseURL, cfg, client, l)}

	g := &Gateway{
		retry: retry.NewClient(l, retry.Config{
			MaxAttempts: cfg.MaxAttempts,
			Delay:       cfg.RetryDelay,
			Timeout:     cfg.RequestTimeout,
		}),
		logger:        l,
		now:           time.Now,
		candleSources: DefaultCandleSources(deribit, binance),
		volSources:    DefaultVolatilitySources(deribit, history),
		priceSources:  DefaultPriceSources(deribit, binance, coinbase),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// DefaultCandleSources is Deribit's perpetual chart, then Binance klines.
func DefaultCandleSources(deribit *DeribitClient, binance *BinanceClient) []Source[[]models.PriceCandle] {
	return []Source[[]models.PriceCandle]{
		{
			Name:     "deribit:BTC-PERPETUAL",
			Provider: "deribit",
			Fetch: func(ctx context.Context, w Window) ([]models.PriceCandle, error) {
				return deribit.ChartData(ctx, "BTC-PERPETUAL", w.Interval, w.Start, w.End)
			},
		},
		{
			Name:     "binance:BTCUSDT",
			Provider: "binance",
			Fetch: func(ctx context.Context, w Window) ([]models.PriceCandle, error) {
				return binance.Klines(ctx, "BTCUSDT", w.Interval, w.Start, w.End)
			},
		},
	}
}

// DefaultVolatilitySources tries both DVOL instrument ids on the chart
// endpoint, then the volatility index endpoint on the primary and history hosts.
func DefaultVolatilitySources(deribit, history *DeribitClient) []Source[[]models.VolatilitySample] {
	chart := func(instrument string) func(ctx context.Context, w Window) ([]models.VolatilitySample, error) {
		return func(ctx context.Context, w Window) ([]models.VolatilitySample, error) {
			candles, err := deribit.ChartData(ctx, instrument, 24*time.Hour, w.Start, w.End)
			if err != nil {
				return nil, err
			}
			return toVolatilitySamples(candles), nil
		}
	}
	return []Source[[]models.VolatilitySample]{
		{Name: "deribit:BTC-DVOL", Provider: "deribit", Fetch: chart("BTC-DVOL")},
		{Name: "deribit:DVOL", Provider: "deribit", Fetch: chart("DVOL")},
		{
			Name:     "deribit:volatility_index:BTC",
			Provider: "deribit",
			Fetch: func(ctx context.Context, w Window) ([]models.VolatilitySample, error) {
				return deribit.VolatilityIndexData(ctx, "BTC", w.Start, w.End)
			},
		},
		{
			Name:     "deribit-history:volatility_index:BTC",
			Provider: "deribit-history",
			Fetch: func(ctx context.Context, w Window) ([]models.VolatilitySample, error) {
				return history.VolatilityIndexData(ctx, "BTC", w.Start, w.End)
			},
		},
	}
}

// DefaultPriceSources is the Deribit ticker and index, then Binance, then Coinbase.
func DefaultPriceSources(deribit *DeribitClient, binance *BinanceClient, coinbase *CoinbaseClient) []Source[float64] {
	return []Source[float64]{
		{
			Name:     "deribit:ticker:BTC-PERPETUAL",
			Provider: "deribit",
			Fetch: func(ctx context.Context, _ Window) (float64, error) {
				return deribit.Ticker(ctx, "BTC-PERPETUAL")
			},
		},
		{
			Name:     "deribit:index:btc_usd",
			Provider: "deribit",
			Fetch: func(ctx context.Context, _ Window) (float64, error) {
				return deribit.IndexPrice(ctx, "btc_usd")
			},
		},
		{
			Name:     "binance:ticker:BTCUSDT",
			Provider: "binance",
			Fetch: func(ctx context.Context, _ Window) (float64, error) {
				return binance.TickerPrice(ctx, "BTCUSDT")
			},
		},
		{
			Name:     "coinbase:spot:BTC-USD",
			Provider: "coinbase",
			Fetch: func(ctx context.Context, _ Window) (float64, error) {
				return coinbase.SpotPrice(ctx, "BTC-USD")
			},
		},
	}
}

// FetchSpotCandles returns ascending spot candles covering lookbackDays.
func (g *Gateway) FetchSpotCandles(ctx context.Context, interval time.Duration, lookbackDays int) ([]models.PriceCandle, error) {
	return fetchWithFallback(ctx, g, OpSpotCandles, g.candleSources, g.window(interval, lookbackDays),
		func(c []models.PriceCandle) error {
			if len(c) == 0 {
				return ErrEmptySeries
			}
			return nil
		})
}

// FetchVolatilityIndex returns ascending daily DVOL samples covering lookbackDays.
func (g *Gateway) FetchVolatilityIndex(ctx context.Context, lookbackDays int) ([]models.VolatilitySample, error) {
	return fetchWithFallback(ctx, g, OpVolatilityIndex, g.volSources, g.window(24*time.Hour, lookbackDays),
		func(s []models.VolatilitySample) error {
			if len(s) == 0 {
				return ErrEmptySeries
			}
			return nil
		})
}

// FetchSpotPrice returns the current BTC spot price.
func (g *Gateway) FetchSpotPrice(ctx context.Context) (float64, error) {
	return fetchWithFallback(ctx, g, OpSpotPrice, g.priceSources, Window{End: g.now().UTC()},
		func(p float64) error {
			if !(p > 0) {
				return fmt.Errorf("non-positive spot price %v", p)
			}
			return nil
		})
}

func (g *Gateway) window(interval time.Duration, lookbackDays int) Window {
	end := g.now().UTC()
	return Window{
		Start:    end.AddDate(0, 0, -lookbackDays),
		End:      end,
		Interval: interval,
	}
}

// fetchWithFallback walks sources in order. Each source gets the full retry
// budget; the first success wins and later sources are not contacted.
func fetchWithFallback[T any](ctx context.Context, g *Gateway, op string, sources []Source[T], w Window, valid func(T) error) (T, error) {
	var zero T
	var errs []error

	for _, src := range sources {
		res, err := retry.Do(ctx, g.retry, src.Name, func(ctx context.Context) (T, error) {
			v, err := src.Fetch(ctx, w)
			if err == nil {
				err = valid(v)
			}
			if g.observer != nil {
				g.observer(op, src.Name, err)
			}
			return v, err
		})
		if err == nil {
			g.logger.Info().Str("operation", op).Str("source", src.Name).Msg("Fetched market data")
			return res, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, fmt.Errorf("%s: %w", op, ctxErr)
		}
		g.logger.Warn().Str("operation", op).Str("source", src.Name).Err(err).Msg("Source failed, trying next")
		errs = append(errs, fmt.Errorf("%s: %w", src.Name, err))
	}

	if len(errs) == 0 {
		errs = append(errs, errors.New("no sources configured"))
	}
	g.logger.Error().Str("operation", op).Int("sources", len(sources)).Msg("All sources failed")
	return zero, &DataUnavailableError{Operation: op, Err: errors.Join(errs...)}
}
