package marketdata

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/eddiefleurent/straddle_signal/internal/models"
	"github.com/eddiefleurent/straddle_signal/internal/retry"
)

const binanceMaxKlines = 1000

// BinanceClient reads spot klines and prices from the Binance public API.
type BinanceClient struct {
	p *provider
}

// Klines returns OHLC candles for symbol at the given bar size.
func (b *BinanceClient) Klines(ctx context.Context, symbol string, interval time.Duration, start, end time.Time) ([]models.PriceCandle, error) {
	iv, err := binanceInterval(interval)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("interval", iv)
	q.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("limit", strconv.Itoa(binanceMaxKlines))

	body, err := b.p.getJSON(ctx, "/api/v3/klines", q)
	if err != nil {
		return nil, err
	}
	candles := parseRowCandles(gjson.ParseBytes(body))
	if len(candles) == 0 {
		return nil, fmt.Errorf("binance klines %s: %w", symbol, ErrEmptySeries)
	}
	return normalizeCandles(candles), nil
}

// TickerPrice returns the latest traded price of symbol.
func (b *BinanceClient) TickerPrice(ctx context.Context, symbol string) (float64, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	body, err := b.p.getJSON(ctx, "/api/v3/ticker/price", q)
	if err != nil {
		return 0, err
	}
	price, err := extractSpotPrice(body)
	if err != nil {
		return 0, fmt.Errorf("binance ticker %s: %w", symbol, err)
	}
	return price, nil
}

var binanceIntervals = map[time.Duration]string{
	time.Minute:      "1m",
	5 * time.Minute:  "5m",
	15 * time.Minute: "15m",
	30 * time.Minute: "30m",
	time.Hour:        "1h",
	2 * time.Hour:    "2h",
	4 * time.Hour:    "4h",
	6 * time.Hour:    "6h",
	12 * time.Hour:   "12h",
	24 * time.Hour:   "1d",
}

func binanceInterval(d time.Duration) (string, error) {
	if iv, ok := binanceIntervals[d]; ok {
		return iv, nil
	}
	return "", fmt.Errorf("unsupported binance interval %v", d)
}
