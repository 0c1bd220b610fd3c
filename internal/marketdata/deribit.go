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

// DeribitClient reads public market data from a Deribit API host. No key is needed.
type DeribitClient struct {
	p *provider
}

// ChartData returns OHLC candles for instrument from the tradingview chart endpoint.
func (d *DeribitClient) ChartData(ctx context.Context, instrument string, resolution time.Duration, start, end time.Time) ([]models.PriceCandle, error) {
	res, err := deribitResolution(resolution)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	q := url.Values{}
	q.Set("instrument_name", instrument)
	q.Set("start_timestamp", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("end_timestamp", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("resolution", res)

	body, err := d.p.getJSON(ctx, "/api/v2/public/get_tradingview_chart_data", q)
	if err != nil {
		return nil, err
	}
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		return nil, fmt.Errorf("deribit %s: %s", instrument, msg.String())
	}
	candles := parseColumnarCandles(gjson.GetBytes(body, "result"))
	if len(candles) == 0 {
		return nil, fmt.Errorf("deribit chart %s: %w", instrument, ErrEmptySeries)
	}
	return normalizeCandles(candles), nil
}

// VolatilityIndexData returns daily volatility index candles for currency
// from the get_volatility_index_data endpoint, whose rows are
// [timestamp, open, high, low, close].
func (d *DeribitClient) VolatilityIndexData(ctx context.Context, currency string, start, end time.Time) ([]models.VolatilitySample, error) {
	q := url.Values{}
	q.Set("currency", currency)
	q.Set("start_timestamp", strconv.FormatInt(start.UnixMilli(), 10))
	q.Set("end_timestamp", strconv.FormatInt(end.UnixMilli(), 10))
	q.Set("resolution", "1D")

	body, err := d.p.getJSON(ctx, "/api/v2/public/get_volatility_index_data", q)
	if err != nil {
		return nil, err
	}
	if msg := gjson.GetBytes(body, "error.message"); msg.Exists() {
		return nil, fmt.Errorf("deribit volatility index %s: %s", currency, msg.String())
	}
	candles := parseRowCandles(gjson.GetBytes(body, "result.data"))
	if len(candles) == 0 {
		return nil, fmt.Errorf("deribit volatility index %s: %w", currency, ErrEmptySeries)
	}
	return toVolatilitySamples(normalizeCandles(candles)), nil
}

// Ticker returns the last traded price of instrument, falling back to the
// mark and index prices carried in the same response.
func (d *DeribitClient) Ticker(ctx context.Context, instrument string) (float64, error) {
	q := url.Values{}
	q.Set("instrument_name", instrument)
	body, err := d.p.getJSON(ctx, "/api/v2/public/ticker", q)
	if err != nil {
		return 0, err
	}
	price, err := extractSpotPrice(body)
	if err != nil {
		return 0, fmt.Errorf("deribit ticker %s: %w", instrument, err)
	}
	return price, nil
}

// IndexPrice returns the current value of a Deribit price index such as btc_usd.
func (d *DeribitClient) IndexPrice(ctx context.Context, index string) (float64, error) {
	q := url.Values{}
	q.Set("index_name", index)
	body, err := d.p.getJSON(ctx, "/api/v2/public/get_index_price", q)
	if err != nil {
		return 0, err
	}
	price, err := extractSpotPrice(body)
	if err != nil {
		return 0, fmt.Errorf("deribit index %s: %w", index, err)
	}
	return price, nil
}

// deribitResolution maps a bar size to the chart endpoint's resolution
// parameter: minutes, or "1D" for daily bars.
func deribitResolution(d time.Duration) (string, error) {
	switch {
	case d == 24*time.Hour:
		return "1D", nil
	case d >= time.Minute && d%time.Minute == 0 && d <= 12*time.Hour:
		return strconv.Itoa(int(d / time.Minute)), nil
	}
	return "", fmt.Errorf("unsupported deribit resolution %v", d)
}
