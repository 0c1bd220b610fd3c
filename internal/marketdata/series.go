package marketdata

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/tidwall/gjson"

	"github.com/eddiefleurent/straddle_signal/internal/models"
)

// spotPricePaths lists the response shapes a spot price is accepted from.
var spotPricePaths = []string{
	"result.last_price",
	"result.mark_price",
	"result.index_price",
	"price",
	"data.amount",
}

// numberOf reads a JSON number or numeric string.
func numberOf(r gjson.Result) (float64, bool) {
	switch r.Type {
	case gjson.Number:
		return r.Num, true
	case gjson.String:
		v, err := strconv.ParseFloat(r.Str, 64)
		if err != nil {
			return 0, false
		}
		return v, true
	}
	return 0, false
}

// extractSpotPrice returns the first positive finite value found under the
// known spot price paths.
func extractSpotPrice(body []byte) (float64, error) {
	for _, path := range spotPricePaths {
		v, ok := numberOf(gjson.GetBytes(body, path))
		if ok && v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v) {
			return v, nil
		}
	}
	return 0, fmt.Errorf("no positive spot price in response")
}

// parseColumnarCandles reads the parallel ticks/open/high/low/close arrays
// used by chart endpoints. Missing OHLC columns fall back to close.
func parseColumnarCandles(result gjson.Result) []models.PriceCandle {
	ticks := result.Get("ticks").Array()
	closes := result.Get("close").Array()
	opens := result.Get("open").Array()
	highs := result.Get("high").Array()
	lows := result.Get("low").Array()

	n := len(ticks)
	if len(closes) < n {
		n = len(closes)
	}
	out := make([]models.PriceCandle, 0, n)
	for i := 0; i < n; i++ {
		closeV, ok := numberOf(closes[i])
		if !ok {
			continue
		}
		c := models.PriceCandle{
			Time:  time.UnixMilli(ticks[i].Int()).UTC(),
			Open:  closeV,
			High:  closeV,
			Low:   closeV,
			Close: closeV,
		}
		if i < len(opens) {
			if v, ok := numberOf(opens[i]); ok {
				c.Open = v
			}
		}
		if i < len(highs) {
			if v, ok := numberOf(highs[i]); ok {
				c.High = v
			}
		}
		if i < len(lows) {
			if v, ok := numberOf(lows[i]); ok {
				c.Low = v
			}
		}
		out = append(out, c)
	}
	return out
}

// parseRowCandles reads [time, open, high, low, close, ...] rows, with
// values either numbers or numeric strings.
func parseRowCandles(rows gjson.Result) []models.PriceCandle {
	arr := rows.Array()
	out := make([]models.PriceCandle, 0, len(arr))
	for _, row := range arr {
		cols := row.Array()
		if len(cols) < 5 {
			continue
		}
		var vals [4]float64
		ok := true
		for j := range vals {
			v, good := numberOf(cols[j+1])
			if !good {
				ok = false
				break
			}
			vals[j] = v
		}
		if !ok {
			continue
		}
		out = append(out, models.PriceCandle{
			Time:  time.UnixMilli(cols[0].Int()).UTC(),
			Open:  vals[0],
			High:  vals[1],
			Low:   vals[2],
			Close: vals[3],
		})
	}
	return out
}

// normalizeCandles sorts ascending by time and keeps the last row seen for
// a duplicated timestamp.
func normalizeCandles(candles []models.PriceCandle) []models.PriceCandle {
	sort.SliceStable(candles, func(i, j int) bool {
		return candles[i].Time.Before(candles[j].Time)
	})
	out := candles[:0]
	for _, c := range candles {
		if n := len(out); n > 0 && out[n-1].Time.Equal(c.Time) {
			out[n-1] = c
			continue
		}
		out = append(out, c)
	}
	return out
}

// toVolatilitySamples reduces candles to their closing level.
func toVolatilitySamples(candles []models.PriceCandle) []models.VolatilitySample {
	out := make([]models.VolatilitySample, 0, len(candles))
	for _, c := range candles {
		out = append(out, models.VolatilitySample{Time: c.Time, Value: c.Close})
	}
	return out
}
