// Package stats derives volatility and trend features from raw market series.
// Every function is pure; "insufficient data" is reported through the ok
// return value rather than an error.
package stats

import (
	"math"
	"sort"

	"github.com/eddiefleurent/straddle_signal/internal/models"
)

const (
	// DefaultRVWindow is one week of 4-hour bars.
	DefaultRVWindow = 42
	// DefaultZScoreWindow is the DVOL lookback in daily samples.
	DefaultZScoreWindow = 30
	// DefaultSMADays is the trend baseline length in days.
	DefaultSMADays = 20
	// BarsPerYear4h is the annualisation factor for 4-hour bars on a 24/7 market.
	BarsPerYear4h = (24 / 4) * 365

	// zeroVarianceStd replaces the standard deviation of a flat series.
	zeroVarianceStd = 0.01
)

// RealizedVolatility returns annualized realized volatility in percent over
// the most recent window log-returns of 4-hour candles.
func RealizedVolatility(candles []models.PriceCandle, window int) (float64, bool) {
	return RealizedVolatilityWithBars(candles, window, BarsPerYear4h)
}

// RealizedVolatilityWithBars is RealizedVolatility with an explicit
// bars-per-year annualisation factor.
func RealizedVolatilityWithBars(candles []models.PriceCandle, window int, barsPerYear float64) (float64, bool) {
	if window < 2 || len(candles) < window+1 {
		return 0, false
	}

	returns := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		prev, cur := candles[i-1].Close, candles[i].Close
		if prev > 0 && cur > 0 {
			returns = append(returns, math.Log(cur/prev))
		}
	}
	if len(returns) < window {
		return 0, false
	}

	_, variance := meanVariance(returns[len(returns)-window:])
	return math.Sqrt(variance) * math.Sqrt(barsPerYear) * 100, true
}

// VolatilityZScore returns the latest index level and how many sample
// standard deviations it sits from the mean of the last window samples.
func VolatilityZScore(samples []models.VolatilitySample, window int) (latest, z float64, ok bool) {
	if window < 2 || len(samples) < window {
		return 0, 0, false
	}

	values := make([]float64, 0, window)
	for _, s := range samples[len(samples)-window:] {
		values = append(values, s.Value)
	}
	mean, variance := meanVariance(values)

	std := zeroVarianceStd
	if variance > 0 {
		std = math.Sqrt(variance)
	}
	latest = samples[len(samples)-1].Value
	return latest, (latest - mean) / std, true
}

// TrendPercent collapses sub-daily candles to one close per UTC day (the last
// candle seen for a day wins) and returns the distance of the latest daily
// close from the smaDays simple moving average, in percent.
func TrendPercent(candles []models.PriceCandle, smaDays int) (float64, bool) {
	if smaDays < 1 {
		return 0, false
	}
	daily := DailyCloses(candles)
	if len(daily) < smaDays {
		return 0, false
	}

	recent := daily[len(daily)-smaDays:]
	var sum float64
	for _, c := range recent {
		sum += c
	}
	sma := sum / float64(len(recent))
	if sma == 0 {
		return 0, false
	}
	current := recent[len(recent)-1]
	return (current - sma) / sma * 100, true
}

// DailyCloses returns one close per UTC calendar day, ordered by day.
func DailyCloses(candles []models.PriceCandle) []float64 {
	byDay := make(map[string]float64, len(candles)/6+1)
	for _, c := range candles {
		byDay[c.Time.UTC().Format(models.DateLayout)] = c.Close
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	closes := make([]float64, len(days))
	for i, d := range days {
		closes[i] = byDay[d]
	}
	return closes
}

// meanVariance returns the mean and the sample variance (n-1 denominator).
func meanVariance(values []float64) (float64, float64) {
	n := float64(len(values))
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / n

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	return mean, sq / (n - 1)
}
