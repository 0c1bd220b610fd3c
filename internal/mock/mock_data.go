// Package mock provides a synthetic BTC market for offline runs.
package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"sync"
	"time"

	"github.com/eddiefleurent/straddle_signal/internal/models"
)

// DataProvider generates random-walk spot candles and a DVOL series. It
// satisfies the analyzer's market data interface.
type DataProvider struct {
	mu        sync.Mutex
	spot      float64
	dvol      float64
	barMove   float64 // max fractional move per bar
	dvolMove  float64 // max absolute DVOL change per day
	random    func() float64
	now       func() time.Time
	failAfter int // fail every call after this many; <0 never
	calls     int
}

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		// Fallback to a reasonable default if crypto/rand fails
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// NewDataProvider returns a randomized market around typical BTC levels.
func NewDataProvider() *DataProvider {
	return &DataProvider{
		spot:      60000 + secureFloat64()*40000, // BTC between 60k-100k
		dvol:      35 + secureFloat64()*30,       // DVOL between 35-65
		barMove:   0.01,
		dvolMove:  2,
		random:    secureFloat64,
		now:       time.Now,
		failAfter: -1,
	}
}

// NewFlatDataProvider returns a market that never moves. Realized vol and
// trend come out as zero and the DVOL z-score as zero.
func NewFlatDataProvider(spot, dvol float64, now func() time.Time) *DataProvider {
	return &DataProvider{
		spot:      spot,
		dvol:      dvol,
		random:    func() float64 { return 0.5 },
		now:       now,
		failAfter: -1,
	}
}

// FailAfter makes every call after the first n return an error.
func (m *DataProvider) FailAfter(n int) *DataProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failAfter = n
	return m
}

func (m *DataProvider) begin(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.calls++
	if m.failAfter >= 0 && m.calls > m.failAfter {
		return fmt.Errorf("synthetic %s unavailable", op)
	}
	return nil
}

// FetchSpotCandles walks backwards from the current spot so the last close
// equals the price FetchSpotPrice reports.
func (m *DataProvider) FetchSpotCandles(ctx context.Context, interval time.Duration, lookbackDays int) ([]models.PriceCandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "candles"); err != nil {
		return nil, err
	}
	if interval <= 0 {
		return nil, fmt.Errorf("invalid interval %s", interval)
	}

	bars := int(time.Duration(lookbackDays) * 24 * time.Hour / interval)
	end := m.now().UTC().Truncate(interval)
	candles := make([]models.PriceCandle, bars)
	price := m.spot
	for i := bars - 1; i >= 0; i-- {
		open := price / (1 + m.step(m.barMove))
		candles[i] = models.PriceCandle{
			Time:  end.Add(-time.Duration(bars-1-i) * interval),
			Open:  open,
			High:  math.Max(open, price),
			Low:   math.Min(open, price),
			Close: price,
		}
		price = open
	}
	return candles, nil
}

// FetchVolatilityIndex returns daily DVOL samples ending at the current level.
func (m *DataProvider) FetchVolatilityIndex(ctx context.Context, lookbackDays int) ([]models.VolatilitySample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "volatility index"); err != nil {
		return nil, err
	}

	end := m.now().UTC().Truncate(24 * time.Hour)
	samples := make([]models.VolatilitySample, lookbackDays)
	v := m.dvol
	for i := lookbackDays - 1; i >= 0; i-- {
		samples[i] = models.VolatilitySample{
			Time:  end.AddDate(0, 0, -(lookbackDays - 1 - i)),
			Value: v,
		}
		v = math.Max(10, v-m.step(m.dvolMove))
	}
	return samples, nil
}

// FetchSpotPrice returns the current spot.
func (m *DataProvider) FetchSpotPrice(ctx context.Context) (float64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.begin(ctx, "spot price"); err != nil {
		return 0, err
	}
	return m.spot, nil
}

// Advance moves spot by pct percent, as if time had passed to expiry.
func (m *DataProvider) Advance(pct float64) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.spot *= 1 + pct/100
	return m.spot
}

// step returns a uniform value in [-size, size].
func (m *DataProvider) step(size float64) float64 {
	return (m.random() - 0.5) * 2 * size
}
