package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/eddiefleurent/straddle_signal/internal/models"
	"github.com/eddiefleurent/straddle_signal/internal/stats"
)

// SpotCandleInterval is the bar size the realized vol window is defined on.
const SpotCandleInterval = 4 * time.Hour

// MarketData is the subset of the market data gateway the analyzer needs.
type MarketData interface {
	FetchSpotCandles(ctx context.Context, interval time.Duration, lookbackDays int) ([]models.PriceCandle, error)
	FetchVolatilityIndex(ctx context.Context, lookbackDays int) ([]models.VolatilitySample, error)
	FetchSpotPrice(ctx context.Context) (float64, error)
}

// Analyzer fetches the raw series and reduces them to a MarketSnapshot.
type Analyzer struct {
	data   MarketData
	cfg    SignalConfig
	logger zerolog.Logger
}

// NewAnalyzer creates an Analyzer over the given market data source.
func NewAnalyzer(data MarketData, cfg SignalConfig, logger zerolog.Logger) *Analyzer {
	return &Analyzer{
		data:   data,
		cfg:    cfg,
		logger: logger.With().Str("component", "analyzer").Logger(),
	}
}

// Snapshot fetches candles, the volatility index and spot, in that order.
// Fetch failures are returned as errors; features that cannot be derived
// are left nil in the snapshot.
func (a *Analyzer) Snapshot(ctx context.Context) (models.MarketSnapshot, error) {
	a.logger.Info().Msg("Fetching live market data")

	candles, err := a.data.FetchSpotCandles(ctx, SpotCandleInterval, a.cfg.CandleLookbackDays)
	if err != nil {
		return models.MarketSnapshot{}, fmt.Errorf("fetching spot candles: %w", err)
	}
	a.logger.Info().Int("count", len(candles)).Msg("Spot 4h candles")

	vol, err := a.data.FetchVolatilityIndex(ctx, a.cfg.VolLookbackDays)
	if err != nil {
		return models.MarketSnapshot{}, fmt.Errorf("fetching volatility index: %w", err)
	}
	a.logger.Info().Int("count", len(vol)).Msg("DVOL daily samples")

	spot, err := a.data.FetchSpotPrice(ctx)
	if err != nil {
		return models.MarketSnapshot{}, fmt.Errorf("fetching spot price: %w", err)
	}
	a.logger.Info().Float64("spot", spot).Msg("Spot price")

	snap := BuildSnapshot(candles, vol, spot, a.cfg)
	if missing := snap.MissingFeature(); missing != "" {
		a.logger.Warn().Str("feature", missing).Msg("Snapshot incomplete")
	}
	return snap, nil
}

// BuildSnapshot runs the statistics engine over already fetched series.
func BuildSnapshot(candles []models.PriceCandle, vol []models.VolatilitySample, spot float64, cfg SignalConfig) models.MarketSnapshot {
	var snap models.MarketSnapshot
	if spot > 0 {
		snap.SpotPrice = models.Float(spot)
	}
	if rv, ok := stats.RealizedVolatilityWithBars(candles, cfg.RVWindow, cfg.BarsPerYear); ok {
		snap.RealizedVol = models.Float(rv)
	}
	if latest, z, ok := stats.VolatilityZScore(vol, cfg.ZScoreWindow); ok {
		snap.ImpliedVol = models.Float(latest)
		snap.ZScore = models.Float(z)
	}
	if trend, ok := stats.TrendPercent(candles, cfg.SMADays); ok {
		snap.TrendPercent = models.Float(trend)
	}
	return snap
}
