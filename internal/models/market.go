package models

import "time"

// PriceCandle is one OHLC bar of the underlying. Series are ordered by
// ascending Time.
type PriceCandle struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// VolatilitySample is a reduced candle carrying only the volatility index level.
type VolatilitySample struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}

// Snapshot feature names, used in error messages and logs.
const (
	FeatureSpotPrice    = "spot_price"
	FeatureImpliedVol   = "implied_vol"
	FeatureRealizedVol  = "realized_vol"
	FeatureZScore       = "dvol_zscore"
	FeatureTrendPercent = "trend_percent"
)

// MarketSnapshot is the derived feature vector consumed by the signal composer.
// A nil field means the feature could not be derived.
type MarketSnapshot struct {
	SpotPrice    *float64 `json:"spot_price,omitempty"`
	ImpliedVol   *float64 `json:"implied_vol,omitempty"`  // DVOL level, percent
	RealizedVol  *float64 `json:"realized_vol,omitempty"` // annualized, percent
	ZScore       *float64 `json:"zscore,omitempty"`
	TrendPercent *float64 `json:"trend_percent,omitempty"`
}

// MissingFeature returns the name of the first absent feature, or "" when the
// snapshot is complete.
func (s MarketSnapshot) MissingFeature() string {
	switch {
	case s.SpotPrice == nil:
		return FeatureSpotPrice
	case s.RealizedVol == nil:
		return FeatureRealizedVol
	case s.ImpliedVol == nil:
		return FeatureImpliedVol
	case s.ZScore == nil:
		return FeatureZScore
	case s.TrendPercent == nil:
		return FeatureTrendPercent
	}
	return ""
}

// Float returns a pointer to v. Handy for building snapshots.
func Float(v float64) *float64 {
	return &v
}
