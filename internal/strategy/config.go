package strategy

import (
	"fmt"

	"github.com/eddiefleurent/straddle_signal/internal/stats"
)

// SignalConfig holds every threshold and window the composer uses.
// It is passed by value; the composer never modifies it.
type SignalConfig struct {
	// Variance risk premium bands, in vol points.
	VRPStrongSell   float64
	VRPMildSell     float64
	VRPStrongBuy    float64
	VRPMildBuy      float64
	VRPStrongWeight float64
	VRPMildWeight   float64

	// DVOL z-score bands. The buy side uses the negated values.
	ZScoreStrong       float64
	ZScoreMild         float64
	ZScoreStrongWeight float64
	ZScoreMildWeight   float64

	TrendThreshold  float64 // |trend %| above which short vol is dampened
	TrendDampening  float64 // multiplier applied to a positive score
	SignalThreshold float64 // |score| required to trade
	FullSizeScore   float64 // |score| at which size reaches 1.0

	StrikeIncrement float64
	HorizonDays     float64

	RVWindow           int
	ZScoreWindow       int
	SMADays            int
	BarsPerYear        float64
	CandleLookbackDays int
	VolLookbackDays    int
}

// DefaultSignalConfig returns the production thresholds.
func DefaultSignalConfig() SignalConfig {
	return SignalConfig{
		VRPStrongSell:      15,
		VRPMildSell:        5,
		VRPStrongBuy:       -10,
		VRPMildBuy:         -3,
		VRPStrongWeight:    1.5,
		VRPMildWeight:      0.75,
		ZScoreStrong:       1.5,
		ZScoreMild:         0.75,
		ZScoreStrongWeight: 0.75,
		ZScoreMildWeight:   0.35,
		TrendThreshold:     8,
		TrendDampening:     0.5,
		SignalThreshold:    0.5,
		FullSizeScore:      2,
		StrikeIncrement:    100,
		HorizonDays:        5,
		RVWindow:           stats.DefaultRVWindow,
		ZScoreWindow:       stats.DefaultZScoreWindow,
		SMADays:            stats.DefaultSMADays,
		BarsPerYear:        stats.BarsPerYear4h,
		CandleLookbackDays: 30,
		VolLookbackDays:    60,
	}
}

// Validate checks that the bands are ordered and the windows usable.
func (c SignalConfig) Validate() error {
	if !(c.VRPStrongSell > c.VRPMildSell && c.VRPMildSell >= c.VRPMildBuy && c.VRPMildBuy > c.VRPStrongBuy) {
		return fmt.Errorf("vrp bands must satisfy strong_sell > mild_sell >= mild_buy > strong_buy")
	}
	if c.ZScoreStrong <= c.ZScoreMild || c.ZScoreMild < 0 {
		return fmt.Errorf("zscore bands must satisfy strong > mild >= 0")
	}
	if c.TrendThreshold < 0 {
		return fmt.Errorf("trend threshold must be >= 0")
	}
	if c.TrendDampening < 0 || c.TrendDampening > 1 {
		return fmt.Errorf("trend dampening must be in [0,1]")
	}
	if c.SignalThreshold < 0 {
		return fmt.Errorf("signal threshold must be >= 0")
	}
	if c.FullSizeScore <= 0 {
		return fmt.Errorf("full size score must be > 0")
	}
	if c.StrikeIncrement <= 0 {
		return fmt.Errorf("strike increment must be > 0")
	}
	if c.HorizonDays <= 0 {
		return fmt.Errorf("horizon days must be > 0")
	}
	if c.RVWindow < 2 || c.ZScoreWindow < 2 || c.SMADays < 1 {
		return fmt.Errorf("windows too small (rv=%d zscore=%d sma=%d)", c.RVWindow, c.ZScoreWindow, c.SMADays)
	}
	if c.BarsPerYear <= 0 {
		return fmt.Errorf("bars per year must be > 0")
	}
	if c.CandleLookbackDays < c.SMADays {
		return fmt.Errorf("candle lookback (%d days) shorter than sma window (%d days)", c.CandleLookbackDays, c.SMADays)
	}
	if c.VolLookbackDays < c.ZScoreWindow {
		return fmt.Errorf("vol lookback (%d days) shorter than zscore window (%d)", c.VolLookbackDays, c.ZScoreWindow)
	}
	return nil
}
