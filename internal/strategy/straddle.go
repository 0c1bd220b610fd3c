// Package strategy turns market features into a weekly ATM straddle
// decision and settles that decision at expiry.
package strategy

import (
	"fmt"
	"math"
	"time"

	"github.com/eddiefleurent/straddle_signal/internal/models"
	"github.com/eddiefleurent/straddle_signal/internal/pricing"
	"github.com/eddiefleurent/straddle_signal/internal/util"
)

// Composer scores a MarketSnapshot and maps it to a SignalDecision.
type Composer struct {
	cfg SignalConfig
}

// NewComposer creates a composer with the given thresholds.
func NewComposer(cfg SignalConfig) *Composer {
	return &Composer{cfg: cfg}
}

// Config returns a copy of the composer thresholds.
func (c *Composer) Config() SignalConfig {
	return c.cfg
}

// Compose derives the decision for snapshot as of asOf. It has no side
// effects: the same inputs always produce the same decision. The caller
// assigns the decision ID.
func (c *Composer) Compose(snap models.MarketSnapshot, asOf time.Time) (*models.SignalDecision, error) {
	if missing := snap.MissingFeature(); missing != "" {
		return nil, &InsufficientDataError{Feature: missing}
	}
	spot := *snap.SpotPrice
	iv := *snap.ImpliedVol
	rv := *snap.RealizedVol
	z := *snap.ZScore
	trend := *snap.TrendPercent
	if spot <= 0 {
		return nil, fmt.Errorf("spot price must be positive, got %.2f", spot)
	}

	vrp := iv - rv
	var reasons []string

	score, reason := c.vrpContribution(vrp)
	reasons = append(reasons, reason)

	if delta, reason := c.zScoreContribution(z); reason != "" {
		score += delta
		reasons = append(reasons, reason)
	}

	if math.Abs(trend) > c.cfg.TrendThreshold {
		if score > 0 {
			score *= c.cfg.TrendDampening
			reasons = append(reasons, fmt.Sprintf("trend %+.1f%% → short vol halved", trend))
		} else {
			reasons = append(reasons, fmt.Sprintf("trend %+.1f%% → supports long vol", trend))
		}
	}

	strike := util.RoundToIncrement(spot, c.cfg.StrikeIncrement)
	if strike <= 0 {
		return nil, fmt.Errorf("spot %.2f rounds to strike %.0f at increment %.0f", spot, strike, c.cfg.StrikeIncrement)
	}
	premium := pricing.StraddleFairValue(spot, strike, c.cfg.HorizonDays/365, iv/100)

	position := models.PositionFlat
	switch {
	case score > c.cfg.SignalThreshold:
		position = models.PositionShort
	case score < -c.cfg.SignalThreshold:
		position = models.PositionLong
	}

	size := 0.0
	if position != models.PositionFlat {
		size = math.Min(1, math.Abs(score)/c.cfg.FullSizeScore)
	}

	return &models.SignalDecision{
		CreatedAt:    asOf,
		AsOfDate:     asOf.Format(models.DateLayout),
		Position:     position,
		Reasons:      reasons,
		SpotPrice:    spot,
		ImpliedVol:   iv,
		RealizedVol:  rv,
		VRP:          vrp,
		ZScore:       z,
		TrendPercent: trend,
		Score:        score,
		SizeFraction: size,
		Strike:       strike,
		Premium:      premium,
	}, nil
}

// vrpContribution always records a reason, including the neutral band.
func (c *Composer) vrpContribution(vrp float64) (float64, string) {
	switch {
	case vrp > c.cfg.VRPStrongSell:
		return c.cfg.VRPStrongWeight, fmt.Sprintf("VRP %+.1f → strong sell vol", vrp)
	case vrp > c.cfg.VRPMildSell:
		return c.cfg.VRPMildWeight, fmt.Sprintf("VRP %+.1f → mild sell vol", vrp)
	case vrp < c.cfg.VRPStrongBuy:
		return -c.cfg.VRPStrongWeight, fmt.Sprintf("VRP %+.1f → strong buy vol", vrp)
	case vrp < c.cfg.VRPMildBuy:
		return -c.cfg.VRPMildWeight, fmt.Sprintf("VRP %+.1f → mild buy vol", vrp)
	default:
		return 0, fmt.Sprintf("VRP %+.1f → neutral", vrp)
	}
}

// zScoreContribution returns an empty reason for the neutral band.
func (c *Composer) zScoreContribution(z float64) (float64, string) {
	switch {
	case z > c.cfg.ZScoreStrong:
		return c.cfg.ZScoreStrongWeight, fmt.Sprintf("DVOL z %+.2f → elevated", z)
	case z > c.cfg.ZScoreMild:
		return c.cfg.ZScoreMildWeight, fmt.Sprintf("DVOL z %+.2f → slightly high", z)
	case z < -c.cfg.ZScoreStrong:
		return -c.cfg.ZScoreStrongWeight, fmt.Sprintf("DVOL z %+.2f → depressed", z)
	case z < -c.cfg.ZScoreMild:
		return -c.cfg.ZScoreMildWeight, fmt.Sprintf("DVOL z %+.2f → slightly low", z)
	default:
		return 0, ""
	}
}
