package strategy

import (
	"fmt"
	"math"

	"github.com/eddiefleurent/straddle_signal/internal/models"
)

// EvaluateSettlement settles decision against the spot price at expiry.
// Only intrinsic value is considered; the premium is the fair value
// recorded at entry.
func EvaluateSettlement(decision *models.SignalDecision, spotAtExit float64, exitDate string) (*models.SettlementResult, error) {
	if decision == nil {
		return nil, fmt.Errorf("no decision to settle")
	}
	if !decision.Position.Valid() {
		return nil, fmt.Errorf("decision %s has invalid position %q", decision.ID, decision.Position)
	}
	if spotAtExit <= 0 || math.IsNaN(spotAtExit) {
		return nil, fmt.Errorf("invalid exit spot price %.2f", spotAtExit)
	}

	intrinsic := math.Abs(spotAtExit - decision.Strike)

	var unsized float64
	switch decision.Position {
	case models.PositionShort:
		unsized = decision.Premium - intrinsic
	case models.PositionLong:
		unsized = intrinsic - decision.Premium
	}
	pnl := unsized * decision.SizeFraction

	var returnPct float64
	if decision.SpotPrice != 0 {
		returnPct = pnl / decision.SpotPrice * 100
	}

	return &models.SettlementResult{
		DecisionID:   decision.ID,
		EntryDate:    decision.AsOfDate,
		ExitDate:     exitDate,
		Position:     decision.Position,
		SpotAtEntry:  decision.SpotPrice,
		SpotAtExit:   spotAtExit,
		Strike:       decision.Strike,
		Premium:      decision.Premium,
		Intrinsic:    intrinsic,
		SizeFraction: decision.SizeFraction,
		UnsizedPnL:   unsized,
		PnL:          pnl,
		ReturnPct:    returnPct,
	}, nil
}
