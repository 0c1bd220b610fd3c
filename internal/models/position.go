package models

import (
	"fmt"
	"math"
	"time"
)

// DateLayout is the calendar date format used for entry and exit dates.
const DateLayout = "2006-01-02"

// Position is the discrete straddle decision.
type Position string

const (
	// PositionShort sells the ATM straddle.
	PositionShort Position = "SHORT"
	// PositionLong buys the ATM straddle.
	PositionLong Position = "LONG"
	// PositionFlat means no trade this week.
	PositionFlat Position = "FLAT"
)

// Valid returns true if the Position is one of the defined constants
func (p Position) Valid() bool {
	switch p {
	case PositionShort, PositionLong, PositionFlat:
		return true
	default:
		return false
	}
}

// SignalDecision is the artifact produced once per entry cycle and persisted
// as the only cross-cycle state.
type SignalDecision struct {
	CreatedAt    time.Time `json:"created_at"`
	ID           string    `json:"id"`
	AsOfDate     string    `json:"date"`
	Position     Position  `json:"position"`
	Reasons      []string  `json:"reasons"`
	SpotPrice    float64   `json:"btc"`
	ImpliedVol   float64   `json:"dvol"`
	RealizedVol  float64   `json:"rv"`
	VRP          float64   `json:"vrp"`
	ZScore       float64   `json:"zscore"`
	TrendPercent float64   `json:"trend"`
	Score        float64   `json:"score"`
	SizeFraction float64   `json:"size"`
	Strike       float64   `json:"strike"`
	Premium      float64   `json:"premium"`
}

// Validate checks the decision invariants.
func (d *SignalDecision) Validate() error {
	if d == nil {
		return fmt.Errorf("decision is nil")
	}
	if !d.Position.Valid() {
		return fmt.Errorf("invalid position %q", d.Position)
	}
	if d.SizeFraction < 0 || d.SizeFraction > 1 || math.IsNaN(d.SizeFraction) {
		return fmt.Errorf("size fraction %.4f outside [0,1]", d.SizeFraction)
	}
	if (d.Position == PositionFlat) != (d.SizeFraction == 0) {
		return fmt.Errorf("size fraction %.4f inconsistent with position %s", d.SizeFraction, d.Position)
	}
	if d.Premium < 0 || math.IsNaN(d.Premium) {
		return fmt.Errorf("premium must be non-negative, got %.4f", d.Premium)
	}
	if d.Strike <= 0 {
		return fmt.Errorf("strike must be positive, got %.2f", d.Strike)
	}
	return nil
}

// PremiumPercent returns the premium as a percentage of the entry spot price.
func (d *SignalDecision) PremiumPercent() float64 {
	if d.SpotPrice == 0 {
		return 0
	}
	return d.Premium / d.SpotPrice * 100
}

// Age returns how long ago the decision was created relative to now.
func (d *SignalDecision) Age(now time.Time) time.Duration {
	if d.CreatedAt.IsZero() {
		return 0
	}
	return now.Sub(d.CreatedAt)
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (d *SignalDecision) Clone() *SignalDecision {
	if d == nil {
		return nil
	}
	c := *d
	c.Reasons = append([]string(nil), d.Reasons...)
	return &c
}

// SettlementResult summarises a finished weekly round trip.
type SettlementResult struct {
	DecisionID   string   `json:"decision_id,omitempty"`
	EntryDate    string   `json:"entry_date"`
	ExitDate     string   `json:"exit_date"`
	Position     Position `json:"position"`
	SpotAtEntry  float64  `json:"btc_entry"`
	SpotAtExit   float64  `json:"btc_exit"`
	Strike       float64  `json:"strike"`
	Premium      float64  `json:"premium"`
	Intrinsic    float64  `json:"intrinsic"`
	SizeFraction float64  `json:"size"`
	UnsizedPnL   float64  `json:"pnl_unsized"`
	PnL          float64  `json:"pnl_usd"`
	ReturnPct    float64  `json:"return_pct"`
}

// IsWin reports whether the sized result was profitable.
func (s SettlementResult) IsWin() bool {
	return s.PnL > 0
}

// SpotMovePercent returns the underlying move between entry and exit in percent.
func (s SettlementResult) SpotMovePercent() float64 {
	if s.SpotAtEntry == 0 {
		return 0
	}
	return (s.SpotAtExit - s.SpotAtEntry) / s.SpotAtEntry * 100
}
