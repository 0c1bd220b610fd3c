package storage

import "github.com/eddiefleurent/straddle_signal/internal/models"

// Statistics summarizes the settlement log. FLAT weeks are counted
// separately and never as trades.
type Statistics struct {
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	LosingTrades  int     `json:"losing_trades"`
	FlatWeeks     int     `json:"flat_weeks"`
	WinRate       float64 `json:"win_rate"` // percent of decided trades
	TotalPnL      float64 `json:"total_pnl"`
	AverageWin    float64 `json:"average_win"`
	AverageLoss   float64 `json:"average_loss"`
	MaxDrawdown   float64 `json:"max_drawdown"` // largest peak-to-trough drop in cumulative PnL
	CurrentStreak int     `json:"current_streak"`
}

// computeStatistics folds the log in order.
func computeStatistics(log []models.SettlementResult) *Statistics {
	stats := &Statistics{}
	var cumulative, peak float64

	for _, r := range log {
		if r.Position == models.PositionFlat {
			stats.FlatWeeks++
			continue
		}
		pnl := r.PnL
		stats.TotalTrades++
		stats.TotalPnL += pnl

		if pnl > 0 {
			stats.WinningTrades++
			stats.AverageWin += (pnl - stats.AverageWin) / float64(stats.WinningTrades)
			if stats.CurrentStreak >= 0 {
				stats.CurrentStreak++
			} else {
				stats.CurrentStreak = 1
			}
		} else if pnl < 0 {
			stats.LosingTrades++
			stats.AverageLoss += (pnl - stats.AverageLoss) / float64(stats.LosingTrades)
			if stats.CurrentStreak <= 0 {
				stats.CurrentStreak--
			} else {
				stats.CurrentStreak = -1
			}
		}
		// pnl == 0 is breakeven: neither a win nor a loss

		cumulative += pnl
		if cumulative > peak {
			peak = cumulative
		}
		if dd := peak - cumulative; dd > stats.MaxDrawdown {
			stats.MaxDrawdown = dd
		}
	}

	if decided := stats.WinningTrades + stats.LosingTrades; decided > 0 {
		stats.WinRate = float64(stats.WinningTrades) / float64(decided) * 100
	}
	return stats
}
