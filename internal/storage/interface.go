package storage

import (
	"github.com/eddiefleurent/straddle_signal/internal/models"
)

// Interface defines the contract for decision and settlement persistence.
//
// Implementations must be safe for concurrent use. Values passed in are
// copied and values returned are copies; callers never share state with
// the store.
type Interface interface {
	// Decision state
	LoadDecision() (*models.SignalDecision, error)
	SaveDecision(decision *models.SignalDecision) error

	// Settlement log and analytics
	AppendSettlement(result models.SettlementResult) error
	Settlements() ([]models.SettlementResult, error)
	Statistics() (*Statistics, error)
}

// DefaultHistoryLimit is the number of settlements kept in the log.
const DefaultHistoryLimit = 200

// Default file names inside the storage directory.
const (
	DefaultStateFile = "signal_state.json"
	DefaultLogFile   = "trade_log.json"
)

// NewStorage creates a new storage implementation (currently JSON-based)
func NewStorage(statePath, logPath string, historyLimit int) (Interface, error) {
	return NewJSONStorage(statePath, logPath, historyLimit)
}

// Ensure JSONStorage implements Interface
var _ Interface = (*JSONStorage)(nil)
