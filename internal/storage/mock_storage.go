package storage

import (
	"sync"

	"github.com/eddiefleurent/straddle_signal/internal/models"
)

// MockStorage implements Interface in memory for testing. It applies the
// same replace-by-decision and history trimming rules as JSONStorage.
type MockStorage struct {
	mu              sync.Mutex
	saveError       error
	loadError       error
	appendError     error
	logError        error
	historyLimit    int
	decision        *models.SignalDecision
	log             []models.SettlementResult
	saveCallCount   int
	loadCallCount   int
	appendCallCount int
}

// NewMockStorage creates a new mock storage for testing
func NewMockStorage() *MockStorage {
	return &MockStorage{historyLimit: DefaultHistoryLimit}
}

// LoadDecision returns the stored decision, ErrNoDecision, or the injected load error.
func (m *MockStorage) LoadDecision() (*models.SignalDecision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadCallCount++
	if m.loadError != nil {
		return nil, m.loadError
	}
	if m.decision == nil {
		return nil, ErrNoDecision
	}
	return m.decision.Clone(), nil
}

// SaveDecision stores a copy of decision unless a save error is injected.
func (m *MockStorage) SaveDecision(decision *models.SignalDecision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCallCount++
	if m.saveError != nil {
		return m.saveError
	}
	m.decision = decision.Clone()
	return nil
}

// AppendSettlement records result unless an append or log error is injected.
func (m *MockStorage) AppendSettlement(result models.SettlementResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendCallCount++
	if m.appendError != nil {
		return m.appendError
	}
	if m.logError != nil {
		return m.logError
	}
	m.log = appendResult(m.log, result, m.historyLimit)
	return nil
}

// Settlements returns a copy of the log.
func (m *MockStorage) Settlements() ([]models.SettlementResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logError != nil {
		return nil, m.logError
	}
	return append([]models.SettlementResult(nil), m.log...), nil
}

// Statistics summarizes the log.
func (m *MockStorage) Statistics() (*Statistics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.logError != nil {
		return nil, m.logError
	}
	return computeStatistics(m.log), nil
}

// Mock control methods for testing

// SetDecision seeds the stored decision.
func (m *MockStorage) SetDecision(d *models.SignalDecision) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.decision = d.Clone()
}

// SetHistoryLimit changes how many settlements are kept.
func (m *MockStorage) SetHistoryLimit(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n <= 0 {
		n = DefaultHistoryLimit
	}
	m.historyLimit = n
}

func (m *MockStorage) SetSaveError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveError = err
}

func (m *MockStorage) SetLoadError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadError = err
}

func (m *MockStorage) SetAppendError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appendError = err
}

// SetLogError makes every settlement log access fail, like an unreadable log file.
func (m *MockStorage) SetLogError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logError = err
}

func (m *MockStorage) GetSaveCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveCallCount
}

func (m *MockStorage) GetLoadCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadCallCount
}

func (m *MockStorage) GetAppendCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendCallCount
}

// Ensure MockStorage implements Interface
var _ Interface = (*MockStorage)(nil)
