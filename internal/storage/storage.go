// Package storage persists the weekly signal decision and the settlement
// log as JSON files.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/eddiefleurent/straddle_signal/internal/models"
)

// JSONStorage keeps the current decision and the settlement log in two
// JSON files. Every write goes to a temp file that is renamed into place.
// Each file is read on first use, so a damaged settlement log never blocks
// an entry run and a damaged decision file is simply overwritten by one.
type JSONStorage struct {
	mu             sync.Mutex
	statePath      string
	logPath        string
	historyLimit   int
	decision       *models.SignalDecision
	decisionLoaded bool
	log            []models.SettlementResult
	logLoaded      bool
}

// NewJSONStorage opens the store. No file is read until it is needed.
func NewJSONStorage(statePath, logPath string, historyLimit int) (*JSONStorage, error) {
	if statePath == "" || logPath == "" {
		return nil, fmt.Errorf("storage paths must not be empty")
	}
	for _, p := range []string{statePath, logPath} {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			return nil, fmt.Errorf("storage path %s is a directory", p)
		}
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &JSONStorage{
		statePath:    statePath,
		logPath:      logPath,
		historyLimit: historyLimit,
	}, nil
}

func (s *JSONStorage) loadDecisionLocked() error {
	if s.decisionLoaded {
		return nil
	}
	var decision models.SignalDecision
	found, err := readJSON(s.statePath, &decision)
	if err != nil {
		return fmt.Errorf("reading %s: %w", s.statePath, err)
	}
	if found {
		if err := decision.Validate(); err != nil {
			return fmt.Errorf("stored decision in %s: %w", s.statePath, err)
		}
		s.decision = &decision
	}
	s.decisionLoaded = true
	return nil
}

func (s *JSONStorage) loadLogLocked() error {
	if s.logLoaded {
		return nil
	}
	var log []models.SettlementResult
	if _, err := readJSON(s.logPath, &log); err != nil {
		return fmt.Errorf("reading %s: %w", s.logPath, err)
	}
	s.log = trim(log, s.historyLimit)
	s.logLoaded = true
	return nil
}

// LoadDecision returns a copy of the stored decision, or ErrNoDecision.
func (s *JSONStorage) LoadDecision() (*models.SignalDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadDecisionLocked(); err != nil {
		return nil, err
	}
	if s.decision == nil {
		return nil, ErrNoDecision
	}
	return s.decision.Clone(), nil
}

// SaveDecision replaces the stored decision, whatever the file held before.
func (s *JSONStorage) SaveDecision(decision *models.SignalDecision) error {
	if err := decision.Validate(); err != nil {
		return fmt.Errorf("refusing to save decision: %w", err)
	}
	c := decision.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := writeJSONAtomic(s.statePath, c); err != nil {
		return fmt.Errorf("saving decision: %w", err)
	}
	s.decision = c
	s.decisionLoaded = true
	return nil
}

// AppendSettlement adds result to the log, evicting the oldest entries past
// the history limit. A result for a decision that was already settled
// replaces the earlier entry.
func (s *JSONStorage) AppendSettlement(result models.SettlementResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLogLocked(); err != nil {
		return err
	}

	next := appendResult(s.log, result, s.historyLimit)
	if err := writeJSONAtomic(s.logPath, next); err != nil {
		return fmt.Errorf("saving settlement log: %w", err)
	}
	s.log = next
	return nil
}

// Settlements returns a copy of the log, oldest first.
func (s *JSONStorage) Settlements() ([]models.SettlementResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLogLocked(); err != nil {
		return nil, err
	}
	out := make([]models.SettlementResult, len(s.log))
	copy(out, s.log)
	return out, nil
}

// Statistics summarizes the settlement log.
func (s *JSONStorage) Statistics() (*Statistics, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLogLocked(); err != nil {
		return nil, err
	}
	return computeStatistics(s.log), nil
}

// appendResult returns a new log with result appended, dropping an earlier
// entry for the same decision and trimming to limit.
func appendResult(log []models.SettlementResult, result models.SettlementResult, limit int) []models.SettlementResult {
	next := make([]models.SettlementResult, 0, len(log)+1)
	for _, r := range log {
		if result.DecisionID != "" && r.DecisionID == result.DecisionID {
			continue
		}
		next = append(next, r)
	}
	return trim(append(next, result), limit)
}

func trim(log []models.SettlementResult, limit int) []models.SettlementResult {
	if len(log) > limit {
		return append([]models.SettlementResult(nil), log[len(log)-limit:]...)
	}
	return log
}

// readJSON decodes path into v. A missing or empty file reports found=false.
func readJSON(path string, v any) (found bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	// Write to temp file first
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return err
	}

	// Atomic rename
	return os.Rename(tmpName, path)
}
