package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/straddle_signal/internal/models"
)

func settlements(t *testing.T, s Interface) []models.SettlementResult {
	t.Helper()
	log, err := s.Settlements()
	require.NoError(t, err)
	return log
}

func newTestStorage(t *testing.T, limit int) (*JSONStorage, string, string) {
	t.Helper()
	dir := t.TempDir()
	state := filepath.Join(dir, DefaultStateFile)
	logFile := filepath.Join(dir, DefaultLogFile)
	s, err := NewJSONStorage(state, logFile, limit)
	require.NoError(t, err)
	return s, state, logFile
}

func TestJSONStorage_PersistsAcrossReopen(t *testing.T) {
	s, state, logFile := newTestStorage(t, 0)
	require.NoError(t, s.SaveDecision(testDecision()))
	require.NoError(t, s.AppendSettlement(models.SettlementResult{DecisionID: "x", Position: models.PositionShort, PnL: 400}))

	reopened, err := NewJSONStorage(state, logFile, 0)
	require.NoError(t, err)

	d, err := reopened.LoadDecision()
	require.NoError(t, err)
	assert.Equal(t, testDecision(), d)
	assert.Len(t, settlements(t, reopened), 1)

	raw, err := os.ReadFile(state)
	require.NoError(t, err)
	var keys map[string]any
	require.NoError(t, json.Unmarshal(raw, &keys))
	for _, k := range []string{"date", "btc", "dvol", "rv", "vrp", "zscore", "trend", "score", "position", "size", "strike", "premium"} {
		assert.Contains(t, keys, k)
	}

	entries, err := os.ReadDir(filepath.Dir(state))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp", "temp file left behind")
	}
}

func TestJSONStorage_SaveOverwrites(t *testing.T) {
	s, _, _ := newTestStorage(t, 0)
	first := testDecision()
	require.NoError(t, s.SaveDecision(first))

	second := testDecision()
	second.ID = "second"
	second.Position = models.PositionFlat
	second.SizeFraction = 0
	require.NoError(t, s.SaveDecision(second))

	got, err := s.LoadDecision()
	require.NoError(t, err)
	assert.Equal(t, "second", got.ID)
	assert.Equal(t, models.PositionFlat, got.Position)
}

func TestJSONStorage_RejectsInvalidDecision(t *testing.T) {
	s, state, _ := newTestStorage(t, 0)
	bad := testDecision()
	bad.SizeFraction = 2
	assert.Error(t, s.SaveDecision(bad))
	assert.Error(t, s.SaveDecision(nil))

	_, err := os.Stat(state)
	assert.True(t, os.IsNotExist(err), "nothing should be written for an invalid decision")
}

func TestJSONStorage_HistoryLimitEvictsOldest(t *testing.T) {
	s, _, logFile := newTestStorage(t, 3)
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.AppendSettlement(models.SettlementResult{
			DecisionID: fmt.Sprintf("d-%d", i),
			Position:   models.PositionShort,
			PnL:        float64(i),
		}))
	}

	log := settlements(t, s)
	require.Len(t, log, 3)
	assert.Equal(t, []string{"d-3", "d-4", "d-5"}, []string{log[0].DecisionID, log[1].DecisionID, log[2].DecisionID})

	raw, err := os.ReadFile(logFile)
	require.NoError(t, err)
	var onDisk []models.SettlementResult
	require.NoError(t, json.Unmarshal(raw, &onDisk))
	assert.Len(t, onDisk, 3)
}

func TestJSONStorage_DefaultHistoryLimit(t *testing.T) {
	s, _, _ := newTestStorage(t, 0)
	for i := 0; i < DefaultHistoryLimit+5; i++ {
		require.NoError(t, s.AppendSettlement(models.SettlementResult{DecisionID: fmt.Sprint(i), Position: models.PositionShort}))
	}
	log := settlements(t, s)
	require.Len(t, log, DefaultHistoryLimit)
	assert.Equal(t, "5", log[0].DecisionID)
}

func TestJSONStorage_ResettlingReplacesEntry(t *testing.T) {
	s, _, _ := newTestStorage(t, 0)
	require.NoError(t, s.AppendSettlement(models.SettlementResult{DecisionID: "a", Position: models.PositionShort, PnL: 100}))
	require.NoError(t, s.AppendSettlement(models.SettlementResult{DecisionID: "b", Position: models.PositionShort, PnL: 50}))
	require.NoError(t, s.AppendSettlement(models.SettlementResult{DecisionID: "a", Position: models.PositionShort, PnL: 120}))

	log := settlements(t, s)
	require.Len(t, log, 2)
	assert.Equal(t, "b", log[0].DecisionID)
	assert.Equal(t, 120.0, log[1].PnL)

	// results without a decision id are always appended
	require.NoError(t, s.AppendSettlement(models.SettlementResult{Position: models.PositionShort}))
	require.NoError(t, s.AppendSettlement(models.SettlementResult{Position: models.PositionShort}))
	assert.Len(t, settlements(t, s), 4)
}

func TestJSONStorage_ReturnedLogIsACopy(t *testing.T) {
	s, _, _ := newTestStorage(t, 0)
	require.NoError(t, s.AppendSettlement(models.SettlementResult{DecisionID: "a", PnL: 1}))
	log := settlements(t, s)
	log[0].PnL = 999
	assert.Equal(t, 1.0, settlements(t, s)[0].PnL)
}

func TestJSONStorage_CorruptDecisionFile(t *testing.T) {
	for name, body := range map[string]string{
		"not json":        "{not json",
		"invalid payload": `{"position":"HEDGE","size":0.5,"strike":1}`,
	} {
		t.Run(name, func(t *testing.T) {
			dir := t.TempDir()
			state := filepath.Join(dir, DefaultStateFile)
			require.NoError(t, os.WriteFile(state, []byte(body), 0o644))

			s, err := NewJSONStorage(state, filepath.Join(dir, DefaultLogFile), 0)
			require.NoError(t, err, "opening must not read the files")

			_, err = s.LoadDecision()
			assert.Error(t, err)
			assert.NotErrorIs(t, err, ErrNoDecision)

			// an entry run overwrites the damaged file
			require.NoError(t, s.SaveDecision(testDecision()))
			d, err := s.LoadDecision()
			require.NoError(t, err)
			assert.Equal(t, testDecision().ID, d.ID)
		})
	}
}

func TestJSONStorage_CorruptLogOnlyAffectsLogAccess(t *testing.T) {
	dir := t.TempDir()
	state := filepath.Join(dir, DefaultStateFile)
	logFile := filepath.Join(dir, DefaultLogFile)
	require.NoError(t, os.WriteFile(logFile, []byte("[1,2"), 0o644))

	s, err := NewJSONStorage(state, logFile, 0)
	require.NoError(t, err)

	require.NoError(t, s.SaveDecision(testDecision()))
	_, err = s.LoadDecision()
	require.NoError(t, err)

	_, err = s.Settlements()
	assert.Error(t, err)
	_, err = s.Statistics()
	assert.Error(t, err)
	assert.Error(t, s.AppendSettlement(models.SettlementResult{DecisionID: "a", Position: models.PositionShort}))

	raw, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t, "[1,2", string(raw), "a damaged log must not be overwritten")
}

func TestJSONStorage_EmptyFilesAreAbsent(t *testing.T) {
	dir := t.TempDir()
	state := filepath.Join(dir, DefaultStateFile)
	logFile := filepath.Join(dir, DefaultLogFile)
	require.NoError(t, os.WriteFile(state, nil, 0o644))
	require.NoError(t, os.WriteFile(logFile, nil, 0o644))

	s, err := NewJSONStorage(state, logFile, 0)
	require.NoError(t, err)
	_, err = s.LoadDecision()
	assert.ErrorIs(t, err, ErrNoDecision)
	assert.Empty(t, settlements(t, s))
}

func TestNewJSONStorage_InvalidPaths(t *testing.T) {
	dir := t.TempDir()
	_, err := NewJSONStorage("", filepath.Join(dir, DefaultLogFile), 0)
	assert.Error(t, err)

	_, err = NewJSONStorage(dir, filepath.Join(dir, DefaultLogFile), 0)
	assert.ErrorContains(t, err, "is a directory")
}

func TestNewJSONStorage_CreatesMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "state")
	s, err := NewJSONStorage(filepath.Join(dir, DefaultStateFile), filepath.Join(dir, DefaultLogFile), 0)
	require.NoError(t, err)
	require.NoError(t, s.SaveDecision(testDecision()))
	_, err = os.Stat(filepath.Join(dir, DefaultStateFile))
	assert.NoError(t, err)
}

func TestComputeStatistics(t *testing.T) {
	log := []models.SettlementResult{
		{Position: models.PositionShort, PnL: 400},
		{Position: models.PositionShort, PnL: 200},
		{Position: models.PositionFlat, PnL: 0},
		{Position: models.PositionLong, PnL: -300},
		{Position: models.PositionShort, PnL: -500},
		{Position: models.PositionShort, PnL: 0},
		{Position: models.PositionLong, PnL: 100},
	}
	stats := computeStatistics(log)
	assert.Equal(t, 6, stats.TotalTrades)
	assert.Equal(t, 1, stats.FlatWeeks)
	assert.Equal(t, 3, stats.WinningTrades)
	assert.Equal(t, 2, stats.LosingTrades)
	assert.InDelta(t, 60, stats.WinRate, 1e-9)
	assert.InDelta(t, -100, stats.TotalPnL, 1e-9)
	assert.InDelta(t, 700.0/3, stats.AverageWin, 1e-9)
	assert.InDelta(t, -400, stats.AverageLoss, 1e-9)
	// peak 600, trough -200
	assert.InDelta(t, 800, stats.MaxDrawdown, 1e-9)
	assert.Equal(t, 1, stats.CurrentStreak)

	empty := computeStatistics(nil)
	assert.Equal(t, &Statistics{}, empty)
}
