package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/straddle_signal/internal/marketdata"
	"github.com/eddiefleurent/straddle_signal/internal/metrics"
	"github.com/eddiefleurent/straddle_signal/internal/models"
	"github.com/eddiefleurent/straddle_signal/internal/notify"
	"github.com/eddiefleurent/straddle_signal/internal/storage"
	"github.com/eddiefleurent/straddle_signal/internal/strategy"
)

var (
	monday = time.Date(2025, 6, 2, 2, 30, 0, 0, time.UTC)
	friday = time.Date(2025, 6, 6, 8, 30, 0, 0, time.UTC)
)

type mockNotifier struct {
	mock.Mock
	messages []string
}

func (m *mockNotifier) Send(ctx context.Context, text string) error {
	m.messages = append(m.messages, text)
	args := m.Called(ctx, text)
	return args.Error(0)
}

type fakeAnalyzer struct {
	snapshot func() (models.MarketSnapshot, error)
	calls    int
}

func (f *fakeAnalyzer) Snapshot(ctx context.Context) (models.MarketSnapshot, error) {
	f.calls++
	return f.snapshot()
}

type fakePrices struct {
	spot  float64
	err   error
	calls int
}

func (f *fakePrices) FetchSpotPrice(ctx context.Context) (float64, error) {
	f.calls++
	return f.spot, f.err
}

func shortSnapshot() (models.MarketSnapshot, error) {
	return models.MarketSnapshot{
		SpotPrice:    models.Float(50012),
		ImpliedVol:   models.Float(25),
		RealizedVol:  models.Float(8),
		ZScore:       models.Float(2),
		TrendPercent: models.Float(2),
	}, nil
}

type fixture struct {
	runner   *Runner
	analyzer *fakeAnalyzer
	prices   *fakePrices
	store    *storage.MockStorage
	notifier *mockNotifier
}

func newFixture(t *testing.T, now time.Time) *fixture {
	t.Helper()
	f := &fixture{
		analyzer: &fakeAnalyzer{snapshot: shortSnapshot},
		prices:   &fakePrices{spot: 50800},
		store:    storage.NewMockStorage(),
		notifier: &mockNotifier{},
	}
	f.runner = &Runner{
		Analyzer:       f.analyzer,
		Prices:         f.prices,
		Composer:       strategy.NewComposer(strategy.DefaultSignalConfig()),
		Store:          f.store,
		Notifier:       f.notifier,
		Formatter:      notify.NewFormatter(time.UTC),
		Metrics:        metrics.New(),
		Location:       time.UTC,
		NextExpiry:     func(time.Time) time.Time { return time.Date(2025, 6, 6, 8, 0, 0, 0, time.UTC) },
		MaxDecisionAge: 7 * 24 * time.Hour,
		Now:            func() time.Time { return now },
		NewID:          func() string { return "dec-1" },
		Logger:         zerolog.Nop(),
	}
	return f
}

func (f *fixture) expectSend(err error) {
	f.notifier.On("Send", mock.Anything, mock.AnythingOfType("string")).Return(err)
}

func storedShort() *models.SignalDecision {
	return &models.SignalDecision{
		ID:           "dec-1",
		CreatedAt:    monday,
		AsOfDate:     "2025-06-02",
		Position:     models.PositionShort,
		Reasons:      []string{"VRP +17.0 → strong sell vol"},
		SpotPrice:    50000,
		ImpliedVol:   25,
		RealizedVol:  8,
		VRP:          17,
		Score:        2.25,
		SizeFraction: 1,
		Strike:       50000,
		Premium:      1200,
	}
}

func TestRunner_EntrySavesBeforeNotifying(t *testing.T) {
	f := newFixture(t, monday)
	f.notifier.On("Send", mock.Anything, mock.AnythingOfType("string")).
		Run(func(mock.Arguments) {
			assert.Equal(t, 1, f.store.GetSaveCallCount(), "decision must be saved before the message")
		}).
		Return(nil)

	code := f.runner.Run(context.Background(), ModeEntry)

	assert.Equal(t, 0, code)
	saved, err := f.store.LoadDecision()
	require.NoError(t, err)
	assert.Equal(t, "dec-1", saved.ID)
	assert.Equal(t, models.PositionShort, saved.Position)
	assert.Equal(t, 50000.0, saved.Strike)
	assert.InDelta(t, 2.25, saved.Score, 1e-9)
	assert.Equal(t, "2025-06-02", saved.AsOfDate)

	require.Len(t, f.notifier.messages, 1)
	msg := f.notifier.messages[0]
	assert.Contains(t, msg, "SELL ATM STRADDLE")
	assert.Contains(t, msg, "$50,000")
	assert.Contains(t, msg, "06 Jun 2025 (Fri) 08:00 UTC")
	f.notifier.AssertExpectations(t)
}

func TestRunner_EntryDataUnavailable(t *testing.T) {
	f := newFixture(t, monday)
	f.expectSend(nil)
	f.analyzer.snapshot = func() (models.MarketSnapshot, error) {
		return models.MarketSnapshot{}, &marketdata.DataUnavailableError{
			Operation: marketdata.OpVolatilityIndex,
			Err:       errors.New("all sources failed"),
		}
	}

	code := f.runner.Run(context.Background(), ModeEntry)

	assert.Equal(t, 1, code)
	assert.Equal(t, 0, f.store.GetSaveCallCount())
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "Market data unavailable")
}

func TestRunner_EntryInsufficientData(t *testing.T) {
	f := newFixture(t, monday)
	f.expectSend(nil)
	f.analyzer.snapshot = func() (models.MarketSnapshot, error) {
		snap, _ := shortSnapshot()
		snap.TrendPercent = nil
		return snap, nil
	}

	code := f.runner.Run(context.Background(), ModeEntry)

	assert.Equal(t, 1, code)
	assert.Equal(t, 0, f.store.GetSaveCallCount())
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "Insufficient data: "+models.FeatureTrendPercent)
}

func TestRunner_EntrySaveFailure(t *testing.T) {
	f := newFixture(t, monday)
	f.expectSend(nil)
	f.store.SetSaveError(errors.New("disk full"))

	code := f.runner.Run(context.Background(), ModeEntry)

	assert.Equal(t, 1, code)
	require.Len(t, f.notifier.messages, 1, "only the failure message is sent")
	assert.Contains(t, f.notifier.messages[0], "Unexpected failure")
	assert.Contains(t, f.notifier.messages[0], "disk full")
}

func TestRunner_DeliveryFailureDoesNotFailRun(t *testing.T) {
	f := newFixture(t, monday)
	f.expectSend(&notify.DeliveryError{Channel: "telegram", Err: errors.New("chat not found")})

	code := f.runner.Run(context.Background(), ModeEntry)

	assert.Equal(t, 0, code)
	assert.Equal(t, 1, f.store.GetSaveCallCount())
}

func TestRunner_DiagnosticPersistsNothing(t *testing.T) {
	f := newFixture(t, time.Date(2025, 6, 4, 9, 0, 0, 0, time.UTC))
	f.expectSend(nil)

	code := f.runner.Run(context.Background(), ModeDiagnostic)

	assert.Equal(t, 0, code)
	assert.Equal(t, 0, f.store.GetSaveCallCount())
	assert.Equal(t, 0, f.store.GetAppendCallCount())
	require.Len(t, f.notifier.messages, 1)
	assert.True(t, strings.HasPrefix(f.notifier.messages[0], "🧪 <b>TEST RUN (Wednesday)</b>"))
	assert.Contains(t, f.notifier.messages[0], "SELL ATM STRADDLE")
}

func TestRunner_DiagnosticFailureCarriesBanner(t *testing.T) {
	f := newFixture(t, time.Date(2025, 6, 4, 9, 0, 0, 0, time.UTC))
	f.expectSend(nil)
	f.analyzer.snapshot = func() (models.MarketSnapshot, error) {
		return models.MarketSnapshot{}, &marketdata.DataUnavailableError{Operation: marketdata.OpSpotCandles, Err: errors.New("down")}
	}

	code := f.runner.Run(context.Background(), ModeDiagnostic)

	assert.Equal(t, 1, code)
	require.Len(t, f.notifier.messages, 1)
	assert.True(t, strings.HasPrefix(f.notifier.messages[0], "🧪"))
	assert.Contains(t, f.notifier.messages[0], "Market data unavailable")
}

func TestRunner_ExitSettlesShort(t *testing.T) {
	f := newFixture(t, friday)
	f.expectSend(nil)
	f.store.SetDecision(storedShort())

	code := f.runner.Run(context.Background(), ModeExit)

	assert.Equal(t, 0, code)
	assert.Equal(t, 1, f.prices.calls)
	log, err := f.store.Settlements()
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, "dec-1", log[0].DecisionID)
	assert.Equal(t, "2025-06-06", log[0].ExitDate)
	assert.InDelta(t, 400, log[0].PnL, 1e-9)
	assert.InDelta(t, 800, log[0].Intrinsic, 1e-9)

	require.Len(t, f.notifier.messages, 1)
	msg := f.notifier.messages[0]
	assert.Contains(t, msg, "PROFIT")
	assert.Contains(t, msg, "+$400")
	assert.Contains(t, msg, "Trades: <b>1</b> (1W / 0L)")
}

func TestRunner_ExitWithoutDecision(t *testing.T) {
	f := newFixture(t, friday)
	f.expectSend(nil)

	code := f.runner.Run(context.Background(), ModeExit)

	assert.Equal(t, 0, code)
	assert.Equal(t, 1, f.store.GetLoadCallCount())
	assert.Equal(t, 0, f.prices.calls, "spot must not be fetched without a decision")
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "No Monday signal found")
}

func TestRunner_ExitLoadFailure(t *testing.T) {
	f := newFixture(t, friday)
	f.expectSend(nil)
	f.store.SetLoadError(errors.New("permission denied"))

	code := f.runner.Run(context.Background(), ModeExit)

	assert.Equal(t, 1, code)
	assert.Equal(t, 0, f.prices.calls)
}

func TestRunner_ExitAppendFailure(t *testing.T) {
	f := newFixture(t, friday)
	f.expectSend(nil)
	f.store.SetDecision(storedShort())
	f.store.SetAppendError(errors.New("read-only file system"))

	code := f.runner.Run(context.Background(), ModeExit)

	assert.Equal(t, 1, code)
	assert.Equal(t, 1, f.store.GetAppendCallCount())
	require.Len(t, f.notifier.messages, 1, "only the failure message is sent")
	assert.Contains(t, f.notifier.messages[0], "recording settlement: read-only file system")
	assert.NotContains(t, f.notifier.messages[0], "PROFIT")
}

func TestRunner_DamagedLogOnlyFailsExit(t *testing.T) {
	dir := t.TempDir()
	logFile := filepath.Join(dir, storage.DefaultLogFile)
	require.NoError(t, os.WriteFile(logFile, []byte("[{\"pnl\": 1"), 0o644))
	store, err := storage.NewJSONStorage(filepath.Join(dir, storage.DefaultStateFile), logFile, 0)
	require.NoError(t, err)

	entry := newFixture(t, monday)
	entry.runner.Store = store
	entry.expectSend(nil)

	assert.Equal(t, 0, entry.runner.Run(context.Background(), ModeEntry))
	require.Len(t, entry.notifier.messages, 1)
	assert.Contains(t, entry.notifier.messages[0], "SELL ATM STRADDLE")

	exit := newFixture(t, friday)
	exit.runner.Store = store
	exit.expectSend(nil)

	assert.Equal(t, 1, exit.runner.Run(context.Background(), ModeExit))
	require.Len(t, exit.notifier.messages, 1)
	assert.Contains(t, exit.notifier.messages[0], "Unexpected failure")
	assert.Contains(t, exit.notifier.messages[0], storage.DefaultLogFile)
}

func TestRunner_AbortNotifies(t *testing.T) {
	f := newFixture(t, monday)
	f.runner.Store = nil
	f.expectSend(nil)

	code := f.runner.Abort(context.Background(), ModeEntry, "Storage unavailable", errors.New("storage path data is a directory"))

	assert.Equal(t, 1, code)
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "Storage unavailable")
	assert.Contains(t, f.notifier.messages[0], "is a directory")
}

func TestRunner_ExitStaleDecision(t *testing.T) {
	f := newFixture(t, friday)
	f.expectSend(nil)
	d := storedShort()
	d.CreatedAt = monday.AddDate(0, 0, -14)
	d.AsOfDate = "2025-05-19"
	f.store.SetDecision(d)

	code := f.runner.Run(context.Background(), ModeExit)

	assert.Equal(t, 0, code)
	assert.Equal(t, 0, f.prices.calls)
	assert.Equal(t, 0, f.store.GetAppendCallCount())
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "2025-05-19 is 18 days old")
}

func TestRunner_ExitFlatWeek(t *testing.T) {
	f := newFixture(t, friday)
	f.expectSend(nil)
	d := storedShort()
	d.Position = models.PositionFlat
	d.SizeFraction = 0
	f.store.SetDecision(d)
	f.prices.err = &marketdata.DataUnavailableError{Operation: marketdata.OpSpotPrice, Err: errors.New("down")}

	code := f.runner.Run(context.Background(), ModeExit)

	assert.Equal(t, 0, code)
	log, err := f.store.Settlements()
	require.NoError(t, err)
	require.Len(t, log, 1)
	assert.Equal(t, models.PositionFlat, log[0].Position)
	assert.Zero(t, log[0].PnL)
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "No trade this week")
}

func TestRunner_ExitSpotUnavailable(t *testing.T) {
	f := newFixture(t, friday)
	f.expectSend(nil)
	f.store.SetDecision(storedShort())
	f.prices.err = &marketdata.DataUnavailableError{Operation: marketdata.OpSpotPrice, Err: errors.New("down")}

	code := f.runner.Run(context.Background(), ModeExit)

	assert.Equal(t, 1, code)
	assert.Equal(t, 0, f.store.GetAppendCallCount())
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "Market data unavailable")
}

func TestRunner_PanicIsRecovered(t *testing.T) {
	f := newFixture(t, monday)
	f.expectSend(nil)
	f.analyzer.snapshot = func() (models.MarketSnapshot, error) {
		panic("nil map")
	}

	code := f.runner.Run(context.Background(), ModeEntry)

	assert.Equal(t, 1, code)
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "panic: nil map")
}

func TestRunner_CanceledRunStillReports(t *testing.T) {
	f := newFixture(t, monday)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f.analyzer.snapshot = func() (models.MarketSnapshot, error) {
		return models.MarketSnapshot{}, context.Canceled
	}
	f.notifier.On("Send", mock.MatchedBy(func(c context.Context) bool { return c.Err() == nil }), mock.AnythingOfType("string")).
		Return(nil)

	code := f.runner.Run(ctx, ModeEntry)

	assert.Equal(t, 1, code)
	require.Len(t, f.notifier.messages, 1)
	assert.Contains(t, f.notifier.messages[0], "Run interrupted")
	f.notifier.AssertExpectations(t)
}

func TestResolveMode(t *testing.T) {
	tests := []struct {
		name     string
		override string
		now      time.Time
		want     Mode
		wantErr  bool
	}{
		{name: "monday is entry", now: monday, want: ModeEntry},
		{name: "friday is exit", now: friday, want: ModeExit},
		{name: "wednesday is diagnostic", now: time.Date(2025, 6, 4, 12, 0, 0, 0, time.UTC), want: ModeDiagnostic},
		{
			name: "weekday taken in UTC",
			// Monday 00:30 in IST is still Sunday in UTC
			now:  time.Date(2025, 6, 2, 0, 30, 0, 0, time.FixedZone("IST", 5*3600+1800)),
			want: ModeDiagnostic,
		},
		{name: "override", override: " EXIT ", now: monday, want: ModeExit},
		{name: "bad override", override: "settle", now: monday, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolveMode(tt.override, tt.now, time.Monday, time.Friday)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
