// Command integration exercises the full weekly cycle end to end: live
// market data, a synthetic entry and exit against a scratch state
// directory, and optionally a real Telegram delivery.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/eddiefleurent/straddle_signal/internal/config"
	"github.com/eddiefleurent/straddle_signal/internal/marketdata"
	"github.com/eddiefleurent/straddle_signal/internal/mock"
	"github.com/eddiefleurent/straddle_signal/internal/models"
	"github.com/eddiefleurent/straddle_signal/internal/notify"
	"github.com/eddiefleurent/straddle_signal/internal/storage"
	"github.com/eddiefleurent/straddle_signal/internal/strategy"
)

type check struct {
	name string
	run  func(ctx context.Context) error
}

func main() {
	var (
		configPath string
		offline    bool
		send       bool
	)
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&offline, "offline", false, "Skip the live market data check")
	flag.BoolVar(&send, "send", false, "Deliver the rendered messages to Telegram")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Str("component", "integration").Logger()

	dir, err := os.MkdirTemp("", "straddle-signal-e2e-")
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create scratch directory")
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			logger.Warn().Err(err).Msg("Failed to clean up scratch directory")
		}
	}()

	store, err := storage.NewStorage(dir+"/signal_state.json", dir+"/trade_log.json", cfg.Storage.HistoryLimit)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create storage")
	}

	var notifier notify.Notifier
	if send {
		if err := cfg.RequireCredentials(); err != nil {
			logger.Fatal().Err(err).Msg("-send needs Telegram credentials")
		}
		if notifier, err = notify.NewTelegram(cfg.TelegramSettings(), logger); err != nil {
			logger.Fatal().Err(err).Msg("Failed to configure Telegram")
		}
	}

	e2e := &endToEnd{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		notifier:  notifier,
		formatter: notify.NewFormatter(cfg.DisplayLocation()),
		synthetic: mock.NewDataProvider(),
	}

	checks := []check{
		{"Synthetic entry", e2e.entry},
		{"Decision persistence", e2e.persistence},
		{"Synthetic exit", e2e.exit},
	}
	if !offline {
		checks = append([]check{{"Live market data", e2e.liveMarketData}}, checks...)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	passed := 0
	for i, c := range checks {
		fmt.Printf("Test %d: %s\n", i+1, c.name)
		if err := c.run(ctx); err != nil {
			fmt.Printf("❌ FAILED: %v\n\n", err)
			continue
		}
		passed++
		fmt.Print("✅ PASSED\n\n")
	}

	fmt.Println("=== Integration Test Results ===")
	fmt.Printf("Tests Passed: %d/%d\n", passed, len(checks))
	if passed != len(checks) {
		os.Exit(1)
	}
}

type endToEnd struct {
	cfg       *config.Config
	logger    zerolog.Logger
	store     storage.Interface
	notifier  notify.Notifier
	formatter *notify.Formatter
	synthetic *mock.DataProvider
	decision  *models.SignalDecision
}

func (e *endToEnd) liveMarketData(ctx context.Context) error {
	gateway := marketdata.NewGateway(e.cfg.MarketDataSettings(), e.logger)
	snap, err := strategy.NewAnalyzer(gateway, e.cfg.SignalSettings(), e.logger).Snapshot(ctx)
	if err != nil {
		return err
	}
	if missing := snap.MissingFeature(); missing != "" {
		return fmt.Errorf("live snapshot missing %s", missing)
	}
	e.logger.Info().
		Float64("spot", *snap.SpotPrice).
		Float64("dvol", *snap.ImpliedVol).
		Float64("rv", *snap.RealizedVol).
		Float64("zscore", *snap.ZScore).
		Float64("trend_pct", *snap.TrendPercent).
		Msg("Live snapshot")
	return nil
}

func (e *endToEnd) entry(ctx context.Context) error {
	snap, err := strategy.NewAnalyzer(e.synthetic, e.cfg.SignalSettings(), e.logger).Snapshot(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	d, err := strategy.NewComposer(e.cfg.SignalSettings()).Compose(snap, now.In(e.cfg.DisplayLocation()))
	if err != nil {
		return err
	}
	d.ID = uuid.NewString()
	if err := e.store.SaveDecision(d); err != nil {
		return err
	}
	e.decision = d
	return e.deliver(ctx, e.formatter.Diagnostic(now, e.formatter.Entry(d, e.cfg.NextExpiry(now), now)))
}

func (e *endToEnd) persistence(context.Context) error {
	if e.decision == nil {
		return fmt.Errorf("no decision from the entry check")
	}
	loaded, err := e.store.LoadDecision()
	if err != nil {
		return err
	}
	if loaded.ID != e.decision.ID || loaded.Strike != e.decision.Strike || loaded.Position != e.decision.Position {
		return fmt.Errorf("reloaded decision %s differs from saved %s", loaded.ID, e.decision.ID)
	}
	return nil
}

func (e *endToEnd) exit(ctx context.Context) error {
	d, err := e.store.LoadDecision()
	if err != nil {
		return err
	}
	e.synthetic.Advance(2)
	spot, err := e.synthetic.FetchSpotPrice(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	result, err := strategy.EvaluateSettlement(d, spot, now.In(e.cfg.DisplayLocation()).Format(models.DateLayout))
	if err != nil {
		return err
	}
	if err := e.store.AppendSettlement(*result); err != nil {
		return err
	}
	stats, err := e.store.Statistics()
	if err != nil {
		return err
	}
	if stats.TotalTrades+stats.FlatWeeks != 1 {
		return fmt.Errorf("expected one logged week, got %d trades and %d flat", stats.TotalTrades, stats.FlatWeeks)
	}

	msg := e.formatter.Exit(result, stats, now)
	if result.Position == models.PositionFlat {
		msg = e.formatter.FlatWeek(now)
	}
	return e.deliver(ctx, e.formatter.Diagnostic(now, msg))
}

// deliver prints text, and sends it when a notifier is configured.
func (e *endToEnd) deliver(ctx context.Context, text string) error {
	fmt.Println(text)
	if e.notifier == nil {
		return nil
	}
	return e.notifier.Send(ctx, text)
}
