package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/eddiefleurent/straddle_signal/internal/config"
	"github.com/eddiefleurent/straddle_signal/internal/marketdata"
	"github.com/eddiefleurent/straddle_signal/internal/metrics"
	"github.com/eddiefleurent/straddle_signal/internal/notify"
	"github.com/eddiefleurent/straddle_signal/internal/storage"
	"github.com/eddiefleurent/straddle_signal/internal/strategy"
)

// EnvRunMode forces a run mode regardless of the weekday.
const EnvRunMode = "SIGNAL_RUN_MODE"

func main() {
	os.Exit(run())
}

func run() int {
	// .env is optional; real environment variables win
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger := newLogger(cfg.Environment)

	if err := cfg.RequireCredentials(); err != nil {
		logger.Error().Err(err).Msg("Cannot start without Telegram credentials")
		return 1
	}

	now := time.Now()
	mode, err := resolveMode(os.Getenv(EnvRunMode), now, cfg.EntryWeekday(), cfg.ExitWeekday())
	if err != nil {
		logger.Error().Err(err).Msg("Invalid run mode")
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := metrics.New()
	gateway := marketdata.NewGateway(cfg.MarketDataSettings(), logger,
		marketdata.WithObserver(recorder.ObserveFetch))

	telegram, err := notify.NewTelegram(cfg.TelegramSettings(), logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to configure Telegram")
		return 1
	}

	signalCfg := cfg.SignalSettings()
	runner := &Runner{
		Analyzer:       strategy.NewAnalyzer(gateway, signalCfg, logger),
		Prices:         gateway,
		Composer:       strategy.NewComposer(signalCfg),
		Notifier:       telegram,
		Formatter:      notify.NewFormatter(cfg.DisplayLocation()),
		Metrics:        recorder,
		Location:       cfg.DisplayLocation(),
		NextExpiry:     cfg.NextExpiry,
		MaxDecisionAge: cfg.MaxDecisionAge(),
		Now:            time.Now,
		NewID:          uuid.NewString,
		Logger:         logger.With().Str("component", "runner").Logger(),
	}

	logger.Info().
		Str("mode", string(mode)).
		Str("weekday", now.UTC().Weekday().String()).
		Str("state_file", cfg.StatePath()).
		Msg("Starting straddle signal run")

	var code int
	if runner.Store, err = storage.NewStorage(cfg.StatePath(), cfg.LogPath(), cfg.Storage.HistoryLimit); err != nil {
		code = runner.Abort(ctx, mode, "Storage unavailable", err)
	} else {
		code = runner.Run(ctx, mode)
	}

	if err := recorder.WriteTextfile(cfg.Metrics.TextfilePath); err != nil {
		logger.Warn().Err(err).Msg("Failed to write metrics")
	}

	logger.Info().Str("mode", string(mode)).Int("exit_code", code).Msg("Run finished")
	return code
}

func newLogger(env config.EnvironmentConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(env.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	if env.LogFormat == "json" {
		return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(output).Level(level).With().Timestamp().Logger()
}
