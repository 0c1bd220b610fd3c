package main

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/rs/zerolog"

	"github.com/eddiefleurent/straddle_signal/internal/marketdata"
	"github.com/eddiefleurent/straddle_signal/internal/metrics"
	"github.com/eddiefleurent/straddle_signal/internal/models"
	"github.com/eddiefleurent/straddle_signal/internal/notify"
	"github.com/eddiefleurent/straddle_signal/internal/storage"
	"github.com/eddiefleurent/straddle_signal/internal/strategy"
)

// failureNotifyTimeout bounds the best-effort failure message once the run
// context is already done.
const failureNotifyTimeout = 15 * time.Second

// SnapshotSource produces the market features for a decision.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (models.MarketSnapshot, error)
}

// SpotSource provides the settlement price.
type SpotSource interface {
	FetchSpotPrice(ctx context.Context) (float64, error)
}

// Runner executes one entry, exit or diagnostic pass.
type Runner struct {
	Analyzer  SnapshotSource
	Prices    SpotSource
	Composer  *strategy.Composer
	Store     storage.Interface
	Notifier  notify.Notifier
	Formatter *notify.Formatter
	Metrics   *metrics.Recorder // optional

	Location       *time.Location
	NextExpiry     func(now time.Time) time.Time
	MaxDecisionAge time.Duration // zero disables the staleness check
	Now            func() time.Time
	NewID          func() string
	Logger         zerolog.Logger
}

// Run performs mode and returns the process exit code.
func (r *Runner) Run(ctx context.Context, mode Mode) (code int) {
	started := r.Now()
	var runErr error

	defer func() {
		if p := recover(); p != nil {
			runErr = fmt.Errorf("panic: %v", p)
			r.Logger.Error().
				Str("mode", string(mode)).
				Str("stack", string(debug.Stack())).
				Msgf("Recovered from panic: %v", p)
			r.notifyFailure(ctx, mode, "Unexpected failure", runErr)
			code = 1
		}
		if r.Metrics != nil {
			r.Metrics.RecordRun(string(mode), started, r.Now(), runErr)
		}
	}()

	switch mode {
	case ModeEntry:
		runErr = r.runEntry(ctx)
	case ModeExit:
		runErr = r.runExit(ctx)
	case ModeDiagnostic:
		runErr = r.runDiagnostic(ctx)
	default:
		runErr = fmt.Errorf("unknown mode %q", mode)
	}

	return r.handleError(ctx, mode, runErr)
}

// runEntry composes, persists and then announces the week's decision.
func (r *Runner) runEntry(ctx context.Context) error {
	decision, err := r.decide(ctx)
	if err != nil {
		return err
	}

	if err := r.Store.SaveDecision(decision); err != nil {
		return fmt.Errorf("saving decision: %w", err)
	}
	r.Logger.Info().
		Str("decision_id", decision.ID).
		Str("date", decision.AsOfDate).
		Msg("Decision saved")

	now := r.Now()
	r.send(ctx, r.Formatter.Entry(decision, r.NextExpiry(now), now))
	return nil
}

// runDiagnostic runs the entry pipeline without persisting anything.
func (r *Runner) runDiagnostic(ctx context.Context) error {
	decision, err := r.decide(ctx)
	if err != nil {
		return err
	}
	now := r.Now()
	r.send(ctx, r.Formatter.Diagnostic(now, r.Formatter.Entry(decision, r.NextExpiry(now), now)))
	return nil
}

func (r *Runner) decide(ctx context.Context) (*models.SignalDecision, error) {
	snap, err := r.Analyzer.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	decision, err := r.Composer.Compose(snap, r.Now().In(r.location()))
	if err != nil {
		return nil, err
	}
	decision.ID = r.NewID()

	if r.Metrics != nil {
		r.Metrics.RecordDecision(decision)
	}
	r.Logger.Info().
		Str("position", string(decision.Position)).
		Float64("score", decision.Score).
		Float64("size", decision.SizeFraction).
		Float64("strike", decision.Strike).
		Float64("premium", decision.Premium).
		Strs("reasons", decision.Reasons).
		Msg("Signal composed")
	return decision, nil
}

// runExit settles the stored decision against the current spot. The
// decision is loaded before any market data is requested.
func (r *Runner) runExit(ctx context.Context) error {
	decision, err := r.Store.LoadDecision()
	if err != nil {
		return err
	}

	now := r.Now()
	if age := decision.Age(now); r.MaxDecisionAge > 0 && age > r.MaxDecisionAge {
		r.Logger.Warn().
			Str("decision_id", decision.ID).
			Str("date", decision.AsOfDate).
			Dur("age", age).
			Msg("Stored decision is stale, not settling")
		r.send(ctx, r.Formatter.StaleDecision(decision, age, now))
		return nil
	}

	spot, err := r.Prices.FetchSpotPrice(ctx)
	if err != nil {
		if decision.Position != models.PositionFlat {
			return err
		}
		// a FLAT week settles to zero regardless of spot
		r.Logger.Warn().Err(err).Msg("Spot unavailable for FLAT week, using entry spot")
		spot = decision.SpotPrice
	}

	result, err := strategy.EvaluateSettlement(decision, spot, now.In(r.location()).Format(models.DateLayout))
	if err != nil {
		return fmt.Errorf("evaluating settlement: %w", err)
	}
	if err := r.Store.AppendSettlement(*result); err != nil {
		return fmt.Errorf("recording settlement: %w", err)
	}

	stats, err := r.Store.Statistics()
	if err != nil {
		return fmt.Errorf("reading settlement log: %w", err)
	}
	if r.Metrics != nil {
		r.Metrics.RecordSettlement(result, stats.TotalPnL, stats.WinRate)
	}
	r.Logger.Info().
		Str("decision_id", result.DecisionID).
		Str("position", string(result.Position)).
		Float64("spot_exit", result.SpotAtExit).
		Float64("pnl", result.PnL).
		Msg("Settlement recorded")

	if result.Position == models.PositionFlat {
		r.send(ctx, r.Formatter.FlatWeek(now))
		return nil
	}
	r.send(ctx, r.Formatter.Exit(result, stats, now))
	return nil
}

// handleError maps a run error to an operator message and exit code.
func (r *Runner) handleError(ctx context.Context, mode Mode, err error) int {
	if err == nil {
		return 0
	}

	var insufficient *strategy.InsufficientDataError
	switch {
	case errors.Is(err, storage.ErrNoDecision):
		r.Logger.Warn().Msg("No stored decision to settle")
		r.send(ctx, r.wrap(mode, r.Formatter.MissingDecision(r.Now())))
		return 0
	case errors.Is(err, marketdata.ErrDataUnavailable):
		r.Logger.Error().Err(err).Msg("Market data unavailable")
		r.notifyFailure(ctx, mode, "Market data unavailable", err)
	case errors.As(err, &insufficient):
		r.Logger.Error().Str("feature", insufficient.Feature).Msg("Insufficient data for a decision")
		r.notifyFailure(ctx, mode, "Insufficient data: "+insufficient.Feature, err)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		r.Logger.Error().Err(err).Msg("Run interrupted")
		r.notifyFailure(ctx, mode, "Run interrupted", err)
	default:
		r.Logger.Error().Err(err).Msg("Run failed")
		r.notifyFailure(ctx, mode, "Unexpected failure", err)
	}
	return 1
}

// Abort reports a failure that stopped the run before it could start and
// returns the exit code.
func (r *Runner) Abort(ctx context.Context, mode Mode, title string, err error) int {
	r.Logger.Error().Err(err).Str("mode", string(mode)).Msg(title)
	r.notifyFailure(ctx, mode, title, err)
	if r.Metrics != nil {
		now := r.Now()
		r.Metrics.RecordRun(string(mode), now, now, err)
	}
	return 1
}

func (r *Runner) notifyFailure(ctx context.Context, mode Mode, title string, err error) {
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), failureNotifyTimeout)
		defer cancel()
	}
	r.send(ctx, r.wrap(mode, r.Formatter.Failure(title, err, r.Now())))
}

func (r *Runner) wrap(mode Mode, msg string) string {
	if mode == ModeDiagnostic {
		return r.Formatter.Diagnostic(r.Now(), msg)
	}
	return msg
}

// send delivers text. Delivery failures are logged and never change the
// outcome of the run.
func (r *Runner) send(ctx context.Context, text string) {
	err := r.Notifier.Send(ctx, text)
	if r.Metrics != nil {
		r.Metrics.ObserveNotification(err)
	}
	if err != nil {
		r.Logger.Error().Err(err).Msg("Notification not delivered")
		return
	}
	r.Logger.Info().Msg("Notification sent")
}

func (r *Runner) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}
