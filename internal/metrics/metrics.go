// Package metrics records the outcome of one signal run as Prometheus
// metrics and writes them for the node_exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/eddiefleurent/straddle_signal/internal/models"
)

const namespace = "straddle_signal"

// Fetch attempt results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// Recorder holds the run metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	fetchAttempts  *prometheus.CounterVec
	notifications  *prometheus.CounterVec
	runDuration    *prometheus.GaugeVec
	runSuccess     *prometheus.GaugeVec
	lastRun        *prometheus.GaugeVec
	signalScore    prometheus.Gauge
	signalSize     prometheus.Gauge
	signalPosition *prometheus.GaugeVec
	marketFeature  *prometheus.GaugeVec
	settlementPnL  prometheus.Gauge
	totalPnL       prometheus.Gauge
	winRate        prometheus.Gauge
}

// New creates a recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		fetchAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fetch_attempts_total",
				Help:      "Market data fetch attempts by operation, source and result",
			},
			[]string{"operation", "source", "result"},
		),
		notifications: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Notification deliveries by result",
			},
			[]string{"result"},
		),
		runDuration: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of the last run",
			},
			[]string{"mode"},
		),
		runSuccess: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "run_success",
				Help:      "1 if the last run completed without error",
			},
			[]string{"mode"},
		),
		lastRun: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_run_timestamp_seconds",
				Help:      "Unix time the last run finished",
			},
			[]string{"mode"},
		),
		signalScore: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "signal_score",
			Help:      "Composite score of the latest decision",
		}),
		signalSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "signal_size_fraction",
			Help:      "Size fraction of the latest decision",
		}),
		signalPosition: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "signal_position",
				Help:      "1 for the position of the latest decision, 0 otherwise",
			},
			[]string{"position"},
		),
		marketFeature: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "market_feature",
				Help:      "Market features behind the latest decision",
			},
			[]string{"feature"},
		),
		settlementPnL: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "settlement_pnl_usd",
			Help:      "Sized PnL of the latest settlement",
		}),
		totalPnL: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "total_pnl_usd",
			Help:      "Cumulative sized PnL over the settlement log",
		}),
		winRate: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "win_rate_percent",
			Help:      "Win rate over decided trades in the settlement log",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// ObserveFetch counts one market data attempt. Its signature matches
// marketdata.AttemptObserver.
func (r *Recorder) ObserveFetch(operation, source string, err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	r.fetchAttempts.WithLabelValues(operation, source, result).Inc()
}

// ObserveNotification counts one delivery attempt.
func (r *Recorder) ObserveNotification(err error) {
	result := ResultSuccess
	if err != nil {
		result = ResultFailure
	}
	r.notifications.WithLabelValues(result).Inc()
}

// RecordDecision publishes the composed decision.
func (r *Recorder) RecordDecision(d *models.SignalDecision) {
	if d == nil {
		return
	}
	r.signalScore.Set(d.Score)
	r.signalSize.Set(d.SizeFraction)
	for _, p := range []models.Position{models.PositionShort, models.PositionLong, models.PositionFlat} {
		v := 0.0
		if d.Position == p {
			v = 1
		}
		r.signalPosition.WithLabelValues(string(p)).Set(v)
	}
	r.marketFeature.WithLabelValues("spot").Set(d.SpotPrice)
	r.marketFeature.WithLabelValues("implied_vol").Set(d.ImpliedVol)
	r.marketFeature.WithLabelValues("realized_vol").Set(d.RealizedVol)
	r.marketFeature.WithLabelValues("vrp").Set(d.VRP)
	r.marketFeature.WithLabelValues("zscore").Set(d.ZScore)
	r.marketFeature.WithLabelValues("trend_pct").Set(d.TrendPercent)
}

// RecordSettlement publishes a settlement and the running totals.
func (r *Recorder) RecordSettlement(s *models.SettlementResult, totalPnL, winRate float64) {
	if s != nil {
		r.settlementPnL.Set(s.PnL)
	}
	r.totalPnL.Set(totalPnL)
	r.winRate.Set(winRate)
}

// RecordRun marks the end of a run.
func (r *Recorder) RecordRun(mode string, started, finished time.Time, err error) {
	r.runDuration.WithLabelValues(mode).Set(finished.Sub(started).Seconds())
	ok := 1.0
	if err != nil {
		ok = 0
	}
	r.runSuccess.WithLabelValues(mode).Set(ok)
	r.lastRun.WithLabelValues(mode).Set(float64(finished.Unix()))
}

// WriteTextfile writes the registry in text exposition format. The write
// is atomic, so a collector never reads a partial file.
func (r *Recorder) WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
