// Package config provides configuration management for the signal job.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
	yaml "gopkg.in/yaml.v3"

	"github.com/eddiefleurent/straddle_signal/internal/marketdata"
	"github.com/eddiefleurent/straddle_signal/internal/notify"
	"github.com/eddiefleurent/straddle_signal/internal/strategy"
)

// Environment variables read on top of the YAML file.
const (
	EnvConfigPath    = "SIGNAL_CONFIG"
	EnvBotToken      = "TELEGRAM_BOT_TOKEN"
	EnvChatID        = "TELEGRAM_CHAT_ID"
	defaultConfigYML = "config.yaml"
)

// ErrMissingCredentials is returned by RequireCredentials.
var ErrMissingCredentials = errors.New("telegram credentials missing")

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	MarketData  MarketDataConfig  `yaml:"market_data"`
	Signal      SignalConfig      `yaml:"signal"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Storage     StorageConfig     `yaml:"storage"`
	Metrics     MetricsConfig     `yaml:"metrics"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel  string `yaml:"log_level" default:"info" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" default:"console" validate:"oneof=console json"`
}

// TelegramConfig defines the notification channel. Credentials normally
// come from TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID.
type TelegramConfig struct {
	BotToken    string `yaml:"bot_token"`
	ChatID      string `yaml:"chat_id"`
	Timeout     string `yaml:"timeout" default:"15s"`
	APIEndpoint string `yaml:"api_endpoint"`
}

// MarketDataConfig defines provider hosts, retries and pacing.
type MarketDataConfig struct {
	MaxAttempts       int     `yaml:"max_attempts" default:"3" validate:"min=1,max=10"`
	RetryDelay        string  `yaml:"retry_delay" default:"2s"`
	RequestTimeout    string  `yaml:"request_timeout" default:"10s"`
	UserAgent         string  `yaml:"user_agent" default:"straddle-signal/1.0" validate:"required"`
	RequestsPerSecond float64 `yaml:"requests_per_second" default:"5" validate:"gte=0"`
	Burst             int     `yaml:"burst" default:"1" validate:"min=1"`
	BreakerFailures   uint32  `yaml:"breaker_failures" default:"5" validate:"min=1"`
	BreakerTimeout    string  `yaml:"breaker_timeout" default:"30s"`
	DeribitURL        string  `yaml:"deribit_url" default:"https://www.deribit.com" validate:"url"`
	DeribitHistoryURL string  `yaml:"deribit_history_url" default:"https://history.deribit.com" validate:"url"`
	BinanceURL        string  `yaml:"binance_url" default:"https://api.binance.com" validate:"url"`
	CoinbaseURL       string  `yaml:"coinbase_url" default:"https://api.coinbase.com" validate:"url"`
}

// SignalConfig defines the composer thresholds and statistics windows.
type SignalConfig struct {
	VRPStrongSell      float64 `yaml:"vrp_strong_sell" default:"15"`
	VRPMildSell        float64 `yaml:"vrp_mild_sell" default:"5"`
	VRPStrongBuy       float64 `yaml:"vrp_strong_buy" default:"-10"`
	VRPMildBuy         float64 `yaml:"vrp_mild_buy" default:"-3"`
	VRPStrongWeight    float64 `yaml:"vrp_strong_weight" default:"1.5"`
	VRPMildWeight      float64 `yaml:"vrp_mild_weight" default:"0.75"`
	ZScoreStrong       float64 `yaml:"zscore_strong" default:"1.5"`
	ZScoreMild         float64 `yaml:"zscore_mild" default:"0.75"`
	ZScoreStrongWeight float64 `yaml:"zscore_strong_weight" default:"0.75"`
	ZScoreMildWeight   float64 `yaml:"zscore_mild_weight" default:"0.35"`
	TrendThreshold     float64 `yaml:"trend_threshold" default:"8"`
	TrendDampening     float64 `yaml:"trend_dampening" default:"0.5"`
	SignalThreshold    float64 `yaml:"signal_threshold" default:"0.5"`
	FullSizeScore      float64 `yaml:"full_size_score" default:"2"`
	StrikeIncrement    float64 `yaml:"strike_increment" default:"100"`
	HorizonDays        float64 `yaml:"horizon_days" default:"5"`
	RVWindow           int     `yaml:"rv_window" default:"42"`
	ZScoreWindow       int     `yaml:"zscore_window" default:"30"`
	SMADays            int     `yaml:"sma_days" default:"20"`
	CandleLookbackDays int     `yaml:"candle_lookback_days" default:"30"`
	VolLookbackDays    int     `yaml:"vol_lookback_days" default:"60"`
}

// ScheduleConfig defines the weekly calendar. Weekdays are evaluated in UTC.
type ScheduleConfig struct {
	EntryWeekday    string `yaml:"entry_weekday" default:"Monday"`
	ExitWeekday     string `yaml:"exit_weekday" default:"Friday"`
	ExpiryCron      string `yaml:"expiry_cron" default:"0 8 * * 5"` // weekly option expiry, UTC
	DisplayTimezone string `yaml:"display_timezone" default:"Asia/Kolkata"`
	MaxDecisionAge  string `yaml:"max_decision_age" default:"168h"`
}

// StorageConfig defines where the decision and settlement log live.
type StorageConfig struct {
	Dir          string `yaml:"dir" default:"."`
	StateFile    string `yaml:"state_file" default:"signal_state.json"`
	LogFile      string `yaml:"log_file" default:"trade_log.json"`
	HistoryLimit int    `yaml:"history_limit" default:"200" validate:"min=1"`
}

// MetricsConfig defines the Prometheus textfile output. Empty path disables it.
type MetricsConfig struct {
	TextfilePath string `yaml:"textfile_path"`
}

// Load reads the configuration. An empty configPath falls back to
// SIGNAL_CONFIG and then config.yaml; a missing file yields the defaults.
func Load(configPath string) (*Config, error) {
	explicit := configPath != ""
	if configPath == "" {
		configPath = os.Getenv(EnvConfigPath)
		explicit = configPath != ""
	}
	if configPath == "" {
		configPath = defaultConfigYML
	}

	var config Config
	if err := defaults.Set(&config); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	switch {
	case err == nil:
		// Expand environment variables
		expanded := os.ExpandEnv(string(data))
		dec := yaml.NewDecoder(strings.NewReader(expanded))
		dec.KnownFields(true)
		if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// defaults only
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config.applyEnv()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// applyEnv lets the environment override credentials from the file.
func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv(EnvBotToken)); v != "" {
		c.Telegram.BotToken = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvChatID)); v != "" {
		c.Telegram.ChatID = v
	}
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return err
	}

	for name, v := range map[string]string{
		"telegram.timeout":            c.Telegram.Timeout,
		"market_data.retry_delay":     c.MarketData.RetryDelay,
		"market_data.request_timeout": c.MarketData.RequestTimeout,
		"market_data.breaker_timeout": c.MarketData.BreakerTimeout,
		"schedule.max_decision_age":   c.Schedule.MaxDecisionAge,
	} {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s invalid: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be >= 0", name)
		}
	}

	if err := c.SignalSettings().Validate(); err != nil {
		return fmt.Errorf("signal: %w", err)
	}

	entry, err := ParseWeekday(c.Schedule.EntryWeekday)
	if err != nil {
		return fmt.Errorf("schedule.entry_weekday: %w", err)
	}
	exit, err := ParseWeekday(c.Schedule.ExitWeekday)
	if err != nil {
		return fmt.Errorf("schedule.exit_weekday: %w", err)
	}
	if entry == exit {
		return fmt.Errorf("schedule.entry_weekday and schedule.exit_weekday must differ")
	}
	if _, err := cron.ParseStandard(c.Schedule.ExpiryCron); err != nil {
		return fmt.Errorf("schedule.expiry_cron invalid: %w", err)
	}
	if _, err := time.LoadLocation(c.Schedule.DisplayTimezone); err != nil {
		return fmt.Errorf("schedule.display_timezone invalid: %w", err)
	}

	if c.Telegram.ChatID != "" {
		if err := validateChatID(c.Telegram.ChatID); err != nil {
			return fmt.Errorf("telegram.chat_id: %w", err)
		}
	}
	return nil
}

// RequireCredentials reports missing Telegram credentials. It is checked
// before any network activity.
func (c *Config) RequireCredentials() error {
	var missing []string
	if strings.TrimSpace(c.Telegram.BotToken) == "" {
		missing = append(missing, EnvBotToken)
	}
	if strings.TrimSpace(c.Telegram.ChatID) == "" {
		missing = append(missing, EnvChatID)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s not set", ErrMissingCredentials, strings.Join(missing, ", "))
	}
	return nil
}

// SignalSettings returns the composer thresholds.
func (c *Config) SignalSettings() strategy.SignalConfig {
	s := strategy.DefaultSignalConfig()
	s.VRPStrongSell = c.Signal.VRPStrongSell
	s.VRPMildSell = c.Signal.VRPMildSell
	s.VRPStrongBuy = c.Signal.VRPStrongBuy
	s.VRPMildBuy = c.Signal.VRPMildBuy
	s.VRPStrongWeight = c.Signal.VRPStrongWeight
	s.VRPMildWeight = c.Signal.VRPMildWeight
	s.ZScoreStrong = c.Signal.ZScoreStrong
	s.ZScoreMild = c.Signal.ZScoreMild
	s.ZScoreStrongWeight = c.Signal.ZScoreStrongWeight
	s.ZScoreMildWeight = c.Signal.ZScoreMildWeight
	s.TrendThreshold = c.Signal.TrendThreshold
	s.TrendDampening = c.Signal.TrendDampening
	s.SignalThreshold = c.Signal.SignalThreshold
	s.FullSizeScore = c.Signal.FullSizeScore
	s.StrikeIncrement = c.Signal.StrikeIncrement
	s.HorizonDays = c.Signal.HorizonDays
	s.RVWindow = c.Signal.RVWindow
	s.ZScoreWindow = c.Signal.ZScoreWindow
	s.SMADays = c.Signal.SMADays
	s.CandleLookbackDays = c.Signal.CandleLookbackDays
	s.VolLookbackDays = c.Signal.VolLookbackDays
	return s
}

// MarketDataSettings returns the gateway configuration.
func (c *Config) MarketDataSettings() marketdata.Config {
	m := marketdata.DefaultConfig()
	m.MaxAttempts = c.MarketData.MaxAttempts
	m.RetryDelay = mustDuration(c.MarketData.RetryDelay)
	m.RequestTimeout = mustDuration(c.MarketData.RequestTimeout)
	m.UserAgent = c.MarketData.UserAgent
	m.RequestsPerSecond = c.MarketData.RequestsPerSecond
	m.Burst = c.MarketData.Burst
	m.Breaker.ConsecutiveFailures = c.MarketData.BreakerFailures
	m.Breaker.Timeout = mustDuration(c.MarketData.BreakerTimeout)
	m.DeribitURL = c.MarketData.DeribitURL
	m.DeribitHistoryURL = c.MarketData.DeribitHistoryURL
	m.BinanceURL = c.MarketData.BinanceURL
	m.CoinbaseURL = c.MarketData.CoinbaseURL
	return m
}

// TelegramSettings returns the notifier configuration.
func (c *Config) TelegramSettings() notify.TelegramConfig {
	return notify.TelegramConfig{
		BotToken:    c.Telegram.BotToken,
		ChatID:      c.Telegram.ChatID,
		Timeout:     mustDuration(c.Telegram.Timeout),
		APIEndpoint: c.Telegram.APIEndpoint,
	}
}

// DisplayLocation returns the zone message timestamps are rendered in.
func (c *Config) DisplayLocation() *time.Location {
	loc, err := time.LoadLocation(c.Schedule.DisplayTimezone)
	if err != nil {
		// Fallback for minimal containers
		return time.FixedZone("IST", 5*3600+1800)
	}
	return loc
}

// NextExpiry returns the first expiry strictly after now.
func (c *Config) NextExpiry(now time.Time) time.Time {
	sched, err := cron.ParseStandard(c.Schedule.ExpiryCron)
	if err != nil {
		return time.Time{}
	}
	return sched.Next(now.UTC())
}

// MaxDecisionAge is how old a stored decision may be and still be settled.
// Zero disables the check.
func (c *Config) MaxDecisionAge() time.Duration {
	return mustDuration(c.Schedule.MaxDecisionAge)
}

// EntryWeekday returns the UTC weekday of the entry run.
func (c *Config) EntryWeekday() time.Weekday {
	d, _ := ParseWeekday(c.Schedule.EntryWeekday)
	return d
}

// ExitWeekday returns the UTC weekday of the exit run.
func (c *Config) ExitWeekday() time.Weekday {
	d, _ := ParseWeekday(c.Schedule.ExitWeekday)
	return d
}

// StatePath is the decision file.
func (c *Config) StatePath() string {
	return filepath.Join(c.Storage.Dir, c.Storage.StateFile)
}

// LogPath is the settlement log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Storage.Dir, c.Storage.LogFile)
}

// ParseWeekday accepts full or three-letter English weekday names.
func ParseWeekday(s string) (time.Weekday, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if s == name || s == name[:3] {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("unknown weekday %q", s)
}

func validateChatID(id string) error {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "@") {
		if len(id) < 2 {
			return fmt.Errorf("channel name is empty")
		}
		return nil
	}
	for i, r := range id {
		if r == '-' && i == 0 {
			continue
		}
		if r < '0' || r > '9' {
			return fmt.Errorf("%q must be numeric or @channel", id)
		}
	}
	return nil
}

func mustDuration(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
