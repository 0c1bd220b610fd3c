package notify

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// DefaultSendTimeout bounds a single Telegram API call.
const DefaultSendTimeout = 15 * time.Second

// TelegramConfig holds the bot credentials and target chat.
type TelegramConfig struct {
	BotToken string
	ChatID   string // numeric id, or @channelname
	Timeout  time.Duration
	// APIEndpoint is a format string taking the token and method. Empty
	// means tgbotapi.APIEndpoint.
	APIEndpoint string
}

// Telegram sends HTML messages through the Bot API. The bot is created on
// the first Send, so constructing a Telegram makes no network calls.
type Telegram struct {
	cfg    TelegramConfig
	client *http.Client
	logger zerolog.Logger

	mu  sync.Mutex
	bot *tgbotapi.BotAPI
}

// NewTelegram validates cfg and returns a notifier.
func NewTelegram(cfg TelegramConfig, logger zerolog.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.BotToken) == "" {
		return nil, fmt.Errorf("telegram bot token is required")
	}
	if _, _, err := parseChatID(cfg.ChatID); err != nil {
		return nil, err
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultSendTimeout
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	return &Telegram{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With().Str("component", "telegram").Logger(),
	}, nil
}

// Send delivers text with HTML parse mode. Failures are returned as
// *DeliveryError.
func (t *Telegram) Send(ctx context.Context, text string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return &DeliveryError{Channel: "telegram", Err: err}
	}

	bot, err := t.botLocked(ctx)
	if err != nil {
		t.logger.Error().Err(err).Msg("Telegram bot init failed")
		return &DeliveryError{Channel: "telegram", Err: err}
	}

	msg := t.newMessage(text)
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true

	bot.Client = &ctxClient{ctx: ctx, base: t.client}
	sent, err := bot.Send(msg)
	if err != nil {
		t.logger.Error().Err(err).Msg("Telegram send failed")
		return &DeliveryError{Channel: "telegram", Err: err}
	}
	t.logger.Info().Int("message_id", sent.MessageID).Int("chars", len(text)).Msg("Telegram message sent")
	return nil
}

func (t *Telegram) botLocked(ctx context.Context) (*tgbotapi.BotAPI, error) {
	if t.bot != nil {
		return t.bot, nil
	}
	bot, err := tgbotapi.NewBotAPIWithClient(t.cfg.BotToken, t.cfg.APIEndpoint, &ctxClient{ctx: ctx, base: t.client})
	if err != nil {
		return nil, err
	}
	t.logger.Debug().Str("bot", bot.Self.UserName).Msg("Telegram bot authorized")
	t.bot = bot
	return bot, nil
}

func (t *Telegram) newMessage(text string) tgbotapi.MessageConfig {
	id, channel, _ := parseChatID(t.cfg.ChatID)
	if channel != "" {
		return tgbotapi.NewMessageToChannel(channel, text)
	}
	return tgbotapi.NewMessage(id, text)
}

// parseChatID accepts a numeric chat id or an @channel username.
func parseChatID(raw string) (int64, string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, "", fmt.Errorf("telegram chat id is required")
	}
	if strings.HasPrefix(raw, "@") {
		if len(raw) < 2 {
			return 0, "", fmt.Errorf("invalid telegram channel %q", raw)
		}
		return 0, raw, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid telegram chat id %q: must be numeric or @channel", raw)
	}
	return id, "", nil
}

// ctxClient attaches ctx to every request the bot library makes.
type ctxClient struct {
	ctx  context.Context
	base *http.Client
}

func (c *ctxClient) Do(req *http.Request) (*http.Response, error) {
	return c.base.Do(req.WithContext(c.ctx))
}
