// Package notify delivers human-readable trade events. Delivery is
// best-effort: a failed message never affects trading.
package notify

import (
	"context"
	"net/http"
	"time"

	"github.com/evdnx/papertrader/logger"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"
)

type Notifier interface {
	Send(ctx context.Context, text string) error
}

// Nop drops every message.
type Nop struct{}

func (Nop) Send(context.Context, string) error { return nil }

// Telegram posts HTML messages to a fixed set of chats, at most one message
// per MinInterval across all chats.
type Telegram struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
	limiter *rate.Limiter
}

const MinInterval = time.Second

// NewTelegram authenticates the bot token against the Bot API.
func NewTelegram(token string, chatIDs []int64) (*Telegram, error) {
	return NewTelegramWithEndpoint(token, chatIDs, tgbotapi.APIEndpoint, &http.Client{Timeout: 10 * time.Second})
}

// NewTelegramWithEndpoint is NewTelegram against a custom endpoint format
// ("https://host/bot%s/%s").
func NewTelegramWithEndpoint(token string, chatIDs []int64, endpoint string, client tgbotapi.HTTPClient) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPIWithClient(token, endpoint, client)
	if err != nil {
		return nil, err
	}
	bot.Debug = false
	return &Telegram{
		bot:     bot,
		chatIDs: append([]int64(nil), chatIDs...),
		limiter: rate.NewLimiter(rate.Every(MinInterval), 1),
	}, nil
}

func (t *Telegram) Username() string { return t.bot.Self.UserName }

func (t *Telegram) Send(ctx context.Context, text string) error {
	var errs error
	for _, id := range t.chatIDs {
		if err := t.limiter.Wait(ctx); err != nil {
			return multierr.Append(errs, err)
		}
		msg := tgbotapi.NewMessage(id, text)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true
		if _, err := t.bot.Send(msg); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// BestEffort logs and swallows delivery failures. Each message gets at most
// Timeout.
type BestEffort struct {
	Inner   Notifier
	Log     logger.Logger
	Timeout time.Duration
}

func NewBestEffort(inner Notifier, log logger.Logger) *BestEffort {
	if inner == nil {
		inner = Nop{}
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &BestEffort{Inner: inner, Log: log, Timeout: 15 * time.Second}
}

func (b *BestEffort) Send(ctx context.Context, text string) error {
	if b.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.Timeout)
		defer cancel()
	}
	if err := b.Inner.Send(ctx, text); err != nil {
		b.Log.Warn("notify_failed", logger.Err(err))
	}
	return nil
}
