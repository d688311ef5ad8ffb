// Package telegram connects the expense tracker to the Telegram Bot API.
package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"kazo/internal/log"
	"kazo/internal/pending"
)

type Bot struct {
	api     *bot.Bot
	handler *Handler
	logger  *log.Logger
	allowed func(chatID int64) bool
}

type Config struct {
	Token string
	Debug bool
	// Allowed reports whether a chat may use the bot. Nil admits everyone.
	Allowed func(chatID int64) bool
}

// New creates the Bot API client and wires the handlers to it.
func New(cfg Config, deps Deps, logger *log.Logger) (*Bot, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram token is required")
	}
	if logger == nil {
		logger = log.Discard()
	}
	b := &Bot{
		logger:  logger.WithComponent(log.ComponentBot),
		allowed: cfg.Allowed,
	}

	opts := []bot.Option{
		bot.WithDefaultHandler(b.onUpdate),
		bot.WithMiddlewares(b.trace, b.allowlist),
	}
	if cfg.Debug {
		opts = append(opts, bot.WithDebug())
	}
	api, err := bot.New(cfg.Token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	b.api = api
	b.handler = NewHandler(NewAPISender(api), deps, logger)

	api.RegisterHandler(bot.HandlerTypeCallbackQueryData, pending.CallbackPrefix, bot.MatchTypePrefix, b.onCallback)
	return b, nil
}

func (b *Bot) Handler() *Handler {
	return b.handler
}

// Start polls for updates until ctx is cancelled.
func (b *Bot) Start(ctx context.Context) error {
	me, err := b.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("failed to get bot info: %w", err)
	}
	b.logger.InfoContext(ctx, "Telegram bot started", "username", me.Username, "id", me.ID)
	b.api.Start(ctx)
	return nil
}

func (b *Bot) onUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update.Message != nil {
		b.handler.HandleMessage(ctx, update.Message)
	}
}

func (b *Bot) onCallback(ctx context.Context, _ *bot.Bot, update *models.Update) {
	b.handler.HandleCallback(ctx, update.CallbackQuery)
}
