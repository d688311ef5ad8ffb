package telegram

import (
	"context"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"kazo/internal/log"
)

// chatOf returns the chat an update belongs to.
func chatOf(update *models.Update) (int64, bool) {
	switch {
	case update.Message != nil:
		return update.Message.Chat.ID, true
	case update.CallbackQuery != nil && update.CallbackQuery.Message.Message != nil:
		return update.CallbackQuery.Message.Message.Chat.ID, true
	case update.CallbackQuery != nil:
		return update.CallbackQuery.From.ID, true
	}
	return 0, false
}

// trace puts a logger carrying a fresh trace id and the update's chat into
// the context.
func (b *Bot) trace(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, api *bot.Bot, update *models.Update) {
		logger := b.logger.With(
			log.FieldTraceID, uuid.NewString(),
			log.FieldUpdateID, update.ID)
		if chatID, ok := chatOf(update); ok {
			logger = logger.With(log.FieldChatID, chatID)
		}
		next(log.IntoContext(ctx, logger), api, update)
	}
}

// allowlist drops updates from chats that are not allowed.
func (b *Bot) allowlist(next bot.HandlerFunc) bot.HandlerFunc {
	return func(ctx context.Context, api *bot.Bot, update *models.Update) {
		chatID, ok := chatOf(update)
		if !ok {
			return
		}
		if b.allowed != nil && !b.allowed(chatID) {
			log.FromContextOr(ctx, b.logger).DebugContext(ctx, "Ignoring update from chat not in allowlist")
			return
		}
		next(ctx, api, update)
	}
}
