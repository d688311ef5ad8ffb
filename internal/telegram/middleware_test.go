package telegram

import (
	"context"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"kazo/internal/log"
)

func TestChatOf(t *testing.T) {
	tests := []struct {
		name   string
		update *models.Update
		want   int64
		wantOK bool
	}{
		{"message", &models.Update{Message: &models.Message{Chat: models.Chat{ID: 5}}}, 5, true},
		{"callback", &models.Update{CallbackQuery: &models.CallbackQuery{
			Message: models.MaybeInaccessibleMessage{Message: &models.Message{Chat: models.Chat{ID: 6}}},
		}}, 6, true},
		{"inaccessible callback", &models.Update{CallbackQuery: &models.CallbackQuery{From: models.User{ID: 7}}}, 7, true},
		{"other", &models.Update{}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := chatOf(tt.update)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("chatOf = (%d, %v), want (%d, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestAllowlist(t *testing.T) {
	b := &Bot{
		logger:  log.Discard(),
		allowed: func(chatID int64) bool { return chatID == 1 },
	}
	var reached []int64
	next := b.allowlist(func(_ context.Context, _ *bot.Bot, u *models.Update) {
		reached = append(reached, u.Message.Chat.ID)
	})

	for _, id := range []int64{1, 2} {
		next(context.Background(), nil, &models.Update{Message: &models.Message{Chat: models.Chat{ID: id}}})
	}

	if len(reached) != 1 || reached[0] != 1 {
		t.Errorf("handled chats = %v, want [1]", reached)
	}
}

func TestTrace_AddsLogger(t *testing.T) {
	base := log.Discard()
	b := &Bot{logger: base}
	var got *log.Logger
	next := b.trace(func(ctx context.Context, _ *bot.Bot, _ *models.Update) {
		got = log.FromContextOr(ctx, nil)
	})

	next(context.Background(), nil, &models.Update{ID: 9, Message: &models.Message{Chat: models.Chat{ID: 3}}})

	if got == nil || got == base {
		t.Errorf("context logger = %v, want a derived logger", got)
	}
}
