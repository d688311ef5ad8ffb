package llm

import (
	"context"
	"encoding/json"
)

// Allower decides whether a chat may make another call.
type Allower interface {
	Allow(chatID int64) bool
	Limit() int
}

// Limited enforces a per-chat call budget in front of another Client.
// Rejected calls never reach the wrapped client.
type Limited struct {
	next    Client
	limiter Allower
}

func NewLimited(next Client, limiter Allower) *Limited {
	return &Limited{next: next, limiter: limiter}
}

func (l *Limited) check(chatID int64) error {
	if chatID == 0 || l.limiter.Allow(chatID) {
		return nil
	}
	return &RateLimitError{ChatID: chatID, Limit: l.limiter.Limit()}
}

func (l *Limited) Ask(ctx context.Context, req Request) (string, error) {
	if err := l.check(req.ChatID); err != nil {
		return "", err
	}
	return l.next.Ask(ctx, req)
}

func (l *Limited) AskStructured(ctx context.Context, req Request) (json.RawMessage, error) {
	if err := l.check(req.ChatID); err != nil {
		return nil, err
	}
	return l.next.AskStructured(ctx, req)
}
