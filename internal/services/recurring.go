package services

import (
	"context"
	"fmt"
	"strings"

	"kazo/internal/core"
)

// Recurring detection parameters.
const (
	recurringWindowDays = 90
	recurringTolerance  = 0.20
	recurringMinMatches = 2
)

// RecurringSuggestion checks whether e looks like a repeat payment: at least
// two earlier expenses at the same store within 20% of its base amount in
// the last 90 days. It returns a ready-to-send /addsub hint, or "" when the
// store is unknown, already tracked, or not recurring.
func (s *ExpenseService) RecurringSuggestion(ctx context.Context, e core.Expense) (string, error) {
	store := strings.TrimSpace(e.Store)
	if store == "" || e.AmountBase <= 0 {
		return "", nil
	}

	tracked, err := s.storage.HasActiveSubscription(ctx, e.ChatID, store)
	if err != nil {
		return "", fmt.Errorf("check subscriptions: %w", err)
	}
	if tracked {
		return "", nil
	}

	since := s.today().AddDays(-recurringWindowDays)
	n, err := s.storage.SimilarExpenseCount(ctx, e.ChatID, store, e.AmountBase, recurringTolerance, since, e.ID)
	if err != nil {
		return "", err
	}
	if n < recurringMinMatches {
		return "", nil
	}

	return fmt.Sprintf("🔁 %s looks recurring (%d similar payments in %d days). Track it as a subscription:\n/addsub %s %.2f %s monthly",
		store, n+1, recurringWindowDays, store, e.Amount, e.Currency), nil
}
