package services

import (
	"context"
	"strings"

	"kazo/internal/core"
	"kazo/internal/storage"
)

type BudgetService struct {
	storage *storage.SQLiteRepository
}

func NewBudgetService(storage *storage.SQLiteRepository) *BudgetService {
	return &BudgetService{storage: storage}
}

// Set replaces the budget for category, or the overall budget when category
// is nil.
func (s *BudgetService) Set(ctx context.Context, chatID int64, category *string, amountBase float64) (core.Budget, error) {
	b := core.Budget{ChatID: chatID, Category: normalizeCategory(category), AmountBase: amountBase}
	if err := b.Validate(); err != nil {
		return core.Budget{}, &core.ValidationError{Field: "amount", Msg: "budget must be positive"}
	}
	if err := s.storage.SetBudget(ctx, b); err != nil {
		return core.Budget{}, err
	}
	return b, nil
}

func (s *BudgetService) Remove(ctx context.Context, chatID int64, category *string) (bool, error) {
	return s.storage.DeleteBudget(ctx, chatID, normalizeCategory(category))
}

func (s *BudgetService) List(ctx context.Context, chatID int64) ([]core.Budget, error) {
	return s.storage.Budgets(ctx, chatID)
}

// VsActual compares each budget with spending between from and to.
func (s *BudgetService) VsActual(ctx context.Context, chatID int64, from, to core.Date) ([]core.BudgetStatus, error) {
	budgets, err := s.storage.Budgets(ctx, chatID)
	if err != nil {
		return nil, err
	}
	out := make([]core.BudgetStatus, 0, len(budgets))
	for _, b := range budgets {
		spent, err := s.storage.SpentBetween(ctx, chatID, b.Category, from, to)
		if err != nil {
			return nil, err
		}
		st := core.BudgetStatus{
			Category:  b.Category,
			Budget:    b.AmountBase,
			Spent:     spent,
			Remaining: b.AmountBase - spent,
		}
		if b.AmountBase > 0 {
			st.Pct = spent / b.AmountBase * 100
		}
		out = append(out, st)
	}
	return out, nil
}

// OverallBudget returns the aggregate budget amount, if one is set.
func (s *BudgetService) OverallBudget(ctx context.Context, chatID int64) (float64, bool, error) {
	budgets, err := s.storage.Budgets(ctx, chatID)
	if err != nil {
		return 0, false, err
	}
	for _, b := range budgets {
		if b.Category == nil {
			return b.AmountBase, true, nil
		}
	}
	return 0, false, nil
}

// ProgressBar renders pct as ten cells.
func ProgressBar(pct float64) string {
	filled := int(pct / 100 * 10)
	if filled > 10 {
		filled = 10
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", 10-filled)
}

func normalizeCategory(c *string) *string {
	if c == nil {
		return nil
	}
	v := strings.ToLower(strings.TrimSpace(*c))
	if v == "" {
		return nil
	}
	return &v
}
