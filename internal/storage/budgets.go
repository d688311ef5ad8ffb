package storage

import (
	"context"
	"database/sql"
	"fmt"

	"kazo/internal/core"
)

func nullCategory(c *string) sql.NullString {
	if c == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *c, Valid: true}
}

// SetBudget replaces the chat's budget for category. A nil category is the
// overall budget. SQLite treats NULLs as distinct in UNIQUE constraints, so
// the old row is removed explicitly.
func (r *SQLiteRepository) SetBudget(ctx context.Context, b core.Budget) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM budgets WHERE chat_id = ? AND category IS ?",
			b.ChatID, nullCategory(b.Category)); err != nil {
			return fmt.Errorf("clear budget: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO budgets (chat_id, category, amount_base) VALUES (?, ?, ?)",
			b.ChatID, nullCategory(b.Category), b.AmountBase); err != nil {
			return fmt.Errorf("insert budget: %w", err)
		}
		return nil
	})
}

// DeleteBudget removes a budget and reports whether one existed.
func (r *SQLiteRepository) DeleteBudget(ctx context.Context, chatID int64, category *string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM budgets WHERE chat_id = ? AND category IS ?", chatID, nullCategory(category))
	if err != nil {
		return false, fmt.Errorf("delete budget: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Budgets lists a chat's budgets, overall budget first.
func (r *SQLiteRepository) Budgets(ctx context.Context, chatID int64) ([]core.Budget, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, chat_id, category, amount_base FROM budgets WHERE chat_id = ? ORDER BY category IS NOT NULL, category",
		chatID)
	if err != nil {
		return nil, fmt.Errorf("query budgets: %w", err)
	}
	defer rows.Close()

	var out []core.Budget
	for rows.Next() {
		var (
			b   core.Budget
			cat sql.NullString
		)
		if err := rows.Scan(&b.ID, &b.ChatID, &cat, &b.AmountBase); err != nil {
			return nil, fmt.Errorf("scan budget: %w", err)
		}
		if cat.Valid {
			b.Category = core.Ptr(cat.String)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
