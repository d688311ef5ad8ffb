package storage

import (
	"context"
	"database/sql"
	"fmt"

	"kazo/internal/core"
)

// insertItems writes priced items only. Unpriced items stay in items_json.
func insertItems(ctx context.Context, tx *sql.Tx, expenseID int64, items []core.ExpenseItem) error {
	for _, it := range items {
		if it.Price == nil {
			continue
		}
		qty := it.Quantity
		if qty <= 0 {
			qty = 1
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO expense_items (expense_id, name, price, currency, quantity) VALUES (?, ?, ?, ?, ?)",
			expenseID, it.Name, *it.Price, it.Currency, qty); err != nil {
			return fmt.Errorf("insert item %q: %w", it.Name, err)
		}
	}
	return nil
}

// ReplaceItems swaps an expense's item rows for the priced entries of items.
func (r *SQLiteRepository) ReplaceItems(ctx context.Context, expenseID int64, items []core.ExpenseItem) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM expense_items WHERE expense_id = ?", expenseID); err != nil {
			return fmt.Errorf("clear items: %w", err)
		}
		return insertItems(ctx, tx, expenseID, items)
	})
}

// ItemsForExpense lists the persisted item rows of an expense.
func (r *SQLiteRepository) ItemsForExpense(ctx context.Context, expenseID int64) ([]core.ExpenseItem, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, expense_id, name, price, currency, quantity FROM expense_items WHERE expense_id = ? ORDER BY id",
		expenseID)
	if err != nil {
		return nil, fmt.Errorf("query items: %w", err)
	}
	defer rows.Close()

	var out []core.ExpenseItem
	for rows.Next() {
		var (
			it    core.ExpenseItem
			price sql.NullFloat64
		)
		if err := rows.Scan(&it.ID, &it.ExpenseID, &it.Name, &price, &it.Currency, &it.Quantity); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		if price.Valid {
			it.Price = core.Ptr(price.Float64)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// SearchItemsByName finds priced purchases whose name contains name, newest
// first.
func (r *SQLiteRepository) SearchItemsByName(ctx context.Context, chatID int64, name string) ([]core.ItemPrice, error) {
	return r.queryItemPrices(ctx, `SELECT i.name, i.price, i.currency, i.quantity, COALESCE(e.store, ''), e.expense_date
		FROM expense_items i JOIN expenses e ON e.id = i.expense_id
		WHERE e.chat_id = ? AND i.name LIKE ? AND i.price IS NOT NULL
		ORDER BY e.expense_date DESC, i.id DESC`, chatID, "%"+name+"%")
}

// RecentItems lists the latest priced items, optionally restricted to
// categories matching category.
func (r *SQLiteRepository) RecentItems(ctx context.Context, chatID int64, category string, limit int) ([]core.ItemPrice, error) {
	query := `SELECT i.name, i.price, i.currency, i.quantity, COALESCE(e.store, ''), e.expense_date
		FROM expense_items i JOIN expenses e ON e.id = i.expense_id
		WHERE e.chat_id = ? AND i.price IS NOT NULL`
	args := []any{chatID}
	if category != "" {
		query += " AND e.category LIKE ?"
		args = append(args, "%"+category+"%")
	}
	query += " ORDER BY e.expense_date DESC, i.id DESC LIMIT ?"
	args = append(args, limit)
	return r.queryItemPrices(ctx, query, args...)
}

func (r *SQLiteRepository) queryItemPrices(ctx context.Context, query string, args ...any) ([]core.ItemPrice, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query item prices: %w", err)
	}
	defer rows.Close()

	var out []core.ItemPrice
	for rows.Next() {
		var p core.ItemPrice
		if err := rows.Scan(&p.Name, &p.Price, &p.Currency, &p.Quantity, &p.Store, &p.ExpenseDate); err != nil {
			return nil, fmt.Errorf("scan item price: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
