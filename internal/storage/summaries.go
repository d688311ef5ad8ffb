package storage

import (
	"context"
	"database/sql"
	"fmt"

	"kazo/internal/core"
)

// SpendingByCategory totals base amounts per category, largest first.
func (r *SQLiteRepository) SpendingByCategory(ctx context.Context, chatID int64, from, to core.Date) ([]core.CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT COALESCE(category, ''), SUM(amount_base), COUNT(*)
		FROM expenses WHERE chat_id = ? AND expense_date >= ? AND expense_date <= ?
		GROUP BY category ORDER BY SUM(amount_base) DESC`,
		chatID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("query spending by category: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryTotal
	for rows.Next() {
		var c core.CategoryTotal
		if err := rows.Scan(&c.Category, &c.Total, &c.Count); err != nil {
			return nil, fmt.Errorf("scan category total: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// MonthlyTotals returns up to months most recent months, newest first.
func (r *SQLiteRepository) MonthlyTotals(ctx context.Context, chatID int64, months int) ([]core.MonthTotal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT strftime('%Y-%m', expense_date) AS month, SUM(amount_base), COUNT(*)
		FROM expenses WHERE chat_id = ?
		GROUP BY month ORDER BY month DESC LIMIT ?`, chatID, months)
	if err != nil {
		return nil, fmt.Errorf("query monthly totals: %w", err)
	}
	defer rows.Close()

	var out []core.MonthTotal
	for rows.Next() {
		var m core.MonthTotal
		if err := rows.Scan(&m.Month, &m.Total, &m.Count); err != nil {
			return nil, fmt.Errorf("scan month total: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// DailySpending totals base amounts per day in date order.
func (r *SQLiteRepository) DailySpending(ctx context.Context, chatID int64, from, to core.Date) ([]core.DayTotal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT expense_date, SUM(amount_base), COUNT(*)
		FROM expenses WHERE chat_id = ? AND expense_date >= ? AND expense_date <= ?
		GROUP BY expense_date ORDER BY expense_date`,
		chatID, from.String(), to.String())
	if err != nil {
		return nil, fmt.Errorf("query daily spending: %w", err)
	}
	defer rows.Close()

	var out []core.DayTotal
	for rows.Next() {
		var (
			d    core.DayTotal
			date string
		)
		if err := rows.Scan(&date, &d.Total, &d.Count); err != nil {
			return nil, fmt.Errorf("scan day total: %w", err)
		}
		d.Date, _ = core.ParseDate(date)
		out = append(out, d)
	}
	return out, rows.Err()
}

// SpentBetween totals base amounts in a date range. A nil category sums
// every expense.
func (r *SQLiteRepository) SpentBetween(ctx context.Context, chatID int64, category *string, from, to core.Date) (float64, error) {
	query := "SELECT COALESCE(SUM(amount_base), 0) FROM expenses WHERE chat_id = ? AND expense_date >= ? AND expense_date <= ?"
	args := []any{chatID, from.String(), to.String()}
	if category != nil {
		query += " AND category = ?"
		args = append(args, *category)
	}
	var total float64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum spending: %w", err)
	}
	return total, nil
}

// AllTimeStats summarizes every expense of a chat. ok is false when the
// chat has none.
func (r *SQLiteRepository) AllTimeStats(ctx context.Context, chatID int64, currentMonth string, previousMonth string) (core.Stats, bool, error) {
	var (
		s           core.Stats
		first, last sql.NullString
	)
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(amount_base), 0), COALESCE(AVG(amount_base), 0),
		COALESCE(MAX(amount_base), 0), MIN(expense_date), MAX(expense_date)
		FROM expenses WHERE chat_id = ?`, chatID).
		Scan(&s.Count, &s.Total, &s.AvgExpense, &s.MaxExpense, &first, &last)
	if err != nil {
		return core.Stats{}, false, fmt.Errorf("query stats: %w", err)
	}
	if s.Count == 0 {
		return core.Stats{}, false, nil
	}
	s.FirstDate, s.LastDate = first.String, last.String

	if s.TopCategories, err = r.topCategories(ctx, chatID); err != nil {
		return core.Stats{}, false, err
	}
	if s.TopStores, err = r.topStores(ctx, chatID); err != nil {
		return core.Stats{}, false, err
	}
	if s.MonthlyComparison, err = r.monthPair(ctx, chatID, currentMonth, previousMonth); err != nil {
		return core.Stats{}, false, err
	}
	return s, true, nil
}

func (r *SQLiteRepository) topCategories(ctx context.Context, chatID int64) ([]core.CategoryTotal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT COALESCE(category, ''), SUM(amount_base), COUNT(*)
		FROM expenses WHERE chat_id = ? GROUP BY category ORDER BY SUM(amount_base) DESC LIMIT 5`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query top categories: %w", err)
	}
	defer rows.Close()

	var out []core.CategoryTotal
	for rows.Next() {
		var c core.CategoryTotal
		if err := rows.Scan(&c.Category, &c.Total, &c.Count); err != nil {
			return nil, fmt.Errorf("scan top category: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) topStores(ctx context.Context, chatID int64) ([]core.StoreTotal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT store, SUM(amount_base), COUNT(*)
		FROM expenses WHERE chat_id = ? AND store IS NOT NULL AND store != ''
		GROUP BY LOWER(store) ORDER BY SUM(amount_base) DESC LIMIT 5`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query top stores: %w", err)
	}
	defer rows.Close()

	var out []core.StoreTotal
	for rows.Next() {
		var s core.StoreTotal
		if err := rows.Scan(&s.Store, &s.Total, &s.Count); err != nil {
			return nil, fmt.Errorf("scan top store: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) monthPair(ctx context.Context, chatID int64, current, previous string) ([]core.MonthTotal, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT strftime('%Y-%m', expense_date) AS month, SUM(amount_base), COUNT(*)
		FROM expenses WHERE chat_id = ? AND strftime('%Y-%m', expense_date) IN (?, ?)
		GROUP BY month ORDER BY month DESC`, chatID, current, previous)
	if err != nil {
		return nil, fmt.Errorf("query month comparison: %w", err)
	}
	defer rows.Close()

	var out []core.MonthTotal
	for rows.Next() {
		var m core.MonthTotal
		if err := rows.Scan(&m.Month, &m.Total, &m.Count); err != nil {
			return nil, fmt.Errorf("scan month comparison: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
