package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kazo/internal/currency"
)

// BaseCurrency returns the chat's configured base currency, if any.
func (r *SQLiteRepository) BaseCurrency(ctx context.Context, chatID int64) (string, bool, error) {
	var code string
	err := r.db.QueryRowContext(ctx, "SELECT base_currency FROM chat_settings WHERE chat_id = ?", chatID).Scan(&code)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get base currency: %w", err)
	}
	return code, true, nil
}

func (r *SQLiteRepository) SetBaseCurrency(ctx context.Context, chatID int64, code string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO chat_settings (chat_id, base_currency) VALUES (?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET base_currency = excluded.base_currency`,
		chatID, code)
	if err != nil {
		return fmt.Errorf("set base currency: %w", err)
	}
	return nil
}

// RecentCurrencies lists distinct expense currencies other than exclude,
// most recently used first.
func (r *SQLiteRepository) RecentCurrencies(ctx context.Context, chatID int64, exclude string, limit int) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT original_currency FROM expenses
		WHERE chat_id = ? AND original_currency != ?
		GROUP BY original_currency ORDER BY MAX(created_at) DESC LIMIT ?`,
		chatID, exclude, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent currencies: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan currency: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// CachedRate implements currency.RateStore.
func (r *SQLiteRepository) CachedRate(ctx context.Context, pair string) (currency.CachedRate, bool, error) {
	var (
		rate    float64
		fetched string
	)
	err := r.db.QueryRowContext(ctx, "SELECT rate, fetched_at FROM exchange_rates WHERE pair = ?", pair).Scan(&rate, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return currency.CachedRate{}, false, nil
	}
	if err != nil {
		return currency.CachedRate{}, false, fmt.Errorf("get cached rate %s: %w", pair, err)
	}
	return currency.CachedRate{Rate: rate, FetchedAt: parseTimestamp(fetched)}, true, nil
}

// StoreRate implements currency.RateStore.
func (r *SQLiteRepository) StoreRate(ctx context.Context, pair string, c currency.CachedRate) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO exchange_rates (pair, rate, fetched_at) VALUES (?, ?, ?)",
		pair, c.Rate, c.FetchedAt.UTC().Format(timestampLayout))
	if err != nil {
		return fmt.Errorf("store rate %s: %w", pair, err)
	}
	return nil
}
