package storage

import (
	"context"
	"database/sql"
	"fmt"

	"kazo/internal/core"
)

func (r *SQLiteRepository) AddSubscription(ctx context.Context, s core.Subscription) (int64, error) {
	if err := s.Validate(); err != nil {
		return 0, fmt.Errorf("validate subscription: %w", err)
	}
	var billingDay sql.NullInt64
	if s.BillingDay != nil {
		billingDay = sql.NullInt64{Int64: int64(*s.BillingDay), Valid: true}
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO subscriptions
		(chat_id, name, amount, original_currency, amount_base, frequency, category, billing_day, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		s.ChatID, s.Name, s.Amount, s.Currency, s.AmountBase, string(s.Frequency),
		nullString(s.Category), billingDay, r.stamp())
	if err != nil {
		return 0, fmt.Errorf("insert subscription: %w", err)
	}
	return res.LastInsertId()
}

// ActiveSubscriptions lists a chat's active subscriptions by name.
func (r *SQLiteRepository) ActiveSubscriptions(ctx context.Context, chatID int64) ([]core.Subscription, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, chat_id, name, amount, original_currency, amount_base,
		frequency, category, billing_day, active, created_at
		FROM subscriptions WHERE chat_id = ? AND active = 1 ORDER BY name COLLATE NOCASE`, chatID)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	var out []core.Subscription
	for rows.Next() {
		var (
			s          core.Subscription
			freq       string
			category   sql.NullString
			billingDay sql.NullInt64
			created    string
		)
		if err := rows.Scan(&s.ID, &s.ChatID, &s.Name, &s.Amount, &s.Currency, &s.AmountBase,
			&freq, &category, &billingDay, &s.Active, &created); err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		s.Frequency = core.Frequency(freq)
		s.Category = category.String
		if billingDay.Valid {
			s.BillingDay = core.Ptr(int(billingDay.Int64))
		}
		s.CreatedAt = parseTimestamp(created)
		out = append(out, s)
	}
	return out, rows.Err()
}

// DeactivateSubscription soft-deletes active subscriptions matching name
// case-insensitively and reports whether any matched.
func (r *SQLiteRepository) DeactivateSubscription(ctx context.Context, chatID int64, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE subscriptions SET active = 0 WHERE chat_id = ? AND LOWER(name) = LOWER(?) AND active = 1",
		chatID, name)
	if err != nil {
		return false, fmt.Errorf("deactivate subscription: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// HasActiveSubscription reports whether an active subscription named name
// exists.
func (r *SQLiteRepository) HasActiveSubscription(ctx context.Context, chatID int64, name string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM subscriptions WHERE chat_id = ? AND LOWER(name) = LOWER(?) AND active = 1",
		chatID, name).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check subscription: %w", err)
	}
	return n > 0, nil
}

// UpdateSubscriptionBase stores a recomputed base amount.
func (r *SQLiteRepository) UpdateSubscriptionBase(ctx context.Context, id int64, amountBase float64) error {
	if amountBase <= 0 {
		return core.ErrInvalidAmount
	}
	if _, err := r.db.ExecContext(ctx, "UPDATE subscriptions SET amount_base = ? WHERE id = ?", amountBase, id); err != nil {
		return fmt.Errorf("update subscription %d: %w", id, err)
	}
	return nil
}
