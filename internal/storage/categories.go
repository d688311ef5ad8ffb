package storage

import (
	"context"
	"fmt"
)

func (r *SQLiteRepository) CustomCategories(ctx context.Context, chatID int64) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT name FROM custom_categories WHERE chat_id = ? ORDER BY name", chatID)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// AddCategory stores a custom category and reports whether it was new.
func (r *SQLiteRepository) AddCategory(ctx context.Context, chatID int64, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "INSERT OR IGNORE INTO custom_categories (chat_id, name) VALUES (?, ?)", chatID, name)
	if err != nil {
		return false, fmt.Errorf("add category: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// RemoveCategory deletes a custom category and reports whether it existed.
func (r *SQLiteRepository) RemoveCategory(ctx context.Context, chatID int64, name string) (bool, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM custom_categories WHERE chat_id = ? AND name = ?", chatID, name)
	if err != nil {
		return false, fmt.Errorf("remove category: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
