package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"kazo/internal/core"
	"kazo/internal/log"
)

const expenseColumns = `id, chat_id, user_id, store, amount, original_currency, amount_base,
	exchange_rate, category, items_json, source, expense_date, note, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanExpense(s rowScanner) (core.Expense, error) {
	var (
		e                            core.Expense
		store, category, items, note sql.NullString
		source, date, created        string
	)
	err := s.Scan(&e.ID, &e.ChatID, &e.UserID, &store, &e.Amount, &e.Currency, &e.AmountBase,
		&e.ExchangeRate, &category, &items, &source, &date, &note, &created)
	if err != nil {
		return core.Expense{}, err
	}
	e.Store = store.String
	e.Category = category.String
	e.ItemsJSON = items.String
	e.Note = note.String
	e.Source = core.Source(source)
	if d, err := core.ParseDate(date); err == nil {
		e.ExpenseDate = d
	}
	e.CreatedAt = parseTimestamp(created)
	return e, nil
}

// SaveExpense inserts the expense and its priced items atomically and
// returns the new expense ID. Items are parsed from ItemsJSON.
func (r *SQLiteRepository) SaveExpense(ctx context.Context, e core.Expense) (int64, error) {
	if err := e.Validate(); err != nil {
		return 0, fmt.Errorf("validate expense: %w", err)
	}
	if e.Source == "" {
		e.Source = core.SourceText
	}
	created := r.stamp()
	if !e.CreatedAt.IsZero() {
		created = e.CreatedAt.UTC().Format(timestampLayout)
	}

	var id int64
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `INSERT INTO expenses
			(chat_id, user_id, store, amount, original_currency, amount_base, exchange_rate,
			 category, items_json, source, expense_date, note, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.ChatID, e.UserID, nullString(e.Store), e.Amount, e.Currency, e.AmountBase, e.ExchangeRate,
			nullString(e.Category), nullString(e.ItemsJSON), string(e.Source), e.ExpenseDate.String(),
			nullString(e.Note), created)
		if err != nil {
			return fmt.Errorf("insert expense: %w", err)
		}
		id, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("expense id: %w", err)
		}
		return insertItems(ctx, tx, id, core.ParseItems(e.ItemsJSON, e.Currency))
	})
	if err != nil {
		return 0, err
	}

	r.logger.InfoContext(ctx, "Expense saved",
		log.NewFields().
			WithChat(e.ChatID).
			WithExpenseID(id).
			WithAmount(e.Amount, e.Currency, e.AmountBase).
			WithOperation(log.OpCreate).
			ToSlice()...)
	return id, nil
}

// ExpenseByID returns the expense with the given ID, or ErrNotFound.
func (r *SQLiteRepository) ExpenseByID(ctx context.Context, id int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+expenseColumns+" FROM expenses WHERE id = ?", id)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return e, nil
}

// LastExpense returns the most recently saved expense of a chat.
func (r *SQLiteRepository) LastExpense(ctx context.Context, chatID int64) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+expenseColumns+" FROM expenses WHERE chat_id = ? ORDER BY id DESC LIMIT 1", chatID)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get last expense: %w", err)
	}
	return e, nil
}

// UpdateExpense writes the non-nil fields of u. It reports whether a row was
// changed.
func (r *SQLiteRepository) UpdateExpense(ctx context.Context, id int64, u core.ExpenseUpdate) (bool, error) {
	if err := u.Validate(); err != nil {
		return false, err
	}
	var (
		sets []string
		args []any
	)
	add := func(col string, v any) {
		sets = append(sets, col+" = ?")
		args = append(args, v)
	}
	if u.Amount != nil {
		add("amount", *u.Amount)
	}
	if u.Currency != nil {
		add("original_currency", *u.Currency)
	}
	if u.Category != nil {
		add("category", nullString(*u.Category))
	}
	if u.Store != nil {
		add("store", nullString(*u.Store))
	}
	if u.Note != nil {
		add("note", nullString(*u.Note))
	}
	if u.ExpenseDate != nil {
		add("expense_date", u.ExpenseDate.String())
	}
	if u.AmountBase != nil {
		add("amount_base", *u.AmountBase)
	}
	if u.ExchangeRate != nil {
		add("exchange_rate", *u.ExchangeRate)
	}
	if len(sets) == 0 {
		return false, nil
	}
	args = append(args, id)

	res, err := r.db.ExecContext(ctx, "UPDATE expenses SET "+strings.Join(sets, ", ")+" WHERE id = ?", args...)
	if err != nil {
		return false, fmt.Errorf("update expense %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("update expense %d: %w", id, err)
	}
	return n > 0, nil
}

// DeleteLastExpense removes the chat's most recent expense and returns it.
// Its items and message links go with it.
func (r *SQLiteRepository) DeleteLastExpense(ctx context.Context, chatID int64) (core.Expense, error) {
	var deleted core.Expense
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx,
			"SELECT "+expenseColumns+" FROM expenses WHERE chat_id = ? ORDER BY id DESC LIMIT 1", chatID)
		e, err := scanExpense(row)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get last expense: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM expenses WHERE id = ?", e.ID); err != nil {
			return fmt.Errorf("delete expense %d: %w", e.ID, err)
		}
		deleted = e
		return nil
	})
	if err != nil {
		return core.Expense{}, err
	}
	r.logger.InfoContext(ctx, "Expense deleted",
		log.FieldChatID, chatID,
		log.FieldExpenseID, deleted.ID,
		log.FieldOperation, log.OpDelete)
	return deleted, nil
}

// LinkBotMessage associates a bot message with the expense it reports, so a
// reply to that message can edit the expense.
func (r *SQLiteRepository) LinkBotMessage(ctx context.Context, chatID int64, messageID int, expenseID int64) error {
	_, err := r.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO bot_message_expenses (chat_id, bot_message_id, expense_id) VALUES (?, ?, ?)",
		chatID, messageID, expenseID)
	if err != nil {
		return fmt.Errorf("link bot message: %w", err)
	}
	return nil
}

// ExpenseByBotMessage resolves a linked bot message to its expense.
func (r *SQLiteRepository) ExpenseByBotMessage(ctx context.Context, chatID int64, messageID int) (core.Expense, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+prefixed("e", expenseColumns)+`
		FROM bot_message_expenses b JOIN expenses e ON e.id = b.expense_id
		WHERE b.chat_id = ? AND b.bot_message_id = ?`, chatID, messageID)
	e, err := scanExpense(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Expense{}, ErrNotFound
	}
	if err != nil {
		return core.Expense{}, fmt.Errorf("get expense by bot message: %w", err)
	}
	return e, nil
}

// ExpensesBetween lists expenses with from <= expense_date <= to, newest
// first. Zero dates leave that side open.
func (r *SQLiteRepository) ExpensesBetween(ctx context.Context, chatID int64, from, to core.Date) ([]core.Expense, error) {
	query := "SELECT " + expenseColumns + " FROM expenses WHERE chat_id = ?"
	args := []any{chatID}
	if !from.IsZero() {
		query += " AND expense_date >= ?"
		args = append(args, from.String())
	}
	if !to.IsZero() {
		query += " AND expense_date <= ?"
		args = append(args, to.String())
	}
	query += " ORDER BY expense_date DESC, id DESC"
	return r.queryExpenses(ctx, query, args...)
}

// SearchExpenses matches query against store, category, note and items.
func (r *SQLiteRepository) SearchExpenses(ctx context.Context, chatID int64, text string, from, to core.Date) ([]core.Expense, error) {
	like := "%" + text + "%"
	query := "SELECT " + expenseColumns + ` FROM expenses
		WHERE chat_id = ? AND (store LIKE ? OR category LIKE ? OR note LIKE ? OR items_json LIKE ?)`
	args := []any{chatID, like, like, like, like}
	if !from.IsZero() {
		query += " AND expense_date >= ?"
		args = append(args, from.String())
	}
	if !to.IsZero() {
		query += " AND expense_date <= ?"
		args = append(args, to.String())
	}
	query += " ORDER BY expense_date DESC, id DESC"
	return r.queryExpenses(ctx, query, args...)
}

// SimilarExpenseCount counts expenses at the same store (case-insensitive)
// whose base amount lies within tolerance of amountBase, dated on or after
// since. excludeID is left out of the count.
func (r *SQLiteRepository) SimilarExpenseCount(ctx context.Context, chatID int64, store string, amountBase, tolerance float64, since core.Date, excludeID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM expenses
		WHERE chat_id = ? AND LOWER(store) = LOWER(?) AND id != ?
		  AND amount_base BETWEEN ? AND ? AND expense_date >= ?`,
		chatID, store, excludeID,
		amountBase*(1-tolerance), amountBase*(1+tolerance), since.String()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count similar expenses: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) queryExpenses(ctx context.Context, query string, args ...any) ([]core.Expense, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query expenses: %w", err)
	}
	defer rows.Close()

	var out []core.Expense
	for rows.Next() {
		e, err := scanExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expense: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// prefixed qualifies a comma-separated column list with a table alias.
func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
