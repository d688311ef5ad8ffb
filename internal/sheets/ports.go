package sheets

import (
	"context"

	"kazo/internal/core"
)

// Ports for outbound adapters. Rows are keyed by the expense ID.
type (
	ExpenseWriter interface {
		// Upsert writes e to its existing row, or to a new row when the
		// expense has not been mirrored yet.
		Upsert(ctx context.Context, e core.Expense) (rowRef string, err error)
	}

	ExpenseDeleter interface {
		// DeleteExpense clears the row of expenseID. Unknown IDs are not an
		// error.
		DeleteExpense(ctx context.Context, expenseID int64) error
	}

	Mirror interface {
		ExpenseWriter
		ExpenseDeleter
	}
)

// Header is the first row of a mirror sheet.
var Header = []string{"ID", "Date", "Store", "Category", "Amount", "Currency", "Amount (base)", "Source", "Note"}

// Row renders e in Header order.
func Row(e core.Expense) []any {
	return []any{
		e.ID,
		e.ExpenseDate.String(),
		e.Store,
		e.Category,
		e.Amount,
		e.Currency,
		e.AmountBase,
		string(e.Source),
		e.Note,
	}
}
