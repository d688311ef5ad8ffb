package core

import (
	"encoding/json"
	"strings"
)

// rawItem is the loose shape produced by extraction. Some prompts return the
// item name under "item" instead of "name".
type rawItem struct {
	Name     string   `json:"name"`
	Item     string   `json:"item"`
	Price    *float64 `json:"price"`
	Quantity *float64 `json:"quantity"`
}

// ParseItems decodes an items JSON array. Invalid JSON yields nil and entries
// without a name are skipped. Quantity defaults to 1.
func ParseItems(raw string, currency string) []ExpenseItem {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	var in []rawItem
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil
	}
	out := make([]ExpenseItem, 0, len(in))
	for _, r := range in {
		name := strings.TrimSpace(r.Name)
		if name == "" {
			name = strings.TrimSpace(r.Item)
		}
		if name == "" {
			continue
		}
		qty := 1.0
		if r.Quantity != nil && *r.Quantity > 0 {
			qty = *r.Quantity
		}
		out = append(out, ExpenseItem{Name: name, Price: r.Price, Currency: currency, Quantity: qty})
	}
	return out
}

// ItemsJSON encodes items in the same shape ParseItems reads.
func ItemsJSON(items []ExpenseItem) string {
	type wire struct {
		Name     string   `json:"name"`
		Price    *float64 `json:"price"`
		Quantity float64  `json:"quantity"`
	}
	out := make([]wire, 0, len(items))
	for _, it := range items {
		out = append(out, wire{Name: it.Name, Price: it.Price, Quantity: it.Quantity})
	}
	b, _ := json.Marshal(out)
	return string(b)
}

// PricedSum sums item prices, skipping unpriced items. A price is the line
// total; quantity is informational.
func PricedSum(items []ExpenseItem) float64 {
	var sum float64
	for _, it := range items {
		if it.Price != nil {
			sum += *it.Price
		}
	}
	return sum
}

// ExpensePatch enumerates the fields a user may change on a saved expense.
// Nil fields are left untouched.
type ExpensePatch struct {
	Amount      *float64
	Currency    *string
	Category    *string
	Store       *string
	Note        *string
	ExpenseDate *Date
}

func (p ExpensePatch) IsEmpty() bool {
	return p.Amount == nil && p.Currency == nil && p.Category == nil &&
		p.Store == nil && p.Note == nil && p.ExpenseDate == nil
}

// NeedsConversion reports whether the base amount must be recomputed.
func (p ExpensePatch) NeedsConversion() bool {
	return p.Amount != nil || p.Currency != nil
}

func (p ExpensePatch) Validate() error {
	if p.Amount != nil && *p.Amount <= 0 {
		return &ValidationError{Field: "amount", Msg: "must be positive"}
	}
	if p.Currency != nil && strings.TrimSpace(*p.Currency) == "" {
		return &ValidationError{Field: "currency", Msg: "must not be empty"}
	}
	if p.ExpenseDate != nil && p.ExpenseDate.IsZero() {
		return &ValidationError{Field: "expense_date", Msg: "must not be empty"}
	}
	return nil
}

// ExpenseUpdate is a validated patch plus the derived base-currency values
// written alongside it.
type ExpenseUpdate struct {
	ExpensePatch
	AmountBase   *float64
	ExchangeRate *float64
}

// Apply returns e with the update applied.
func (u ExpenseUpdate) Apply(e Expense) Expense {
	if u.Amount != nil {
		e.Amount = *u.Amount
	}
	if u.Currency != nil {
		e.Currency = *u.Currency
	}
	if u.Category != nil {
		e.Category = *u.Category
	}
	if u.Store != nil {
		e.Store = *u.Store
	}
	if u.Note != nil {
		e.Note = *u.Note
	}
	if u.ExpenseDate != nil {
		e.ExpenseDate = *u.ExpenseDate
	}
	if u.AmountBase != nil {
		e.AmountBase = *u.AmountBase
	}
	if u.ExchangeRate != nil {
		e.ExchangeRate = *u.ExchangeRate
	}
	return e
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}
