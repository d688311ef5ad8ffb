package core

// CategoryTotal is base-currency spending aggregated by category.
type CategoryTotal struct {
	Category string
	Total    float64
	Count    int
}

// MonthTotal is spending for a "YYYY-MM" month.
type MonthTotal struct {
	Month string
	Total float64
	Count int
}

type DayTotal struct {
	Date  Date
	Total float64
	Count int
}

type StoreTotal struct {
	Store string
	Total float64
	Count int
}

// BudgetStatus compares a budget with what was spent against it.
type BudgetStatus struct {
	Category  *string
	Budget    float64
	Spent     float64
	Remaining float64
	Pct       float64
}

// Stats is the all-time overview for a chat.
type Stats struct {
	Count         int
	Total         float64
	AvgExpense    float64
	MaxExpense    float64
	FirstDate     string
	LastDate      string
	TopCategories []CategoryTotal
	TopStores     []StoreTotal
	// Current month first, previous month second, when both exist.
	MonthlyComparison []MonthTotal
}

// ItemPrice is one priced purchase of an item, joined with its expense.
type ItemPrice struct {
	Name        string
	Price       float64
	Currency    string
	Quantity    float64
	Store       string
	ExpenseDate string
}
