package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"kazo/internal/core"
	"kazo/internal/storage"
)

// Period is an inclusive date range with a display label.
type Period struct {
	From  core.Date
	To    core.Date
	Label string
}

// ParsePeriod resolves week, year and q1..q4 against today. Anything else,
// including an empty argument, means the current month to date.
func ParsePeriod(arg string, today core.Date) Period {
	switch a := strings.ToLower(strings.TrimSpace(arg)); a {
	case "week":
		offset := (int(today.Weekday()) + 6) % 7
		return Period{From: today.AddDays(-offset), To: today, Label: "this week"}
	case "year":
		return Period{From: core.NewDate(today.Year(), 1, 1), To: today, Label: fmt.Sprint(today.Year())}
	case "q1", "q2", "q3", "q4":
		q := int(a[1] - '0')
		startMonth := (q-1)*3 + 1
		from := core.NewDate(today.Year(), startMonth, 1)
		to := core.Date{Time: from.AddDate(0, 3, -1)}
		if to.After(today.Time) {
			to = today
		}
		return Period{From: from, To: to, Label: fmt.Sprintf("Q%d %d", q, today.Year())}
	}
	first, _ := today.MonthBounds()
	return Period{From: first, To: today, Label: today.Format("January 2006")}
}

// ParseMonth reads YYYY-MM and returns the whole month.
func ParseMonth(s string) (Period, error) {
	t, err := time.Parse("2006-01", strings.TrimSpace(s))
	if err != nil {
		return Period{}, &core.ValidationError{Field: "month", Msg: "use YYYY-MM"}
	}
	first, last := core.NewDate(t.Year(), int(t.Month()), 1).MonthBounds()
	return Period{From: first, To: last, Label: t.Format("2006-01")}, nil
}

type SummaryService struct {
	storage *storage.SQLiteRepository
	now     func() time.Time
}

func NewSummaryService(storage *storage.SQLiteRepository) *SummaryService {
	return &SummaryService{storage: storage, now: time.Now}
}

// WithClock replaces the clock used to resolve relative periods.
func (s *SummaryService) WithClock(now func() time.Time) *SummaryService {
	s.now = now
	return s
}

func (s *SummaryService) Today() core.Date {
	return core.Today(s.now())
}

func (s *SummaryService) ByCategory(ctx context.Context, chatID int64, p Period) ([]core.CategoryTotal, float64, error) {
	rows, err := s.storage.SpendingByCategory(ctx, chatID, p.From, p.To)
	if err != nil {
		return nil, 0, err
	}
	var total float64
	for _, r := range rows {
		total += r.Total
	}
	return rows, total, nil
}

// Monthly returns up to months totals, oldest first.
func (s *SummaryService) Monthly(ctx context.Context, chatID int64, months int) ([]core.MonthTotal, error) {
	rows, err := s.storage.MonthlyTotals(ctx, chatID, months)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// Daily returns per-day totals over the last days days including today.
func (s *SummaryService) Daily(ctx context.Context, chatID int64, days int) ([]core.DayTotal, Period, error) {
	today := s.Today()
	p := Period{From: today.AddDays(-(days - 1)), To: today}
	rows, err := s.storage.DailySpending(ctx, chatID, p.From, p.To)
	return rows, p, err
}

// Stats returns all-time figures with a month-over-month comparison. ok is
// false when the chat has no expenses.
func (s *SummaryService) Stats(ctx context.Context, chatID int64) (core.Stats, bool, error) {
	today := s.Today()
	first, _ := today.MonthBounds()
	prev := first.AddDays(-1)
	return s.storage.AllTimeStats(ctx, chatID, today.Format("2006-01"), prev.Format("2006-01"))
}

// Search finds expenses whose store, category or note contains text. A
// zero period searches everything.
func (s *SummaryService) Search(ctx context.Context, chatID int64, text string, p Period) ([]core.Expense, error) {
	return s.storage.SearchExpenses(ctx, chatID, text, p.From, p.To)
}

func (s *SummaryService) Between(ctx context.Context, chatID int64, p Period) ([]core.Expense, error) {
	return s.storage.ExpensesBetween(ctx, chatID, p.From, p.To)
}

func (s *SummaryService) ItemPrices(ctx context.Context, chatID int64, name string) ([]core.ItemPrice, error) {
	return s.storage.SearchItemsByName(ctx, chatID, name)
}

func (s *SummaryService) RecentItems(ctx context.Context, chatID int64, category string, limit int) ([]core.ItemPrice, error) {
	return s.storage.RecentItems(ctx, chatID, category, limit)
}
