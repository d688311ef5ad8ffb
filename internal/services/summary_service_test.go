package services

import (
	"context"
	"testing"

	"kazo/internal/core"
)

func TestParsePeriod(t *testing.T) {
	today := core.NewDate(2025, 5, 14) // Wednesday

	tests := []struct {
		arg   string
		from  core.Date
		to    core.Date
		label string
	}{
		{"", core.NewDate(2025, 5, 1), today, "May 2025"},
		{"week", core.NewDate(2025, 5, 12), today, "this week"},
		{"YEAR", core.NewDate(2025, 1, 1), today, "2025"},
		{"q1", core.NewDate(2025, 1, 1), core.NewDate(2025, 3, 31), "Q1 2025"},
		{"q2", core.NewDate(2025, 4, 1), today, "Q2 2025"},
		{"q4", core.NewDate(2025, 10, 1), today, "Q4 2025"},
		{"bogus", core.NewDate(2025, 5, 1), today, "May 2025"},
	}
	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			p := ParsePeriod(tt.arg, today)
			if !p.From.Equal(tt.from.Time) || !p.To.Equal(tt.to.Time) || p.Label != tt.label {
				t.Errorf("ParsePeriod(%q) = %s..%s %q, want %s..%s %q",
					tt.arg, p.From, p.To, p.Label, tt.from, tt.to, tt.label)
			}
		})
	}
}

func TestParsePeriod_WeekOnSunday(t *testing.T) {
	p := ParsePeriod("week", core.NewDate(2025, 5, 18))
	if p.From.String() != "2025-05-12" {
		t.Errorf("week start = %s, want 2025-05-12", p.From)
	}
}

func TestParseMonth(t *testing.T) {
	p, err := ParseMonth("2024-02")
	if err != nil {
		t.Fatalf("ParseMonth: %v", err)
	}
	if p.From.String() != "2024-02-01" || p.To.String() != "2024-02-29" {
		t.Errorf("ParseMonth = %s..%s", p.From, p.To)
	}
	if _, err := ParseMonth("Feb"); err == nil {
		t.Error("expected error for malformed month")
	}
}

func TestProgressBar(t *testing.T) {
	tests := []struct {
		pct  float64
		want string
	}{
		{0, "░░░░░░░░░░"},
		{45, "████░░░░░░"},
		{100, "██████████"},
		{250, "██████████"},
	}
	for _, tt := range tests {
		if got := ProgressBar(tt.pct); got != tt.want {
			t.Errorf("ProgressBar(%v) = %q, want %q", tt.pct, got, tt.want)
		}
	}
}

func TestBudgetService_VsActual(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	budgets := NewBudgetService(f.repo)

	if _, err := budgets.Set(ctx, testChat, nil, 500); err != nil {
		t.Fatalf("Set overall: %v", err)
	}
	if _, err := budgets.Set(ctx, testChat, core.Ptr("Subscriptions"), 40); err != nil {
		t.Fatalf("Set category: %v", err)
	}
	if _, err := budgets.Set(ctx, testChat, nil, 0); err == nil {
		t.Error("expected error for zero budget")
	}

	f.expenses.Save(ctx, expenseAt("Netflix", 30, core.NewDate(2025, 3, 5)))
	f.expenses.Save(ctx, expenseAt("Old", 99, core.NewDate(2025, 2, 5)))

	statuses, err := budgets.VsActual(ctx, testChat, core.NewDate(2025, 3, 1), core.NewDate(2025, 3, 31))
	if err != nil {
		t.Fatalf("VsActual: %v", err)
	}
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses", len(statuses))
	}
	for _, st := range statuses {
		if st.Spent != 30 {
			t.Errorf("spent = %v, want 30", st.Spent)
		}
		if st.Category != nil && (*st.Category != "subscriptions" || st.Remaining != 10 || st.Pct != 75) {
			t.Errorf("category status = %+v", st)
		}
		if st.Category == nil && st.Remaining != 470 {
			t.Errorf("overall remaining = %v", st.Remaining)
		}
	}

	overall, ok, err := budgets.OverallBudget(ctx, testChat)
	if err != nil || !ok || overall != 500 {
		t.Errorf("OverallBudget = %v %v %v", overall, ok, err)
	}

	removed, err := budgets.Remove(ctx, testChat, core.Ptr("subscriptions"))
	if err != nil || !removed {
		t.Errorf("Remove = %v, %v", removed, err)
	}
	list, _ := budgets.List(ctx, testChat)
	if len(list) != 1 {
		t.Errorf("budgets after remove = %d", len(list))
	}
}

func TestCategoryService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cats := NewCategoryService(f.repo)

	tests := []struct {
		name   string
		add    string
		wantOK bool
	}{
		{"custom", " Pets ", true},
		{"duplicate", "pets", false},
		{"default", "Groceries", false},
		{"blank", "  ", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, err := cats.Add(ctx, testChat, tt.add)
			if err != nil || ok != tt.wantOK {
				t.Errorf("Add(%q) = %v, %v; want %v", tt.add, ok, err, tt.wantOK)
			}
		})
	}

	all, _ := cats.All(ctx, testChat)
	if len(all) != len(DefaultCategories)+1 || all[len(all)-1] != "pets" {
		t.Errorf("All = %v", all)
	}
	if known, _ := cats.Known(ctx, testChat, "PETS"); !known {
		t.Error("pets should be known")
	}
	if ok, _ := cats.Remove(ctx, testChat, "other"); ok {
		t.Error("default category removed")
	}
	if ok, _ := cats.Remove(ctx, testChat, "Pets"); !ok {
		t.Error("custom category not removed")
	}
	joined, _ := cats.Joined(ctx, testChat)
	if joined[:len("groceries, dining")] != "groceries, dining" {
		t.Errorf("Joined = %q", joined)
	}
}

func TestSummaryService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sum := NewSummaryService(f.repo)
	sum.now = f.clock.now

	f.expenses.Save(ctx, expenseAt("A", 10, core.NewDate(2025, 3, 19)))
	f.expenses.Save(ctx, expenseAt("B", 5, core.NewDate(2025, 3, 20)))
	f.expenses.Save(ctx, expenseAt("C", 7, core.NewDate(2025, 1, 3)))

	rows, total, err := sum.ByCategory(ctx, testChat, ParsePeriod("", sum.Today()))
	if err != nil {
		t.Fatalf("ByCategory: %v", err)
	}
	if len(rows) != 1 || total != 15 || rows[0].Count != 2 {
		t.Errorf("ByCategory = %+v total %v", rows, total)
	}

	months, err := sum.Monthly(ctx, testChat, 6)
	if err != nil {
		t.Fatalf("Monthly: %v", err)
	}
	if len(months) != 2 || months[0].Month != "2025-01" || months[1].Month != "2025-03" {
		t.Errorf("Monthly = %+v", months)
	}

	days, p, err := sum.Daily(ctx, testChat, 30)
	if err != nil {
		t.Fatalf("Daily: %v", err)
	}
	if p.From.String() != "2025-02-19" || len(days) != 2 {
		t.Errorf("Daily from %s = %+v", p.From, days)
	}

	found, err := sum.Search(ctx, testChat, "a", Period{})
	if err != nil || len(found) != 1 || found[0].Store != "A" {
		t.Errorf("Search = %+v, %v", found, err)
	}

	stats, ok, err := sum.Stats(ctx, testChat)
	if err != nil || !ok || stats.Count != 3 || stats.Total != 22 {
		t.Errorf("Stats = %+v %v %v", stats, ok, err)
	}
}
