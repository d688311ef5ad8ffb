package services

import (
	"context"
	"math"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"kazo/internal/amqp"
	"kazo/internal/core"
	"kazo/internal/currency"
	"kazo/internal/storage"
)

const testChat int64 = 42

type pairProvider struct {
	mu    sync.Mutex
	rates map[string]float64
	calls int
}

func (p *pairProvider) FetchRate(_ context.Context, from, to string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	return p.rates[from+":"+to], nil
}

func (p *pairProvider) set(pair string, rate float64) {
	p.mu.Lock()
	p.rates[pair] = rate
	p.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []amqp.ExpenseEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e amqp.ExpenseEvent) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	return nil
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	repo      *storage.SQLiteRepository
	rates     *currency.Service
	provider  *pairProvider
	publisher *recordingPublisher
	clock     *clock
	expenses  *ExpenseService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo, err := storage.NewSQLiteRepository(filepath.Join(t.TempDir(), "kazo.db"), nil)
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	clk := &clock{t: time.Date(2025, 3, 20, 12, 0, 0, 0, time.UTC)}
	provider := &pairProvider{rates: map[string]float64{"USD:EUR": 0.9}}
	rates := currency.NewService(repo, repo, provider, currency.Options{DefaultBase: "EUR", Now: clk.now})
	pub := &recordingPublisher{}
	return &fixture{
		repo:      repo,
		rates:     rates,
		provider:  provider,
		publisher: pub,
		clock:     clk,
		expenses:  NewExpenseService(repo, rates, nil, WithPublisher(pub), WithClock(clk.now)),
	}
}

func expenseAt(store string, amount float64, date core.Date) core.Expense {
	return core.Expense{
		ChatID:       testChat,
		Store:        store,
		Amount:       amount,
		Currency:     "EUR",
		AmountBase:   amount,
		ExchangeRate: 1,
		Category:     "subscriptions",
		Source:       core.SourceText,
		ExpenseDate:  date,
	}
}

func TestExpenseService_SavePublishes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.expenses.Save(ctx, expenseAt("Lidl", 12.5, core.NewDate(2025, 3, 19)))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if len(f.publisher.events) != 1 {
		t.Fatalf("published %d events, want 1", len(f.publisher.events))
	}
	ev := f.publisher.events[0]
	if ev.Type != amqp.EventSaved || ev.ExpenseID != id || ev.ChatID != testChat {
		t.Errorf("event = %+v", ev)
	}
}

func TestExpenseService_Undo(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.expenses.Undo(ctx, testChat); !IsNotFound(err) {
		t.Fatalf("Undo on empty chat: got %v, want not found", err)
	}

	f.expenses.Save(ctx, expenseAt("First", 1, core.NewDate(2025, 3, 1)))
	second, _ := f.expenses.Save(ctx, expenseAt("Second", 2, core.NewDate(2025, 3, 2)))

	removed, err := f.expenses.Undo(ctx, testChat)
	if err != nil {
		t.Fatalf("Undo: %v", err)
	}
	if removed.ID != second {
		t.Errorf("removed %d, want %d", removed.ID, second)
	}
	last, err := f.expenses.Last(ctx, testChat)
	if err != nil || last.Store != "First" {
		t.Errorf("Last after undo = %q, %v", last.Store, err)
	}
	got := f.publisher.events[len(f.publisher.events)-1]
	if got.Type != amqp.EventDeleted || got.ExpenseID != second {
		t.Errorf("last event = %+v", got)
	}
}

func TestExpenseService_ByIDChecksChat(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	e := expenseAt("Other", 5, core.NewDate(2025, 3, 1))
	e.ChatID = 99
	id, _ := f.expenses.Save(ctx, e)

	if _, err := f.expenses.ByID(ctx, testChat, id); !IsNotFound(err) {
		t.Errorf("ByID across chats: got %v, want not found", err)
	}
	if _, err := f.expenses.ByID(ctx, 99, id); err != nil {
		t.Errorf("ByID own chat: %v", err)
	}
}

func TestExpenseService_ApplyEdit(t *testing.T) {
	ctx := context.Background()

	t.Run("amount change reconverts", func(t *testing.T) {
		f := newFixture(t)
		e := expenseAt("Target", 10, core.NewDate(2025, 3, 1))
		e.Currency, e.AmountBase, e.ExchangeRate = "USD", 9, 0.9
		e.ID, _ = f.expenses.Save(ctx, e)

		updated, update, err := f.expenses.ApplyEdit(ctx, e, core.ExpensePatch{Amount: core.Ptr(20.0)})
		if err != nil {
			t.Fatalf("ApplyEdit: %v", err)
		}
		if updated.AmountBase != 18 || *update.ExchangeRate != 0.9 {
			t.Errorf("AmountBase = %v rate = %v, want 18 and 0.9", updated.AmountBase, *update.ExchangeRate)
		}
		stored, _ := f.expenses.ByID(ctx, testChat, e.ID)
		if stored.Amount != 20 || stored.AmountBase != 18 {
			t.Errorf("stored = %v / %v", stored.Amount, stored.AmountBase)
		}
	})

	t.Run("currency normalized and converted", func(t *testing.T) {
		f := newFixture(t)
		e := expenseAt("Shop", 10, core.NewDate(2025, 3, 1))
		e.ItemsJSON = `[{"name":"Socks","price":10}]`
		e.ID, _ = f.expenses.Save(ctx, e)

		updated, _, err := f.expenses.ApplyEdit(ctx, e, core.ExpensePatch{Currency: core.Ptr("usd")})
		if err != nil {
			t.Fatalf("ApplyEdit: %v", err)
		}
		if updated.Currency != "USD" || updated.AmountBase != 9 {
			t.Errorf("updated = %s %v", updated.Currency, updated.AmountBase)
		}
		items, err := f.repo.ItemsForExpense(ctx, e.ID)
		if err != nil {
			t.Fatalf("ItemsForExpense: %v", err)
		}
		if len(items) != 1 || items[0].Currency != "USD" {
			t.Errorf("items = %+v, want one USD row", items)
		}
	})

	t.Run("invalid currency", func(t *testing.T) {
		f := newFixture(t)
		e := expenseAt("Shop", 10, core.NewDate(2025, 3, 1))
		e.ID, _ = f.expenses.Save(ctx, e)

		if _, _, err := f.expenses.ApplyEdit(ctx, e, core.ExpensePatch{Currency: core.Ptr("XYZ")}); err == nil {
			t.Fatal("expected error for unsupported currency")
		}
	})

	t.Run("category lowercased without conversion", func(t *testing.T) {
		f := newFixture(t)
		e := expenseAt("Shop", 10, core.NewDate(2025, 3, 1))
		e.ID, _ = f.expenses.Save(ctx, e)
		calls := f.provider.calls

		updated, update, err := f.expenses.ApplyEdit(ctx, e, core.ExpensePatch{Category: core.Ptr(" Dining ")})
		if err != nil {
			t.Fatalf("ApplyEdit: %v", err)
		}
		if updated.Category != "dining" || update.AmountBase != nil {
			t.Errorf("category = %q, AmountBase set = %v", updated.Category, update.AmountBase != nil)
		}
		if f.provider.calls != calls {
			t.Error("provider called for a category-only edit")
		}
		if got := f.publisher.events[len(f.publisher.events)-1].Type; got != amqp.EventUpdated {
			t.Errorf("last event = %s, want %s", got, amqp.EventUpdated)
		}
	})

	t.Run("empty patch is a no-op", func(t *testing.T) {
		f := newFixture(t)
		e := expenseAt("Shop", 10, core.NewDate(2025, 3, 1))
		e.ID, _ = f.expenses.Save(ctx, e)
		n := len(f.publisher.events)

		if _, _, err := f.expenses.ApplyEdit(ctx, e, core.ExpensePatch{}); err != nil {
			t.Fatalf("ApplyEdit: %v", err)
		}
		if len(f.publisher.events) != n {
			t.Error("empty patch published an event")
		}
	})
}

func TestExpenseService_AddNote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, _ := f.expenses.Save(ctx, expenseAt("A", 1, core.NewDate(2025, 3, 1)))
	f.expenses.Save(ctx, expenseAt("B", 2, core.NewDate(2025, 3, 2)))

	e, err := f.expenses.AddNote(ctx, testChat, nil, "latest")
	if err != nil || e.Store != "B" || e.Note != "latest" {
		t.Fatalf("AddNote(latest) = %+v, %v", e, err)
	}
	e, err = f.expenses.AddNote(ctx, testChat, &first, "by id")
	if err != nil || e.Store != "A" || e.Note != "by id" {
		t.Fatalf("AddNote(id) = %+v, %v", e, err)
	}
	if _, err := f.expenses.AddNote(ctx, testChat, core.Ptr(int64(999)), "x"); !IsNotFound(err) {
		t.Errorf("AddNote(unknown id): got %v", err)
	}
}

func TestRecurringSuggestion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, d := range []core.Date{core.NewDate(2025, 1, 20), core.NewDate(2025, 2, 20)} {
		if _, err := f.expenses.Save(ctx, expenseAt("Netflix", 12.99, d)); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	// Outside the 90 day window.
	f.expenses.Save(ctx, expenseAt("Netflix", 12.99, core.NewDate(2024, 10, 1)))

	current := expenseAt("Netflix", 13.49, core.NewDate(2025, 3, 20))
	current.ID, _ = f.expenses.Save(ctx, current)

	got, err := f.expenses.RecurringSuggestion(ctx, current)
	if err != nil {
		t.Fatalf("RecurringSuggestion: %v", err)
	}
	if !strings.Contains(got, "3 similar payments in 90 days") || !strings.Contains(got, "/addsub Netflix 13.49 EUR monthly") {
		t.Errorf("suggestion = %q", got)
	}

	tests := []struct {
		name string
		e    core.Expense
	}{
		{"no store", expenseAt("", 12.99, core.NewDate(2025, 3, 20))},
		{"amount too different", expenseAt("Netflix", 30, core.NewDate(2025, 3, 20))},
		{"single prior", expenseAt("Spotify", 9.99, core.NewDate(2025, 3, 20))},
	}
	f.expenses.Save(ctx, expenseAt("Spotify", 9.99, core.NewDate(2025, 2, 20)))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.expenses.RecurringSuggestion(ctx, tt.e)
			if err != nil || got != "" {
				t.Errorf("RecurringSuggestion = %q, %v; want empty", got, err)
			}
		})
	}

	t.Run("already tracked", func(t *testing.T) {
		subs := NewSubscriptionService(f.repo, f.rates, nil)
		if _, err := subs.Add(ctx, core.Subscription{ChatID: testChat, Name: "netflix", Amount: 12.99, Currency: "EUR"}); err != nil {
			t.Fatalf("Add: %v", err)
		}
		got, err := f.expenses.RecurringSuggestion(ctx, current)
		if err != nil || got != "" {
			t.Errorf("RecurringSuggestion = %q, %v; want empty", got, err)
		}
	})
}

func TestSubscriptionService(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	subs := NewSubscriptionService(f.repo, f.rates, nil)
	subs.now = f.clock.now

	gym, err := subs.Add(ctx, core.Subscription{ChatID: testChat, Name: " Gym ", Amount: 30, Currency: "eur", Category: "Personal"})
	if err != nil {
		t.Fatalf("Add gym: %v", err)
	}
	if gym.Frequency != core.Monthly || gym.Category != "personal" || gym.Name != "Gym" {
		t.Errorf("gym = %+v", gym)
	}
	if _, err := subs.Add(ctx, core.Subscription{ChatID: testChat, Name: "Cloud", Amount: 120, Currency: "USD", Frequency: core.Yearly}); err != nil {
		t.Fatalf("Add cloud: %v", err)
	}
	if _, err := subs.Add(ctx, core.Subscription{ChatID: testChat, Name: "Bad", Amount: 1, Currency: "EUR", Frequency: "hourly"}); err == nil {
		t.Error("expected error for invalid frequency")
	}

	list, total, err := subs.List(ctx, testChat)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].Name != "Cloud" || list[1].Name != "Gym" {
		t.Fatalf("list order = %+v", list)
	}
	// Cloud: 120 USD * 0.9 = 108 EUR yearly, 9 per month.
	if list[0].AmountBase != 108 || math.Abs(total-39) > 1e-9 {
		t.Errorf("cloud base = %v, total = %v", list[0].AmountBase, total)
	}

	f.provider.set("USD:EUR", 0.8)
	f.clock.advance(25 * time.Hour)
	n, err := subs.RefreshRates(ctx, testChat)
	if err != nil {
		t.Fatalf("RefreshRates: %v", err)
	}
	if n != 1 {
		t.Errorf("refreshed %d, want 1", n)
	}
	list, _, _ = subs.List(ctx, testChat)
	if list[0].AmountBase != 96 {
		t.Errorf("cloud base after refresh = %v, want 96", list[0].AmountBase)
	}

	ok, err := subs.Remove(ctx, testChat, "gym")
	if err != nil || !ok {
		t.Fatalf("Remove = %v, %v", ok, err)
	}
	list, _, _ = subs.List(ctx, testChat)
	if len(list) != 1 {
		t.Errorf("after remove: %d subscriptions", len(list))
	}
}
