package pending

import (
	"context"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/go-telegram/bot/models"

	"kazo/internal/core"
)

type sentMessage struct {
	chatID int64
	text   string
	markup models.ReplyMarkup
}

type fakeMessenger struct {
	nextID   int
	sent     []sentMessage
	edits    map[int]sentMessage
	cleared  []int
	answered []string
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{nextID: 100, edits: make(map[int]sentMessage)}
}

func (m *fakeMessenger) SendText(_ context.Context, chatID int64, text string, markup models.ReplyMarkup) (int, error) {
	m.nextID++
	m.sent = append(m.sent, sentMessage{chatID: chatID, text: text, markup: markup})
	return m.nextID, nil
}

func (m *fakeMessenger) EditText(_ context.Context, chatID int64, messageID int, text string, markup models.ReplyMarkup) error {
	m.edits[messageID] = sentMessage{chatID: chatID, text: text, markup: markup}
	return nil
}

func (m *fakeMessenger) ClearKeyboard(_ context.Context, _ int64, messageID int) error {
	m.cleared = append(m.cleared, messageID)
	return nil
}

func (m *fakeMessenger) AnswerCallback(_ context.Context, _ string, text string) error {
	m.answered = append(m.answered, text)
	return nil
}

func (m *fakeMessenger) lastAnswer() string {
	if len(m.answered) == 0 {
		return ""
	}
	return m.answered[len(m.answered)-1]
}

type fakeSaver struct {
	saved      []core.Expense
	links      map[int]int64
	suggestion string
	saveErr    error
}

func (s *fakeSaver) Save(_ context.Context, e core.Expense) (int64, error) {
	if s.saveErr != nil {
		return 0, s.saveErr
	}
	s.saved = append(s.saved, e)
	return int64(len(s.saved)), nil
}

func (s *fakeSaver) LinkBotMessage(_ context.Context, _ int64, messageID int, expenseID int64) error {
	if s.links == nil {
		s.links = make(map[int]int64)
	}
	s.links[messageID] = expenseID
	return nil
}

func (s *fakeSaver) RecurringSuggestion(context.Context, core.Expense) (string, error) {
	return s.suggestion, nil
}

type outcomeCounter map[string]int

func (c outcomeCounter) ObservePending(outcome string) { c[outcome]++ }

func price(v float64) *float64 { return &v }

func newTestWorkflow(t *testing.T) (*Workflow, *fakeMessenger, *fakeSaver, *testClock, outcomeCounter) {
	t.Helper()
	clock := newTestClock()
	m := newFakeMessenger()
	s := &fakeSaver{}
	metrics := outcomeCounter{}
	w := NewWorkflow(NewRegistry(DefaultTTL, clock.Now), m, s, nil, metrics)
	return w, m, s, clock, metrics
}

func tryExpense() core.Expense {
	return core.Expense{
		ChatID:       1,
		UserID:       7,
		Store:        "Migros",
		Amount:       200,
		Currency:     "TRY",
		AmountBase:   50,
		ExchangeRate: 0.25,
		Category:     "groceries",
		Source:       core.SourceReceipt,
		ExpenseDate:  core.NewDate(2026, 3, 1),
	}
}

func tryItems() []core.ExpenseItem {
	return []core.ExpenseItem{
		{Name: "Cheese", Price: price(100), Currency: "TRY", Quantity: 1},
		{Name: "Bread", Price: price(60), Currency: "TRY", Quantity: 1},
		{Name: "Olives", Price: price(40), Currency: "TRY", Quantity: 1},
	}
}

func TestWorkflow_ConfirmOnce(t *testing.T) {
	w, m, s, _, metrics := newTestWorkflow(t)
	ctx := context.Background()

	msgID, err := w.Open(ctx, 1, Entry{Expense: tryExpense(), DisplayText: "✅ Groceries"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	cb := Callback{ID: "cb1", ChatID: 1, MessageID: msgID, Data: CallbackConfirm}

	if err := w.HandleCallback(ctx, cb); err != nil {
		t.Fatalf("confirm error = %v", err)
	}
	if len(s.saved) != 1 {
		t.Fatalf("saved = %d, want 1", len(s.saved))
	}
	if m.lastAnswer() != MsgSaved {
		t.Errorf("answer = %q, want %q", m.lastAnswer(), MsgSaved)
	}
	if got := m.edits[msgID].text; got != "✅ Groceries\n\nSaved." {
		t.Errorf("edited text = %q", got)
	}
	if s.links[msgID] != 1 {
		t.Errorf("confirmation message not linked to the saved expense")
	}
	if w.Registry().Len() != 0 {
		t.Errorf("registry should be empty after confirm")
	}

	// A duplicate press must not save again.
	for _, data := range []string{CallbackConfirm, CallbackCancel} {
		cb.Data = data
		if err := w.HandleCallback(ctx, cb); err != nil {
			t.Fatalf("late %s error = %v", data, err)
		}
		if m.lastAnswer() != MsgExpired {
			t.Errorf("late %s answer = %q, want expired", data, m.lastAnswer())
		}
	}
	if len(s.saved) != 1 {
		t.Errorf("saved = %d after duplicate presses, want 1", len(s.saved))
	}
	if len(m.cleared) != 2 {
		t.Errorf("keyboard cleared %d times, want 2", len(m.cleared))
	}
	if metrics[OutcomeConfirmed] != 1 || metrics[OutcomeExpired] != 2 {
		t.Errorf("metrics = %v", metrics)
	}
}

func TestWorkflow_ConfirmAppendsSuggestion(t *testing.T) {
	w, m, s, _, _ := newTestWorkflow(t)
	s.suggestion = "🔁 Looks recurring."
	ctx := context.Background()

	msgID, _ := w.Open(ctx, 1, Entry{Expense: tryExpense(), DisplayText: "x"})
	if err := w.Confirm(ctx, Callback{ChatID: 1, MessageID: msgID}); err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(m.edits[msgID].text, "\n\nSaved.\n\n🔁 Looks recurring.") {
		t.Errorf("suggestion not appended: %q", m.edits[msgID].text)
	}
}

func TestWorkflow_Cancel(t *testing.T) {
	w, m, s, _, _ := newTestWorkflow(t)
	ctx := context.Background()

	msgID, _ := w.Open(ctx, 1, Entry{Expense: tryExpense(), DisplayText: "x"})
	if err := w.Cancel(ctx, Callback{ChatID: 1, MessageID: msgID}); err != nil {
		t.Fatal(err)
	}
	if m.edits[msgID].text != MsgCancelled {
		t.Errorf("text = %q, want %q", m.edits[msgID].text, MsgCancelled)
	}
	if m.lastAnswer() != MsgCancelledAck {
		t.Errorf("answer = %q", m.lastAnswer())
	}
	if len(s.saved) != 0 {
		t.Error("cancel must not save")
	}

	if err := w.Confirm(ctx, Callback{ChatID: 1, MessageID: msgID}); err != nil {
		t.Fatal(err)
	}
	if m.lastAnswer() != MsgExpired || len(s.saved) != 0 {
		t.Error("confirm after cancel should report expired without saving")
	}
}

func TestWorkflow_ExpiredEntry(t *testing.T) {
	w, m, s, clock, _ := newTestWorkflow(t)
	ctx := context.Background()

	msgID, _ := w.Open(ctx, 1, Entry{Expense: tryExpense(), DisplayText: "x"})
	clock.Advance(DefaultTTL + time.Second)

	if err := w.Confirm(ctx, Callback{ChatID: 1, MessageID: msgID}); err != nil {
		t.Fatal(err)
	}
	if m.lastAnswer() != MsgExpired {
		t.Errorf("answer = %q, want expired", m.lastAnswer())
	}
	if len(s.saved) != 0 {
		t.Error("expired entry must not be saved")
	}
}

func TestWorkflow_OpenKeyboard(t *testing.T) {
	w, m, _, _, _ := newTestWorkflow(t)
	ctx := context.Background()

	if _, err := w.Open(ctx, 1, Entry{Expense: tryExpense(), DisplayText: "x"}); err != nil {
		t.Fatal(err)
	}
	e := tryExpense()
	e.ItemsJSON = `[{"name": "Cheese", "price": 100}]`
	if _, err := w.Open(ctx, 1, Entry{Expense: e, DisplayText: "x"}); err != nil {
		t.Fatal(err)
	}

	buttons := func(i int) int {
		kb := m.sent[i].markup.(*models.InlineKeyboardMarkup)
		return len(kb.InlineKeyboard[0])
	}
	if buttons(0) != 2 {
		t.Errorf("keyboard without items has %d buttons, want 2", buttons(0))
	}
	if buttons(1) != 3 {
		t.Errorf("keyboard with items has %d buttons, want 3", buttons(1))
	}
	if !strings.Contains(m.sent[1].text, "🛒 Items:\n  Cheese: 100.00 TRY") {
		t.Errorf("items not rendered from the expense JSON: %q", m.sent[1].text)
	}
}

func TestWorkflow_EditItemsThenConfirm(t *testing.T) {
	w, m, s, _, _ := newTestWorkflow(t)
	ctx := context.Background()

	msgID, _ := w.Open(ctx, 1, Entry{Expense: tryExpense(), DisplayText: "🧾 Migros", Items: tryItems()})
	cb := Callback{ChatID: 1, MessageID: msgID}

	cb.Data = CallbackEditItems
	if err := w.HandleCallback(ctx, cb); err != nil {
		t.Fatal(err)
	}
	kb := m.edits[msgID].markup.(*models.InlineKeyboardMarkup)
	if len(kb.InlineKeyboard) != 4 {
		t.Fatalf("edit keyboard rows = %d, want 3 items + controls", len(kb.InlineKeyboard))
	}
	if kb.InlineKeyboard[1][0].CallbackData != "expense:remove:1" {
		t.Errorf("second row data = %q", kb.InlineKeyboard[1][0].CallbackData)
	}

	// Remove Bread, then Olives (index 1 again after the shift).
	for _, want := range []string{"Bread", "Olives"} {
		cb.Data = "expense:remove:1"
		if err := w.HandleCallback(ctx, cb); err != nil {
			t.Fatal(err)
		}
		if m.lastAnswer() != "Removed "+want {
			t.Errorf("answer = %q, want Removed %s", m.lastAnswer(), want)
		}
	}

	cb.Data = CallbackConfirm
	if err := w.HandleCallback(ctx, cb); err != nil {
		t.Fatal(err)
	}
	if len(s.saved) != 1 {
		t.Fatalf("saved = %d, want 1", len(s.saved))
	}
	got := s.saved[0]
	if got.Amount != 100 {
		t.Errorf("Amount = %v, want 100", got.Amount)
	}
	// 100 TRY at the captured 50/200 ratio.
	if got.AmountBase != 25 {
		t.Errorf("AmountBase = %v, want 25", got.AmountBase)
	}
	if items := core.ParseItems(got.ItemsJSON, "TRY"); len(items) != 1 || items[0].Name != "Cheese" {
		t.Errorf("ItemsJSON = %s, want only Cheese", got.ItemsJSON)
	}
}

func TestWorkflow_RemovingLastItemCancels(t *testing.T) {
	w, m, s, _, metrics := newTestWorkflow(t)
	ctx := context.Background()

	msgID, _ := w.Open(ctx, 1, Entry{
		Expense:     tryExpense(),
		DisplayText: "x",
		Items:       []core.ExpenseItem{{Name: "Cheese", Price: price(200), Quantity: 1}},
	})
	cb := Callback{ChatID: 1, MessageID: msgID, Data: "expense:remove:0"}
	if err := w.HandleCallback(ctx, cb); err != nil {
		t.Fatal(err)
	}

	if m.edits[msgID].text != MsgAllRemoved {
		t.Errorf("text = %q, want %q", m.edits[msgID].text, MsgAllRemoved)
	}
	if w.Registry().Len() != 0 {
		t.Error("entry should be removed")
	}
	if metrics[OutcomeCancelled] != 1 {
		t.Errorf("cancelled outcome = %d, want 1", metrics[OutcomeCancelled])
	}

	cb.Data = CallbackConfirm
	if err := w.HandleCallback(ctx, cb); err != nil {
		t.Fatal(err)
	}
	if len(s.saved) != 0 {
		t.Error("no expense should be saved after all items were removed")
	}
}

func TestWorkflow_RemoveOutOfRange(t *testing.T) {
	w, _, _, _, _ := newTestWorkflow(t)
	ctx := context.Background()

	msgID, _ := w.Open(ctx, 1, Entry{Expense: tryExpense(), DisplayText: "x", Items: tryItems()})
	if err := w.RemoveItem(ctx, Callback{ChatID: 1, MessageID: msgID}, 9); err != nil {
		t.Fatal(err)
	}
	e, ok := w.Registry().Get(Key{ChatID: 1, MessageID: msgID})
	if !ok || len(e.Items) != 3 || e.ItemsEdited {
		t.Errorf("out of range removal changed the entry: %+v", e)
	}
}

func TestWorkflow_EditItemsWithoutItems(t *testing.T) {
	w, m, _, _, _ := newTestWorkflow(t)
	ctx := context.Background()

	msgID, _ := w.Open(ctx, 1, Entry{Expense: tryExpense(), DisplayText: "x"})
	if err := w.EditItems(ctx, Callback{ChatID: 1, MessageID: msgID}); err != nil {
		t.Fatal(err)
	}
	if m.lastAnswer() != MsgNoItems {
		t.Errorf("answer = %q, want %q", m.lastAnswer(), MsgNoItems)
	}
}

func TestWorkflow_SaveErrorPropagates(t *testing.T) {
	w, _, s, _, _ := newTestWorkflow(t)
	s.saveErr = errors.New("disk full")
	ctx := context.Background()

	msgID, _ := w.Open(ctx, 1, Entry{Expense: tryExpense(), DisplayText: "x"})
	if err := w.Confirm(ctx, Callback{ChatID: 1, MessageID: msgID}); err == nil {
		t.Fatal("expected save error")
	}
}

func TestRecompute(t *testing.T) {
	tests := []struct {
		name       string
		expense    core.Expense
		items      []core.ExpenseItem
		wantAmount float64
		wantBase   float64
	}{
		{
			name:       "ratio preserved",
			expense:    core.Expense{Amount: 10, AmountBase: 7.8, ExchangeRate: 0.78},
			items:      []core.ExpenseItem{{Name: "a", Price: price(3)}, {Name: "b", Price: price(5)}},
			wantAmount: 8,
			wantBase:   6.24,
		},
		{
			name:       "amount keeps the unrounded sum",
			expense:    core.Expense{Amount: 10, AmountBase: 10},
			items:      []core.ExpenseItem{{Name: "a", Price: price(1.005)}, {Name: "b", Price: price(2.001)}},
			wantAmount: 3.006,
			wantBase:   3.01,
		},
		{
			name:       "unpriced items ignored",
			expense:    core.Expense{Amount: 200, AmountBase: 50},
			items:      []core.ExpenseItem{{Name: "a", Price: price(100)}, {Name: "b"}},
			wantAmount: 100,
			wantBase:   25,
		},
		{
			name:       "nothing priced keeps original",
			expense:    core.Expense{Amount: 12, AmountBase: 12},
			items:      []core.ExpenseItem{{Name: "a"}},
			wantAmount: 12,
			wantBase:   12,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Recompute(tt.expense, tt.items)
			if math.Abs(got.Amount-tt.wantAmount) > 1e-9 {
				t.Errorf("Amount = %v, want %v", got.Amount, tt.wantAmount)
			}
			if math.Abs(got.AmountBase-tt.wantBase) > 1e-9 {
				t.Errorf("AmountBase = %v, want %v", got.AmountBase, tt.wantBase)
			}
		})
	}
}

func TestParseRemove(t *testing.T) {
	tests := []struct {
		data string
		want int
		ok   bool
	}{
		{"expense:remove:0", 0, true},
		{"expense:remove:12", 12, true},
		{"expense:remove:-1", 0, false},
		{"expense:remove:x", 0, false},
		{"expense:confirm", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseRemove(tt.data)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParseRemove(%q) = %d, %v; want %d, %v", tt.data, got, ok, tt.want, tt.ok)
		}
	}
}
