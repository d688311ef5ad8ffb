package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"

	"kazo/internal/core"

	goption "google.golang.org/api/option"
)

var rowPattern = regexp.MustCompile(`!A(\d+):I\d+$`)

// fakeSheet serves the subset of the Sheets values API the client uses.
type fakeSheet struct {
	mu   sync.Mutex
	rows map[int][]any
}

func (f *fakeSheet) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	_, rng, ok := strings.Cut(r.URL.Path, "/values/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	isClear := strings.HasSuffix(rng, ":clear")
	rng = strings.TrimSuffix(rng, ":clear")

	switch {
	case r.Method == http.MethodGet && strings.HasSuffix(rng, "!A:A"):
		last := 0
		for n := range f.rows {
			if n > last {
				last = n
			}
		}
		values := make([][]any, last)
		for i := range values {
			values[i] = []any{}
			if row, ok := f.rows[i+1]; ok && len(row) > 0 {
				values[i] = []any{row[0]}
			}
		}
		json.NewEncoder(w).Encode(map[string]any{"range": rng, "majorDimension": "ROWS", "values": values})
	case r.Method == http.MethodPut:
		n := rowNumber(rng)
		var body struct {
			Values [][]any `json:"values"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || n == 0 || len(body.Values) != 1 {
			http.Error(w, "bad update", http.StatusBadRequest)
			return
		}
		row := body.Values[0]
		// IDs come back from Sheets as numbers.
		if id, err := strconv.ParseFloat(strings.TrimSpace(toString(row[0])), 64); err == nil {
			row[0] = id
		}
		f.rows[n] = row
		json.NewEncoder(w).Encode(map[string]any{"updatedRange": rng, "updatedRows": 1})
	case r.Method == http.MethodPost && isClear:
		delete(f.rows, rowNumber(rng))
		json.NewEncoder(w).Encode(map[string]any{"clearedRange": rng})
	default:
		http.Error(w, "unexpected "+r.Method+" "+rng, http.StatusBadRequest)
	}
}

func toString(v any) string {
	b, _ := json.Marshal(v)
	return strings.Trim(string(b), `"`)
}

func rowNumber(rng string) int {
	m := rowPattern.FindStringSubmatch(rng)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func newTestClient(t *testing.T) (*Client, *fakeSheet) {
	t.Helper()
	sheet := &fakeSheet{rows: map[int][]any{}}
	srv := httptest.NewServer(sheet)
	t.Cleanup(srv.Close)

	c, err := New(context.Background(), Config{
		SpreadsheetID: "sheet-id",
		SheetName:     "Expenses",
		Options: []goption.ClientOption{
			goption.WithEndpoint(srv.URL + "/"),
			goption.WithHTTPClient(srv.Client()),
		},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c, sheet
}

func expense(id int64, store string) core.Expense {
	return core.Expense{
		ID:          id,
		Store:       store,
		Amount:      12.5,
		Currency:    "EUR",
		AmountBase:  12.5,
		Category:    "groceries",
		Source:      core.SourceText,
		ExpenseDate: core.NewDate(2025, 3, 14),
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Error("expected error for missing spreadsheet id")
	}
	if _, err := New(context.Background(), Config{SpreadsheetID: "x"}); err == nil {
		t.Error("expected error for missing credentials")
	}
}

func TestClient_UpsertWritesHeaderThenRows(t *testing.T) {
	c, sheet := newTestClient(t)
	ctx := context.Background()

	ref, err := c.Upsert(ctx, expense(7, "Lidl"))
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if ref != "Expenses!A2:I2" {
		t.Errorf("ref = %q, want Expenses!A2:I2", ref)
	}
	if got := sheet.rows[1][0]; got != "ID" {
		t.Errorf("header cell = %v", got)
	}
	if got := sheet.rows[2][2]; got != "Lidl" {
		t.Errorf("store cell = %v", got)
	}

	ref, _ = c.Upsert(ctx, expense(8, "Aldi"))
	if ref != "Expenses!A3:I3" {
		t.Errorf("second ref = %q", ref)
	}

	ref, err = c.Upsert(ctx, expense(7, "Lidl Centro"))
	if err != nil {
		t.Fatalf("Upsert update: %v", err)
	}
	if ref != "Expenses!A2:I2" || sheet.rows[2][2] != "Lidl Centro" {
		t.Errorf("update went to %q with store %v", ref, sheet.rows[2][2])
	}
}

func TestClient_DeleteExpense(t *testing.T) {
	c, sheet := newTestClient(t)
	ctx := context.Background()

	c.Upsert(ctx, expense(1, "A"))
	c.Upsert(ctx, expense(2, "B"))

	if err := c.DeleteExpense(ctx, 1); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if _, ok := sheet.rows[2]; ok {
		t.Error("row 2 not cleared")
	}
	if _, ok := sheet.rows[3]; !ok {
		t.Error("row 3 should be untouched")
	}
	if err := c.DeleteExpense(ctx, 42); err != nil {
		t.Errorf("DeleteExpense(unknown) = %v, want nil", err)
	}
}

func TestClient_UpsertRejectsMissingID(t *testing.T) {
	c, _ := newTestClient(t)
	if _, err := c.Upsert(context.Background(), expense(0, "x")); err == nil {
		t.Fatal("expected error for expense without id")
	}
}

func TestRowOf(t *testing.T) {
	ids := []string{"ID", "3", "", "12"}
	tests := []struct {
		id   int64
		want int
	}{
		{3, 2},
		{12, 4},
		{1, 0},
	}
	for _, tt := range tests {
		if got := rowOf(ids, tt.id); got != tt.want {
			t.Errorf("rowOf(%d) = %d, want %d", tt.id, got, tt.want)
		}
	}
}

func TestLoadCredentials(t *testing.T) {
	if b, err := LoadCredentials(` {"type":"service_account"} `, ""); err != nil || string(b) != `{"type":"service_account"}` {
		t.Errorf("inline = %q, %v", b, err)
	}
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	if _, err := LoadCredentials("", ""); err == nil {
		t.Error("expected error without credentials")
	}
	if _, err := LoadCredentials("", t.TempDir()+"/missing.json"); err == nil {
		t.Error("expected error for missing file")
	}
}
