package export

import (
	"context"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"kazo/internal/core"
)

func TestCSV(t *testing.T) {
	expenses := []core.Expense{
		{
			ExpenseDate: core.NewDate(2025, 1, 5),
			Store:       "Migros, Zürich",
			Category:    "groceries",
			Amount:      42.1,
			Currency:    "CHF",
			AmountBase:  44.82,
			Source:      core.SourceReceipt,
			Note:        `said "thanks"`,
		},
	}
	b, err := CSV(expenses, "EUR")
	if err != nil {
		t.Fatalf("CSV: %v", err)
	}
	records, err := csv.NewReader(strings.NewReader(string(b))).ReadAll()
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("got %d records", len(records))
	}
	if records[0][5] != "Amount EUR" {
		t.Errorf("header = %v", records[0])
	}
	want := []string{"2025-01-05", "Migros, Zürich", "groceries", "42.1", "CHF", "44.82", "receipt", `said "thanks"`}
	for i, v := range want {
		if records[1][i] != v {
			t.Errorf("column %d = %q, want %q", i, records[1][i], v)
		}
	}
}

func TestFilename(t *testing.T) {
	if got := Filename(core.NewDate(2025, 3, 1)); got != "expenses_2025_03.csv" {
		t.Errorf("Filename = %q", got)
	}
}

type fileBackuper struct{ err error }

func (f fileBackuper) Backup(_ context.Context, dest string) error {
	if f.err != nil {
		return f.err
	}
	return os.WriteFile(dest, []byte("SQLite format 3\x00"), 0o600)
}

func TestSnapshot(t *testing.T) {
	path, size, err := Snapshot(context.Background(), fileBackuper{}, core.NewDate(2025, 3, 14))
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	defer Cleanup(path)
	if filepath.Base(path) != "kazo_backup_2025-03-14.db" || size != 16 {
		t.Errorf("snapshot = %s (%d bytes)", path, size)
	}

	Cleanup(path)
	if _, err := os.Stat(filepath.Dir(path)); !os.IsNotExist(err) {
		t.Errorf("backup dir not removed: %v", err)
	}

	if _, _, err := Snapshot(context.Background(), fileBackuper{err: errors.New("locked")}, core.NewDate(2025, 3, 14)); err == nil {
		t.Error("expected backup error")
	}
}
