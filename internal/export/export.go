// Package export produces downloadable copies of a chat's data.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"kazo/internal/core"
)

// CSV renders expenses with amounts in both the original and base currency.
func CSV(expenses []core.Expense, base string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"Date", "Store", "Category", "Amount", "Currency", "Amount " + base, "Source", "Note"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, e := range expenses {
		record := []string{
			e.ExpenseDate.String(),
			e.Store,
			e.Category,
			formatFloat(e.Amount),
			e.Currency,
			formatFloat(e.AmountBase),
			string(e.Source),
			e.Note,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// Filename is the CSV name for the month starting at first.
func Filename(first core.Date) string {
	return fmt.Sprintf("expenses_%s.csv", first.Format("2006_01"))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Backuper writes a consistent database snapshot.
type Backuper interface {
	Backup(ctx context.Context, dest string) error
}

// Snapshot writes a backup named after today into a temporary directory and
// returns its path and size. The caller removes the file.
func Snapshot(ctx context.Context, db Backuper, today core.Date) (string, int64, error) {
	dir, err := os.MkdirTemp("", "kazo-backup-")
	if err != nil {
		return "", 0, fmt.Errorf("create backup dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("kazo_backup_%s.db", today))
	if err := db.Backup(ctx, path); err != nil {
		os.RemoveAll(dir)
		return "", 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		os.RemoveAll(dir)
		return "", 0, fmt.Errorf("stat backup: %w", err)
	}
	return path, info.Size(), nil
}

// Cleanup removes a snapshot and its directory.
func Cleanup(path string) {
	os.RemoveAll(filepath.Dir(path))
}
