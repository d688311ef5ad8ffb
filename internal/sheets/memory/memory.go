// Package memory is an in-process mirror used by tests and by the sync
// worker when no spreadsheet is configured.
package memory

import (
	"context"
	"fmt"
	"sync"

	"kazo/internal/core"
	"kazo/internal/sheets"
)

var _ sheets.Mirror = (*Store)(nil)

type Store struct {
	mu   sync.Mutex
	rows map[int64]int
	data []core.Expense // cleared rows keep their slot with ID 0
}

func New() *Store {
	return &Store{rows: map[int64]int{}}
}

func (s *Store) Upsert(_ context.Context, e core.Expense) (string, error) {
	if e.ID <= 0 {
		return "", fmt.Errorf("expense has no id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.rows[e.ID]; ok {
		s.data[i] = e
		return ref(i), nil
	}
	s.data = append(s.data, e)
	s.rows[e.ID] = len(s.data) - 1
	return ref(len(s.data) - 1), nil
}

func (s *Store) DeleteExpense(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.rows[id]; ok {
		s.data[i] = core.Expense{}
		delete(s.rows, id)
	}
	return nil
}

// Get returns the mirrored copy of expense id.
func (s *Store) Get(id int64) (core.Expense, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.rows[id]
	if !ok {
		return core.Expense{}, false
	}
	return s.data[i], true
}

// Len counts live rows.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func ref(i int) string {
	return fmt.Sprintf("mem:%d", i+2)
}
