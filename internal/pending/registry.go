// Package pending holds provisional expenses between extraction and the
// user's confirmation, and drives the confirm/cancel/edit-items keyboard.
package pending

import (
	"sync"
	"time"

	"kazo/internal/core"
)

// DefaultTTL is how long a confirmation prompt stays actionable.
const DefaultTTL = 5 * time.Minute

// Key identifies a confirmation prompt message.
type Key struct {
	ChatID    int64
	MessageID int
}

// Entry is a provisional expense. Items is a working copy that item edits
// mutate; Expense.ItemsJSON keeps what extraction produced.
type Entry struct {
	Expense     core.Expense
	DisplayText string
	Items       []core.ExpenseItem
	ItemsEdited bool
	CreatedAt   time.Time
}

// Registry is an in-memory map of entries with a fixed TTL. Every terminal
// transition goes through Pop, which removes under the lock, so two callers
// racing on one key cannot both receive the entry.
type Registry struct {
	mu      sync.Mutex
	entries map[Key]*Entry
	ttl     time.Duration
	now     func() time.Time
}

func NewRegistry(ttl time.Duration, now func() time.Time) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Registry{
		entries: make(map[Key]*Entry),
		ttl:     ttl,
		now:     now,
	}
}

func (r *Registry) expired(e *Entry, now time.Time) bool {
	return now.Sub(e.CreatedAt) > r.ttl
}

// Put sweeps expired entries, then registers e under key. CreatedAt is set
// when zero.
func (r *Registry) Put(key Key, e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.sweepLocked(now)
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.Items = cloneItems(e.Items)
	r.entries[key] = &e
}

// Get returns a copy of the live entry under key.
func (r *Registry) Get(key Key) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return Entry{}, false
	}
	if r.expired(e, r.now()) {
		delete(r.entries, key)
		return Entry{}, false
	}
	return snapshot(e), true
}

// Pop removes the entry under key and returns it if it had not expired.
func (r *Registry) Pop(key Key) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return Entry{}, false
	}
	delete(r.entries, key)
	if r.expired(e, r.now()) {
		return Entry{}, false
	}
	return snapshot(e), true
}

// Mutate applies fn to the live entry under key while holding the lock. When
// fn returns true the entry is removed. The returned entry reflects fn's
// changes.
func (r *Registry) Mutate(key Key, fn func(e *Entry) (remove bool)) (Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[key]
	if !ok {
		return Entry{}, false
	}
	if r.expired(e, r.now()) {
		delete(r.entries, key)
		return Entry{}, false
	}
	if fn(e) {
		delete(r.entries, key)
	}
	return snapshot(e), true
}

// CleanExpired drops expired entries and returns how many were removed.
func (r *Registry) CleanExpired() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sweepLocked(r.now())
}

func (r *Registry) sweepLocked(now time.Time) int {
	n := 0
	for k, e := range r.entries {
		if r.expired(e, now) {
			delete(r.entries, k)
			n++
		}
	}
	return n
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *Registry) TTL() time.Duration {
	return r.ttl
}

func snapshot(e *Entry) Entry {
	out := *e
	out.Items = cloneItems(e.Items)
	return out
}

func cloneItems(items []core.ExpenseItem) []core.ExpenseItem {
	if items == nil {
		return nil
	}
	out := make([]core.ExpenseItem, len(items))
	copy(out, items)
	return out
}
