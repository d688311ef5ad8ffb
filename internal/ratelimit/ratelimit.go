// Package ratelimit bounds how many expensive calls each chat may make per
// sliding window.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter keeps a sliding window of call timestamps per chat.
type Limiter struct {
	mu           sync.Mutex
	chats        map[int64][]time.Time
	stopCleanup  chan struct{}
	shutdownOnce sync.Once

	limit           int
	window          time.Duration
	cleanupInterval time.Duration
	now             func() time.Time
}

// Config holds rate limiter configuration
type Config struct {
	Limit           int
	Window          time.Duration
	CleanupInterval time.Duration
	Now             func() time.Time
}

// DefaultConfig returns 30 calls per hour.
func DefaultConfig() Config {
	return Config{
		Limit:           30,
		Window:          time.Hour,
		CleanupInterval: 10 * time.Minute,
	}
}

// NewLimiter creates a limiter and starts its cleanup goroutine.
func NewLimiter(config Config) *Limiter {
	def := DefaultConfig()
	if config.Limit <= 0 {
		config.Limit = def.Limit
	}
	if config.Window <= 0 {
		config.Window = def.Window
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = def.CleanupInterval
	}
	if config.Now == nil {
		config.Now = time.Now
	}

	rl := &Limiter{
		chats:           make(map[int64][]time.Time),
		stopCleanup:     make(chan struct{}),
		limit:           config.Limit,
		window:          config.Window,
		cleanupInterval: config.CleanupInterval,
		now:             config.Now,
	}
	go rl.startCleanup()
	return rl
}

// Allow records a call for chatID and reports whether it fits in the window.
// Rejected calls are not recorded.
func (rl *Limiter) Allow(chatID int64) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	calls := prune(rl.chats[chatID], now.Add(-rl.window))
	if len(calls) >= rl.limit {
		rl.chats[chatID] = calls
		return false
	}
	rl.chats[chatID] = append(calls, now)
	return true
}

// Limit returns the configured calls per window.
func (rl *Limiter) Limit() int {
	return rl.limit
}

// prune drops timestamps at or before cutoff. calls is in ascending order.
func prune(calls []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(calls) && !calls[i].After(cutoff) {
		i++
	}
	return calls[i:]
}

func (rl *Limiter) startCleanup() {
	ticker := time.NewTicker(rl.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries forgets chats with no calls inside the window.
func (rl *Limiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.window)
	for chatID, calls := range rl.chats {
		if calls = prune(calls, cutoff); len(calls) == 0 {
			delete(rl.chats, chatID)
		} else {
			rl.chats[chatID] = calls
		}
	}
}

// ActiveChats returns the number of currently tracked chats
func (rl *Limiter) ActiveChats() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.chats)
}

// Stop shuts down the cleanup goroutine
func (rl *Limiter) Stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}
