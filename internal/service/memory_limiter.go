package service

import (
	"context"
	"sync"
	"time"
)

const (
	memoryMaxEntries      = 10000
	memoryCleanupInterval = time.Minute
	memoryEntryTTL        = 5 * time.Minute
)

type limitEntry struct {
	timestamps []time.Time
	lastAccess time.Time
}

// MemoryRateLimiter is the single-process sliding-window limiter used when
// no redis is configured.
type MemoryRateLimiter struct {
	mu          sync.Mutex
	store       map[string]*limitEntry
	lastCleanup time.Time
	now         func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		store:       make(map[string]*limitEntry),
		lastCleanup: time.Now(),
		now:         time.Now,
	}
}

func (rl *MemoryRateLimiter) cleanup(now time.Time) {
	if now.Sub(rl.lastCleanup) < memoryCleanupInterval {
		return
	}
	rl.lastCleanup = now

	for key, entry := range rl.store {
		if now.Sub(entry.lastAccess) > memoryEntryTTL {
			delete(rl.store, key)
		}
	}

	if len(rl.store) > memoryMaxEntries {
		drop := len(rl.store) / 5
		for key := range rl.store {
			if drop == 0 {
				break
			}
			delete(rl.store, key)
			drop--
		}
	}
}

// CheckLimit records an attempt under key and reports whether it fits in
// limit attempts per window.
func (rl *MemoryRateLimiter) CheckLimit(_ context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanup(now)
	windowStart := now.Add(-window)

	entry, exists := rl.store[key]
	if !exists {
		entry = &limitEntry{}
		rl.store[key] = entry
	}
	entry.lastAccess = now

	filtered := entry.timestamps[:0]
	for _, ts := range entry.timestamps {
		if ts.After(windowStart) {
			filtered = append(filtered, ts)
		}
	}
	entry.timestamps = filtered

	resetAt := now.Add(window)
	if len(entry.timestamps) > 0 {
		resetAt = entry.timestamps[0].Add(window)
	}

	if len(entry.timestamps) >= limit {
		return false, resetAt
	}

	entry.timestamps = append(entry.timestamps, now)
	return true, resetAt
}
