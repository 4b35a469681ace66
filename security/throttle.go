package security

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Zhq8745/voice-account-auth/internal/clock"
)

// throttleEntry tracks a limiter and its last access time
type throttleEntry struct {
	identifier string
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Throttle provides per-identifier request throttling using a token bucket,
// with LRU eviction to prevent unbounded memory growth. It sits in front of
// the failure-based LoginLockout as a coarse volume gate: the lockout reacts
// to failed credentials, the throttle to raw request volume.
type Throttle struct {
	limiters        map[string]*list.Element // identifier -> list element
	lruList         *list.List               // LRU list of *throttleEntry
	mu              sync.Mutex
	rate            int
	burst           int
	maxEntries      int
	logger          *slog.Logger
	clock           clock.Clock
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once

	totalEvictions int64
}

// NewThrottle creates a throttle allowing requestsPerSecond with the given
// burst per identifier. Tracks at most maxEntries identifiers; least recently
// used entries are evicted beyond that. maxEntries 0 means unlimited.
func NewThrottle(requestsPerSecond, burst, maxEntries int, logger *slog.Logger, clk clock.Clock) *Throttle {
	if logger == nil {
		logger = slog.Default()
	}
	if clk == nil {
		clk = clock.System()
	}
	if maxEntries < 0 {
		maxEntries = 10000
	}

	t := &Throttle{
		limiters:        make(map[string]*list.Element),
		lruList:         list.New(),
		rate:            requestsPerSecond,
		burst:           burst,
		maxEntries:      maxEntries,
		logger:          logger,
		clock:           clk,
		cleanupInterval: 5 * time.Minute,
		stopCleanup:     make(chan struct{}),
	}
	go t.cleanupLoop()
	return t
}

// Allow checks if a request from the given identifier is allowed.
func (t *Throttle) Allow(identifier string) bool {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if elem, exists := t.limiters[identifier]; exists {
		t.lruList.MoveToFront(elem)
		entry := elem.Value.(*throttleEntry)
		entry.lastAccess = now
		return entry.limiter.AllowN(now, 1)
	}

	if t.maxEntries > 0 && len(t.limiters) >= t.maxEntries {
		t.evictLRU()
	}

	entry := &throttleEntry{
		identifier: identifier,
		limiter:    rate.NewLimiter(rate.Limit(t.rate), t.burst),
		lastAccess: now,
	}
	t.limiters[identifier] = t.lruList.PushFront(entry)

	return entry.limiter.AllowN(now, 1)
}

// evictLRU removes the least recently used entry. Must be called locked.
func (t *Throttle) evictLRU() {
	elem := t.lruList.Back()
	if elem == nil {
		return
	}
	entry := elem.Value.(*throttleEntry)
	delete(t.limiters, entry.identifier)
	t.lruList.Remove(elem)
	t.totalEvictions++

	t.logger.Debug("throttle LRU eviction",
		"identifier_hash", hashForLogging(entry.identifier),
		"total_evictions", t.totalEvictions)
}

// cleanupLoop periodically removes idle limiters to prevent memory leaks
func (t *Throttle) cleanupLoop() {
	ticker := time.NewTicker(t.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			t.Cleanup(30 * time.Minute)
		case <-t.stopCleanup:
			return
		}
	}
}

// Cleanup removes limiters that have not been accessed for maxIdleTime.
func (t *Throttle) Cleanup(maxIdleTime time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	removed := 0

	var next *list.Element
	for elem := t.lruList.Front(); elem != nil; elem = next {
		next = elem.Next()
		entry := elem.Value.(*throttleEntry)

		if now.Sub(entry.lastAccess) > maxIdleTime {
			delete(t.limiters, entry.identifier)
			t.lruList.Remove(elem)
			removed++
		}
	}

	if removed > 0 {
		t.logger.Debug("throttle cleanup completed",
			"removed", removed,
			"remaining", len(t.limiters))
	}
}

// Stop gracefully stops the cleanup goroutine.
func (t *Throttle) Stop() {
	t.stopOnce.Do(func() { close(t.stopCleanup) })
}
