package security

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Zhq8745/voice-account-auth/internal/clock"
)

const (
	// DefaultIPThreshold is the number of failures within the IP window that
	// triggers an IP block.
	DefaultIPThreshold = 5

	// DefaultIPWindow is the sliding window over which IP failures are counted.
	DefaultIPWindow = 5 * time.Minute

	// DefaultIPBlockDuration is how long an IP stays blocked.
	DefaultIPBlockDuration = 15 * time.Minute

	// DefaultUserThreshold is the number of failures within the user window
	// that triggers a per-account block.
	DefaultUserThreshold = 3

	// DefaultUserWindow is the sliding window over which user failures are counted.
	DefaultUserWindow = 5 * time.Minute

	// DefaultUserBlockDuration is how long an account stays blocked.
	DefaultUserBlockDuration = 30 * time.Minute

	// DefaultLockoutSweepInterval is how often stale failure records and
	// expired blocks are pruned.
	DefaultLockoutSweepInterval = 5 * time.Minute
)

// failureRecord is one failed authentication attempt under a key.
type failureRecord struct {
	at     time.Time
	reason string
}

const (
	axisIP   = "ip"
	axisUser = "user"
)

// blockEntry marks a key as blocked until a point in time. Presence means
// blocked; entries are removed lazily on read and by the sweep.
type blockEntry struct {
	until time.Time
	axis  string
}

// LockoutConfig configures a LoginLockout. Zero values use the defaults above.
type LockoutConfig struct {
	IPThreshold       int
	IPWindow          time.Duration
	IPBlockDuration   time.Duration
	UserThreshold     int
	UserWindow        time.Duration
	UserBlockDuration time.Duration
	SweepInterval     time.Duration

	Logger *slog.Logger
	Clock  clock.Clock
}

func (c *LockoutConfig) withDefaults() {
	if c.IPThreshold <= 0 {
		c.IPThreshold = DefaultIPThreshold
	}
	if c.IPWindow <= 0 {
		c.IPWindow = DefaultIPWindow
	}
	if c.IPBlockDuration <= 0 {
		c.IPBlockDuration = DefaultIPBlockDuration
	}
	if c.UserThreshold <= 0 {
		c.UserThreshold = DefaultUserThreshold
	}
	if c.UserWindow <= 0 {
		c.UserWindow = DefaultUserWindow
	}
	if c.UserBlockDuration <= 0 {
		c.UserBlockDuration = DefaultUserBlockDuration
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultLockoutSweepInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.System()
	}
}

// LoginLockout tracks login failures per IP and per user identity inside
// sliding windows and derives temporary blocks. The IP and user axes are
// independent: an attacker spraying many accounts from one address trips the
// IP block even when no single account crosses its own threshold.
//
// Block entries self-expire on read, so a caller never observes a stale
// "blocked" state after the block duration has elapsed.
type LoginLockout struct {
	cfg LockoutConfig

	mu           sync.RWMutex
	ipFailures   map[string][]failureRecord
	userFailures map[string][]failureRecord
	blocks       map[string]blockEntry

	stopSweep chan struct{}
	stopOnce  sync.Once
}

// NewLoginLockout creates a lockout tracker and starts its cleanup sweep.
// Call Stop for clean teardown.
func NewLoginLockout(cfg LockoutConfig) *LoginLockout {
	cfg.withDefaults()

	l := &LoginLockout{
		cfg:          cfg,
		ipFailures:   make(map[string][]failureRecord),
		userFailures: make(map[string][]failureRecord),
		blocks:       make(map[string]blockEntry),
		stopSweep:    make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// RecordFailure appends a failure under the IP bucket and, when userKey is
// non-empty, the user bucket, then evaluates the block thresholds.
func (l *LoginLockout) RecordFailure(ipKey, userKey, reason string) {
	now := l.cfg.Clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if ipKey != "" {
		records := appendWithinWindow(l.ipFailures[ipKey], now, reason, l.cfg.IPWindow)
		l.ipFailures[ipKey] = records
		if len(records) >= l.cfg.IPThreshold {
			l.blockLocked(ipKey, now.Add(l.cfg.IPBlockDuration), axisIP)
		}
	}

	if userKey != "" {
		records := appendWithinWindow(l.userFailures[userKey], now, reason, l.cfg.UserWindow)
		l.userFailures[userKey] = records
		if len(records) >= l.cfg.UserThreshold {
			l.blockLocked(userKey, now.Add(l.cfg.UserBlockDuration), axisUser)
		}
	}
}

// appendWithinWindow drops records older than the window and appends the new one.
func appendWithinWindow(records []failureRecord, now time.Time, reason string, window time.Duration) []failureRecord {
	threshold := now.Add(-window)
	kept := records[:0]
	for _, r := range records {
		if r.at.After(threshold) {
			kept = append(kept, r)
		}
	}
	return append(kept, failureRecord{at: now, reason: reason})
}

// blockLocked installs a block without shortening an existing longer one.
func (l *LoginLockout) blockLocked(key string, until time.Time, axis string) {
	if existing, ok := l.blocks[key]; ok && existing.until.After(until) {
		return
	}
	l.blocks[key] = blockEntry{until: until, axis: axis}
	l.cfg.Logger.Warn("login lockout engaged",
		"axis", axis,
		"key_hash", hashForLogging(key),
		"until", until)
}

// IsBlocked reports whether the key is currently blocked. An expired block
// entry is removed lazily on this read.
func (l *LoginLockout) IsBlocked(key string) bool {
	return l.RemainingBlockTime(key) > 0
}

// RemainingBlockTime returns how long the key stays blocked, or zero when it
// is not blocked.
func (l *LoginLockout) RemainingBlockTime(key string) time.Duration {
	now := l.cfg.Clock.Now()

	l.mu.RLock()
	entry, ok := l.blocks[key]
	l.mu.RUnlock()

	if !ok {
		return 0
	}
	if !now.Before(entry.until) {
		l.mu.Lock()
		// Re-check under the write lock; another caller may have refreshed it.
		if current, still := l.blocks[key]; still && !now.Before(current.until) {
			delete(l.blocks, key)
		}
		entry, ok = l.blocks[key]
		l.mu.Unlock()
		if !ok || !now.Before(entry.until) {
			return 0
		}
	}
	return entry.until.Sub(now)
}

// ClearFailures removes the failure history for both keys. Called on
// successful authentication so a legitimate login resets the counted window.
func (l *LoginLockout) ClearFailures(ipKey, userKey string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if ipKey != "" {
		delete(l.ipFailures, ipKey)
	}
	if userKey != "" {
		delete(l.userFailures, userKey)
	}
}

// FailureCount returns the number of recorded failures currently inside the
// window for the given IP and user keys.
func (l *LoginLockout) FailureCount(ipKey, userKey string) (ip, user int) {
	now := l.cfg.Clock.Now()

	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, r := range l.ipFailures[ipKey] {
		if r.at.After(now.Add(-l.cfg.IPWindow)) {
			ip++
		}
	}
	for _, r := range l.userFailures[userKey] {
		if r.at.After(now.Add(-l.cfg.UserWindow)) {
			user++
		}
	}
	return ip, user
}

// BlockedCount returns how many IP keys and user keys are currently blocked.
func (l *LoginLockout) BlockedCount() (ips, users int) {
	now := l.cfg.Clock.Now()

	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, entry := range l.blocks {
		if !now.Before(entry.until) {
			continue
		}
		if entry.axis == axisUser {
			users++
		} else {
			ips++
		}
	}
	return ips, users
}

// sweepLoop periodically prunes stale failure records and expired blocks,
// bounding memory under sustained attack.
func (l *LoginLockout) sweepLoop() {
	ticker := time.NewTicker(l.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			l.sweep()
		case <-l.stopSweep:
			return
		}
	}
}

func (l *LoginLockout) sweep() {
	now := l.cfg.Clock.Now()
	removed := 0

	l.mu.Lock()
	removed += pruneFailures(l.ipFailures, now, 2*l.cfg.IPWindow)
	removed += pruneFailures(l.userFailures, now, 2*l.cfg.UserWindow)
	for key, entry := range l.blocks {
		if !now.Before(entry.until) {
			delete(l.blocks, key)
			removed++
		}
	}
	l.mu.Unlock()

	if removed > 0 {
		l.cfg.Logger.Debug("lockout sweep completed", "removed", removed)
	}
}

// pruneFailures drops records older than maxAge and empty buckets.
// Returns the number of buckets touched.
func pruneFailures(buckets map[string][]failureRecord, now time.Time, maxAge time.Duration) int {
	threshold := now.Add(-maxAge)
	touched := 0
	for key, records := range buckets {
		kept := records[:0]
		for _, r := range records {
			if r.at.After(threshold) {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(buckets, key)
			touched++
			continue
		}
		if len(kept) < len(records) {
			buckets[key] = kept
			touched++
		}
	}
	return touched
}

// Stop gracefully stops the cleanup goroutine.
func (l *LoginLockout) Stop() {
	l.stopOnce.Do(func() { close(l.stopSweep) })
}
