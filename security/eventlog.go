// Package security provides the abuse-throttling and telemetry half of the
// authentication core: login lockout tracking, request throttling, single-use
// anti-forgery tokens, the security event log, and suspicion heuristics.
package security

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Zhq8745/voice-account-auth/internal/clock"
)

// Severity classifies how alarming a security event is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Event is one append-only entry in the security event log. Events are never
// mutated after being recorded.
type Event struct {
	ID        string
	Type      string
	UserID    string
	IP        string
	UserAgent string
	Severity  Severity
	Details   map[string]string
	Timestamp time.Time
}

// EventFilter selects events from the log. Zero fields match everything.
type EventFilter struct {
	Type     string
	UserID   string
	Severity Severity
	Since    time.Time
}

func (f EventFilter) matches(e Event) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.Severity != "" && e.Severity != f.Severity {
		return false
	}
	if !f.Since.IsZero() && e.Timestamp.Before(f.Since) {
		return false
	}
	return true
}

// DefaultEventLogCapacity is the number of most-recent events retained.
const DefaultEventLogCapacity = 1000

// EventLogConfig configures an EventLog.
type EventLogConfig struct {
	// Capacity caps the log; the oldest event is evicted first. Zero uses
	// DefaultEventLogCapacity.
	Capacity int

	Logger *slog.Logger
	Clock  clock.Clock
}

func (c *EventLogConfig) withDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = DefaultEventLogCapacity
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.System()
	}
}

// EventLog is a capped, append-only ring buffer of security events. Every
// recorded event is mirrored to the structured logger with user identifiers
// hashed, so operators get a live stream as well as the queryable buffer.
type EventLog struct {
	cfg EventLogConfig

	mu     sync.RWMutex
	events []Event // ring buffer, oldest at head
	head   int     // index of the oldest event when full
	total  int64   // events recorded over the process lifetime
}

// NewEventLog creates an event log with the configured capacity.
func NewEventLog(cfg EventLogConfig) *EventLog {
	cfg.withDefaults()
	return &EventLog{
		cfg:    cfg,
		events: make([]Event, 0, cfg.Capacity),
	}
}

// Record appends an event, stamping its ID and timestamp. The oldest event is
// evicted once capacity is reached.
func (el *EventLog) Record(event Event) {
	event.ID = uuid.NewString()
	event.Timestamp = el.cfg.Clock.Now()
	if event.Severity == "" {
		event.Severity = SeverityLow
	}

	el.mu.Lock()
	if len(el.events) < el.cfg.Capacity {
		el.events = append(el.events, event)
	} else {
		el.events[el.head] = event
		el.head = (el.head + 1) % el.cfg.Capacity
	}
	el.total++
	el.mu.Unlock()

	el.cfg.Logger.Info("security_event",
		"event_type", event.Type,
		"severity", string(event.Severity),
		"user_id_hash", hashForLogging(event.UserID),
		"ip", event.IP,
		"details", event.Details,
	)
}

// Recent returns up to n events, newest first.
func (el *EventLog) Recent(n int) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	if n <= 0 || n > len(el.events) {
		n = len(el.events)
	}
	out := make([]Event, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, el.at(len(el.events)-1-i))
	}
	return out
}

// Query returns all retained events matching the filter, newest first.
func (el *EventLog) Query(filter EventFilter) []Event {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var out []Event
	for i := len(el.events) - 1; i >= 0; i-- {
		if e := el.at(i); filter.matches(e) {
			out = append(out, e)
		}
	}
	return out
}

// at returns the i-th oldest retained event. Must be called locked.
func (el *EventLog) at(i int) Event {
	return el.events[(el.head+i)%len(el.events)]
}

// Len returns the number of retained events.
func (el *EventLog) Len() int {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return len(el.events)
}

// Total returns the number of events recorded over the process lifetime,
// including evicted ones.
func (el *EventLog) Total() int64 {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.total
}

// HighSeverityCount returns the number of retained high or critical events.
func (el *EventLog) HighSeverityCount() int {
	el.mu.RLock()
	defer el.mu.RUnlock()

	count := 0
	for i := range el.events {
		if el.events[i].Severity == SeverityHigh || el.events[i].Severity == SeverityCritical {
			count++
		}
	}
	return count
}

// hashForLogging creates a short SHA-256 digest of sensitive data so log
// lines stay correlatable without exposing the raw identifier.
func hashForLogging(sensitive string) string {
	if sensitive == "" {
		return "<empty>"
	}
	hash := sha256.Sum256([]byte(sensitive))
	return hex.EncodeToString(hash[:])[:16]
}
