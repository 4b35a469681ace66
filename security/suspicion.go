package security

import (
	"strings"

	"github.com/Zhq8745/voice-account-auth/internal/clock"
)

// badAgentMarkers are user-agent substrings associated with automated clients.
var badAgentMarkers = []string{"bot", "crawler", "spider", "scraper"}

// Unusual-hour boundaries in the detector's local time.
const (
	quietHourStart = 23
	quietHourEnd   = 6
)

// SuspicionResult carries the combined verdict and the contributing signals.
type SuspicionResult struct {
	Suspicious  bool
	BadAgent    bool
	UnusualHour bool
	GeoAnomaly  bool
}

// SuspicionDetector combines independent heuristic signals about a login into
// an advisory flag. It never blocks a login by itself; a positive verdict is
// recorded as a medium-severity event for operators.
type SuspicionDetector struct {
	events *EventLog
	clock  clock.Clock
}

// NewSuspicionDetector creates a detector reporting into the given event log.
func NewSuspicionDetector(events *EventLog, clk clock.Clock) *SuspicionDetector {
	if clk == nil {
		clk = clock.System()
	}
	return &SuspicionDetector{events: events, clock: clk}
}

// Inspect evaluates the heuristics for one login attempt and records a
// suspicious-activity event when any signal fires.
func (d *SuspicionDetector) Inspect(originIP, userAgent, userID string) SuspicionResult {
	result := SuspicionResult{
		BadAgent:    hasBadAgentMarker(userAgent),
		UnusualHour: d.isUnusualHour(),
		GeoAnomaly:  d.isGeoAnomalous(originIP),
	}
	result.Suspicious = result.BadAgent || result.UnusualHour || result.GeoAnomaly

	if result.Suspicious && d.events != nil {
		d.events.Record(Event{
			Type:      EventSuspiciousActivity,
			UserID:    userID,
			IP:        originIP,
			UserAgent: userAgent,
			Severity:  SeverityMedium,
			Details: map[string]string{
				"bad_agent":    boolString(result.BadAgent),
				"unusual_hour": boolString(result.UnusualHour),
				"geo_anomaly":  boolString(result.GeoAnomaly),
			},
		})
	}
	return result
}

func hasBadAgentMarker(userAgent string) bool {
	ua := strings.ToLower(userAgent)
	for _, marker := range badAgentMarkers {
		if strings.Contains(ua, marker) {
			return true
		}
	}
	return false
}

func (d *SuspicionDetector) isUnusualHour() bool {
	hour := d.clock.Now().Local().Hour()
	return hour >= quietHourStart || hour < quietHourEnd
}

// isGeoAnomalous is a stub until a geo-IP source is wired in.
func (d *SuspicionDetector) isGeoAnomalous(originIP string) bool {
	return false
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
