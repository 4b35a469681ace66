package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Zhq8745/voice-account-auth/internal/clock"
)

const (
	// DefaultCSRFTTL is how long an issued anti-forgery token stays valid.
	DefaultCSRFTTL = time.Hour

	// DefaultCSRFSweepInterval is how often unconsumed expired tokens are dropped.
	DefaultCSRFSweepInterval = 10 * time.Minute

	// csrfTokenBytes is the entropy of each token (256 bits).
	csrfTokenBytes = 32
)

// CSRFConfig configures a CSRFGuard. Zero values use the defaults above.
type CSRFConfig struct {
	TTL           time.Duration
	SweepInterval time.Duration

	Logger *slog.Logger
	Clock  clock.Clock
}

func (c *CSRFConfig) withDefaults() {
	if c.TTL <= 0 {
		c.TTL = DefaultCSRFTTL
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultCSRFSweepInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.System()
	}
}

// CSRFGuard issues single-use, time-boxed anti-forgery tokens and consumes
// them atomically on validation. Safe for concurrent use.
type CSRFGuard struct {
	cfg CSRFConfig

	mu     sync.RWMutex
	tokens map[string]time.Time // token -> expiry

	stopSweep chan struct{}
	stopOnce  sync.Once
}

// NewCSRFGuard creates a guard and starts its cleanup sweep.
// Call Stop for clean teardown.
func NewCSRFGuard(cfg CSRFConfig) *CSRFGuard {
	cfg.withDefaults()

	g := &CSRFGuard{
		cfg:       cfg,
		tokens:    make(map[string]time.Time),
		stopSweep: make(chan struct{}),
	}
	go g.sweepLoop()
	return g
}

// Issue creates a new random token valid for the configured TTL.
func (g *CSRFGuard) Issue() (string, error) {
	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate csrf token: %w", err)
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	expiry := g.cfg.Clock.Now().Add(g.cfg.TTL)
	g.mu.Lock()
	g.tokens[token] = expiry
	g.mu.Unlock()

	return token, nil
}

// Validate reports whether the token exists and has not expired. The entry is
// removed unconditionally regardless of outcome, so a token can validate at
// most once: replaying it after a successful Validate fails. Unknown and
// expired tokens are indistinguishable to the caller.
func (g *CSRFGuard) Validate(token string) bool {
	if token == "" {
		return false
	}
	now := g.cfg.Clock.Now()

	g.mu.Lock()
	expiry, ok := g.tokens[token]
	delete(g.tokens, token)
	g.mu.Unlock()

	return ok && now.Before(expiry)
}

// ActiveCount returns the number of issued tokens not yet consumed or swept.
func (g *CSRFGuard) ActiveCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.tokens)
}

// sweepLoop periodically drops entries past expiry that were never consumed.
func (g *CSRFGuard) sweepLoop() {
	ticker := time.NewTicker(g.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.sweep()
		case <-g.stopSweep:
			return
		}
	}
}

func (g *CSRFGuard) sweep() {
	now := g.cfg.Clock.Now()
	removed := 0

	g.mu.Lock()
	for token, expiry := range g.tokens {
		if !now.Before(expiry) {
			delete(g.tokens, token)
			removed++
		}
	}
	remaining := len(g.tokens)
	g.mu.Unlock()

	if removed > 0 {
		g.cfg.Logger.Debug("csrf sweep completed",
			"removed", removed,
			"remaining", remaining)
	}
}

// Stop gracefully stops the cleanup goroutine.
func (g *CSRFGuard) Stop() {
	g.stopOnce.Do(func() { close(g.stopSweep) })
}
