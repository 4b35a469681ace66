package token

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Zhq8745/voice-account-auth/internal/clock"
)

const (
	// DefaultAccessTTL is how long access tokens remain valid.
	DefaultAccessTTL = 15 * time.Minute

	// DefaultRefreshTTL is how long refresh tokens remain valid.
	DefaultRefreshTTL = 7 * 24 * time.Hour

	// DefaultClockSkew is the tolerance applied to issued-at checks.
	// Prevents false NotYetValid errors from minor clock drift between hosts.
	DefaultClockSkew = 60 * time.Second

	// DefaultSweepInterval is how often provably expired revocation entries
	// are dropped from memory.
	DefaultSweepInterval = time.Hour
)

// Pair is an access/refresh token pair returned on login or registration.
type Pair struct {
	AccessToken  string
	RefreshToken string

	// AccessExpiresIn is the access token lifetime at issuance.
	AccessExpiresIn time.Duration
}

// ServiceConfig configures a token Service. Zero values use the defaults above.
type ServiceConfig struct {
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	ClockSkew     time.Duration
	SweepInterval time.Duration

	// Logger for structured logging (optional, uses default if not provided)
	Logger *slog.Logger

	// Clock is the time source, injectable for deterministic testing.
	Clock clock.Clock
}

func (c *ServiceConfig) withDefaults() {
	if c.AccessTTL <= 0 {
		c.AccessTTL = DefaultAccessTTL
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = DefaultRefreshTTL
	}
	if c.ClockSkew <= 0 {
		c.ClockSkew = DefaultClockSkew
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.Clock == nil {
		c.Clock = clock.System()
	}
}

// Service issues access/refresh pairs, validates tokens against the codec,
// and maintains the revocation set. Safe for concurrent use.
type Service struct {
	codec *Codec
	cfg   ServiceConfig

	mu      sync.RWMutex
	revoked map[string]time.Time // raw token -> revocation time

	stopSweep chan struct{}
	stopOnce  sync.Once
}

// NewService creates a token service signing with the given secret and starts
// its background revocation sweep. Call Stop for clean teardown.
func NewService(secret []byte, cfg ServiceConfig) (*Service, error) {
	codec, err := NewCodec(secret)
	if err != nil {
		return nil, err
	}
	cfg.withDefaults()

	s := &Service{
		codec:     codec,
		cfg:       cfg,
		revoked:   make(map[string]time.Time),
		stopSweep: make(chan struct{}),
	}
	go s.sweepLoop()
	return s, nil
}

// Codec exposes the underlying codec for callers that only need Sign/Verify.
func (s *Service) Codec() *Codec { return s.codec }

// AccessTTL returns the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.cfg.AccessTTL }

// IssuePair mints an access/refresh token pair for the user. Each token gets
// an independent jti; deviceID and sessionID are carried through when set.
func (s *Service) IssuePair(ctx context.Context, userID, deviceID, sessionID string) (*Pair, error) {
	now := s.cfg.Clock.Now()

	access, err := s.codec.Sign(Claims{
		Subject:   userID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.cfg.AccessTTL).Unix(),
		TokenID:   uuid.NewString(),
		Type:      KindAccess,
		DeviceID:  deviceID,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	refresh, err := s.codec.Sign(Claims{
		Subject:   userID,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.cfg.RefreshTTL).Unix(),
		TokenID:   uuid.NewString(),
		Type:      KindRefresh,
		DeviceID:  deviceID,
		SessionID: sessionID,
	})
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}

	return &Pair{
		AccessToken:     access,
		RefreshToken:    refresh,
		AccessExpiresIn: s.cfg.AccessTTL,
	}, nil
}

// Validate checks a token end to end: revocation, signature, expiry window,
// and (when expectedKind is non-empty) the token kind.
// A revoked token fails immediately, before its natural expiry.
func (s *Service) Validate(ctx context.Context, raw string, expectedKind Kind) (Claims, error) {
	s.mu.RLock()
	_, isRevoked := s.revoked[raw]
	s.mu.RUnlock()
	if isRevoked {
		return Claims{}, ErrRevoked
	}

	claims, err := s.codec.Verify(raw)
	if err != nil {
		return Claims{}, err
	}

	now := s.cfg.Clock.Now()
	if now.Unix() > claims.ExpiresAt {
		return Claims{}, ErrExpired
	}
	if now.Add(s.cfg.ClockSkew).Unix() < claims.IssuedAt {
		return Claims{}, ErrNotYetValid
	}
	if expectedKind != "" && claims.Type != expectedKind {
		return Claims{}, fmt.Errorf("%w: got %q, want %q", ErrInvalidKind, claims.Type, expectedKind)
	}
	return claims, nil
}

// Refresh validates a refresh token and issues a fresh access token carrying
// the same subject, device, and session.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.Validate(ctx, refreshToken, KindRefresh)
	if err != nil {
		return "", err
	}

	now := s.cfg.Clock.Now()
	access, err := s.codec.Sign(Claims{
		Subject:   claims.Subject,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.cfg.AccessTTL).Unix(),
		TokenID:   uuid.NewString(),
		Type:      KindAccess,
		DeviceID:  claims.DeviceID,
		SessionID: claims.SessionID,
	})
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return access, nil
}

// Revoke adds the raw token to the revocation set. Validate rejects it from
// this point on, regardless of its natural expiry.
func (s *Service) Revoke(ctx context.Context, raw string) {
	s.mu.Lock()
	s.revoked[raw] = s.cfg.Clock.Now()
	s.mu.Unlock()
}

// RevokedCount returns the current size of the revocation set.
func (s *Service) RevokedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.revoked)
}

// sweepLoop periodically drops revocation entries whose underlying token is
// provably expired. A still-valid token is never un-revoked early.
func (s *Service) sweepLoop() {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepRevoked()
		case <-s.stopSweep:
			return
		}
	}
}

func (s *Service) sweepRevoked() {
	now := s.cfg.Clock.Now()

	s.mu.Lock()
	removed := 0
	for raw := range s.revoked {
		// Expiry only, no signature check. Entries with no readable exp can
		// never pass Verify in the first place, so dropping them cannot
		// un-revoke a still-valid token; keeping them would let a caller
		// revoking arbitrary strings grow the set without bound.
		exp, ok := peekExpiry(raw)
		if !ok || now.Unix() > exp {
			delete(s.revoked, raw)
			removed++
		}
	}
	remaining := len(s.revoked)
	s.mu.Unlock()

	if removed > 0 {
		s.cfg.Logger.Debug("Revocation sweep completed",
			"removed", removed,
			"remaining", remaining)
	}
}

// Stop gracefully stops the background sweep goroutine.
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopSweep) })
}
