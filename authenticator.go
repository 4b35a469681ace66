package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel/trace"

	"github.com/Zhq8745/voice-account-auth/instrumentation"
	"github.com/Zhq8745/voice-account-auth/security"
	"github.com/Zhq8745/voice-account-auth/storage"
	"github.com/Zhq8745/voice-account-auth/token"
)

// Authenticator is the login/registration/refresh orchestrator. It owns the
// token service, lockout tracker, CSRF guard, and event log, and consults the
// credential store collaborator for account data.
//
// Construct once at process start with New and share by reference; every
// method is safe for concurrent use. Call Close on shutdown to stop the
// background sweeps.
type Authenticator struct {
	cfg Config

	store    storage.CredentialStore
	registry storage.UserRegistry

	tokens    *token.Service
	lockout   *security.LoginLockout
	csrf      *security.CSRFGuard
	events    *security.EventLog
	suspicion *security.SuspicionDetector
	throttle  *security.Throttle // nil when disabled

	validate *validator.Validate
	tracer   trace.Tracer
}

// New creates an authenticator. The vault supplies the process-wide signing
// secret; store resolves and verifies credentials; registry may be nil when
// registration is not served by this instance.
func New(vault SecretVault, store storage.CredentialStore, registry storage.UserRegistry, cfg Config) (*Authenticator, error) {
	if vault == nil {
		return nil, errors.New("auth: secret vault is required")
	}
	if store == nil {
		return nil, errors.New("auth: credential store is required")
	}
	cfg.withDefaults()

	secret, err := vault.SigningSecret()
	if err != nil {
		return nil, fmt.Errorf("read signing secret: %w", err)
	}

	tokens, err := token.NewService(secret, cfg.Tokens)
	if err != nil {
		return nil, err
	}

	a := &Authenticator{
		cfg:      cfg,
		store:    store,
		registry: registry,
		tokens:   tokens,
		lockout:  security.NewLoginLockout(cfg.Lockout),
		csrf:     security.NewCSRFGuard(cfg.CSRF),
		events:   security.NewEventLog(cfg.Events),
		validate: validator.New(),
	}
	a.suspicion = security.NewSuspicionDetector(a.events, cfg.Clock)

	if cfg.Throttle.Rate > 0 {
		a.throttle = security.NewThrottle(cfg.Throttle.Rate, cfg.Throttle.Burst, cfg.Throttle.MaxEntries, cfg.Logger, cfg.Clock)
	}

	if inst := cfg.Instrumentation; inst != nil {
		a.tracer = inst.Tracer("auth")
		if err := inst.RegisterSizeCallbacks(
			func() int64 {
				ips, users := a.lockout.BlockedCount()
				return int64(ips + users)
			},
			func() int64 { return int64(a.csrf.ActiveCount()) },
			func() int64 { return int64(a.tokens.RevokedCount()) },
		); err != nil {
			tokens.Stop()
			a.lockout.Stop()
			a.csrf.Stop()
			return nil, err
		}
	}

	return a, nil
}

// Login runs the authentication sequence for one attempt. Domain rejections
// come back inside the outcome; the error return is reserved for internal
// faults (for example a failing credential store).
func (a *Authenticator) Login(ctx context.Context, req LoginRequest) (*LoginOutcome, error) {
	if a.tracer != nil {
		var span trace.Span
		ctx, span = a.tracer.Start(ctx, "auth.Login")
		defer span.End()
	}
	started := a.cfg.Clock.Now()
	defer func() {
		if m := a.metrics(); m != nil {
			m.LoginDuration.Record(ctx, float64(a.cfg.Clock.Now().Sub(started).Milliseconds()))
		}
	}()

	// Coarse request-volume gate, when enabled.
	if a.throttle != nil && !a.throttle.Allow(req.OriginIP) {
		a.events.Record(security.Event{
			Type:     security.EventRateLimited,
			IP:       req.OriginIP,
			Severity: security.SeverityMedium,
		})
		if m := a.metrics(); m != nil {
			m.ThrottleRejects.Add(ctx, 1)
		}
		return a.reject(ctx, ErrTooManyAttempts(0)), nil
	}

	// 1. Anti-forgery token must exist, be fresh, and be unconsumed.
	if !a.csrf.Validate(req.CSRFToken) {
		a.events.Record(security.Event{
			Type:     security.EventCSRFRejected,
			IP:       req.OriginIP,
			Severity: security.SeverityMedium,
		})
		if m := a.metrics(); m != nil {
			m.CSRFRejects.Add(ctx, 1)
		}
		return a.reject(ctx, ErrCSRFInvalid()), nil
	}

	// 2. Origin block. The user-axis block is checked after resolution.
	if remaining := a.lockout.RemainingBlockTime(req.OriginIP); remaining > 0 {
		a.recordLockoutHit(req.OriginIP, "", remaining)
		if m := a.metrics(); m != nil {
			m.LockoutBlocks.Add(ctx, 1)
		}
		return a.reject(ctx, ErrTooManyAttempts(remaining)), nil
	}

	// 3. Resolve the identifier. An unknown identifier records a failure the
	// same way a wrong password does, so the two are indistinguishable.
	user, err := a.store.FindByIdentifier(ctx, req.Identifier)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			a.recordCredentialFailure(req.OriginIP, "", req.UserAgent)
			return a.reject(ctx, ErrInvalidCredentials()), nil
		}
		return nil, fmt.Errorf("resolve identifier: %w", err)
	}

	if remaining := a.lockout.RemainingBlockTime(user.ID); remaining > 0 {
		a.recordLockoutHit(req.OriginIP, user.ID, remaining)
		if m := a.metrics(); m != nil {
			m.LockoutBlocks.Add(ctx, 1)
		}
		return a.reject(ctx, ErrAccountLocked(remaining)), nil
	}

	// 4. Password check.
	ok, err := a.store.VerifyPassword(ctx, user.ID, req.Password)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		a.recordCredentialFailure(req.OriginIP, user.ID, req.UserAgent)
		return a.reject(ctx, ErrInvalidCredentials()), nil
	}

	// 5. Disabled accounts may not log in.
	if !user.Active {
		a.events.Record(security.Event{
			Type:     security.EventAccountDisabled,
			UserID:   user.ID,
			IP:       req.OriginIP,
			Severity: security.SeverityMedium,
		})
		return a.reject(ctx, ErrAccountDisabled()), nil
	}

	// 6. Unverified email is a deferral, not a security failure. It must not
	// touch the failure counters.
	if !user.EmailVerified {
		a.events.Record(security.Event{
			Type:     security.EventEmailUnverified,
			UserID:   user.ID,
			IP:       req.OriginIP,
			Severity: security.SeverityLow,
		})
		outcome := a.reject(ctx, NewAuthError(CodeEmailUnverified, "email verification required"))
		outcome.RequiresEmailVerification = true
		return outcome, nil
	}

	// 7. Advisory heuristics; logs only, never a gate.
	a.suspicion.Inspect(req.OriginIP, req.UserAgent, user.ID)

	// 8. Success: reset the counted window, mint tokens, log.
	a.lockout.ClearFailures(req.OriginIP, user.ID)

	pair, err := a.tokens.IssuePair(ctx, user.ID, req.DeviceID, req.SessionID)
	if err != nil {
		return nil, fmt.Errorf("issue token pair: %w", err)
	}

	// Best-effort bookkeeping after the login already succeeded: neither a
	// last-login write failure nor event logging may roll it back.
	if err := a.store.MarkLastLogin(ctx, user.ID, a.cfg.Clock.Now()); err != nil {
		a.cfg.Logger.Warn("failed to record last login",
			"user_id", user.ID, "error", err)
	}
	a.events.Record(security.Event{
		Type:     security.EventTokenIssued,
		UserID:   user.ID,
		IP:       req.OriginIP,
		Severity: security.SeverityLow,
	})
	a.events.Record(security.Event{
		Type:      security.EventLoginSuccess,
		UserID:    user.ID,
		IP:        req.OriginIP,
		UserAgent: req.UserAgent,
		Severity:  security.SeverityLow,
	})
	if m := a.metrics(); m != nil {
		m.RecordLoginAttempt(ctx, "success")
		m.TokensIssued.Add(ctx, 1)
	}

	return &LoginOutcome{Success: true, Tokens: pair}, nil
}

// Refresh exchanges a valid refresh token for a new access token. The refresh
// token itself is returned unchanged in the pair.
func (a *Authenticator) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	access, err := a.tokens.Refresh(ctx, refreshToken)
	if err != nil {
		// Internal kind detail stays in the log; callers see one stable code.
		a.cfg.Logger.Info("refresh rejected", "reason", err.Error())
		return nil, ErrInvalidToken()
	}

	claims, err := a.tokens.Codec().Verify(access)
	if err != nil {
		return nil, fmt.Errorf("verify issued access token: %w", err)
	}
	a.events.Record(security.Event{
		Type:     security.EventTokenRefreshed,
		UserID:   claims.Subject,
		Severity: security.SeverityLow,
	})
	if m := a.metrics(); m != nil {
		m.TokensRefreshed.Add(ctx, 1)
	}

	return &token.Pair{
		AccessToken:     access,
		RefreshToken:    refreshToken,
		AccessExpiresIn: a.tokens.AccessTTL(),
	}, nil
}

// Logout revokes the access token. Revoking an already invalid token is
// harmless, so this never fails.
func (a *Authenticator) Logout(ctx context.Context, accessToken string) {
	userID := ""
	if claims, err := a.tokens.Validate(ctx, accessToken, token.KindAccess); err == nil {
		userID = claims.Subject
	}

	a.tokens.Revoke(ctx, accessToken)

	a.events.Record(security.Event{
		Type:     security.EventTokenRevoked,
		UserID:   userID,
		Severity: security.SeverityLow,
	})
	if m := a.metrics(); m != nil {
		m.TokensRevoked.Add(ctx, 1)
	}
}

// ValidateAccess checks an access token for protected-resource requests.
func (a *Authenticator) ValidateAccess(ctx context.Context, accessToken string) (token.Claims, error) {
	claims, err := a.tokens.Validate(ctx, accessToken, token.KindAccess)
	if err != nil {
		a.cfg.Logger.Debug("access token rejected", "reason", err.Error())
		return token.Claims{}, ErrInvalidToken()
	}
	return claims, nil
}

// IssueCSRFToken issues a single-use anti-forgery token for a form render.
func (a *Authenticator) IssueCSRFToken() (string, error) {
	return a.csrf.Issue()
}

// Register validates and creates a new account. The account starts with an
// unverified email and cannot log in until verification.
func (a *Authenticator) Register(ctx context.Context, req RegistrationRequest) (*storage.UserRecord, error) {
	if a.registry == nil {
		return nil, ErrServerError()
	}
	if err := a.validate.Struct(req); err != nil {
		return nil, ErrInvalidInput(registrationMessage(err))
	}

	// Duplicate checks happen before any mutation; CreateUser re-checks under
	// its own lock, so a concurrent duplicate still fails cleanly.
	if taken, err := a.registry.UsernameTaken(ctx, req.Username); err != nil {
		return nil, fmt.Errorf("check username: %w", err)
	} else if taken {
		return nil, ErrDuplicateUser()
	}
	if taken, err := a.registry.EmailTaken(ctx, req.Email); err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	} else if taken {
		return nil, ErrDuplicateUser()
	}

	user := &storage.UserRecord{
		Username:      req.Username,
		Email:         req.Email,
		Active:        true,
		EmailVerified: false,
		CreatedAt:     a.cfg.Clock.Now(),
	}
	if err := a.registry.CreateUser(ctx, user, req.Password); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return nil, ErrDuplicateUser()
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	a.events.Record(security.Event{
		Type:     security.EventRegistration,
		UserID:   user.ID,
		Severity: security.SeverityLow,
	})
	return user, nil
}

// SecurityStats returns the read-only operational counters.
func (a *Authenticator) SecurityStats() Stats {
	ips, users := a.lockout.BlockedCount()
	return Stats{
		BlockedIPs:         ips,
		BlockedUsers:       users,
		ActiveCSRFTokens:   a.csrf.ActiveCount(),
		TotalEvents:        a.events.Total(),
		HighSeverityEvents: a.events.HighSeverityCount(),
	}
}

// Events exposes the security event log for operator queries.
func (a *Authenticator) Events() *security.EventLog { return a.events }

// Tokens exposes the token service for transport middleware.
func (a *Authenticator) Tokens() *token.Service { return a.tokens }

// Close stops all background sweeps. Safe to call more than once.
func (a *Authenticator) Close() {
	a.tokens.Stop()
	a.lockout.Stop()
	a.csrf.Stop()
	if a.throttle != nil {
		a.throttle.Stop()
	}
}

func (a *Authenticator) metrics() *instrumentation.Metrics {
	if a.cfg.Instrumentation == nil {
		return nil
	}
	return a.cfg.Instrumentation.Metrics()
}

// reject builds a failure outcome from an AuthError and counts the attempt.
func (a *Authenticator) reject(ctx context.Context, err *AuthError) *LoginOutcome {
	if m := a.metrics(); m != nil {
		m.RecordLoginAttempt(ctx, err.Code)
	}
	outcome := &LoginOutcome{
		Success: false,
		Code:    err.Code,
		Message: err.Message,
	}
	if err.RetryAfter > 0 {
		outcome.RetryAfter = err.RetryAfter.Round(time.Second).String()
	}
	return outcome
}

// recordCredentialFailure feeds the lockout and the event log for a rejected
// credential, whether the identifier was unknown or the password wrong.
func (a *Authenticator) recordCredentialFailure(originIP, userID, userAgent string) {
	a.lockout.RecordFailure(originIP, userID, "invalid_credentials")
	a.events.Record(security.Event{
		Type:      security.EventLoginFailure,
		UserID:    userID,
		IP:        originIP,
		UserAgent: userAgent,
		Severity:  security.SeverityMedium,
	})
}

// recordLockoutHit logs an attempt that arrived while a block was active.
func (a *Authenticator) recordLockoutHit(originIP, userID string, remaining time.Duration) {
	a.events.Record(security.Event{
		Type:     security.EventAccountLocked,
		UserID:   userID,
		IP:       originIP,
		Severity: security.SeverityHigh,
		Details: map[string]string{
			"remaining": remaining.Round(time.Second).String(),
		},
	})
}

// registrationMessage maps validator errors to a stable, user-safe message.
func registrationMessage(err error) string {
	var fields validator.ValidationErrors
	if !errors.As(err, &fields) || len(fields) == 0 {
		return "invalid registration request"
	}
	switch fields[0].Field() {
	case "Username":
		return "username must be 3-20 characters"
	case "Email":
		return "a valid email address is required"
	case "Password":
		return "password must be at least 8 characters"
	case "ConfirmPassword":
		return "passwords do not match"
	case "TermsAccepted":
		return "terms must be accepted"
	}
	return "invalid registration request"
}
