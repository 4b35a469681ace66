// Package auth implements the login, registration, and refresh orchestration
// for the expense-tracking backend: anti-forgery checks, credential
// verification, lockout enforcement, suspicion heuristics, token issuance,
// and security event logging.
package auth

import (
	"os"

	"github.com/Zhq8745/voice-account-auth/token"
)

// LoginRequest carries one login attempt into the orchestrator. OriginIP and
// UserAgent come from the transport layer (see security.ClientIP).
type LoginRequest struct {
	Identifier string // username or email, case-insensitive
	Password   string
	CSRFToken  string
	OriginIP   string
	UserAgent  string
	DeviceID   string // optional, carried into token claims
	SessionID  string // optional, carried into token claims
}

// LoginOutcome is the result of a login attempt. Exactly one of Success or
// Code/Message is meaningful; RequiresEmailVerification marks the one
// non-failure rejection.
type LoginOutcome struct {
	Success bool
	Tokens  *token.Pair

	// Code and Message are set when Success is false.
	Code    string
	Message string

	// RetryAfter is set alongside lockout codes.
	RetryAfter string

	// RequiresEmailVerification is true when credentials were correct but the
	// account's email has not been verified. Not a security failure; does not
	// count toward the lockout.
	RequiresEmailVerification bool
}

// RegistrationRequest carries a registration attempt. Shape constraints are
// enforced before any storage mutation.
type RegistrationRequest struct {
	Username        string `validate:"required,min=3,max=20"`
	Email           string `validate:"required,email"`
	Password        string `validate:"required,min=8"`
	ConfirmPassword string `validate:"required,eqfield=Password"`
	TermsAccepted   bool   `validate:"eq=true"`
}

// Stats is the read-only operational surface exposed to diagnostics.
type Stats struct {
	BlockedIPs         int
	BlockedUsers       int
	ActiveCSRFTokens   int
	TotalEvents        int64
	HighSeverityEvents int
}

// SecretVault supplies the HMAC signing secret at process start. Any secret
// backend (OS keystore, environment, secrets manager) satisfies it.
type SecretVault interface {
	SigningSecret() ([]byte, error)
}

// StaticVault is a SecretVault holding a fixed secret, for tests and wiring.
type StaticVault []byte

// SigningSecret returns the held secret.
func (v StaticVault) SigningSecret() ([]byte, error) {
	return []byte(v), nil
}

// EnvVault reads the signing secret from an environment variable.
type EnvVault struct {
	// Key is the environment variable name. Defaults to AUTH_SIGNING_SECRET.
	Key string
}

// SigningSecret returns the secret from the environment.
func (v EnvVault) SigningSecret() ([]byte, error) {
	key := v.Key
	if key == "" {
		key = "AUTH_SIGNING_SECRET"
	}
	secret := os.Getenv(key)
	if secret == "" {
		return nil, NewAuthError(CodeServerError, "signing secret not configured: "+key)
	}
	return []byte(secret), nil
}
