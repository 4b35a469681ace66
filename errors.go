package auth

import (
	"fmt"
	"time"
)

// External error codes as constants. This is the full vocabulary exposed to
// clients; internal validation detail (signature vs expiry vs kind) stays in
// the event log so failures give an attacker nothing to differentiate.
const (
	CodeCSRFInvalid        = "csrf_invalid"
	CodeTooManyAttempts    = "too_many_attempts"
	CodeAccountLocked      = "account_locked"
	CodeInvalidCredentials = "invalid_credentials"
	CodeAccountDisabled    = "account_disabled"
	CodeEmailUnverified    = "email_unverified"
	CodeInvalidToken       = "invalid_token"
	CodeInvalidInput       = "invalid_input"
	CodeDuplicateUser      = "duplicate_user"
	CodeServerError        = "server_error"
)

// AuthError is the error shape returned across the package boundary.
type AuthError struct {
	Code    string // stable machine-readable code
	Message string // human-readable description, safe for end users

	// RetryAfter is set on lockout errors to tell the caller how long the
	// block lasts. Zero otherwise.
	RetryAfter time.Duration
}

// Error implements the error interface
func (e *AuthError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// NewAuthError creates a new authentication error
func NewAuthError(code, message string) *AuthError {
	return &AuthError{Code: code, Message: message}
}

// Common errors as reusable constructors
var (
	// ErrCSRFInvalid indicates the anti-forgery token is missing, unknown,
	// expired, or already consumed.
	ErrCSRFInvalid = func() *AuthError {
		return NewAuthError(CodeCSRFInvalid, "invalid or expired request token")
	}

	// ErrTooManyAttempts indicates the origin IP is temporarily blocked.
	ErrTooManyAttempts = func(retryAfter time.Duration) *AuthError {
		e := NewAuthError(CodeTooManyAttempts, "too many attempts, try again later")
		e.RetryAfter = retryAfter
		return e
	}

	// ErrAccountLocked indicates the account is temporarily blocked.
	ErrAccountLocked = func(retryAfter time.Duration) *AuthError {
		e := NewAuthError(CodeAccountLocked, "account temporarily locked")
		e.RetryAfter = retryAfter
		return e
	}

	// ErrInvalidCredentials covers both unknown identifiers and wrong
	// passwords; the two are deliberately indistinguishable.
	ErrInvalidCredentials = func() *AuthError {
		return NewAuthError(CodeInvalidCredentials, "invalid username or password")
	}

	// ErrAccountDisabled indicates the account exists but may not log in.
	ErrAccountDisabled = func() *AuthError {
		return NewAuthError(CodeAccountDisabled, "account is disabled")
	}

	// ErrInvalidToken indicates a token failed validation, without detail.
	ErrInvalidToken = func() *AuthError {
		return NewAuthError(CodeInvalidToken, "invalid or expired token")
	}

	// ErrInvalidInput indicates a request failed shape validation.
	ErrInvalidInput = func(message string) *AuthError {
		return NewAuthError(CodeInvalidInput, message)
	}

	// ErrDuplicateUser indicates the username or email is already registered.
	ErrDuplicateUser = func() *AuthError {
		return NewAuthError(CodeDuplicateUser, "username or email already registered")
	}

	// ErrServerError indicates an internal failure not caused by the caller.
	ErrServerError = func() *AuthError {
		return NewAuthError(CodeServerError, "internal error")
	}
)
