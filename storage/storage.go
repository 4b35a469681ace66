// Package storage defines the credential-store boundary consumed by the
// authentication core. The core never touches user persistence directly; any
// backend (SQL, document store, in-memory) can satisfy these interfaces.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no user matches the given identifier.
var ErrNotFound = errors.New("storage: user not found")

// ErrDuplicate is returned when a username or email is already taken.
var ErrDuplicate = errors.New("storage: duplicate user")

// UserRecord is the account view the authentication core operates on.
type UserRecord struct {
	ID            string
	Username      string
	Email         string
	PasswordHash  string
	Active        bool
	EmailVerified bool
	CreatedAt     time.Time
	LastLoginAt   time.Time
}

// CredentialStore resolves identifiers to accounts and verifies passwords.
// All methods accept context.Context for tracing and cancellation.
type CredentialStore interface {
	// FindByIdentifier resolves a username or email (case-insensitive) to a
	// user record. Returns ErrNotFound when no account matches.
	FindByIdentifier(ctx context.Context, identifier string) (*UserRecord, error)

	// VerifyPassword checks a plaintext password against the stored hash.
	VerifyPassword(ctx context.Context, userID, plaintext string) (bool, error)

	// MarkLastLogin records a successful login time for the account.
	MarkLastLogin(ctx context.Context, userID string, at time.Time) error
}

// UserRegistry supports account creation and verification state changes.
// Separate from CredentialStore because the login path never mutates accounts.
type UserRegistry interface {
	// CreateUser stores a new account. Returns ErrDuplicate when the username
	// or email is already taken (case-insensitive).
	CreateUser(ctx context.Context, user *UserRecord, password string) error

	// UsernameTaken reports whether a username is already registered.
	UsernameTaken(ctx context.Context, username string) (bool, error)

	// EmailTaken reports whether an email is already registered.
	EmailTaken(ctx context.Context, email string) (bool, error)

	// MarkEmailVerified flips the account to verified and active-for-login.
	MarkEmailVerified(ctx context.Context, userID string) error
}
