// Package memory provides an in-memory implementation of the storage
// interfaces. It is suitable for development, testing, and single-instance
// deployments.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/Zhq8745/voice-account-auth/storage"
)

// Store is an in-memory implementation of CredentialStore and UserRegistry.
type Store struct {
	mu sync.RWMutex

	users      map[string]*storage.UserRecord // user ID -> record
	byUsername map[string]string              // lowercase username -> user ID
	byEmail    map[string]string              // lowercase email -> user ID
}

// Compile-time interface checks
var (
	_ storage.CredentialStore = (*Store)(nil)
	_ storage.UserRegistry    = (*Store)(nil)
)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		users:      make(map[string]*storage.UserRecord),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
	}
}

// FindByIdentifier resolves a username or email, case-insensitively.
func (s *Store) FindByIdentifier(ctx context.Context, identifier string) (*storage.UserRecord, error) {
	key := strings.ToLower(strings.TrimSpace(identifier))

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[key]
	if !ok {
		id, ok = s.byEmail[key]
	}
	if !ok {
		return nil, storage.ErrNotFound
	}

	record := *s.users[id]
	return &record, nil
}

// VerifyPassword checks the plaintext against the stored bcrypt hash.
func (s *Store) VerifyPassword(ctx context.Context, userID, plaintext string) (bool, error) {
	s.mu.RLock()
	user, ok := s.users[userID]
	s.mu.RUnlock()

	if !ok {
		return false, storage.ErrNotFound
	}
	err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(plaintext))
	return err == nil, nil
}

// MarkLastLogin records a successful login time.
func (s *Store) MarkLastLogin(ctx context.Context, userID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	user.LastLoginAt = at
	return nil
}

// CreateUser hashes the password and stores the account. The username and
// email indexes are case-insensitive.
func (s *Store) CreateUser(ctx context.Context, user *storage.UserRecord, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	usernameKey := strings.ToLower(strings.TrimSpace(user.Username))
	emailKey := strings.ToLower(strings.TrimSpace(user.Email))

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.byUsername[usernameKey]; taken {
		return storage.ErrDuplicate
	}
	if _, taken := s.byEmail[emailKey]; taken {
		return storage.ErrDuplicate
	}

	stored := *user
	if stored.ID == "" {
		stored.ID = uuid.NewString()
	}
	stored.PasswordHash = string(hash)
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}

	s.users[stored.ID] = &stored
	s.byUsername[usernameKey] = stored.ID
	s.byEmail[emailKey] = stored.ID

	user.ID = stored.ID
	return nil
}

// UsernameTaken reports whether the username is registered.
func (s *Store) UsernameTaken(ctx context.Context, username string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, taken := s.byUsername[strings.ToLower(strings.TrimSpace(username))]
	return taken, nil
}

// EmailTaken reports whether the email is registered.
func (s *Store) EmailTaken(ctx context.Context, email string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, taken := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	return taken, nil
}

// MarkEmailVerified flips the account to verified and active.
func (s *Store) MarkEmailVerified(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return storage.ErrNotFound
	}
	user.EmailVerified = true
	user.Active = true
	return nil
}

// Len returns the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}
