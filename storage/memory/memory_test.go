package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Zhq8745/voice-account-auth/storage"
)

func newStoreWithUser(t *testing.T) (*Store, *storage.UserRecord) {
	t.Helper()
	s := New()
	user := &storage.UserRecord{
		Username:      "Alice",
		Email:         "Alice@Example.com",
		Active:        true,
		EmailVerified: true,
	}
	if err := s.CreateUser(context.Background(), user, "correct horse battery"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	return s, user
}

func TestStore_FindByIdentifier(t *testing.T) {
	s, user := newStoreWithUser(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		identifier string
		wantErr    error
	}{
		{name: "exact username", identifier: "Alice"},
		{name: "lowercase username", identifier: "alice"},
		{name: "uppercase email", identifier: "ALICE@EXAMPLE.COM"},
		{name: "email with surrounding space", identifier: "  alice@example.com "},
		{name: "unknown", identifier: "bob", wantErr: storage.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.FindByIdentifier(ctx, tt.identifier)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("FindByIdentifier() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && got.ID != user.ID {
				t.Errorf("FindByIdentifier() ID = %q, want %q", got.ID, user.ID)
			}
		})
	}
}

func TestStore_FindByIdentifierReturnsCopy(t *testing.T) {
	s, user := newStoreWithUser(t)
	ctx := context.Background()

	got, err := s.FindByIdentifier(ctx, "alice")
	if err != nil {
		t.Fatalf("FindByIdentifier() error = %v", err)
	}
	got.Active = false

	again, err := s.FindByIdentifier(ctx, "alice")
	if err != nil {
		t.Fatalf("FindByIdentifier() error = %v", err)
	}
	if !again.Active {
		t.Errorf("mutating a returned record changed the stored user %q", user.ID)
	}
}

func TestStore_VerifyPassword(t *testing.T) {
	s, user := newStoreWithUser(t)
	ctx := context.Background()

	ok, err := s.VerifyPassword(ctx, user.ID, "correct horse battery")
	if err != nil || !ok {
		t.Errorf("VerifyPassword(correct) = %v, %v, want true, nil", ok, err)
	}

	ok, err = s.VerifyPassword(ctx, user.ID, "wrong password")
	if err != nil || ok {
		t.Errorf("VerifyPassword(wrong) = %v, %v, want false, nil", ok, err)
	}

	if _, err := s.VerifyPassword(ctx, "no-such-user", "x"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("VerifyPassword(unknown user) error = %v, want ErrNotFound", err)
	}
}

func TestStore_CreateUserDuplicates(t *testing.T) {
	s, _ := newStoreWithUser(t)
	ctx := context.Background()

	tests := []struct {
		name     string
		username string
		email    string
	}{
		{name: "same username different case", username: "ALICE", email: "other@example.com"},
		{name: "same email different case", username: "someone", email: "ALICE@example.com"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.CreateUser(ctx, &storage.UserRecord{Username: tt.username, Email: tt.email}, "password123")
			if !errors.Is(err, storage.ErrDuplicate) {
				t.Errorf("CreateUser() error = %v, want ErrDuplicate", err)
			}
		})
	}

	if s.Len() != 1 {
		t.Errorf("Len() = %d after rejected duplicates, want 1", s.Len())
	}
}

func TestStore_CreateUserAssignsID(t *testing.T) {
	s := New()
	user := &storage.UserRecord{Username: "bob", Email: "bob@example.com"}
	if err := s.CreateUser(context.Background(), user, "password123"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if user.ID == "" {
		t.Error("CreateUser() did not assign an ID")
	}
	if user.PasswordHash != "" {
		t.Error("CreateUser() wrote the hash back onto the caller's record")
	}
}

func TestStore_MarkLastLogin(t *testing.T) {
	s, user := newStoreWithUser(t)
	ctx := context.Background()

	at := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)
	if err := s.MarkLastLogin(ctx, user.ID, at); err != nil {
		t.Fatalf("MarkLastLogin() error = %v", err)
	}
	got, err := s.FindByIdentifier(ctx, "alice")
	if err != nil {
		t.Fatalf("FindByIdentifier() error = %v", err)
	}
	if !got.LastLoginAt.Equal(at) {
		t.Errorf("LastLoginAt = %v, want %v", got.LastLoginAt, at)
	}

	if err := s.MarkLastLogin(ctx, "no-such-user", at); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("MarkLastLogin(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestStore_TakenChecks(t *testing.T) {
	s, _ := newStoreWithUser(t)
	ctx := context.Background()

	taken, err := s.UsernameTaken(ctx, "aLiCe")
	if err != nil || !taken {
		t.Errorf("UsernameTaken(aLiCe) = %v, %v, want true, nil", taken, err)
	}
	taken, err = s.EmailTaken(ctx, "alice@example.com")
	if err != nil || !taken {
		t.Errorf("EmailTaken() = %v, %v, want true, nil", taken, err)
	}
	taken, err = s.UsernameTaken(ctx, "bob")
	if err != nil || taken {
		t.Errorf("UsernameTaken(bob) = %v, %v, want false, nil", taken, err)
	}
}

func TestStore_MarkEmailVerified(t *testing.T) {
	s := New()
	ctx := context.Background()
	user := &storage.UserRecord{Username: "carol", Email: "carol@example.com"}
	if err := s.CreateUser(ctx, user, "password123"); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	if err := s.MarkEmailVerified(ctx, user.ID); err != nil {
		t.Fatalf("MarkEmailVerified() error = %v", err)
	}
	got, err := s.FindByIdentifier(ctx, "carol")
	if err != nil {
		t.Fatalf("FindByIdentifier() error = %v", err)
	}
	if !got.EmailVerified || !got.Active {
		t.Errorf("record after verification = {EmailVerified: %v, Active: %v}, want both true", got.EmailVerified, got.Active)
	}

	if err := s.MarkEmailVerified(ctx, "no-such-user"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("MarkEmailVerified(unknown) error = %v, want ErrNotFound", err)
	}
}
