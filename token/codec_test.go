package token

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec([]byte("unit-test-secret"))
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}
	return c
}

func testClaims() Claims {
	return Claims{
		Subject:   "user-123",
		IssuedAt:  1700000000,
		ExpiresAt: 1700000900,
		TokenID:   "jti-abc",
		Type:      KindAccess,
		DeviceID:  "device-9",
		SessionID: "session-4",
	}
}

func TestNewCodec_EmptySecret(t *testing.T) {
	if _, err := NewCodec(nil); err == nil {
		t.Error("NewCodec(nil) should fail")
	}
}

func TestCodec_RoundTrip(t *testing.T) {
	codec := testCodec(t)
	want := testClaims()

	raw, err := codec.Sign(want)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if parts := strings.Split(raw, "."); len(parts) != 3 {
		t.Fatalf("Sign() produced %d segments, want 3", len(parts))
	}

	got, err := codec.Verify(raw)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != want {
		t.Errorf("Verify() = %+v, want %+v", got, want)
	}
}

func TestCodec_RoundTrip_OptionalClaimsOmitted(t *testing.T) {
	codec := testCodec(t)
	want := testClaims()
	want.DeviceID = ""
	want.SessionID = ""

	raw, err := codec.Sign(want)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	got, err := codec.Verify(raw)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != want {
		t.Errorf("Verify() = %+v, want %+v", got, want)
	}
}

func TestCodec_Verify_InvalidFormat(t *testing.T) {
	codec := testCodec(t)

	tests := []struct {
		name string
		raw  string
	}{
		{"empty string", ""},
		{"one segment", "abc"},
		{"two segments", "abc.def"},
		{"four segments", "a.b.c.d"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Verify(tt.raw)
			if !errors.Is(err, ErrInvalidFormat) {
				t.Errorf("Verify(%q) error = %v, want ErrInvalidFormat", tt.raw, err)
			}
		})
	}
}

// Flipping any byte of the payload or signature must surface as a signature
// mismatch, never as a decode error or a silent success.
func TestCodec_Verify_TamperDetection(t *testing.T) {
	codec := testCodec(t)
	raw, err := codec.Sign(testClaims())
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	parts := strings.Split(raw, ".")

	flip := func(s string, i int) string {
		b := []byte(s)
		if b[i] == 'A' {
			b[i] = 'B'
		} else {
			b[i] = 'A'
		}
		return string(b)
	}

	t.Run("payload bytes", func(t *testing.T) {
		for i := 0; i < len(parts[1]); i++ {
			tampered := parts[0] + "." + flip(parts[1], i) + "." + parts[2]
			if tampered == raw {
				continue
			}
			if _, err := codec.Verify(tampered); !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("Verify() with payload byte %d flipped: error = %v, want ErrInvalidSignature", i, err)
			}
		}
	})

	t.Run("signature bytes", func(t *testing.T) {
		for i := 0; i < len(parts[2]); i++ {
			tampered := parts[0] + "." + parts[1] + "." + flip(parts[2], i)
			if tampered == raw {
				continue
			}
			if _, err := codec.Verify(tampered); !errors.Is(err, ErrInvalidSignature) {
				t.Fatalf("Verify() with signature byte %d flipped: error = %v, want ErrInvalidSignature", i, err)
			}
		}
	})
}

func TestCodec_Verify_WrongSecret(t *testing.T) {
	codec := testCodec(t)
	other, err := NewCodec([]byte("a-different-secret"))
	if err != nil {
		t.Fatalf("NewCodec() error = %v", err)
	}

	raw, err := codec.Sign(testClaims())
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	if _, err := other.Verify(raw); !errors.Is(err, ErrInvalidSignature) {
		t.Errorf("Verify() with wrong secret: error = %v, want ErrInvalidSignature", err)
	}
}

// A correctly signed token whose payload is not valid JSON must fail with
// ErrInvalidPayload: the signature check passes, the decode does not.
func TestCodec_Verify_InvalidPayload(t *testing.T) {
	codec := testCodec(t)

	header := b64.EncodeToString([]byte(encodedHeader))
	payload := b64.EncodeToString([]byte("not json at all"))
	signingInput := header + "." + payload
	raw := signingInput + "." + b64.EncodeToString(codec.sign(signingInput))

	if _, err := codec.Verify(raw); !errors.Is(err, ErrInvalidPayload) {
		t.Errorf("Verify() error = %v, want ErrInvalidPayload", err)
	}
}

func TestCodec_Verify_MissingClaims(t *testing.T) {
	codec := testCodec(t)

	tests := []struct {
		name   string
		mutate func(*Claims)
	}{
		{"no subject", func(c *Claims) { c.Subject = "" }},
		{"no jti", func(c *Claims) { c.TokenID = "" }},
		{"no expiry", func(c *Claims) { c.ExpiresAt = 0 }},
		{"unknown kind", func(c *Claims) { c.Type = "session" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims := testClaims()
			tt.mutate(&claims)

			raw, err := codec.Sign(claims)
			if err != nil {
				t.Fatalf("Sign() error = %v", err)
			}
			if _, err := codec.Verify(raw); !errors.Is(err, ErrMissingClaims) {
				t.Errorf("Verify() error = %v, want ErrMissingClaims", err)
			}
		})
	}
}

// The wire format is padding-free base64url: no '=' anywhere, and the header
// segment decodes to the canonical JOSE header.
func TestCodec_WireFormat(t *testing.T) {
	codec := testCodec(t)
	raw, err := codec.Sign(testClaims())
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	if strings.Contains(raw, "=") {
		t.Errorf("token contains base64 padding: %q", raw)
	}

	headerJSON, err := base64.RawURLEncoding.DecodeString(strings.Split(raw, ".")[0])
	if err != nil {
		t.Fatalf("header segment is not base64url: %v", err)
	}
	if string(headerJSON) != `{"alg":"HS256","typ":"JWT"}` {
		t.Errorf("header = %s, want canonical HS256 JOSE header", headerJSON)
	}
}

func TestPeekExpiry(t *testing.T) {
	codec := testCodec(t)
	claims := testClaims()
	raw, err := codec.Sign(claims)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	exp, ok := peekExpiry(raw)
	if !ok || exp != claims.ExpiresAt {
		t.Errorf("peekExpiry() = (%d, %v), want (%d, true)", exp, ok, claims.ExpiresAt)
	}

	if _, ok := peekExpiry("garbage"); ok {
		t.Error("peekExpiry(garbage) should report false")
	}
}
