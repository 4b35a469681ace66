// Package token implements issuance, validation, refresh, and revocation of
// the compact signed session tokens used by the authentication core.
//
// The wire format is the three-segment header.payload.signature form:
// base64url (no padding) JSON segments joined with '.', signed with
// HMAC-SHA256 over the first two segments. This format is the only
// bit-exact external contract of the core.
package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind distinguishes access tokens from refresh tokens.
type Kind string

const (
	// KindAccess is a short-lived token presented on protected requests.
	KindAccess Kind = "access"

	// KindRefresh is a long-lived token exchanged for new access tokens.
	KindRefresh Kind = "refresh"
)

// Valid reports whether k is a known token kind.
func (k Kind) Valid() bool {
	return k == KindAccess || k == KindRefresh
}

// Claims is the payload carried inside a signed token.
// Timestamps are Unix seconds.
type Claims struct {
	Subject   string `json:"sub"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
	TokenID   string `json:"jti"`
	Type      Kind   `json:"typ"`
	DeviceID  string `json:"did,omitempty"`
	SessionID string `json:"sid,omitempty"`
}

// Token validation error kinds. Codec and Service return these (possibly
// wrapped); callers match with errors.Is.
var (
	// ErrInvalidFormat indicates the token is not three dot-separated segments.
	ErrInvalidFormat = errors.New("token: invalid format")

	// ErrInvalidSignature indicates the HMAC does not match the signed segments.
	ErrInvalidSignature = errors.New("token: invalid signature")

	// ErrInvalidPayload indicates the payload segment is not valid base64url JSON.
	ErrInvalidPayload = errors.New("token: invalid payload")

	// ErrMissingClaims indicates a structurally valid payload lacks required claims.
	ErrMissingClaims = errors.New("token: missing required claims")

	// ErrExpired indicates the token's expiry has passed.
	ErrExpired = errors.New("token: expired")

	// ErrNotYetValid indicates the token's issued-at lies in the future beyond skew tolerance.
	ErrNotYetValid = errors.New("token: not yet valid")

	// ErrInvalidKind indicates the token is valid but of the wrong kind for the operation.
	ErrInvalidKind = errors.New("token: invalid kind")

	// ErrRevoked indicates the token was explicitly revoked before its natural expiry.
	ErrRevoked = errors.New("token: revoked")

	// ErrSigningFailed indicates claims could not be serialized and signed.
	ErrSigningFailed = errors.New("token: signing failed")
)

// encodedHeader is the fixed JOSE header for every token this core signs.
// It is part of the signed bytes, so it is kept as a canonical literal.
const encodedHeader = `{"alg":"HS256","typ":"JWT"}`

var b64 = base64.RawURLEncoding

// Codec signs and verifies compact tokens with a process-wide HMAC secret.
// A Codec is immutable after construction and safe for concurrent use.
type Codec struct {
	secret []byte
}

// NewCodec creates a codec from the signing secret, typically supplied by
// the SecretVault at process start.
func NewCodec(secret []byte) (*Codec, error) {
	if len(secret) == 0 {
		return nil, errors.New("token: signing secret must not be empty")
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Codec{secret: key}, nil
}

// Sign serializes claims into a signed three-segment token.
func (c *Codec) Sign(claims Claims) (string, error) {
	payload, err := json.Marshal(claims)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningFailed, err)
	}

	header := b64.EncodeToString([]byte(encodedHeader))
	body := b64.EncodeToString(payload)
	signingInput := header + "." + body

	return signingInput + "." + b64.EncodeToString(c.sign(signingInput)), nil
}

// Verify checks a token's structure and signature, then decodes its claims.
// The signature is verified before the payload is decoded, so any tampered
// segment surfaces as ErrInvalidSignature rather than a decode error.
func (c *Codec) Verify(raw string) (Claims, error) {
	segments := strings.Split(raw, ".")
	if len(segments) != 3 {
		return Claims{}, fmt.Errorf("%w: expected 3 segments, got %d", ErrInvalidFormat, len(segments))
	}

	signature, err := b64.DecodeString(segments[2])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: signature segment is not valid base64url", ErrInvalidSignature)
	}
	expected := c.sign(segments[0] + "." + segments[1])
	if !hmac.Equal(signature, expected) {
		return Claims{}, ErrInvalidSignature
	}

	payload, err := b64.DecodeString(segments[1])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: payload segment is not valid base64url", ErrInvalidPayload)
	}

	var claims Claims
	if err := json.Unmarshal(payload, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	if err := claims.checkRequired(); err != nil {
		return Claims{}, err
	}
	return claims, nil
}

func (c *Codec) sign(input string) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(input))
	return mac.Sum(nil)
}

func (cl Claims) checkRequired() error {
	switch {
	case cl.Subject == "":
		return fmt.Errorf("%w: sub", ErrMissingClaims)
	case cl.TokenID == "":
		return fmt.Errorf("%w: jti", ErrMissingClaims)
	case cl.ExpiresAt == 0:
		return fmt.Errorf("%w: exp", ErrMissingClaims)
	case !cl.Type.Valid():
		return fmt.Errorf("%w: typ", ErrMissingClaims)
	}
	return nil
}

// peekExpiry extracts the exp claim without verifying the signature.
// Used only by the revocation sweep, where a forged exp at worst keeps a
// revoked entry in memory a little longer.
func peekExpiry(raw string) (int64, bool) {
	segments := strings.Split(raw, ".")
	if len(segments) != 3 {
		return 0, false
	}
	payload, err := b64.DecodeString(segments[1])
	if err != nil {
		return 0, false
	}
	var envelope struct {
		ExpiresAt int64 `json:"exp"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil || envelope.ExpiresAt == 0 {
		return 0, false
	}
	return envelope.ExpiresAt, true
}
