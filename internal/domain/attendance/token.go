package attendance

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/huddle/internal/domain/model"
	"github.com/okian/huddle/pkg/metrics"
)

const (
	defaultTokenValidity = time.Hour
	checksumLength       = 8
	checksumModulus      = 2821109907456 // 36^8
)

// Token is the payload of a QR check-in code.
type Token struct {
	EventID   string `json:"event_id"`
	ExpiresAt int64  `json:"expires_at"` // unix milliseconds
	Checksum  string `json:"checksum"`
}

// String encodes the token as eventID:expiresAt:checksum.
func (t Token) String() string {
	return fmt.Sprintf("%s:%d:%s", t.EventID, t.ExpiresAt, t.Checksum)
}

// ParseToken decodes a token produced by Token.String. The event id may
// itself contain colons.
func ParseToken(s string) (Token, error) {
	s = strings.TrimSpace(s)
	last := strings.LastIndex(s, ":")
	if last <= 0 {
		return Token{}, fmt.Errorf("%w: %q", ErrInvalidToken, s)
	}
	mid := strings.LastIndex(s[:last], ":")
	if mid <= 0 {
		return Token{}, fmt.Errorf("%w: %q", ErrInvalidToken, s)
	}
	expires, err := strconv.ParseInt(s[mid+1:last], 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("%w: expiry: %w", ErrInvalidToken, err)
	}
	checksum := s[last+1:]
	if len(checksum) != checksumLength {
		return Token{}, fmt.Errorf("%w: checksum length", ErrInvalidToken)
	}
	return Token{EventID: s[:mid], ExpiresAt: expires, Checksum: checksum}, nil
}

// TokenStatus is the detailed outcome of a token check.
type TokenStatus struct {
	Valid   bool   `json:"valid"`
	Expired bool   `json:"expired,omitempty"`
	Reason  string `json:"reason,omitempty"`
}

// TokenIssuer issues and verifies QR check-in tokens. The checksum is an
// HMAC-SHA256 over "eventID-expiresAt" reduced to eight base-36 characters.
// It proves the code was issued for the event; it is not an authorization.
type TokenIssuer struct {
	secret   []byte
	validity time.Duration
	now      func() time.Time
}

// NewTokenIssuer creates an issuer keyed by secret.
func NewTokenIssuer(secret string, opts ...TokenOption) (*TokenIssuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	t := &TokenIssuer{
		secret:   []byte(secret),
		validity: defaultTokenValidity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Issue returns the token for an event, expiring validity after its start.
func (t *TokenIssuer) Issue(e model.Event) Token {
	expires := e.StartsAt.Add(t.validity).UnixMilli()
	return Token{EventID: e.ID, ExpiresAt: expires, Checksum: t.Checksum(e.ID, expires)}
}

// Checksum computes the eight character checksum for an event and expiry.
func (t *TokenIssuer) Checksum(eventID string, expiresAt int64) string {
	mac := hmac.New(sha256.New, t.secret)
	_, _ = fmt.Fprintf(mac, "%s-%d", eventID, expiresAt)
	sum := binary.BigEndian.Uint64(mac.Sum(nil)[:8]) % checksumModulus
	s := strconv.FormatUint(sum, 36)
	return strings.Repeat("0", checksumLength-len(s)) + s
}

// Validate reports whether the checksum matches and the token has not expired.
func (t *TokenIssuer) Validate(eventID string, expiresAt int64, checksum string) bool {
	return t.Verify(eventID, expiresAt, checksum).Valid
}

// Verify is Validate with the failure reason.
func (t *TokenIssuer) Verify(eventID string, expiresAt int64, checksum string) TokenStatus {
	want := t.Checksum(eventID, expiresAt)
	if !hmac.Equal([]byte(want), []byte(strings.ToLower(checksum))) {
		metrics.RecordTokenValidation("invalid")
		return TokenStatus{Reason: "checksum mismatch"}
	}
	if t.now().UnixMilli() > expiresAt {
		metrics.RecordTokenValidation("expired")
		return TokenStatus{Expired: true, Reason: "token expired"}
	}
	metrics.RecordTokenValidation("valid")
	return TokenStatus{Valid: true}
}
