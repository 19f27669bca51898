package model

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Revocation reasons recorded on refresh tokens.
const (
	ReasonRotated          = "Replaced by new token"
	ReasonRevoked          = "Revoked without replacement"
	ReasonReusePrefix      = "Attempted reuse of revoked ancestor token: "
	DefaultRefreshLifetime = 7 * 24 * time.Hour
	DefaultRetentionTTL    = 7 * 24 * time.Hour
	RefreshTokenBytes      = 64
)

// RefreshToken is one link of a user's rotation chain.
type RefreshToken struct {
	Value         string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	CreatedByIP   string
	RevokedAt     *time.Time
	RevokedByIP   *string
	RevokedReason *string
	ReplacedBy    *string
}

// IsExpired reports whether the token validity window has ended at now.
func (t RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// IsRevoked reports whether the token has been revoked.
func (t RefreshToken) IsRevoked() bool {
	return t.RevokedAt != nil
}

// IsActive reports whether the token can still be exchanged at now.
func (t RefreshToken) IsActive(now time.Time) bool {
	return !t.IsExpired(now) && !t.IsRevoked()
}

// Revoke sets the revocation fields. A token that is already revoked keeps
// its original revocation data.
func (t *RefreshToken) Revoke(now time.Time, ip, reason string) {
	if t.IsRevoked() {
		return
	}
	at := now
	t.RevokedAt = &at
	t.RevokedByIP = &ip
	t.RevokedReason = &reason
}

// Fingerprint returns a hex SHA-256 digest of the token value, safe to log or archive.
func (t RefreshToken) Fingerprint() string {
	return Fingerprint(t.Value)
}

// Fingerprint returns a hex SHA-256 digest of a refresh token value.
func Fingerprint(value string) string {
	h := sha256.Sum256([]byte(value))
	return hex.EncodeToString(h[:])
}

func (t RefreshToken) clone() RefreshToken {
	out := t
	if t.RevokedAt != nil {
		v := *t.RevokedAt
		out.RevokedAt = &v
	}
	out.RevokedByIP = cloneString(t.RevokedByIP)
	out.RevokedReason = cloneString(t.RevokedReason)
	out.ReplacedBy = cloneString(t.ReplacedBy)
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// TokenPair is the result of a successful issue or rotation.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}
