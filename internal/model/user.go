package model

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// UserStore defines persistence operations for users and their refresh tokens.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	Create(ctx context.Context, user User) (User, error)
	// FindByRefreshToken returns the user owning a token with exactly this value,
	// or ErrNotFound.
	FindByRefreshToken(ctx context.Context, value string) (User, error)
	// Save replaces the stored user and token collection if the stored version
	// still equals user.Version, otherwise it fails with ErrPersistenceConflict.
	Save(ctx context.Context, user User) error
}

// User represents a stored user with authentication material and its refresh
// token history in issuance order.
type User struct {
	ID            uuid.UUID
	Email         string
	StoredKey     []byte
	ServerKey     []byte
	SaltRoot      []byte
	KDF           []byte
	CreatedAt     time.Time
	UpdatedAt     time.Time
	DeletedAt     *time.Time
	Version       int64
	RefreshTokens []RefreshToken
}

// Clone returns a deep copy so a loaded snapshot can be mutated safely.
func (u User) Clone() User {
	out := u
	out.StoredKey = append([]byte(nil), u.StoredKey...)
	out.ServerKey = append([]byte(nil), u.ServerKey...)
	out.SaltRoot = append([]byte(nil), u.SaltRoot...)
	out.KDF = append([]byte(nil), u.KDF...)
	if u.DeletedAt != nil {
		v := *u.DeletedAt
		out.DeletedAt = &v
	}
	out.RefreshTokens = make([]RefreshToken, len(u.RefreshTokens))
	for i, t := range u.RefreshTokens {
		out.RefreshTokens[i] = t.clone()
	}
	return out
}

// FindRefreshToken returns a pointer into the user's collection.
func (u *User) FindRefreshToken(value string) (*RefreshToken, bool) {
	for i := range u.RefreshTokens {
		if u.RefreshTokens[i].Value == value {
			return &u.RefreshTokens[i], true
		}
	}
	return nil, false
}

// OwnsRefreshToken reports whether value is in the user's collection.
func (u *User) OwnsRefreshToken(value string) bool {
	_, ok := u.FindRefreshToken(value)
	return ok
}

// PruneRefreshTokens drops inactive tokens whose retention window has passed
// and returns how many were removed. Active tokens are always kept.
func (u *User) PruneRefreshTokens(now time.Time, retention time.Duration) int {
	kept := u.RefreshTokens[:0]
	removed := 0
	for _, t := range u.RefreshTokens {
		if !t.IsActive(now) && !t.CreatedAt.Add(retention).After(now) {
			removed++
			continue
		}
		kept = append(kept, t)
	}
	u.RefreshTokens = kept
	return removed
}

// CheckChain verifies that replaced-by pointers form simple forward chains:
// only revoked tokens point forward, every successor exists, no successor is
// shared and nothing cycles. A successor is always newer than its predecessor,
// so pruning never removes a successor while keeping its ancestor.
func (u *User) CheckChain() error {
	index := make(map[string]int, len(u.RefreshTokens))
	for i, t := range u.RefreshTokens {
		if _, dup := index[t.Value]; dup {
			return fmt.Errorf("%w: duplicate token %s", ErrChainCorrupted, t.Fingerprint())
		}
		index[t.Value] = i
	}

	targets := make(map[string]struct{}, len(u.RefreshTokens))
	for _, t := range u.RefreshTokens {
		if t.ReplacedBy == nil {
			continue
		}
		if !t.IsRevoked() {
			return fmt.Errorf("%w: unrevoked token %s has a successor", ErrChainCorrupted, t.Fingerprint())
		}
		if *t.ReplacedBy == t.Value {
			return fmt.Errorf("%w: token %s replaces itself", ErrChainCorrupted, t.Fingerprint())
		}
		if _, ok := index[*t.ReplacedBy]; !ok {
			return fmt.Errorf("%w: token %s points to a missing successor", ErrChainCorrupted, t.Fingerprint())
		}
		if _, seen := targets[*t.ReplacedBy]; seen {
			return fmt.Errorf("%w: token %s has two predecessors", ErrChainCorrupted, Fingerprint(*t.ReplacedBy))
		}
		targets[*t.ReplacedBy] = struct{}{}
	}

	for _, t := range u.RefreshTokens {
		steps := 0
		cur := t
		for cur.ReplacedBy != nil {
			steps++
			if steps > len(u.RefreshTokens) {
				return fmt.Errorf("%w: cycle through %s", ErrChainCorrupted, t.Fingerprint())
			}
			cur = u.RefreshTokens[index[*cur.ReplacedBy]]
		}
	}

	return nil
}
