package model

import (
	"context"
	"errors"
	"time"
)

// PendingSessionDuration is a TTL for pending SCRAM sessions.
const PendingSessionDuration = time.Minute * 10

// ErrSessionConsumed is returned when a pending session was already used.
var ErrSessionConsumed = errors.New("pending session already consumed")

// SignupStore persists pending registration sessions.
type SignupStore interface {
	Create(ctx context.Context, pendingSignup PendingSignup) error
	GetBySessionID(ctx context.Context, sessionID string) (PendingSignup, error)
	Consume(ctx context.Context, sessionID string) error
}

// LoginStore persists pending login sessions.
type LoginStore interface {
	Create(ctx context.Context, pendingLogin PendingLogin) error
	GetBySessionID(ctx context.Context, sessionID string) (PendingLogin, error)
	Consume(ctx context.Context, sessionID string) error
}

// PendingSignup describes a pending registration session.
type PendingSignup struct {
	SessionID string    `json:"session_id"`
	Login     string    `json:"login"`
	SaltRoot  []byte    `json:"salt_root"`
	KDF       []byte    `json:"kdf"`
	ExpiresAt time.Time `json:"expires_at"`
	Consumed  bool      `json:"consumed"`
}

// PendingLogin describes a pending login session.
type PendingLogin struct {
	SessionID   string    `json:"session_id"`
	Login       string    `json:"login"`
	ClientNonce []byte    `json:"client_nonce"`
	ServerNonce []byte    `json:"server_nonce"`
	ExpiresAt   time.Time `json:"expires_at"`
	Consumed    bool      `json:"consumed"`
}
