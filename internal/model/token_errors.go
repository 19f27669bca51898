package model

import "errors"

var (
	// ErrInvalidToken covers absent, unowned, expired, revoked and malformed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrPersistenceConflict means the user record changed since it was loaded.
	// Callers should retry the whole operation.
	ErrPersistenceConflict = errors.New("persistence conflict")
	// ErrChainCorrupted signals a broken replaced-by chain.
	ErrChainCorrupted = errors.New("refresh token chain corrupted")
)
