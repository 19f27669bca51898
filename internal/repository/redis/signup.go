package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dtroode/refreshkeeper/internal/model"
)

var _ model.SignupStore = (*SignupRepository)(nil)

type SignupRepository struct {
	store sessionStore
}

func NewSignupRepository(client *goredis.Client) *SignupRepository {
	return &SignupRepository{
		store: sessionStore{client: client, prefix: "signup"},
	}
}

func (r *SignupRepository) Create(ctx context.Context, pendingSignup model.PendingSignup) error {
	payload, err := json.Marshal(pendingSignup)
	if err != nil {
		return fmt.Errorf("failed to marshal pending signup: %w", err)
	}

	if err := r.store.create(ctx, pendingSignup.SessionID, payload, pendingSignup.ExpiresAt); err != nil {
		return fmt.Errorf("failed to create pending signup: %w", err)
	}

	return nil
}

func (r *SignupRepository) GetBySessionID(ctx context.Context, sessionID string) (model.PendingSignup, error) {
	payload, consumed, err := r.store.load(ctx, sessionID)
	if err != nil {
		return model.PendingSignup{}, fmt.Errorf("failed to get pending signup by session id: %w", err)
	}

	var pendingSignup model.PendingSignup
	if err := json.Unmarshal(payload, &pendingSignup); err != nil {
		return model.PendingSignup{}, fmt.Errorf("failed to unmarshal pending signup: %w", err)
	}
	pendingSignup.Consumed = consumed

	return pendingSignup, nil
}

func (r *SignupRepository) Consume(ctx context.Context, sessionID string) error {
	if err := r.store.consume(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to consume signup session: %w", err)
	}
	return nil
}
