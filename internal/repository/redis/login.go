package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/dtroode/refreshkeeper/internal/model"
)

var _ model.LoginStore = (*LoginRepository)(nil)

type LoginRepository struct {
	store sessionStore
}

func NewLoginRepository(client *goredis.Client) *LoginRepository {
	return &LoginRepository{
		store: sessionStore{client: client, prefix: "login"},
	}
}

func (r *LoginRepository) Create(ctx context.Context, pendingLogin model.PendingLogin) error {
	payload, err := json.Marshal(pendingLogin)
	if err != nil {
		return fmt.Errorf("failed to marshal pending login: %w", err)
	}

	if err := r.store.create(ctx, pendingLogin.SessionID, payload, pendingLogin.ExpiresAt); err != nil {
		return fmt.Errorf("failed to create pending login: %w", err)
	}

	return nil
}

func (r *LoginRepository) GetBySessionID(ctx context.Context, sessionID string) (model.PendingLogin, error) {
	payload, consumed, err := r.store.load(ctx, sessionID)
	if err != nil {
		return model.PendingLogin{}, fmt.Errorf("failed to get pending login by session id: %w", err)
	}

	var pendingLogin model.PendingLogin
	if err := json.Unmarshal(payload, &pendingLogin); err != nil {
		return model.PendingLogin{}, fmt.Errorf("failed to unmarshal pending login: %w", err)
	}
	pendingLogin.Consumed = consumed

	return pendingLogin, nil
}

func (r *LoginRepository) Consume(ctx context.Context, sessionID string) error {
	if err := r.store.consume(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to consume login session: %w", err)
	}
	return nil
}
