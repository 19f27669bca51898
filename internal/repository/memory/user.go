// Package memory provides an in-process UserStore with the same
// version-checked Save semantics as the postgres store.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dtroode/refreshkeeper/internal/model"
)

var _ model.UserStore = (*UserRepository)(nil)

type UserRepository struct {
	mu      sync.RWMutex
	users   map[uuid.UUID]model.User
	byEmail map[string]uuid.UUID
	byToken map[string]uuid.UUID
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		users:   make(map[uuid.UUID]model.User),
		byEmail: make(map[string]uuid.UUID),
		byToken: make(map[string]uuid.UUID),
	}
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return r.users[id].Clone(), nil
}

func (r *UserRepository) GetByID(_ context.Context, id uuid.UUID) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	user, ok := r.users[id]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return user.Clone(), nil
}

func (r *UserRepository) Create(_ context.Context, user model.User) (model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.ID]; ok {
		return model.User{}, fmt.Errorf("%w: user %s already exists", model.ErrConflict, user.ID)
	}
	if _, ok := r.byEmail[user.Email]; ok {
		return model.User{}, fmt.Errorf("%w: email %s is taken", model.ErrConflict, user.Email)
	}
	for _, t := range user.RefreshTokens {
		if _, ok := r.byToken[t.Value]; ok {
			return model.User{}, fmt.Errorf("%w: refresh token %s already exists", model.ErrConflict, t.Fingerprint())
		}
	}

	stored := user.Clone()
	stored.Version = 1
	r.users[stored.ID] = stored
	r.byEmail[stored.Email] = stored.ID
	for _, t := range stored.RefreshTokens {
		r.byToken[t.Value] = stored.ID
	}

	return stored.Clone(), nil
}

func (r *UserRepository) FindByRefreshToken(_ context.Context, value string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byToken[value]
	if !ok {
		return model.User{}, model.ErrNotFound
	}
	return r.users[id].Clone(), nil
}

// Save replaces the stored user when its version still matches the one the
// caller loaded. The stored version is incremented on success.
func (r *UserRepository) Save(_ context.Context, user model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.users[user.ID]
	if !ok {
		return model.ErrNotFound
	}
	if stored.Version != user.Version {
		return fmt.Errorf("%w: user %s is at version %d, got %d",
			model.ErrPersistenceConflict, user.ID, stored.Version, user.Version)
	}
	if owner, ok := r.byEmail[user.Email]; ok && owner != user.ID {
		return fmt.Errorf("%w: email %s is taken", model.ErrConflict, user.Email)
	}
	for _, t := range user.RefreshTokens {
		if owner, ok := r.byToken[t.Value]; ok && owner != user.ID {
			return fmt.Errorf("%w: refresh token %s belongs to another user", model.ErrConflict, t.Fingerprint())
		}
	}

	for _, t := range stored.RefreshTokens {
		delete(r.byToken, t.Value)
	}
	if stored.Email != user.Email {
		delete(r.byEmail, stored.Email)
	}

	next := user.Clone()
	next.Version = stored.Version + 1
	r.users[next.ID] = next
	r.byEmail[next.Email] = next.ID
	for _, t := range next.RefreshTokens {
		r.byToken[t.Value] = next.ID
	}

	return nil
}
