// Package mocks holds testify mocks for the interfaces consumed across the
// service and transport layers.
package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dtroode/refreshkeeper/internal/model"
)

// UserStore mocks model.UserStore.
type UserStore struct {
	mock.Mock
}

func NewUserStore(t mock.TestingT) *UserStore {
	m := &UserStore{}
	m.Mock.Test(t)
	if c, ok := t.(interface{ Cleanup(func()) }); ok {
		c.Cleanup(func() { m.AssertExpectations(t) })
	}
	return m
}

func (m *UserStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) Create(ctx context.Context, user model.User) (model.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) FindByRefreshToken(ctx context.Context, value string) (model.User, error) {
	args := m.Called(ctx, value)
	return args.Get(0).(model.User), args.Error(1)
}

func (m *UserStore) Save(ctx context.Context, user model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// SignupStore mocks model.SignupStore.
type SignupStore struct {
	mock.Mock
}

func (m *SignupStore) Create(ctx context.Context, pendingSignup model.PendingSignup) error {
	args := m.Called(ctx, pendingSignup)
	return args.Error(0)
}

func (m *SignupStore) GetBySessionID(ctx context.Context, sessionID string) (model.PendingSignup, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(model.PendingSignup), args.Error(1)
}

func (m *SignupStore) Consume(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}

// LoginStore mocks model.LoginStore.
type LoginStore struct {
	mock.Mock
}

func (m *LoginStore) Create(ctx context.Context, pendingLogin model.PendingLogin) error {
	args := m.Called(ctx, pendingLogin)
	return args.Error(0)
}

func (m *LoginStore) GetBySessionID(ctx context.Context, sessionID string) (model.PendingLogin, error) {
	args := m.Called(ctx, sessionID)
	return args.Get(0).(model.PendingLogin), args.Error(1)
}

func (m *LoginStore) Consume(ctx context.Context, sessionID string) error {
	args := m.Called(ctx, sessionID)
	return args.Error(0)
}
