package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/dtroode/refreshkeeper/internal/model"
)

// TokenService mocks the token operations used by the gRPC handler and the
// authentication middleware.
type TokenService struct {
	mock.Mock
}

func NewTokenService(t mock.TestingT) *TokenService {
	m := &TokenService{}
	m.Mock.Test(t)
	if c, ok := t.(interface{ Cleanup(func()) }); ok {
		c.Cleanup(func() { m.AssertExpectations(t) })
	}
	return m
}

func (m *TokenService) Refresh(ctx context.Context, refreshToken, ip string) (model.TokenPair, error) {
	args := m.Called(ctx, refreshToken, ip)
	return args.Get(0).(model.TokenPair), args.Error(1)
}

func (m *TokenService) RevokeForUser(ctx context.Context, userID uuid.UUID, refreshToken, ip string) error {
	args := m.Called(ctx, userID, refreshToken, ip)
	return args.Error(0)
}

func (m *TokenService) GetUserID(ctx context.Context, token string) (uuid.UUID, error) {
	args := m.Called(ctx, token)
	return args.Get(0).(uuid.UUID), args.Error(1)
}

// SessionIssuer mocks service.SessionIssuer.
type SessionIssuer struct {
	mock.Mock
}

func NewSessionIssuer(t mock.TestingT) *SessionIssuer {
	m := &SessionIssuer{}
	m.Mock.Test(t)
	if c, ok := t.(interface{ Cleanup(func()) }); ok {
		c.Cleanup(func() { m.AssertExpectations(t) })
	}
	return m
}

func (m *SessionIssuer) Issue(ctx context.Context, userID uuid.UUID, ip string) (model.TokenPair, error) {
	args := m.Called(ctx, userID, ip)
	return args.Get(0).(model.TokenPair), args.Error(1)
}
