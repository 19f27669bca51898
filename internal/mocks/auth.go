package mocks

import (
	"context"

	authmodel "github.com/dtroode/gophkeeper-auth/model"
	"github.com/stretchr/testify/mock"
)

// AuthService mocks the SCRAM operations exposed by the gRPC handler.
type AuthService struct {
	mock.Mock
}

func NewAuthService(t mock.TestingT) *AuthService {
	m := &AuthService{}
	m.Mock.Test(t)
	if c, ok := t.(interface{ Cleanup(func()) }); ok {
		c.Cleanup(func() { m.AssertExpectations(t) })
	}
	return m
}

func (m *AuthService) GetRegParams(ctx context.Context, login string) (authmodel.RegParams, error) {
	args := m.Called(ctx, login)
	return args.Get(0).(authmodel.RegParams), args.Error(1)
}

func (m *AuthService) CompleteReg(ctx context.Context, params authmodel.RegComplete) error {
	args := m.Called(ctx, params)
	return args.Error(0)
}

func (m *AuthService) GetLoginParams(ctx context.Context, params authmodel.LoginStart) (authmodel.LoginParams, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(authmodel.LoginParams), args.Error(1)
}

func (m *AuthService) CompleteLogin(ctx context.Context, params authmodel.LoginComplete, ip string) (authmodel.SessionResult, error) {
	args := m.Called(ctx, params, ip)
	return args.Get(0).(authmodel.SessionResult), args.Error(1)
}
