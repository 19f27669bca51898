package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dtroode/refreshkeeper/internal/mocks"
	"github.com/dtroode/refreshkeeper/internal/model"
	"github.com/dtroode/refreshkeeper/internal/testutil"
)

func TestAuthenticate_AuthFunc(t *testing.T) {
	t.Parallel()

	validID := uuid.New()

	tests := []struct {
		name           string
		mdAuthHeader   string
		wantToken      string
		tokenSvcUserID uuid.UUID
		tokenSvcErr    error
		wantErr        bool
	}{
		{
			name:    "missing authorization header",
			wantErr: true,
		},
		{
			name:         "invalid token",
			mdAuthHeader: "Bearer invalid",
			wantToken:    "invalid",
			tokenSvcErr:  model.ErrInvalidToken,
			wantErr:      true,
		},
		{
			name:           "nil user id from token",
			mdAuthHeader:   "Bearer token",
			wantToken:      "token",
			tokenSvcUserID: uuid.Nil,
			wantErr:        true,
		},
		{
			name:           "valid token",
			mdAuthHeader:   "Bearer token",
			wantToken:      "token",
			tokenSvcUserID: validID,
		},
		{
			name:           "lowercase scheme",
			mdAuthHeader:   "bearer token",
			wantToken:      "token",
			tokenSvcUserID: validID,
		},
		{
			name:           "bare token",
			mdAuthHeader:   "token",
			wantToken:      "token",
			tokenSvcUserID: validID,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cm := mocks.NewContextManager(t)
			if !tt.wantErr {
				cm.On("SetUserIDToContext", mock.Anything, tt.tokenSvcUserID).Return(context.Background())
			}

			svc := mocks.NewTokenService(t)
			if tt.wantToken != "" {
				svc.On("GetUserID", mock.Anything, tt.wantToken).Return(tt.tokenSvcUserID, tt.tokenSvcErr)
			}
			m := NewAuthenticate(svc, cm, testutil.MakeNoopLogger())

			ctx := context.Background()
			if tt.mdAuthHeader != "" {
				ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("authorization", tt.mdAuthHeader))
			}

			newCtx, err := m.AuthFunc(ctx)

			if tt.wantErr {
				assert.Error(t, err)
				st, ok := status.FromError(err)
				assert.True(t, ok)
				assert.Equal(t, codes.Unauthenticated, st.Code())
				assert.Nil(t, newCtx)
				return
			}

			assert.NoError(t, err)
			assert.NotNil(t, newCtx)
		})
	}
}

func TestAuthenticate_AuthFunc_ServiceErrorHidden(t *testing.T) {
	svc := mocks.NewTokenService(t)
	svc.On("GetUserID", mock.Anything, "tok").Return(uuid.Nil, errors.New("signature mismatch: secret"))

	m := NewAuthenticate(svc, mocks.NewContextManager(t), testutil.MakeNoopLogger())
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer tok"))

	_, err := m.AuthFunc(ctx)

	st, _ := status.FromError(err)
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.NotContains(t, st.Message(), "secret")
}
