package handler

import (
	"context"
	"testing"

	apiErrors "github.com/dtroode/gophkeeper-api/errors"
	authModel "github.com/dtroode/gophkeeper-auth/model"
	authProto "github.com/dtroode/gophkeeper-auth/server/proto"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	grpcctx "github.com/dtroode/refreshkeeper/internal/api/grpc/context"
	"github.com/dtroode/refreshkeeper/internal/mocks"
	"github.com/dtroode/refreshkeeper/internal/model"
	"github.com/dtroode/refreshkeeper/internal/testutil"
)

type handlerDeps struct {
	auth   *mocks.AuthService
	tokens *mocks.TokenService
	h      *Auth
}

func newHandler(t *testing.T) handlerDeps {
	t.Helper()

	auth := mocks.NewAuthService(t)
	tokens := mocks.NewTokenService(t)

	return handlerDeps{
		auth:   auth,
		tokens: tokens,
		h:      NewAuth(auth, tokens, grpcctx.NewManager(), testutil.MakeNoopLogger()),
	}
}

func forwardedFrom(ip string) context.Context {
	return metadata.NewIncomingContext(context.Background(), metadata.Pairs("x-forwarded-for", ip))
}

func statusCode(t *testing.T, err error) codes.Code {
	t.Helper()

	st, ok := status.FromError(err)
	require.True(t, ok)
	return st.Code()
}

func TestAuth_GetRegParams(t *testing.T) {
	t.Parallel()

	d := newHandler(t)
	d.auth.On("GetRegParams", mock.Anything, "user").Return(authModel.RegParams{KDFParams: authModel.KDFParams{Time: 1, MemKiB: 2, Par: 1}, SaltRoot: []byte("s"), SessionID: "sid"}, nil)

	out, err := d.h.GetRegParams(context.Background(), &authProto.RegStart{Login: "user"})
	assert.NoError(t, err)
	assert.Equal(t, "sid", out.SessionId)
	assert.Equal(t, uint32(2), out.KdfParams.MemKib)
}

func TestAuth_GetRegParams_Error(t *testing.T) {
	t.Parallel()

	d := newHandler(t)
	d.auth.On("GetRegParams", mock.Anything, "user").Return(authModel.RegParams{}, apiErrors.NewErrInternalServerError(assert.AnError))

	out, err := d.h.GetRegParams(context.Background(), &authProto.RegStart{Login: "user"})
	assert.Nil(t, out)
	assert.Error(t, err)
}

func TestAuth_CompleteReg_Success(t *testing.T) {
	t.Parallel()

	d := newHandler(t)
	d.auth.On("CompleteReg", mock.Anything, mock.MatchedBy(func(p authModel.RegComplete) bool {
		return p.Login == "u" && p.KDF.Par == 1 && string(p.StoredKey) == "a"
	})).Return(nil)

	out, err := d.h.CompleteReg(context.Background(), &authProto.RegComplete{
		Login:     "u",
		KdfParams: &authProto.KDFParams{Time: 1, MemKib: 2, Par: 1},
		SaltRoot:  []byte("s"), StoredKey: []byte("a"), ServerKey: []byte("b"),
	})
	assert.NoError(t, err)
	assert.NotNil(t, out)
}

func TestAuth_CompleteReg_Error(t *testing.T) {
	t.Parallel()

	d := newHandler(t)
	d.auth.On("CompleteReg", mock.Anything, mock.Anything).Return(apiErrors.NewErrSignup())

	out, err := d.h.CompleteReg(context.Background(), &authProto.RegComplete{Login: "u", KdfParams: &authProto.KDFParams{Time: 1, MemKib: 2, Par: 1}, SaltRoot: []byte("s"), StoredKey: []byte("a"), ServerKey: []byte("b")})
	assert.Nil(t, out)
	assert.Equal(t, apiErrors.NewErrSignup().GRPCCode, statusCode(t, err))
}

func TestAuth_GetLoginParams(t *testing.T) {
	t.Parallel()

	d := newHandler(t)
	d.auth.On("GetLoginParams", mock.Anything, authModel.LoginStart{Login: "u", ClientNonce: []byte("c")}).Return(authModel.LoginParams{KDFParams: authModel.KDFParams{Time: 1, MemKiB: 2, Par: 1}, SaltRoot: []byte("s"), ServerNonce: []byte("n"), SessionID: "sid"}, nil)

	out, err := d.h.GetLoginParams(context.Background(), &authProto.LoginStart{Login: "u", ClientNonce: []byte("c")})
	assert.NoError(t, err)
	assert.Equal(t, "sid", out.SessionId)
	assert.Equal(t, []byte("n"), out.ServerNonce)
}

func TestAuth_GetLoginParams_Error(t *testing.T) {
	t.Parallel()

	d := newHandler(t)
	d.auth.On("GetLoginParams", mock.Anything, mock.Anything).Return(authModel.LoginParams{}, apiErrors.NewErrLogin())

	out, err := d.h.GetLoginParams(context.Background(), &authProto.LoginStart{})
	assert.Nil(t, out)
	assert.Error(t, err)
}

func TestAuth_CompleteLogin(t *testing.T) {
	t.Parallel()

	d := newHandler(t)
	d.auth.On("CompleteLogin", mock.Anything, mock.Anything, "203.0.113.5").Return(authModel.SessionResult{ServerSignature: []byte("sig"), AccessToken: "a", RefreshToken: "r"}, nil)

	out, err := d.h.CompleteLogin(forwardedFrom("203.0.113.5"), &authProto.LoginComplete{Login: "u"})
	assert.NoError(t, err)
	assert.Equal(t, "a", out.AccessToken)
	assert.Equal(t, "r", out.RefreshToken)
	assert.Equal(t, []byte("sig"), out.ServerSignature)
}

func TestAuth_CompleteLogin_Error(t *testing.T) {
	t.Parallel()

	d := newHandler(t)
	d.auth.On("CompleteLogin", mock.Anything, mock.Anything, "").Return(authModel.SessionResult{}, apiErrors.NewErrLogin())

	out, err := d.h.CompleteLogin(context.Background(), &authProto.LoginComplete{})
	assert.Nil(t, out)
	assert.Error(t, err)
}

func TestAuth_RefreshToken_Success(t *testing.T) {
	t.Parallel()

	d := newHandler(t)
	d.tokens.On("Refresh", mock.Anything, "r", "203.0.113.5").Return(model.TokenPair{AccessToken: "acc", RefreshToken: "ref"}, nil)

	out, err := d.h.RefreshToken(forwardedFrom("203.0.113.5"), &authProto.RefreshTokenRequest{RefreshToken: "r"})
	assert.NoError(t, err)
	assert.Equal(t, "acc", out.AccessToken)
	assert.Equal(t, "ref", out.RefreshToken)
}

func TestAuth_RefreshToken_Validation(t *testing.T) {
	t.Parallel()

	d := newHandler(t)

	out, err := d.h.RefreshToken(context.Background(), &authProto.RefreshTokenRequest{RefreshToken: ""})
	assert.Nil(t, out)
	assert.Equal(t, codes.InvalidArgument, statusCode(t, err))
}

func TestAuth_RefreshToken_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		err      error
		wantCode codes.Code
	}{
		{name: "invalid token", err: model.ErrInvalidToken, wantCode: codes.Unauthenticated},
		{name: "concurrent rotation", err: model.ErrPersistenceConflict, wantCode: codes.Aborted},
		{name: "corrupted chain", err: model.ErrChainCorrupted, wantCode: codes.Internal},
		{name: "storage failure", err: assert.AnError, wantCode: codes.Internal},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d := newHandler(t)
			d.tokens.On("Refresh", mock.Anything, "x", "").Return(model.TokenPair{}, tt.err)

			out, err := d.h.RefreshToken(context.Background(), &authProto.RefreshTokenRequest{RefreshToken: "x"})
			assert.Nil(t, out)
			assert.Equal(t, tt.wantCode, statusCode(t, err))
		})
	}
}

func TestAuth_RevokeToken_Success(t *testing.T) {
	t.Parallel()

	d := newHandler(t)
	userID := uuid.New()
	ctx := grpcctx.NewManager().SetUserIDToContext(forwardedFrom("198.51.100.2"), userID)
	d.tokens.On("RevokeForUser", mock.Anything, userID, "r", "198.51.100.2").Return(nil)

	out, err := d.h.RevokeToken(ctx, &authProto.RevokeTokenRequest{RefreshToken: "r"})
	assert.NoError(t, err)
	assert.NotNil(t, out)
}

func TestAuth_RevokeToken_Unauthenticated(t *testing.T) {
	t.Parallel()

	d := newHandler(t)

	out, err := d.h.RevokeToken(context.Background(), &authProto.RevokeTokenRequest{RefreshToken: "r"})
	assert.Nil(t, out)
	assert.Equal(t, codes.Unauthenticated, statusCode(t, err))
}

func TestAuth_RevokeToken_Validation(t *testing.T) {
	t.Parallel()

	d := newHandler(t)
	ctx := grpcctx.NewManager().SetUserIDToContext(context.Background(), uuid.New())

	out, err := d.h.RevokeToken(ctx, &authProto.RevokeTokenRequest{RefreshToken: ""})
	assert.Nil(t, out)
	assert.Equal(t, codes.InvalidArgument, statusCode(t, err))
}

func TestAuth_RevokeToken_ForeignToken(t *testing.T) {
	t.Parallel()

	d := newHandler(t)
	userID := uuid.New()
	ctx := grpcctx.NewManager().SetUserIDToContext(context.Background(), userID)
	d.tokens.On("RevokeForUser", mock.Anything, userID, "x", "").Return(model.ErrInvalidToken)

	out, err := d.h.RevokeToken(ctx, &authProto.RevokeTokenRequest{RefreshToken: "x"})
	assert.Nil(t, out)
	assert.Equal(t, codes.Unauthenticated, statusCode(t, err))
}
