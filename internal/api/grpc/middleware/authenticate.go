package middleware

import (
	"context"
	"strings"

	apiErrors "github.com/dtroode/gophkeeper-api/errors"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dtroode/refreshkeeper/internal/logger"
	"github.com/dtroode/refreshkeeper/internal/model"
)

const bearerScheme = "bearer "

// TokenService resolves user ID from access tokens.
type TokenService interface {
	GetUserID(ctx context.Context, token string) (uuid.UUID, error)
}

// Authenticate validates bearer tokens and injects user ID into context.
type Authenticate struct {
	tokenService   TokenService
	contextManager model.ContextManager
	logger         *logger.Logger
}

// NewAuthenticate creates a new Authenticate middleware instance.
func NewAuthenticate(tokenService TokenService, contextManager model.ContextManager, logger *logger.Logger) *Authenticate {
	return &Authenticate{tokenService: tokenService, contextManager: contextManager, logger: logger}
}

// AuthFunc parses the authorization header, validates the access token and
// returns a context with the user ID.
func (m *Authenticate) AuthFunc(ctx context.Context) (context.Context, error) {
	userID, authErr := m.authenticateUser(ctx, bearerToken(ctx))
	if authErr != nil {
		m.logger.Debug("Authenticate: request rejected", "error", authErr.Error())
		return nil, status.Error(codes.Unauthenticated, authErr.Error())
	}

	return m.contextManager.SetUserIDToContext(ctx, userID), nil
}

func (m *Authenticate) authenticateUser(ctx context.Context, tokenString string) (uuid.UUID, error) {
	if tokenString == "" {
		return uuid.Nil, apiErrors.NewErrMissingAuthorizationToken()
	}

	userID, err := m.tokenService.GetUserID(ctx, tokenString)
	if err != nil || userID == uuid.Nil {
		return uuid.Nil, apiErrors.NewErrInvalidAuthorizationToken()
	}

	return userID, nil
}

func bearerToken(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}

	headers := md.Get("authorization")
	if len(headers) == 0 {
		return ""
	}

	header := strings.TrimSpace(headers[0])
	if len(header) > len(bearerScheme) && strings.EqualFold(header[:len(bearerScheme)], bearerScheme) {
		return strings.TrimSpace(header[len(bearerScheme):])
	}

	return header
}
