package handler

import (
	"errors"

	apiErrors "github.com/dtroode/gophkeeper-api/errors"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dtroode/refreshkeeper/internal/model"
)

// handleError converts service errors to gRPC statuses. Token failures share
// a single message so callers cannot tell a revoked token from an unknown one.
func handleError(err error) error {
	var apiErr *apiErrors.APIError
	if errors.As(err, &apiErr) {
		return status.Error(apiErr.GRPCCode, apiErr.Message)
	}

	switch {
	case errors.Is(err, model.ErrInvalidToken):
		return status.Error(codes.Unauthenticated, "invalid refresh token")
	case errors.Is(err, model.ErrPersistenceConflict):
		return status.Error(codes.Aborted, "concurrent update, retry the request")
	case errors.Is(err, model.ErrSessionConsumed):
		return status.Error(codes.FailedPrecondition, "session already used")
	case errors.Is(err, model.ErrConflict):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, model.ErrNotFound):
		return status.Error(codes.NotFound, "not found")
	default:
		return status.Error(codes.Internal, "internal server error")
	}
}
