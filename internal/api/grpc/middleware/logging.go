package middleware

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	grpcctx "github.com/dtroode/refreshkeeper/internal/api/grpc/context"
	"github.com/dtroode/refreshkeeper/internal/logger"
)

// Logging is a unary interceptor that logs gRPC requests and results.
type Logging struct {
	logger *logger.Logger
}

// NewLogging creates a new Logging middleware.
func NewLogging(logger *logger.Logger) *Logging {
	return &Logging{logger: logger}
}

// HandleGRPC logs method name, caller address, duration and status for each
// unary request. Requests that fail with a server-side code are logged at
// error level, client-side failures at warn.
func (l *Logging) HandleGRPC(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	reqLogger := l.logger.With("method", info.FullMethod, "ip", grpcctx.ClientIP(ctx))

	reqLogger.Debug("gRPC request started")

	resp, err := handler(ctx, req)

	statusCode := codeOf(err)
	fields := []any{
		"duration_ms", time.Since(start).Milliseconds(),
		"status", statusCode.String(),
	}

	switch {
	case err == nil:
		reqLogger.Info("gRPC request completed", fields...)
	case isServerFault(statusCode):
		reqLogger.Error("gRPC request failed", append(fields, "error", err.Error())...)
	default:
		reqLogger.Warn("gRPC request rejected", append(fields, "error", err.Error())...)
	}

	return resp, err
}

func codeOf(err error) codes.Code {
	if err == nil {
		return codes.OK
	}
	if st, ok := status.FromError(err); ok {
		return st.Code()
	}
	return codes.Internal
}

func isServerFault(code codes.Code) bool {
	switch code {
	case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
		return true
	default:
		return false
	}
}
