package router

import (
	"context"

	authProto "github.com/dtroode/gophkeeper-auth/server/proto"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/auth"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/selector"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/status"

	"github.com/dtroode/refreshkeeper/internal/api/grpc/handler"
	"github.com/dtroode/refreshkeeper/internal/api/grpc/middleware"
	"github.com/dtroode/refreshkeeper/internal/logger"
	"github.com/dtroode/refreshkeeper/internal/model"
)

// Methods that require a valid access token. Everything else, including
// refresh, is reachable without one.
var authenticatedMethods = map[string]struct{}{
	"/api.Auth/RevokeToken": {},
}

// TokenService is the token engine as seen by the transport layer.
type TokenService interface {
	handler.TokenService
	middleware.TokenService
}

// Router wires the gRPC services and interceptors.
type Router struct {
	authService    handler.AuthService
	tokenService   TokenService
	logger         *logger.Logger
	contextManager model.ContextManager
	health         *health.Server
}

// New creates new gRPC Router instance.
func New(
	authService handler.AuthService,
	tokenService TokenService,
	contextManager model.ContextManager,
	logger *logger.Logger,
) *Router {
	return &Router{
		authService:    authService,
		tokenService:   tokenService,
		contextManager: contextManager,
		logger:         logger,
		health:         health.NewServer(),
	}
}

func requiresAuth(_ context.Context, c interceptors.CallMeta) bool {
	_, ok := authenticatedMethods[c.FullMethod()]
	return ok
}

// Register builds a gRPC server with logging, panic recovery and
// authentication interceptors and registers the auth and health services.
func (r *Router) Register() *grpc.Server {
	logging := middleware.NewLogging(r.logger)
	authenticate := middleware.NewAuthenticate(r.tokenService, r.contextManager, r.logger)
	recoveryOpt := recovery.WithRecoveryHandlerContext(r.recoverPanic)

	s := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			logging.HandleGRPC,
			recovery.UnaryServerInterceptor(recoveryOpt),
			selector.UnaryServerInterceptor(
				auth.UnaryServerInterceptor(authenticate.AuthFunc),
				selector.MatchFunc(requiresAuth),
			),
		),
		grpc.ChainStreamInterceptor(
			recovery.StreamServerInterceptor(recoveryOpt),
			selector.StreamServerInterceptor(
				auth.StreamServerInterceptor(authenticate.AuthFunc),
				selector.MatchFunc(requiresAuth),
			),
		),
	)
	r.registerAuthRoutes(s)
	r.registerHealth(s)

	return s
}

// Shutdown reports every service as not serving.
func (r *Router) Shutdown() {
	r.health.Shutdown()
}

func (r *Router) registerAuthRoutes(server *grpc.Server) {
	authHandler := handler.NewAuth(r.authService, r.tokenService, r.contextManager, r.logger)
	authProto.RegisterAuthServer(server, authHandler)
}

func (r *Router) registerHealth(server *grpc.Server) {
	healthpb.RegisterHealthServer(server, r.health)
	r.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	for name := range server.GetServiceInfo() {
		r.health.SetServingStatus(name, healthpb.HealthCheckResponse_SERVING)
	}
}

func (r *Router) recoverPanic(_ context.Context, p any) error {
	r.logger.Error("gRPC handler panicked", "panic", p)
	return status.Error(codes.Internal, "internal server error")
}
