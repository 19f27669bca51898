package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"google.golang.org/grpc/reflection"

	authmodel "github.com/dtroode/gophkeeper-auth/model"

	grpcctx "github.com/dtroode/refreshkeeper/internal/api/grpc/context"
	"github.com/dtroode/refreshkeeper/internal/api/grpc/router"
	grpcServer "github.com/dtroode/refreshkeeper/internal/api/grpc/server"
	"github.com/dtroode/refreshkeeper/internal/clock"
	"github.com/dtroode/refreshkeeper/internal/config"
	"github.com/dtroode/refreshkeeper/internal/incident"
	"github.com/dtroode/refreshkeeper/internal/logger"
	"github.com/dtroode/refreshkeeper/internal/metrics"
	"github.com/dtroode/refreshkeeper/internal/model"
	"github.com/dtroode/refreshkeeper/internal/repository/memory"
	"github.com/dtroode/refreshkeeper/internal/repository/postgres"
	"github.com/dtroode/refreshkeeper/internal/repository/redis"
	"github.com/dtroode/refreshkeeper/internal/server"
	"github.com/dtroode/refreshkeeper/internal/service"
	storage "github.com/dtroode/refreshkeeper/internal/storage/minio"
	"github.com/dtroode/refreshkeeper/internal/token"
)

var (
	buildVersion = "N/A" // set by ldflags
	buildDate    = "N/A" // set by ldflags
	buildCommit  = "N/A" // set by ldflags
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT, os.Interrupt)
	defer stop()

	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	logger := logger.New(cfg.LogLevel)

	logAppVersion()

	userStore, closeStore, err := openUserStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialize user store", "error", err)
	}
	defer closeStore()

	redisClient, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("failed to connect to redis", "error", err, "addr", cfg.Redis.Addr)
	}
	defer redisClient.Close()

	signupRepo := redis.NewSignupRepository(redisClient)
	loginRepo := redis.NewLoginRepository(redisClient)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewRecorder(registry)

	opts := []service.TokenServiceOption{service.WithMetrics(recorder)}
	if cfg.Storage.Enabled {
		reporter, err := newIncidentArchive(ctx, cfg.Storage)
		if err != nil {
			logger.Fatal("failed to initialize incident storage", "error", err)
		}
		opts = append(opts, service.WithIncidentReporter(reporter))
		logger.Info("reuse incidents are archived", "bucket", cfg.Storage.Bucket)
	}

	systemClock := clock.System{}
	tokenManager := token.NewJWT(cfg.JWT.Secret, cfg.JWT.AccessTokenLifetime, systemClock)
	tokenService := service.NewTokenService(
		tokenManager,
		userStore,
		systemClock,
		service.TokenPolicy{
			RefreshLifetime: cfg.Tokens.RefreshLifetime,
			RetentionTTL:    cfg.Tokens.RetentionTTL,
		},
		logger,
		opts...,
	)

	kdf := authmodel.NewKDFParams(cfg.KDF.Time, cfg.KDF.MemKiB, cfg.KDF.Par)
	authService := service.NewAuth(userStore, signupRepo, loginRepo, tokenService, logger, kdf)
	ctxMgr := grpcctx.NewManager()

	r := router.New(authService, tokenService, ctxMgr, logger)
	s := r.Register()
	reflection.Register(s)
	grpcSrv := grpcServer.NewGRPCServer(s, fmt.Sprintf(":%s", cfg.GRPC.Port))

	var sl model.SecurityLayer
	if cfg.GRPC.EnableHTTPS {
		sl = server.NewTLSListener(cfg.GRPC.CertFileName, cfg.GRPC.PrivateKeyFileName)
	} else {
		sl = server.NewPlainListener()
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func(s model.Server) {
		defer wg.Done()
		logger.Info("Starting server on", "address", s.Address())
		if err := s.Start(sl); err != nil {
			logger.Error("failed to start server", "error", err)
			stop()
		}
	}(grpcSrv)

	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		metricsSrv = &http.Server{
			Addr:              cfg.Metrics.Addr,
			Handler:           metrics.Handler(registry),
			ReadHeaderTimeout: 5 * time.Second,
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Info("Starting metrics server on", "address", metricsSrv.Addr)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Info("received interruption signal, shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	r.Shutdown()
	if err := grpcSrv.Stop(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err, "address", grpcSrv.Address())
	}
	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during metrics server shutdown", "error", err)
		}
	}

	wg.Wait()
	logger.Info("shutdown complete")
}

func logAppVersion() {
	tmpl := `
Build version: %s
Build date: %s
Build commit: %s
`

	fmt.Printf(tmpl, buildVersion, buildDate, buildCommit)
}

// openUserStore returns the configured UserStore and a function releasing
// its resources.
func openUserStore(ctx context.Context, cfg *config.Config, logger *logger.Logger) (model.UserStore, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		logger.Warn("using in-memory user store, data is lost on restart")
		return memory.NewUserRepository(), func() {}, nil
	default:
		db, err := postgres.NewConnection(ctx, cfg.Database.DSN)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("database schema is up to date", "version", db.SchemaVersion)
		return postgres.NewUserRepository(db), func() { _ = db.Close() }, nil
	}
}

func newIncidentArchive(ctx context.Context, cfg config.Storage) (*incident.Archive, error) {
	client, err := storage.Dial(ctx, cfg.Endpoint, cfg.AccessKey, cfg.SecretKey, cfg.UseSSL, cfg.Bucket)
	if err != nil {
		return nil, err
	}
	return incident.NewArchive(client, ""), nil
}
