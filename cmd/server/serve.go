package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/and161185/passvault/internal/config"
	"github.com/and161185/passvault/internal/crypto"
	"github.com/and161185/passvault/internal/limiter"
	"github.com/and161185/passvault/internal/metrics"
	"github.com/and161185/passvault/internal/migrate"
	"github.com/and161185/passvault/internal/repository/postgres"
	grpcserver "github.com/and161185/passvault/internal/server/grpc"
	httpserver "github.com/and161185/passvault/internal/server/http"
	"github.com/and161185/passvault/internal/service"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(gf *globalFlags) *cobra.Command {
	var skipMigrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, gf, nil)
			if err != nil {
				return err
			}
			logger, err := newLogger(cfg.LogLevel, cfg.Dev)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			defer memguard.Purge()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logger, !skipMigrate)
		},
	}
	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "do not apply schema migrations on startup")
	return cmd
}

// serve wires the store, cipher, gateway and listeners, and blocks until ctx ends
// or a listener fails.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger, runMigrations bool) error {
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("collection", cfg.Collection),
		zap.String("cipher", cfg.CipherAlgorithm),
	)

	key, err := cfg.CipherKeyBytes()
	if err != nil {
		return err
	}
	cipher, err := crypto.NewCipher(cfg.CipherAlgorithm, key)
	memguard.WipeBytes(key)
	if err != nil {
		return fmt.Errorf("cipher: %w", err)
	}

	pc, err := postgres.ParseConfig(postgres.Options{
		DSN:            cfg.DSN,
		Database:       cfg.Database,
		ConnectTimeout: cfg.StoreConnectTimeout,
	})
	if err != nil {
		return err
	}
	if runMigrations {
		if err := migrate.Up(ctx, pc.ConnConfig, cfg.Collection); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	}

	db, err := postgres.New(ctx, pc)
	if err != nil {
		return fmt.Errorf("connect store: %w", err)
	}
	defer db.Close()

	m := metrics.New()
	repo := postgres.NewCredentialRepo(db, cfg.Collection)
	if err := repo.CheckCollection(ctx); err != nil {
		return err
	}
	gw := service.NewGateway(repo, cipher, m)
	lim := limiter.New(db.Pool, limiter.Config{
		MaxMisses: cfg.DeleteMissLimit,
		Window:    cfg.DeleteMissWindow,
		BlockFor:  cfg.DeleteMissBlock,
	})
	guard := service.NewDeleteGuard(gw, lim, logger.Named("limiter"))

	h := httpserver.NewHandler(gw, guard, logger)
	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: httpserver.NewServeMux(h, httpserver.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			Metrics:        m.Handler(),
			Recorder:       m,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	// Bind the optional gRPC listener first so a bad address fails before anything runs.
	grpcLis, err := listenGRPC(cfg.GRPCHealthAddr)
	if err != nil {
		return err
	}

	health := grpcserver.NewHealth(gw.Ping, cfg.HealthInterval, logger, m.SetStoreUp)
	go health.Run(ctx)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http: %w", err)
		}
	}()

	var gs *grpc.Server
	if grpcLis != nil {
		gs = grpcserver.NewServer(logger, health, cfg.Dev)
		go func() {
			logger.Info("grpc health listening", zap.String("addr", grpcLis.Addr().String()))
			if err := gs.Serve(grpcLis); err != nil {
				errCh <- fmt.Errorf("grpc: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		logger.Error("server error", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if gs != nil {
		stopGRPC(gs, shutdownTimeout)
	}

	logger.Info("shutdown complete")
	return runErr
}

// listenGRPC binds addr, or returns a nil listener when the gRPC health listener is off.
func listenGRPC(addr string) (net.Listener, error) {
	if addr == "" {
		return nil, nil
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen grpc: %w", err)
	}
	return lis, nil
}

// stopGRPC drains in-flight RPCs, forcing a stop after timeout.
func stopGRPC(gs *grpc.Server, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		gs.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		gs.Stop()
	}
}
