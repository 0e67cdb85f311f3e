package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"surveyhub.org/internal/auth"
	"surveyhub.org/internal/config"
	"surveyhub.org/internal/httpapi"
	"surveyhub.org/internal/migrate"
	"surveyhub.org/internal/obs"
	"surveyhub.org/internal/store/pg"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := run(); err != nil {
		obs.Logger().Error("surveyhub-api stopped", zap.Error(err))
		_ = obs.Logger().Sync()
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := obs.NewLogger(cfg.LogConfig("surveyhub-api", version))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}

	obs.Init()
	obs.SetBuildInfo(version, commit)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := obs.SetupTracing(ctx, cfg.TracingConfig("surveyhub-api"))
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	if err := applyMigrations(cfg.DatabaseURL); err != nil {
		return err
	}

	store, err := pg.Open(cfg.DatabaseURL, cfg.Pool)
	if err != nil {
		return err
	}
	defer store.Close()

	tokens, err := auth.NewTokenService(store, cfg.TokenConfig(), auth.WithTokenLogger(logger))
	if err != nil {
		return err
	}
	resolver := auth.NewPermissionResolver(store, auth.WithResolverLogger(logger))
	session := auth.NewSession(store, tokens, resolver, auth.WithSessionLogger(logger))

	api := httpapi.New(httpapi.Deps{
		Session:  session,
		Resolver: resolver,
		Store:    store,
		Ready:    httpapi.ReadyProbe{DB: store.DB()},
		Logger:   logger,
		Limiter:  httpapi.NewRateLimiter(cfg.RateLimit, cfg.RateBurst),
		Version:  version,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go reapTokens(ctx, tokens, cfg.ReapInterval, logger)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting surveyhub-api", zap.String("addr", srv.Addr), zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	logger.Info("stopped")
	return nil
}

func applyMigrations(databaseURL string) error {
	runner, err := migrate.New(databaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = runner.Close() }()
	return runner.Up()
}

// reapTokens deletes revoked and expired refresh tokens every interval until
// ctx is cancelled.
func reapTokens(ctx context.Context, tokens *auth.TokenService, interval time.Duration, logger *zap.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := tokens.Reap(ctx)
			if err != nil {
				logger.Warn("refresh token reap failed", zap.Error(err))
				continue
			}
			logger.Info("refresh tokens reaped", zap.Int64("deleted", n))
		}
	}
}
