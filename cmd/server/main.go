package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"kitchenpos/backend/internal/config"
	"kitchenpos/backend/internal/httpapi"
	"kitchenpos/backend/internal/lock"
	"kitchenpos/backend/internal/logging"
	"kitchenpos/backend/internal/service"
	"kitchenpos/backend/internal/store"
	"kitchenpos/backend/internal/store/memory"
	pgstore "kitchenpos/backend/internal/store/postgres"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal().Err(err).Msg("invalid security configuration")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	repo, closeRepo, err := openRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("repository unavailable")
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	locker, closeLocker := openLocker(ctx, cfg, logger)
	if closeLocker != nil {
		closers = append(closers, closeLocker)
	}

	svc := service.New(repo, locker, logger)
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.TokenTTL(), repo, svc)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, logger)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.Address()).Msg("kitchenpos backend listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error().Err(err).Msg("close error")
		}
	}

	logger.Info().Msg("server stopped")
}

// openRepository picks PostgreSQL when DATABASE_URL is set and refuses to
// fall back to memory if it cannot be reached.
func openRepository(ctx context.Context, cfg config.Config, logger zerolog.Logger) (store.Repository, func() error, error) {
	if cfg.DatabaseURL == "" {
		logger.Info().Str("repository", "memory").Msg("repository selected")
		return memory.NewSeeded(), nil, nil
	}

	if cfg.MigrateOnStart {
		if err := pgstore.Migrate(cfg.DatabaseURL); err != nil {
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("migrations applied")
	}

	pg, err := pgstore.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set: %w", err)
	}
	logger.Info().Str("repository", "postgres").Msg("repository selected")
	return pg, pg.Close, nil
}

// openLocker uses Redis when configured and reachable, otherwise the
// in-process locker.
func openLocker(ctx context.Context, cfg config.Config, logger zerolog.Logger) (lock.OwnerLocker, func() error) {
	if cfg.RedisAddr == "" {
		logger.Info().Str("locker", "local").Msg("locker selected")
		return lock.NewLocalLocker(), nil
	}

	redisLocker := lock.NewRedisLocker(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.LockTTL())
	if err := redisLocker.Ping(ctx); err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, using local locker")
		_ = redisLocker.Close()
		return lock.NewLocalLocker(), nil
	}
	logger.Info().Str("locker", "redis").Msg("locker selected")
	return redisLocker, redisLocker.Close
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
