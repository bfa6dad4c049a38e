package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/overlaydao/overlay-users/internal/config"
	"github.com/overlaydao/overlay-users/internal/infra"
	"github.com/overlaydao/overlay-users/internal/logging"
	"github.com/overlaydao/overlay-users/internal/server"
	"github.com/overlaydao/overlay-users/internal/state"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)

	ctx := context.Background()

	var (
		store state.Store
		db    *pgxpool.Pool
		cache *redis.Client
	)
	switch cfg.Backend {
	case config.BackendPostgres:
		pgStore, pool, err := infra.OpenPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Error("open postgres state store", "error", err)
			os.Exit(1)
		}
		defer pool.Close()
		store, db = pgStore, pool
	case config.BackendRedis:
		redisStore, client, err := infra.OpenRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("open redis state store", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		store, cache = redisStore, client
	default:
		store = state.NewMemory()
	}
	logger.Info("state store ready", "backend", cfg.Backend)

	// Dedupe can ride a Redis that is not the state backend.
	if cache == nil && cfg.RedisURL != "" {
		client, err := infra.OpenRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("connect redis", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		}()
		cache = client
	}

	srv, err := server.New(cfg, store, db, cache, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Listen()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}
