package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pysuper/titan/internal/config"
	"github.com/pysuper/titan/internal/dataset"
	"github.com/pysuper/titan/internal/logging"
	"github.com/pysuper/titan/internal/redis"
	"github.com/pysuper/titan/internal/server"
	"github.com/pysuper/titan/internal/session"
	"github.com/pysuper/titan/internal/version"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupRedis(cfg *config.Config) *redis.Client {
	if cfg.RedisURL == "" {
		return nil
	}

	client, err := redis.NewClient(context.Background(), cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server, registry *session.Registry, cache *dataset.Cache, redisClient *redis.Client) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		registry.CloseAll()

		if err := cache.Close(); err != nil {
			slog.Error("Dataset cache close error", "error", err)
		}
		if redisClient != nil {
			_ = redisClient.Close()
		}

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	// Initialize structured logging
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting",
		"env", cfg.AppEnv, "port", cfg.Port, "mode", cfg.ConnectionMode, "version", version.Get().Version)

	redisClient := setupRedis(cfg)
	var rdb *goredis.Client
	if redisClient != nil {
		rdb = redisClient.Underlying()
	}

	cache, err := dataset.NewCache(rdb)
	if err != nil {
		slog.Error("Failed to create dataset cache", "error", err)
		os.Exit(1)
	}

	registry := session.NewRegistry(cfg.ConnectionMode)
	router := session.NewRouter(registry, clock)

	srv := server.NewServer(cfg, registry, router, cache, rdb, clock)

	done := runGracefulShutdown(srv, registry, cache, redisClient)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
