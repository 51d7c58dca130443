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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pscheid92/presencepulse/internal/auth"
	"github.com/pscheid92/presencepulse/internal/config"
	"github.com/pscheid92/presencepulse/internal/domain"
	"github.com/pscheid92/presencepulse/internal/fanout"
	"github.com/pscheid92/presencepulse/internal/gateway"
	"github.com/pscheid92/presencepulse/internal/logging"
	"github.com/pscheid92/presencepulse/internal/postgres"
	"github.com/pscheid92/presencepulse/internal/presence"
	"github.com/pscheid92/presencepulse/internal/redis"
	"github.com/pscheid92/presencepulse/internal/registry"
	"github.com/pscheid92/presencepulse/internal/server"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(ctx context.Context, cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	return pool
}

func setupRedis(ctx context.Context, cfg *config.Config) *goredis.Client {
	client, err := redis.NewClient(ctx, cfg.RedisURL)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func runGracefulShutdown(srv *server.Server) <-chan struct{} {
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

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(context.Background(), cfg)
	defer pool.Close()

	redisClient := setupRedis(context.Background(), cfg)
	defer func() { _ = redisClient.Close() }()

	membershipRepo := postgres.NewMembershipRepo(pool)
	settingsRepo := postgres.NewSettingsRepo(pool)

	counter := redis.NewCounter(redisClient)
	bus := redis.NewBus(redisClient)

	// The registry and the fanout reference each other at runtime: the
	// fanout delivers bus payloads to registry-held connections, and the
	// registry's aggregator publishes through the fanout. The delivery
	// closure breaks the construction cycle.
	var reg *registry.Registry
	fan := fanout.New(bus, fanout.DeliveryFunc(func(chat domain.ChatID, payload []byte) {
		reg.DeliverLocal(chat, payload)
	}))

	filter := presence.NewFilter(settingsRepo)
	aggregator := presence.NewAggregator(fan, filter, membershipRepo)
	reg = registry.New(counter, aggregator, clock)

	verifier := auth.NewVerifier(cfg.JWTSecret)
	gw := gateway.New(reg, fan, verifier, membershipRepo, cfg.AuthTimeout, clock)

	healthChecks := []server.HealthCheck{
		{Name: "redis", Check: func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }},
		{Name: "postgres", Check: pool.Ping},
	}
	srv := server.NewServer(cfg, gw, healthChecks)

	done := runGracefulShutdown(srv)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
