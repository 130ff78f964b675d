package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"velancis-storefront/internal/apiclient"
	"velancis-storefront/internal/config"
	"velancis-storefront/internal/events"
	"velancis-storefront/internal/handler"
	"velancis-storefront/internal/messaging"
	"velancis-storefront/internal/middleware"
	"velancis-storefront/internal/observability"
	"velancis-storefront/internal/repository/postgres"
	"velancis-storefront/internal/repository/redis"
	"velancis-storefront/internal/security"
	"velancis-storefront/internal/service"
	"velancis-storefront/internal/session"
	"velancis-storefront/internal/storage"
	"velancis-storefront/internal/websocket"
)

func main() {
	cfg := config.Load()

	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting storefront gateway",
		slog.String("api_base_url", cfg.APIBaseURL),
		slog.String("state_backend", cfg.StateBackend),
		slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore, err := openStorage(ctx, cfg)
	if err != nil {
		slog.Error("failed to open state storage", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer closeStore()

	hub := websocket.NewHub()

	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go func() {
		if err := hub.Run(hubCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("websocket hub started")

	bus := events.NewBus(hub)
	checks := map[string]handler.Check{}

	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
		rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()

		if err := rmq.Setup(); err != nil {
			slog.Error("failed to declare events exchange", slog.String("error", err.Error()))
			os.Exit(1)
		}
		bus.AddSink(rmq)
		checks["rabbitmq"] = func(context.Context) error {
			if rmq.IsClosed() {
				return errors.New("connection closed")
			}
			return nil
		}
		slog.Info("publishing events to rabbitmq", slog.String("exchange", messaging.EventsExchange))
	}

	var consent *session.Consent
	if cfg.GoogleClientID != "" {
		consent = session.NewConsent(cfg.GoogleClientID, cfg.GoogleRedirectURL)
	}

	client := apiclient.NewClient(cfg.APIBaseURL,
		apiclient.WithTimeout(cfg.APITimeout),
		apiclient.WithUserAgent("velancis-storefront-gateway"),
	)
	sf := service.NewStorefront(client, store, bus, consent)

	tokens, err := security.NewTokenManager()
	if err != nil {
		slog.Error("failed to create CSRF token", slog.String("error", err.Error()))
		os.Exit(1)
	}
	sf.Session.OnLogout(func(ctx context.Context) {
		if err := tokens.Rotate(); err != nil {
			observability.Component(ctx, "csrf").Error("failed to rotate CSRF token",
				slog.String("error", err.Error()))
		}
	})

	restoreCtx, restoreCancel := context.WithTimeout(ctx, 15*time.Second)
	err = sf.Restore(restoreCtx)
	restoreCancel()
	if err != nil {
		slog.Error("failed to restore state", slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("state restored", slog.Bool("authenticated", sf.Session.IsAuthenticated()))

	checks["storage"] = store.Ping
	checks["api"] = client.Ping

	authLimiter := middleware.NewRateLimiter(ctx, 5, 10)
	defer authLimiter.Stop()
	apiLimiter := middleware.NewRateLimiter(ctx, cfg.RateLimitRPS, cfg.RateLimitBurst)
	defer apiLimiter.Stop()

	r := newRouter(routerDeps{
		storefront:        sf,
		hub:               hub,
		tokens:            tokens,
		checks:            checks,
		allowedOrigins:    middleware.ParseOrigins(cfg.AllowedOrigins),
		openAPIValidation: cfg.OpenAPIValidation,
		authLimiter:       authLimiter,
		apiLimiter:        apiLimiter,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("storefront gateway listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	hubCancel()

	time.Sleep(100 * time.Millisecond)

	slog.Info("server stopped gracefully")
}

// openStorage builds the durable state backend selected by STATE_BACKEND
func openStorage(ctx context.Context, cfg *config.Config) (storage.Storage, func(), error) {
	noop := func() {}

	switch cfg.StateBackend {
	case config.BackendMemory:
		slog.Warn("using in-memory state, the session will not survive a restart")
		return storage.Instrument(config.BackendMemory, storage.NewMemory()), noop, nil

	case config.BackendFile:
		f, err := storage.NewFile(cfg.StateDir)
		if err != nil {
			return nil, noop, err
		}
		slog.Info("using file state", slog.String("dir", cfg.StateDir))
		return storage.Instrument(config.BackendFile, f), noop, nil

	case config.BackendRedis:
		client, err := config.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			return nil, noop, err
		}
		slog.Info("connected to redis", slog.String("addr", cfg.RedisAddr))
		return storage.Instrument(config.BackendRedis, redis.NewStateRepository(client, "")),
			closer("redis", client), nil

	case config.BackendPostgres:
		db, err := config.NewPostgresConnection(cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}

		migrateCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := postgres.Migrate(migrateCtx, db); err != nil {
			db.Close()
			return nil, noop, err
		}

		repo, err := postgres.NewStateRepository(db)
		if err != nil {
			db.Close()
			return nil, noop, err
		}
		slog.Info("connected to postgresql")
		closeAll := func() {
			closer("postgres", repo)()
			closer("postgres", db)()
		}
		return storage.Instrument(config.BackendPostgres, repo), closeAll, nil
	}

	return nil, noop, fmt.Errorf("unknown state backend %q", cfg.StateBackend)
}

func closer(name string, c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Error("failed to close state backend",
				slog.String("backend", name),
				slog.String("error", err.Error()))
		}
	}
}
