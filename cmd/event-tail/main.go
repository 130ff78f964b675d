// Command event-tail follows the gateway's events exchange and logs every state change.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"velancis-storefront/internal/config"
	"velancis-storefront/internal/events"
	"velancis-storefront/internal/messaging"
	"velancis-storefront/internal/observability"
)

func main() {
	bindingKey := flag.String("bind", "#", `routing key pattern to follow, e.g. "cart.*"`)
	flag.Parse()

	cfg := config.Load()

	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	if cfg.RabbitMQURL == "" {
		slog.Error("RABBITMQ_URL is required")
		os.Exit(1)
	}

	slog.Info("starting event tail", slog.String("binding_key", *bindingKey))

	connCtx, connCancel := context.WithTimeout(context.Background(), 60*time.Second)
	rmq, err := messaging.NewRabbitMQWithRetry(connCtx, cfg.RabbitMQURL)
	connCancel()
	if err != nil {
		slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer rmq.Close()

	if err := rmq.Setup(); err != nil {
		slog.Error("failed to declare events exchange", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := messaging.NewConsumer(rmq, *bindingKey, logEvent)
	if err := consumer.Start(ctx); err != nil {
		slog.Error("failed to start consuming", slog.String("error", err.Error()))
		os.Exit(1)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down event tail")
	cancel()
	time.Sleep(100 * time.Millisecond)
}

func logEvent(ctx context.Context, e events.Event) {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		payload = []byte("null")
	}
	observability.FromContext(ctx).Info("storefront event",
		slog.String("type", string(e.Type)),
		slog.Time("at", e.At),
		slog.String("payload", string(payload)))
}
