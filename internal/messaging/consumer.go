package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"velancis-storefront/internal/events"
)

// Handler receives events read from the exchange
type Handler func(ctx context.Context, e events.Event)

// Consumer follows the events exchange through a private, auto-deleted queue
type Consumer struct {
	rmq        *RabbitMQ
	bindingKey string
	handle     Handler
}

// NewConsumer binds to events matching bindingKey ("#" for all, "cart.*" for cart only)
func NewConsumer(rmq *RabbitMQ, bindingKey string, handle Handler) *Consumer {
	if bindingKey == "" {
		bindingKey = "#"
	}
	return &Consumer{
		rmq:        rmq,
		bindingKey: bindingKey,
		handle:     handle,
	}
}

// Start declares and binds the queue, then handles deliveries until ctx ends
func (c *Consumer) Start(ctx context.Context) error {
	ch, err := c.rmq.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open consumer channel: %w", err)
	}

	queue, err := ch.QueueDeclare(
		"",    // auto-generated name
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	if err := ch.QueueBind(
		queue.Name,     // queue name
		c.bindingKey,   // routing key
		EventsExchange, // exchange
		false,
		nil,
	); err != nil {
		ch.Close()
		return fmt.Errorf("failed to bind queue: %w", err)
	}

	msgs, err := ch.Consume(
		queue.Name, // queue
		"",         // consumer
		true,       // auto-ack
		true,       // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		ch.Close()
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	slog.Info("started consuming storefront events",
		slog.String("queue", queue.Name),
		slog.String("binding_key", c.bindingKey))

	go func() {
		defer ch.Close()
		for {
			select {
			case <-ctx.Done():
				slog.Info("stopping event consumer")
				return
			case msg, ok := <-msgs:
				if !ok {
					slog.Warn("event consumer channel closed")
					return
				}

				var e events.Event
				if err := json.Unmarshal(msg.Body, &e); err != nil {
					slog.Error("error unmarshaling event",
						slog.String("error", err.Error()),
						slog.String("routing_key", msg.RoutingKey))
					continue
				}
				c.handle(ctx, e)
			}
		}
	}()

	return nil
}
