// Package messaging publishes storefront state changes to RabbitMQ so other services
// can follow the shopper's session, cart and wishlist.
package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"velancis-storefront/internal/events"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// EventsExchange is the topic exchange events are published to; the routing key is the
// event type, e.g. "cart.changed".
const EventsExchange = "storefront.events"

const retryDelay = 2 * time.Second

var ErrClosed = errors.New("rabbitmq connection is closed")

type RabbitMQ struct {
	conn    *amqp.Connection
	channel *amqp.Channel

	// amqp channels are not safe for concurrent publishing
	mu sync.Mutex
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	rmq := &RabbitMQ{
		conn:    conn,
		channel: ch,
	}

	if err := rmq.Setup(); err != nil {
		rmq.Close()
		return nil, err
	}

	return rmq, nil
}

// NewRabbitMQWithRetry keeps dialing until it connects or ctx ends
func NewRabbitMQWithRetry(ctx context.Context, url string) (*RabbitMQ, error) {
	attempt := 0
	for {
		attempt++
		rmq, err := NewRabbitMQ(url)
		if err == nil {
			return rmq, nil
		}

		slog.Warn("rabbitmq not reachable, retrying",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("giving up on rabbitmq after %d attempts: %w", attempt, err)
		case <-time.After(retryDelay):
		}
	}
}

func (r *RabbitMQ) Setup() error {
	if err := r.channel.ExchangeDeclare(
		EventsExchange, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	); err != nil {
		return fmt.Errorf("failed to declare events exchange: %w", err)
	}

	slog.Info("rabbitmq setup completed successfully")
	return nil
}

// Name identifies the publisher as an event sink
func (r *RabbitMQ) Name() string {
	return "rabbitmq"
}

// Deliver publishes e with its type as routing key
func (r *RabbitMQ) Deliver(ctx context.Context, e events.Event) error {
	if r.IsClosed() {
		return ErrClosed
	}

	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	r.mu.Lock()
	err = r.channel.PublishWithContext(
		ctx,
		EventsExchange,
		string(e.Type),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			MessageId:    uuid.NewString(),
			Type:         string(e.Type),
			Timestamp:    e.At,
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	r.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", e.Type, err)
	}

	slog.Debug("published storefront event",
		slog.String("type", string(e.Type)))
	return nil
}

func (r *RabbitMQ) IsClosed() bool {
	return r.conn == nil || r.conn.IsClosed()
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
