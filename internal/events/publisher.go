// Package events publishes domain events to a RabbitMQ topic exchange after
// the corresponding state change has been committed.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Routing keys.
const (
	FriendRequestCreated = "friend.request.created"
	FriendshipCreated    = "friendship.created"
	FriendshipRemoved    = "friendship.removed"
	MessageCreated       = "message.created"
	CallEnded            = "call.ended"
)

// Event is the envelope written to the exchange.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// Publisher delivers domain events. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, payload any) error
	Close() error
}

type amqpPublisher struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	mu       sync.Mutex
}

// NewAMQPPublisher dials RabbitMQ and declares exchange as a durable topic exchange.
func NewAMQPPublisher(amqpURL, exchange string) (Publisher, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &amqpPublisher{conn: conn, channel: ch, exchange: exchange}, nil
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	body, err := Encode(routingKey, payload, time.Now().UTC())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel == nil {
		return amqp.ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.channel.PublishWithContext(ctx,
		p.exchange,
		routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			Timestamp:    time.Now(),
			DeliveryMode: amqp.Persistent,
		},
	)
}

func (p *amqpPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
	return nil
}

// Encode builds the JSON envelope for one event.
func Encode(routingKey string, payload any, at time.Time) ([]byte, error) {
	body, err := json.Marshal(Event{
		ID:         uuid.NewString(),
		Type:       routingKey,
		OccurredAt: at,
		Payload:    payload,
	})
	if err != nil {
		return nil, fmt.Errorf("encode %s event: %w", routingKey, err)
	}
	return body, nil
}

type noopPublisher struct {
	logger *slog.Logger
}

// NewNoopPublisher returns a publisher that drops events. It is used when no
// broker is configured.
func NewNoopPublisher(logger *slog.Logger) Publisher {
	return &noopPublisher{logger: logger}
}

func (n *noopPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	n.logger.Debug("event broker not configured, dropping event", "event", routingKey)
	return nil
}

func (n *noopPublisher) Close() error { return nil }

// Emit publishes and logs a failure instead of returning it. Domain events are
// emitted after commit, so a broker outage must not fail the operation.
func Emit(ctx context.Context, p Publisher, logger *slog.Logger, routingKey string, payload any) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, routingKey, payload); err != nil {
		logger.Warn("failed to publish event", "event", routingKey, "error", err)
	}
}
