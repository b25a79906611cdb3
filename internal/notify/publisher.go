package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/datingchat-server/internal/observability"
)

// RoutingKeyOffline carries messages whose recipient had no live connection.
const RoutingKeyOffline = "messages.offline"

// OfflineMessage is published so an external notifier can reach an offline recipient.
type OfflineMessage struct {
	MessageID int64     `json:"message_id"`
	Sender    string    `json:"sender"`
	Recipient string    `json:"recipient"`
	Preview   string    `json:"preview"`
	SentAt    time.Time `json:"sent_at"`
}

// Publisher pushes events to the message broker.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher connects to RabbitMQ, or returns a noop publisher when the URL
// is empty or the broker is unreachable. Startup never fails on the broker.
func NewPublisher(amqpURL, exchange string, logger *zerolog.Logger) Publisher {
	l := logger.With().Str("component", "notify").Logger()

	if amqpURL == "" {
		l.Info().Msg("broker disabled, using noop publisher")
		return &noopPublisher{log: &l, reason: "empty amqp url"}
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		l.Warn().Err(err).Msg("broker unreachable, using noop publisher")
		return &noopPublisher{log: &l, reason: err.Error()}
	}

	ch, err := conn.Channel()
	if err != nil {
		l.Warn().Err(err).Msg("open channel failed, using noop publisher")
		_ = conn.Close()
		return &noopPublisher{log: &l, reason: err.Error()}
	}

	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		l.Warn().Err(err).Str("exchange", exchange).Msg("declare exchange failed, using noop publisher")
		_ = ch.Close()
		_ = conn.Close()
		return &noopPublisher{log: &l, reason: err.Error()}
	}

	l.Info().Str("exchange", exchange).Msg("broker connected")
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange, log: &l}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	log      *zerolog.Logger
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		observability.IncAMQPPublishError()
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

type noopPublisher struct {
	log    *zerolog.Logger
	reason string
}

func (p *noopPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	p.log.Debug().Str("routing_key", routingKey).Str("reason", p.reason).Msg("noop publish")
	return nil
}

func (p *noopPublisher) Close() error {
	return nil
}

// Mode reports which publisher is active, for startup logging.
func Mode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case *noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}
