// ABOUTME: AMQP transport publishing events to a durable topic exchange
// ABOUTME: Routing keys come from the target so external consumers can bind per conversation or agent

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPTransport publishes events to a RabbitMQ topic exchange. Each target
// maps to a routing key (see Target.Key), so downstream consumers can bind
// to a single conversation, a single agent, or the whole agent population.
type AMQPTransport struct {
	conn     *amqp.Connection
	exchange string
	logger   *slog.Logger
}

// NewAMQPTransport connects to the broker and declares the exchange. The
// exchange is a durable topic exchange; redeclaring an existing one with the
// same properties is a no-op on the broker side.
func NewAMQPTransport(url, exchange string, logger *slog.Logger) (*AMQPTransport, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to AMQP broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	err = ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %q: %w", exchange, err)
	}

	logger.Info("AMQP transport connected", "exchange", exchange)

	return &AMQPTransport{
		conn:     conn,
		exchange: exchange,
		logger:   logger.With("component", "amqp"),
	}, nil
}

// Deliver publishes one event with the target's routing key. A fresh channel
// is opened per publish; channels are cheap and this keeps one slow publish
// from wedging the rest.
func (t *AMQPTransport) Deliver(ctx context.Context, target Target, event Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ch, err := t.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	err = ch.PublishWithContext(ctx,
		t.exchange,
		target.Key(),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     event.Meta.ID,
			CorrelationId: event.Meta.CorrelationID,
			Timestamp:     event.Meta.OccurredAt,
			Type:          string(event.Meta.Type),
			Body:          body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish event %s: %w", event.Meta.ID, err)
	}

	return nil
}

// Close closes the broker connection.
func (t *AMQPTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	return t.conn.Close()
}

var _ Transport = (*AMQPTransport)(nil)
