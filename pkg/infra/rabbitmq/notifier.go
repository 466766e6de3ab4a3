// Package rabbitmq publishes order lifecycle notifications to a topic
// exchange. Delivery is fire-and-forget: the core logs a failed publish
// and moves on.
package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	ExchangeName = "orderflow_events"
	ExchangeType = "topic"
)

// SetupConn handles the connection and exchange declaration.
func SetupConn(url string, log *zap.Logger) (*amqp.Connection, *amqp.Channel, error) {
	var conn *amqp.Connection
	var err error

	// Simple retry logic for container startup
	for i := 0; i < 5; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		log.Warn("failed to connect to RabbitMQ",
			zap.Int("attempt", i+1), zap.Error(err))
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		ExchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}

	return conn, ch, nil
}

// Notifier implements domain.Notifier on an AMQP channel. The event
// name doubles as the routing key, so consumers bind with patterns like
// "order.*" or "payment.failed".
type Notifier struct {
	ch *amqp.Channel
}

// NewNotifier creates a new Notifier.
func NewNotifier(ch *amqp.Channel) *Notifier {
	return &Notifier{ch: ch}
}

func (n *Notifier) Notify(ctx context.Context, event string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("could not marshal %s payload: %w", event, err)
	}

	return n.ch.PublishWithContext(ctx,
		ExchangeName, // exchange
		event,        // routing key
		false,        // mandatory
		false,        // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   time.Now(),
			Body:        body,
		},
	)
}
