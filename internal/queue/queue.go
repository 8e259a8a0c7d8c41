// Package queue connects the graph service to the domain event feed on
// RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/kiwi/entitygraph/internal/util"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/common"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rabbitmq/amqp091-go"
)

const retryDelay = 10 * time.Second

// Publisher is the part of *amqp091.Channel used to send messages.
type Publisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

// Init dials the broker, retrying with backoff until maxTries is reached.
func Init(ctx context.Context, url string, maxTries int) (*amqp091.Connection, error) {
	conn, err := util.RetryWithBackoff(ctx, maxTries, util.ExponentialBackoff(time.Second, 30*time.Second),
		func(context.Context) (*amqp091.Connection, error) {
			conn, err := amqp091.Dial(url)
			if err != nil {
				logger.Warn("[Queue] Failed to connect to RabbitMQ, retrying", "err", err)
			}
			return conn, err
		})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	return conn, nil
}

// SetupEventQueues declares the topic exchange, the consumer queue bound to
// routingKeys and its retry and dead letter queues. Messages in the retry
// queue return to the consumer queue after retryDelay.
func SetupEventQueues(ch *amqp091.Channel, exchange, queueName string, routingKeys []string) error {
	err := ch.ExchangeDeclare(
		exchange,
		"topic",
		true,  // durable
		false, // autoDelete
		false, // internal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}

	queues := []struct {
		name string
		args amqp091.Table
	}{
		{name: queueName},
		{name: DeadLetterQueue(queueName)},
		{name: RetryQueue(queueName), args: amqp091.Table{
			"x-message-ttl":             int32(retryDelay / time.Millisecond),
			"x-dead-letter-exchange":    "",
			"x-dead-letter-routing-key": queueName,
		}},
	}
	for _, q := range queues {
		if _, err := ch.QueueDeclare(q.name, true, false, false, false, q.args); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", q.name, err)
		}
	}

	for _, key := range routingKeys {
		if err := ch.QueueBind(queueName, key, exchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", queueName, key, err)
		}
	}
	logger.Info("[Queue] Declared event queues", "exchange", exchange, "queue", queueName, "routing_keys", routingKeys)
	return nil
}

func DeadLetterQueue(queueName string) string {
	return queueName + "_dlq"
}

func RetryQueue(queueName string) string {
	return queueName + "_retry"
}

// PublishEvent sends event to exchange with its type as routing key.
func PublishEvent(ctx context.Context, ch Publisher, exchange string, event common.Event) error {
	if event.Type == "" || event.ProjectID == "" {
		return fmt.Errorf("event needs a type and a project id")
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	id, err := gonanoid.New()
	if err != nil {
		return fmt.Errorf("failed to generate message id: %w", err)
	}

	err = ch.PublishWithContext(ctx, exchange, event.Type, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp091.Persistent,
		MessageId:    id,
		Timestamp:    event.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	logger.Debug("[Queue] Published event", "type", event.Type, "project_id", event.ProjectID, "message_id", id)
	return nil
}
