package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/common"
	"github.com/OFFIS-RIT/kiwi/entitygraph/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rabbitmq/amqp091-go"
)

var ErrMalformedEvent = errors.New("malformed event")

// HandlerFunc processes one decoded event. A returned error sends the
// message to the retry queue.
type HandlerFunc func(ctx context.Context, event common.Event) error

// ChannelHandler forwards events to ch, blocking until the receiver takes
// them or ctx ends.
func ChannelHandler(ch chan<- common.Event) HandlerFunc {
	return func(ctx context.Context, event common.Event) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ch <- event:
			return nil
		}
	}
}

// Channel is the part of *amqp091.Channel the consumer uses.
type Channel interface {
	Publisher
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
}

// Consumer reads events from one queue.
type Consumer struct {
	ch         Channel
	queue      string
	maxRetries int
	handler    HandlerFunc
}

func NewConsumer(ch Channel, queueName string, maxRetries int, handler HandlerFunc) *Consumer {
	return &Consumer{
		ch:         ch,
		queue:      queueName,
		maxRetries: maxRetries,
		handler:    handler,
	}
}

// DecodeEvent parses a message body. The routing key stands in for a
// missing type.
func DecodeEvent(d amqp091.Delivery) (common.Event, error) {
	var event common.Event
	dec := json.NewDecoder(bytes.NewReader(d.Body))
	if err := dec.Decode(&event); err != nil {
		return common.Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if event.Type == "" {
		event.Type = d.RoutingKey
	}
	if event.Type == "" {
		return common.Event{}, fmt.Errorf("%w: missing type", ErrMalformedEvent)
	}
	if event.ProjectID == "" {
		return common.Event{}, fmt.Errorf("%w: missing project_id", ErrMalformedEvent)
	}
	return event, nil
}

// Run consumes until ctx ends or the broker closes the delivery channel.
func (c *Consumer) Run(ctx context.Context) error {
	if err := c.ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}
	id, err := gonanoid.New(8)
	if err != nil {
		return fmt.Errorf("failed to generate consumer tag: %w", err)
	}
	tag := fmt.Sprintf("%s_consumer_%s", c.queue, id)

	msgs, err := c.ch.Consume(
		c.queue,
		tag,
		false, // autoAck
		false, // exclusive
		false, // noLocal
		false, // noWait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", c.queue, err)
	}
	logger.Info("[Queue] Listening for events", "queue", c.queue, "consumer", tag)

	for {
		select {
		case <-ctx.Done():
			logger.Info("[Queue] Stopping consumer", "queue", c.queue)
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel of %s closed", c.queue)
			}
			c.Handle(ctx, msg)
		}
	}
}

// Handle decodes and processes one delivery and settles it. Malformed
// messages go straight to the dead letter queue, failed ones to the retry
// queue until maxRetries is reached.
func (c *Consumer) Handle(ctx context.Context, msg amqp091.Delivery) {
	event, err := DecodeEvent(msg)
	if err != nil {
		logger.Warn("[Queue] Dropping malformed event", "queue", c.queue, "err", err)
		c.deadLetter(ctx, msg)
		return
	}

	if err := c.handler(ctx, event); err != nil {
		if ctx.Err() != nil {
			// shutting down, let the broker redeliver
			msg.Nack(false, true)
			return
		}
		logger.Error("[Queue] Error processing event", "queue", c.queue, "type", event.Type, "err", err)
		c.retry(ctx, msg)
		return
	}

	if err := msg.Ack(false); err != nil {
		logger.Error("[Queue] Failed to ack message", "err", err)
	}
}

// Retries returns the x-retries header of msg.
func Retries(msg amqp091.Delivery) int {
	switch v := msg.Headers["x-retries"].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (c *Consumer) retry(ctx context.Context, msg amqp091.Delivery) {
	retries := Retries(msg)
	if retries >= c.maxRetries {
		c.deadLetter(ctx, msg)
		return
	}

	headers := amqp091.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers["x-retries"] = int32(retries + 1)

	c.forward(ctx, msg, RetryQueue(c.queue), headers)
}

func (c *Consumer) deadLetter(ctx context.Context, msg amqp091.Delivery) {
	logger.Info("[Queue] Sending message to DLQ", "dlq", DeadLetterQueue(c.queue))
	c.forward(ctx, msg, DeadLetterQueue(c.queue), msg.Headers)
}

func (c *Consumer) forward(ctx context.Context, msg amqp091.Delivery, queueName string, headers amqp091.Table) {
	err := c.ch.PublishWithContext(ctx, "", queueName, false, false, amqp091.Publishing{
		ContentType:  msg.ContentType,
		Body:         msg.Body,
		Headers:      headers,
		DeliveryMode: amqp091.Persistent,
		MessageId:    msg.MessageId,
	})
	if err != nil {
		logger.Error("[Queue] Failed to forward message", "queue", queueName, "err", err)
		msg.Nack(false, true)
		return
	}
	msg.Ack(false)
}
