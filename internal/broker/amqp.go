// Package broker moves click events between the api service and the
// analytics worker over RabbitMQ or NATS JetStream.
package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rabbitmq/amqp091-go"

	"github.com/MagnunAVF/shortener-core/internal"
	"github.com/MagnunAVF/shortener-core/internal/analytics"
	"github.com/MagnunAVF/shortener-core/internal/logger"
)

// AMQPChannel is the part of *amqp091.Channel the publisher uses.
type AMQPChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
}

type AMQPPublisher struct {
	ch    AMQPChannel
	queue string
}

func NewAMQPPublisher(ch AMQPChannel, queue string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, queue: queue}
}

// Publish sends ev to the click queue through the default exchange.
func (p *AMQPPublisher) Publish(ctx context.Context, ev *internal.ClickEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal click event: %w", err)
	}
	err = p.ch.PublishWithContext(ctx, "", p.queue, false, false, amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    ev.ID.String(),
		Timestamp:    ev.ClickedAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish click event: %w", err)
	}
	return nil
}

// DeclareClickQueue makes sure the durable click queue exists.
func DeclareClickQueue(ch *amqp091.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,   // args
	)
	if err != nil {
		return fmt.Errorf("declare queue %q: %w", name, err)
	}
	return nil
}

// ConsumeAMQP starts consuming the click queue with manual acks. The worker
// holds at most prefetch unacknowledged deliveries.
func ConsumeAMQP(ctx context.Context, ch *amqp091.Channel, queue string, prefetch int) (<-chan analytics.Message, error) {
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("set qos: %w", err)
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("register consumer: %w", err)
	}
	return amqpMessages(ctx, deliveries), nil
}

// amqpMessages decodes deliveries. Undecodable ones are rejected without
// requeue so they cannot loop forever.
func amqpMessages(ctx context.Context, deliveries <-chan amqp091.Delivery) <-chan analytics.Message {
	out := make(chan analytics.Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					logger.Default().Warn("RabbitMQ channel closed")
					return
				}
				var ev internal.ClickEvent
				if err := json.Unmarshal(d.Body, &ev); err != nil {
					logger.Default().Error("Error decoding message. Rejecting.", "err", err)
					_ = d.Reject(false)
					continue
				}
				msg := analytics.Message{
					Event: ev,
					Ack:   func() { _ = d.Ack(false) },
					Nack:  func() { _ = d.Nack(false, true) },
				}
				select {
				case out <- msg:
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()
	return out
}
