package events

import (
	"context"
	"errors"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const contentTypeJSON = "application/json"

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes events as persistent messages to a durable queue.
type AMQPPublisher struct {
	connection *amqp.Connection
	channel    amqpChannel
	queue      string
}

// DialAMQP connects to url and declares queue.
func DialAMQP(url string, queue string) (*AMQPPublisher, error) {
	if queue == "" {
		return nil, errors.New("events: amqp queue is required")
	}
	connection, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("events: amqp dial: %w", err)
	}
	channel, err := connection.Channel()
	if err != nil {
		_ = connection.Close()
		return nil, fmt.Errorf("events: amqp channel: %w", err)
	}
	if _, err := channel.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = channel.Close()
		_ = connection.Close()
		return nil, fmt.Errorf("events: amqp declare %s: %w", queue, err)
	}
	return &AMQPPublisher{connection: connection, channel: channel, queue: queue}, nil
}

func (publisher *AMQPPublisher) Publish(ctx context.Context, event Event) error {
	body, err := event.encode()
	if err != nil {
		return fmt.Errorf("events: encode: %w", err)
	}
	message := amqp.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp.Persistent,
		Timestamp:    event.OccurredAt,
		Type:         event.Type,
		MessageId:    event.MerchantRef + ":" + event.Type,
		Body:         body,
	}
	if err := publisher.channel.PublishWithContext(ctx, "", publisher.queue, false, false, message); err != nil {
		return fmt.Errorf("events: amqp publish: %w", err)
	}
	return nil
}

// Close releases the channel and connection.
func (publisher *AMQPPublisher) Close() error {
	var closeErrors []error
	if publisher.channel != nil {
		closeErrors = append(closeErrors, publisher.channel.Close())
	}
	if publisher.connection != nil {
		closeErrors = append(closeErrors, publisher.connection.Close())
	}
	return errors.Join(closeErrors...)
}
