package events

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	rabbitExchangeType = "topic"
	rabbitDialAttempts = 5
	rabbitDialBackoff  = 2 * time.Second
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitMQPublisher publishes to a topic exchange using the event type as
// routing key.
type RabbitMQPublisher struct {
	conn     *amqp.Connection
	ch       amqpChannel
	exchange string
}

// DialRabbitMQ connects with a short retry loop, declares the durable topic
// exchange and returns a publisher on a fresh channel.
func DialRabbitMQ(ctx context.Context, url, exchange string, logger *zap.Logger) (*RabbitMQPublisher, error) {
	var conn *amqp.Connection
	var err error
	for attempt := 1; attempt <= rabbitDialAttempts; attempt++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		logger.Warn("connect to rabbitmq", zap.Int("attempt", attempt), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(rabbitDialBackoff):
		}
	}
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,
		rabbitExchangeType,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	return &RabbitMQPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, msg Message) error {
	headers := amqpHeaders{}
	injectTrace(ctx, headers)

	err := p.ch.PublishWithContext(ctx,
		p.exchange,
		msg.Type,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp.Persistent,
			MessageId:     msg.ID,
			CorrelationId: msg.Key,
			Type:          msg.Type,
			Timestamp:     msg.CreatedAt,
			Headers:       amqp.Table(headers),
			Body:          msg.Payload,
		},
	)
	if err != nil {
		return fmt.Errorf("publish rabbitmq message %s: %w", msg.ID, err)
	}
	return nil
}

func (p *RabbitMQPublisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// amqpHeaders adapts a publishing header table to propagation.TextMapCarrier.
type amqpHeaders map[string]any

func (h amqpHeaders) Get(key string) string {
	v, _ := h[key].(string)
	return v
}

func (h amqpHeaders) Set(key, value string) {
	h[key] = value
}

func (h amqpHeaders) Keys() []string {
	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	return keys
}
