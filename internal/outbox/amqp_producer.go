package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
)

// AMQPProducer publishes outbox messages to a RabbitMQ topic exchange, using the outbox
// topic as the routing key.
type AMQPProducer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

// NewAMQPProducer dials url and declares a durable topic exchange.
func NewAMQPProducer(url, exchange string) (*AMQPProducer, error) {
	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	return &AMQPProducer{conn: conn, channel: channel, exchange: exchange}, nil
}

// WriteMessages publishes each message persistently; headers are copied into the AMQP
// header table and the partition key becomes the message id.
func (p *AMQPProducer) WriteMessages(ctx context.Context, topic string, msgs ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	for _, msg := range msgs {
		if err := p.channel.PublishWithContext(ctx, p.exchange, topic, false, false, toPublishing(msg)); err != nil {
			return fmt.Errorf("publish message: %w", err)
		}
	}
	return nil
}

func toPublishing(msg kafka.Message) amqp091.Publishing {
	headers := amqp091.Table{}
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	ts := msg.Time
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    ts,
		MessageId:    string(msg.Key),
		Headers:      headers,
		Body:         msg.Value,
	}
}

// Close releases the channel and connection.
func (p *AMQPProducer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
