package push

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPSender publishes notification payloads to a RabbitMQ exchange
// consumed by the push-delivery transport.
type AMQPSender struct {
	url        string
	exchange   string
	routingKey string

	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
}

// AMQPConfig wires the sender.
type AMQPConfig struct {
	URL        string
	Exchange   string
	RoutingKey string
}

// NewAMQPSender connects and declares the exchange.
func NewAMQPSender(cfg AMQPConfig) (*AMQPSender, error) {
	url := strings.TrimSpace(cfg.URL)
	if url == "" {
		return nil, fmt.Errorf("amqp url required")
	}
	exchange := strings.TrimSpace(cfg.Exchange)
	if exchange == "" {
		exchange = "confessly.push"
	}
	routingKey := strings.TrimSpace(cfg.RoutingKey)
	if routingKey == "" {
		routingKey = "notification"
	}
	s := &AMQPSender{url: url, exchange: exchange, routingKey: routingKey}
	if err := s.connect(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *AMQPSender) connect() error {
	conn, err := amqp.Dial(s.url)
	if err != nil {
		return fmt.Errorf("dial amqp: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(s.exchange, "topic", true, false, false, false, nil); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("declare exchange: %w", err)
	}
	s.conn = conn
	s.channel = channel
	return nil
}

// Send publishes the payload, reconnecting once on a closed connection.
func (s *AMQPSender) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.publish(ctx, body); err != nil {
		if reconnErr := s.connect(); reconnErr != nil {
			return fmt.Errorf("publish notification: %w", err)
		}
		return s.publish(ctx, body)
	}
	return nil
}

func (s *AMQPSender) publish(ctx context.Context, body []byte) error {
	return s.channel.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
}

// Close tears down the channel and connection.
func (s *AMQPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.channel != nil {
		_ = s.channel.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}
