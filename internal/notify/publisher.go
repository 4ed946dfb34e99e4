package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

type Publisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
	Close()
}

type amqpChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp091.Publishing) error
	Close() error
}

// AMQPPublisher publishes JSON messages to one durable topic exchange. A
// failed publish reopens the channel and retries once.
type AMQPPublisher struct {
	exchange string
	logger   *slog.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel amqpChannel
	reopen  func() (amqpChannel, error)
}

func NewAMQPPublisher(rawURL, exchange string, logger *slog.Logger) (*AMQPPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(rawURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	p := &AMQPPublisher{exchange: exchange, logger: logger, conn: conn, channel: ch}
	p.reopen = func() (amqpChannel, error) { return conn.Channel() }
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		p.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return p, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", routingKey, err)
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}
	p.logger.Warn("publish failed; reopening channel", "exchange", p.exchange, "routing_key", routingKey, "error", err)
	if p.reopen == nil {
		return err
	}
	ch, chErr := p.reopen()
	if chErr != nil {
		return errors.Join(err, chErr)
	}
	p.channel = ch
	if exErr := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); exErr != nil {
		return errors.Join(err, exErr)
	}
	return ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

func (p *AMQPPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// LogPublisher stands in when no broker is configured or reachable. Messages
// are logged and dropped; the payload is only logged when withPayload is set,
// since OTP codes travel in it.
type LogPublisher struct {
	logger      *slog.Logger
	withPayload bool
}

func NewLogPublisher(logger *slog.Logger, withPayload bool) *LogPublisher {
	return &LogPublisher{logger: logger, withPayload: withPayload}
}

func (p *LogPublisher) Publish(_ context.Context, routingKey string, body any) error {
	if !p.withPayload {
		p.logger.Warn("publish skipped; no message broker", "routing_key", routingKey, "body_type", fmt.Sprintf("%T", body))
		return nil
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", routingKey, err)
	}
	p.logger.Warn("publish skipped; no message broker", "routing_key", routingKey, "payload", string(payload))
	return nil
}

func (p *LogPublisher) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
