// Package broker fans analytics events out to RabbitMQ so downstream
// consumers (journals, alerting) can follow the stream without touching the
// HTTP surface. Publishing is optional: a nil *Publisher is a no-op.
package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"longtrade/internal/application/service/indicator"
	"longtrade/internal/config"
	domain "longtrade/internal/domain/entity/orders"
)

// Publisher pushes indicator snapshots and order records to fanout exchanges.
type Publisher struct {
	cfg    config.RabbitConfig
	logger *logrus.Logger

	conn *amqp.Connection

	mu      sync.Mutex
	channel *amqp.Channel
}

// NewPublisher dials RabbitMQ and declares both fanout exchanges.
func NewPublisher(cfg config.RabbitConfig, logger *logrus.Logger) (*Publisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("rabbitmq url is required")
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("create channel: %w", err)
	}

	for _, name := range []string{cfg.IndicatorsExchange, cfg.OrdersExchange} {
		if name == "" {
			ch.Close()
			conn.Close()
			return nil, errors.New("exchange name cannot be empty")
		}
		if err := ch.ExchangeDeclare(name, "fanout", true, false, false, false, nil); err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("declare exchange %s: %w", name, err)
		}
	}

	logger.Infof("rabbitmq publisher started: exchanges=%s,%s", cfg.IndicatorsExchange, cfg.OrdersExchange)
	return &Publisher{
		cfg:     cfg,
		logger:  logger,
		conn:    conn,
		channel: ch,
	}, nil
}

// Close releases the channel and connection.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.channel.Close(); err != nil {
		p.logger.Errorf("close rabbitmq channel: %v", err)
	}
	if err := p.conn.Close(); err != nil {
		p.logger.Errorf("close rabbitmq connection: %v", err)
	}
}

// PublishSnapshots sends the current indicator state for every tracked
// ticker as one message.
func (p *Publisher) PublishSnapshots(ctx context.Context, snapshots []indicator.Snapshot) error {
	if p == nil {
		return nil
	}
	return p.publish(ctx, p.cfg.IndicatorsExchange, snapshots)
}

// PublishOrder sends one order lifecycle record.
func (p *Publisher) PublishOrder(ctx context.Context, record *domain.Record) error {
	if p == nil || record == nil {
		return nil
	}
	return p.publish(ctx, p.cfg.OrdersExchange, record)
}

func (p *Publisher) publish(ctx context.Context, exchange string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	return p.channel.PublishWithContext(ctx, exchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
}
