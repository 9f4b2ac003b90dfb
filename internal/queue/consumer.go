// Package queue carries catalog updates in from RabbitMQ and sale
// notifications out to it.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	DefaultCatalogQueue = "catalog.updates"
	DefaultSalesQueue   = "sales.completed"

	minBackoff = time.Second
	maxBackoff = 30 * time.Second
)

// CatalogUpdate is the body of a catalog.updates message. A missing or zero
// event_id invalidates the whole catalog.
type CatalogUpdate struct {
	Type    string `json:"type,omitempty"`
	EventID int64  `json:"event_id"`
}

type CatalogHandler func(ctx context.Context, eventID int64) error

type CatalogConsumer struct {
	url     string
	queue   string
	handler CatalogHandler
	logger  *slog.Logger
}

func NewCatalogConsumer(url, queue string, handler CatalogHandler, logger *slog.Logger) *CatalogConsumer {
	if queue == "" {
		queue = DefaultCatalogQueue
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &CatalogConsumer{
		url:     url,
		queue:   queue,
		handler: handler,
		logger:  logger.With("component", "catalog-consumer", "queue", queue),
	}
}

// Run dials the broker and consumes until ctx is done, reconnecting with
// exponential backoff whenever the connection drops.
func (c *CatalogConsumer) Run(ctx context.Context) error {
	backoff := minBackoff

	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("dial failed", "err", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff)
			continue
		}
		backoff = minBackoff

		err = c.consume(ctx, conn)
		_ = conn.Close()

		if ctx.Err() != nil {
			return nil
		}

		c.logger.Warn("consume loop ended, reconnecting", "err", err)
		if !sleep(ctx, 2*time.Second) {
			return nil
		}
	}
}

func (c *CatalogConsumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.logger.Warn("set qos failed", "err", err)
	}

	if _, err := ch.QueueDeclare(c.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	c.logger.Info("consuming")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}

			if err := c.handle(ctx, d.Body); err != nil {
				c.logger.Warn("message rejected", "err", err)
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *CatalogConsumer) handle(ctx context.Context, body []byte) error {
	var msg CatalogUpdate
	if err := json.Unmarshal(body, &msg); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	if msg.EventID < 0 {
		return fmt.Errorf("invalid event id %d", msg.EventID)
	}

	return c.handler(ctx, msg.EventID)
}

func nextBackoff(d time.Duration) time.Duration {
	return min(d*2, maxBackoff)
}

// sleep waits for d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
