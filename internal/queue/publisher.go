package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	redisx "github.com/kirinyoku/tix-checkout/internal/redis"
)

// SalesPublisher sends sale-completed notifications to a durable queue on
// the default exchange. The connection is opened lazily and reopened after
// a failed publish.
type SalesPublisher struct {
	url    string
	queue  string
	logger *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
	ch   *amqp.Channel
}

func NewSalesPublisher(url, queue string, logger *slog.Logger) *SalesPublisher {
	if queue == "" {
		queue = DefaultSalesQueue
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &SalesPublisher{
		url:    url,
		queue:  queue,
		logger: logger.With("component", "sales-publisher", "queue", queue),
	}
}

func (p *SalesPublisher) PublishSaleCompleted(ctx context.Context, msg redisx.SaleCompleted) error {
	const op = "queue.SalesPublisher.PublishSaleCompleted"

	pub, err := salePublishing(msg, time.Now())
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, err := p.channel()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	if err := ch.PublishWithContext(ctx, "", p.queue, false, false, pub); err != nil {
		p.reset()
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (p *SalesPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.reset()

	return nil
}

func (p *SalesPublisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}

	p.reset()

	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("channel open: %w", err)
	}

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}

	p.conn, p.ch = conn, ch

	return ch, nil
}

func (p *SalesPublisher) reset() {
	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func salePublishing(msg redisx.SaleCompleted, now time.Time) (amqp.Publishing, error) {
	msg.Type = "sale_completed"
	if msg.TsUnix == 0 {
		msg.TsUnix = now.Unix()
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, err
	}

	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.LocalID,
		Timestamp:    now.UTC(),
		Body:         body,
	}, nil
}
