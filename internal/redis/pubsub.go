package redisx

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// PubSub carries catalog-changed notifications in and sale-completed
// notifications out.
type PubSub struct {
	rdb *redis.Client
}

func NewPubSub(rdb *redis.Client) *PubSub {
	return &PubSub{rdb: rdb}
}

// CatalogChanged is published by the catalog owner. EventID == 0 means
// every event changed.
type CatalogChanged struct {
	Type    string `json:"type"`
	EventID int64  `json:"event_id"`
	TsUnix  int64  `json:"ts_unix"`
}

type SaleCompleted struct {
	Type        string `json:"type"`
	LocalID     string `json:"local_id"`
	AuthorityID *int64 `json:"authority_id,omitempty"`
	EventID     int64  `json:"event_id"`
	UserID      int64  `json:"user_id"`
	SeatCount   int    `json:"seat_count"`
	TsUnix      int64  `json:"ts_unix"`
}

func (p *PubSub) PublishCatalogChanged(ctx context.Context, eventID int64) error {
	msg := CatalogChanged{
		Type:    "catalog_changed",
		EventID: eventID,
		TsUnix:  time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, ChannelCatalogChanged(), b).Err()
}

func (p *PubSub) PublishSaleCompleted(ctx context.Context, msg SaleCompleted) error {
	msg.Type = "sale_completed"
	if msg.TsUnix == 0 {
		msg.TsUnix = time.Now().Unix()
	}

	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return p.rdb.Publish(ctx, ChannelSalesCompleted(), b).Err()
}

// SubscribeCatalogChanged blocks until ctx is done, calling handler for
// every well-formed message.
func (p *PubSub) SubscribeCatalogChanged(
	ctx context.Context,
	handler func(ctx context.Context, eventID int64),
) error {
	sub := p.rdb.Subscribe(ctx, ChannelCatalogChanged())
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev CatalogChanged
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil {
				handler(ctx, ev.EventID)
			}
		}
	}
}
