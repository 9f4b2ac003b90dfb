package redisrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/kirinyoku/tix-checkout/internal/domain"
	redisx "github.com/kirinyoku/tix-checkout/internal/redis"
	"github.com/redis/go-redis/v9"
)

// Status tags written by the occupancy feeder.
const (
	feederLocked = "Bloqueado"
	feederSold   = "Vendido"
)

type occupancyDoc struct {
	EventID int64           `json:"eventoId"`
	Seats   []occupancySeat `json:"asientos"`
}

type occupancySeat struct {
	Row     int    `json:"fila"`
	Column  int    `json:"columna"`
	Status  string `json:"estado"`
	Expires string `json:"expira,omitempty"`
}

// OccupancyReader reads the per-event seat occupancy document another
// process keeps in Redis. A missing document means no seat is occupied.
type OccupancyReader struct {
	rdb     *redis.Client
	timeout time.Duration
}

func NewOccupancyReader(rdb *redis.Client, timeout time.Duration) *OccupancyReader {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &OccupancyReader{rdb: rdb, timeout: timeout}
}

// OccupiedSeats returns every seat listed for the event, whatever its status.
//
// Returns:
//   - []domain.OccupiedSeat: listed seats; empty if the event has no document.
//   - error: wraps redisrepo.ErrOracleUnavailable on Redis or decoding failures.
func (r *OccupancyReader) OccupiedSeats(ctx context.Context, eventID int64) ([]domain.OccupiedSeat, error) {
	const op = "redisrepo.OccupancyReader.OccupiedSeats"

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.rdb.Get(ctx, redisx.KeyOccupancy(eventID)).Result()
	if err == redis.Nil {
		return []domain.OccupiedSeat{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrOracleUnavailable, err)
	}

	var doc occupancyDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%s: %w: decode: %w", op, ErrOracleUnavailable, err)
	}

	out := make([]domain.OccupiedSeat, 0, len(doc.Seats))
	for _, s := range doc.Seats {
		o := domain.OccupiedSeat{
			Row:    s.Row,
			Column: s.Column,
			Status: feederStatus(s.Status),
		}
		if s.Expires != "" {
			if t, err := time.Parse(time.RFC3339Nano, s.Expires); err == nil {
				o.ExpiresAt = &t
			}
		}
		out = append(out, o)
	}

	return out, nil
}

func feederStatus(s string) domain.SeatStatus {
	switch s {
	case feederSold:
		return domain.SeatSold
	case feederLocked:
		return domain.SeatLocked
	default:
		// unknown tags still count as occupied
		return domain.SeatLocked
	}
}
