package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirinyoku/tix-checkout/internal/authority"
	"github.com/kirinyoku/tix-checkout/internal/domain"
	redisx "github.com/kirinyoku/tix-checkout/internal/redis"
	redisrepo "github.com/kirinyoku/tix-checkout/internal/repository/redis"
)

// Source labels where an invalidation came from.
const (
	SourceHTTP   = "http"
	SourcePubSub = "pubsub"
	SourceAMQP   = "amqp"
)

type Config struct {
	EventTTL time.Duration
}

// Fetcher is satisfied by *authority.Client.
type Fetcher interface {
	Event(ctx context.Context, eventID int64) (domain.EventInfo, error)
}

// Broadcaster tells other instances that the catalog changed.
type Broadcaster interface {
	PublishCatalogChanged(ctx context.Context, eventID int64) error
}

type Recorder interface {
	ObserveInvalidation(source string)
}

type Service struct {
	fetcher     Fetcher
	cache       *redisrepo.Cache
	broadcaster Broadcaster
	metrics     Recorder
	logger      *slog.Logger
	cfg         Config
}

// loadError distinguishes a failed upstream fetch from a cache failure.
type loadError struct{ err error }

func (e *loadError) Error() string { return e.err.Error() }
func (e *loadError) Unwrap() error { return e.err }

// New returns a catalog over fetcher. cache, broadcaster and metrics may be nil.
func New(
	fetcher Fetcher,
	cache *redisrepo.Cache,
	broadcaster Broadcaster,
	metrics Recorder,
	cfg Config,
	logger *slog.Logger,
) *Service {
	if cfg.EventTTL <= 0 {
		cfg.EventTTL = 5 * time.Minute
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		fetcher:     fetcher,
		cache:       cache,
		broadcaster: broadcaster,
		metrics:     metrics,
		logger:      logger.With("component", "catalog"),
		cfg:         cfg,
	}
}

// Event returns the event's grid and price, from cache when possible. A
// cache outage falls back to the authority.
//
// Returns:
//   - error: catalog.ErrEventNotFound if the authority does not know the event.
func (s *Service) Event(ctx context.Context, eventID int64) (domain.EventInfo, error) {
	const op = "service.catalog.Event"

	if eventID <= 0 {
		return domain.EventInfo{}, fmt.Errorf("%s: %w", op, ErrInvalidEvent)
	}

	load := func(ctx context.Context) (domain.EventInfo, error) {
		ev, err := s.fetcher.Event(ctx, eventID)
		if err != nil {
			return domain.EventInfo{}, &loadError{err: err}
		}
		return ev, nil
	}

	var (
		ev  domain.EventInfo
		err error
	)

	if s.cache != nil {
		ev, err = redisrepo.GetOrSetJSON(ctx, s.cache, redisx.KeyCatalogEvent(eventID), s.cfg.EventTTL, load)

		var le *loadError
		if err != nil && !errors.As(err, &le) {
			s.logger.Warn("catalog cache unavailable", "event_id", eventID, "err", err)
			ev, err = load(ctx)
		}
	} else {
		ev, err = load(ctx)
	}

	if err != nil {
		if errors.Is(err, authority.ErrEventNotFound) {
			return domain.EventInfo{}, fmt.Errorf("%s: %w", op, ErrEventNotFound)
		}

		return domain.EventInfo{}, fmt.Errorf("%s: %w", op, err)
	}

	return ev, nil
}

func (s *Service) EventGrid(ctx context.Context, eventID int64) (domain.EventGrid, error) {
	ev, err := s.Event(ctx, eventID)
	if err != nil {
		return domain.EventGrid{}, err
	}

	return ev.Grid(), nil
}

func (s *Service) UnitPrice(ctx context.Context, eventID int64) (int64, error) {
	ev, err := s.Event(ctx, eventID)
	if err != nil {
		return 0, err
	}

	return ev.PriceCents, nil
}

// Invalidate drops the cached entry for eventID, or every entry when
// eventID is 0.
func (s *Service) Invalidate(ctx context.Context, eventID int64, source string) error {
	const op = "service.catalog.Invalidate"

	if s.metrics != nil {
		s.metrics.ObserveInvalidation(source)
	}

	if s.cache == nil {
		return nil
	}

	if eventID == 0 {
		n, err := s.cache.InvalidateCatalog(ctx)
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		s.logger.Info("catalog invalidated", "source", source, "keys", n)
		return nil
	}

	if err := s.cache.InvalidateEvent(ctx, eventID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	s.logger.Debug("catalog entry invalidated", "source", source, "event_id", eventID)

	return nil
}

// Sync invalidates locally and tells the other instances to do the same.
func (s *Service) Sync(ctx context.Context, eventID int64) error {
	const op = "service.catalog.Sync"

	if eventID < 0 {
		return fmt.Errorf("%s: %w", op, ErrInvalidEvent)
	}

	if err := s.Invalidate(ctx, eventID, SourceHTTP); err != nil {
		return err
	}

	if s.broadcaster != nil {
		if err := s.broadcaster.PublishCatalogChanged(ctx, eventID); err != nil {
			s.logger.Warn("catalog change broadcast failed", "event_id", eventID, "err", err)
		}
	}

	return nil
}
