package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-checkout/internal/domain"
	redisx "github.com/kirinyoku/tix-checkout/internal/redis"
	"github.com/kirinyoku/tix-checkout/internal/repository"
	postgresrepo "github.com/kirinyoku/tix-checkout/internal/repository/postgres"
	"github.com/kirinyoku/tix-checkout/internal/uow"
)

const (
	defaultLimit = 20
	maxLimit     = 100
	maxAttempts  = 3
)

// SaleRepository is *postgresrepo.SaleRepo bound to a handle.
type SaleRepository interface {
	Insert(ctx context.Context, rec *domain.SaleRecord) error
	Get(ctx context.Context, userID int64, localID uuid.UUID) (*domain.SaleRecord, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.SaleSummary, error)
}

// Notifier fans out a committed sale. Failures are logged, never returned.
type Notifier interface {
	PublishSaleCompleted(ctx context.Context, msg redisx.SaleCompleted) error
}

// Service is the durable local record of every completed sale attempt.
type Service struct {
	uow       *uow.UoW
	sales     func(db postgresrepo.DB) SaleRepository
	notifiers []Notifier
	logger    *slog.Logger
}

func New(
	u *uow.UoW,
	sales func(db postgresrepo.DB) SaleRepository,
	notifiers []Notifier,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		uow:       u,
		sales:     sales,
		notifiers: notifiers,
		logger:    logger.With("component", "ledger"),
	}
}

// NewFromStore binds the ledger to the Postgres store.
func NewFromStore(store *postgresrepo.Store, notifiers []Notifier, logger *slog.Logger) *Service {
	return New(
		uow.NewUoW(store),
		func(db postgresrepo.DB) SaleRepository { return store.Sales().With(db) },
		notifiers,
		logger,
	)
}

// Save persists rec and, once committed, publishes a sale-completed
// notification for successful sales. Serialization failures are retried.
//
// Parameters:
//   - ctx: should outlive the request; the sale already happened upstream.
//   - rec: a completed record with LocalID set.
//
// Returns:
//   - error: ledger.ErrDuplicateSale if LocalID is already recorded.
func (s *Service) Save(ctx context.Context, rec *domain.SaleRecord) error {
	const op = "service.ledger.Save"

	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err = s.uow.Do(ctx, func(
			ctx context.Context,
			tx postgresrepo.DB,
			after func(uow.AfterCommit),
		) error {
			if err := s.sales(tx).Insert(ctx, rec); err != nil {
				return err
			}

			if rec.Outcome {
				msg := completedMessage(rec)
				after(func(ctx context.Context) {
					s.notify(ctx, msg)
				})
			}

			return nil
		})

		if err == nil || !postgresrepo.IsRetryable(err) {
			break
		}

		s.logger.Warn("retrying sale insert", "local_id", rec.LocalID, "attempt", attempt, "err", err)
	}

	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return fmt.Errorf("%s: %w", op, ErrDuplicateSale)
		}

		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// Get returns one of the user's recorded sales.
//
// Returns:
//   - error: ledger.ErrSaleNotFound if it does not exist or belongs to someone else.
func (s *Service) Get(ctx context.Context, userID int64, localID uuid.UUID) (*domain.SaleRecord, error) {
	const op = "service.ledger.Get"

	rec, err := s.sales(nil).Get(ctx, userID, localID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%s: %w", op, ErrSaleNotFound)
		}

		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return rec, nil
}

// ListByUser pages through the user's sales, newest first. A zero limit
// selects the default page size.
func (s *Service) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.SaleSummary, error) {
	const op = "service.ledger.ListByUser"

	if limit < 0 || offset < 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidPaging)
	}

	if limit == 0 {
		limit = defaultLimit
	}

	limit = min(limit, maxLimit)

	out, err := s.sales(nil).ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return out, nil
}

func (s *Service) notify(ctx context.Context, msg redisx.SaleCompleted) {
	for _, n := range s.notifiers {
		if err := n.PublishSaleCompleted(ctx, msg); err != nil {
			s.logger.Warn("sale notification failed", "local_id", msg.LocalID, "err", err)
		}
	}
}

func completedMessage(rec *domain.SaleRecord) redisx.SaleCompleted {
	ts := rec.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return redisx.SaleCompleted{
		LocalID:     rec.LocalID.String(),
		AuthorityID: rec.AuthorityID,
		EventID:     rec.EventID,
		UserID:      rec.UserID,
		SeatCount:   len(rec.Seats),
		TsUnix:      ts.Unix(),
	}
}
