package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-checkout/internal/domain"
)

type EventCatalog interface {
	EventGrid(ctx context.Context, eventID int64) (domain.EventGrid, error)
	UnitPrice(ctx context.Context, eventID int64) (int64, error)
}

// SeatOracle is a best-effort, possibly stale view of occupied seats.
type SeatOracle interface {
	OccupiedSeats(ctx context.Context, eventID int64) ([]domain.OccupiedSeat, error)
}

// SaleAuthority is the only party allowed to lock seats and finalize a sale.
// ExecuteSale returns an error only when the outcome is unknown (transport
// failure, timeout); a refused sale comes back as a record with Outcome=false.
type SaleAuthority interface {
	LockSeats(ctx context.Context, eventID int64, seats []domain.Seat) (bool, error)
	ExecuteSale(ctx context.Context, eventID, priceCents int64, seats []domain.Seat) (domain.SaleRecord, error)
}

// SessionStore keeps at most one session per user.
//
// FindByUser returns repository.ErrNotFound when the user has no session row,
// whether or not it is expired. ReplaceForUser deletes any session the user
// already has and saves s in its place as one atomic step.
type SessionStore interface {
	Save(ctx context.Context, s *domain.Session) error
	ReplaceForUser(ctx context.Context, s *domain.Session) error
	FindByUser(ctx context.Context, userID int64) (*domain.Session, error)
	DeleteByID(ctx context.Context, id uuid.UUID) error
	DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type SaleLedger interface {
	Save(ctx context.Context, rec *domain.SaleRecord) error
}

// UserLocker serializes the read-modify-write cycle of one user's session.
type UserLocker interface {
	Lock(ctx context.Context, userID int64) (unlock func(), err error)
}

type Clock interface {
	Now() time.Time
}

// Recorder receives step outcomes. metrics.Metrics implements it.
type Recorder interface {
	ObserveStep(step, result string)
	ObserveSale(outcome bool)
	ObserveLedgerFailure()
	ObserveSwept(n int64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveStep(string, string) {}
func (nopRecorder) ObserveSale(bool)           {}
func (nopRecorder) ObserveLedgerFailure()      {}
func (nopRecorder) ObserveSwept(int64)         {}
