package reservation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kirinyoku/tix-checkout/internal/clock"
	"github.com/kirinyoku/tix-checkout/internal/domain"
	"github.com/kirinyoku/tix-checkout/internal/repository"
)

const (
	stepStart    = "start_session"
	stepSelect   = "select_seats"
	stepLock     = "lock_seats"
	stepAssign   = "assign_occupants"
	stepConfirm  = "confirm_sale"
	stepCancel   = "cancel"
	resultOK     = "ok"
	resultFalse  = "rejected"
	resultFailed = "error"
)

type Config struct {
	SessionTTL time.Duration
	MaxSeats   int
	LockWait   time.Duration
}

type Deps struct {
	Sessions  SessionStore
	Catalog   EventCatalog
	Oracle    SeatOracle
	Authority SaleAuthority
	Ledger    SaleLedger
	Locker    UserLocker
	Clock     Clock
	Metrics   Recorder
}

type Service struct {
	sessions  SessionStore
	catalog   EventCatalog
	oracle    SeatOracle
	authority SaleAuthority
	ledger    SaleLedger
	locker    UserLocker
	clock     Clock
	metrics   Recorder
	logger    *slog.Logger
	cfg       Config
}

func New(deps Deps, cfg Config, logger *slog.Logger) *Service {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}

	if cfg.MaxSeats <= 0 {
		cfg.MaxSeats = 4
	}

	if cfg.LockWait <= 0 {
		cfg.LockWait = 5 * time.Second
	}

	if deps.Locker == nil {
		deps.Locker = NewKeyedMutex()
	}

	if deps.Clock == nil {
		deps.Clock = clock.NewRealClock()
	}

	if deps.Metrics == nil {
		deps.Metrics = nopRecorder{}
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		sessions:  deps.Sessions,
		catalog:   deps.Catalog,
		oracle:    deps.Oracle,
		authority: deps.Authority,
		ledger:    deps.Ledger,
		locker:    deps.Locker,
		clock:     deps.Clock,
		metrics:   deps.Metrics,
		logger:    logger.With("component", "reservation"),
		cfg:       cfg,
	}
}

// TTL is the inactivity window after which a session is treated as expired.
func (s *Service) TTL() time.Duration { return s.cfg.SessionTTL }

// StartSession opens a new session for the user, discarding any session the
// user already had.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: ID of the purchasing user.
//   - eventID: ID of the chosen event.
//
// Returns:
//   - *domain.Session: the new session in EVENT_SELECTED state.
//   - error: reservation.ErrEventNotFound if eventID is not a valid id.
func (s *Service) StartSession(ctx context.Context, userID, eventID int64) (*domain.Session, error) {
	const op = "service.reservation.StartSession"

	if eventID <= 0 {
		s.metrics.ObserveStep(stepStart, resultFailed)
		return nil, fmt.Errorf("%s: %w", op, ErrEventNotFound)
	}

	var sess *domain.Session

	err := s.withUserLock(ctx, userID, func(ctx context.Context) error {
		sess = domain.NewSession(userID, eventID, s.clock.Now())

		return s.sessions.ReplaceForUser(ctx, sess)
	})
	if err != nil {
		s.metrics.ObserveStep(stepStart, resultFailed)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.ObserveStep(stepStart, resultOK)
	s.logger.Debug("session started", "user_id", userID, "event_id", eventID, "session_id", sess.ID)

	return sess.Clone(), nil
}

// SelectSeats replaces the session's seat selection after checking it
// against the event grid and the occupancy view.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: ID of the purchasing user.
//   - eventID: ID of the event the seats belong to; must match the session.
//   - seats: candidate seat positions.
//
// Returns:
//   - bool: false if any candidate seat is reported occupied; the session is left untouched.
//   - error: reservation.ErrNoActiveSession if the user has no live session.
//   - error: reservation.ErrEventMismatch if eventID differs from the session's event.
//   - error: reservation.ErrTooManySeats if more than the allowed number of seats is requested.
//   - error: reservation.ErrEventNotFound if the event grid cannot be resolved.
//   - error: reservation.ErrSeatOutOfRange if a seat falls outside the grid.
func (s *Service) SelectSeats(
	ctx context.Context,
	userID, eventID int64,
	seats []domain.SeatKey,
) (bool, error) {
	const op = "service.reservation.SelectSeats"

	var available bool

	err := s.withUserLock(ctx, userID, func(ctx context.Context) error {
		sess, err := s.activeSession(ctx, userID)
		if err != nil {
			return err
		}

		if sess.EventID != eventID {
			return ErrEventMismatch
		}

		if len(seats) > s.cfg.MaxSeats {
			return TooManySeatsError{Got: len(seats), Max: s.cfg.MaxSeats}
		}

		grid, err := s.catalog.EventGrid(ctx, sess.EventID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEventNotFound, err)
		}

		for _, k := range seats {
			if !grid.Contains(k.Row, k.Column) {
				return SeatOutOfRangeError{Seat: k, Grid: grid}
			}
		}

		available = s.verifyAvailability(ctx, sess.EventID, seats)
		if !available {
			return nil
		}

		selected := make([]domain.Seat, 0, len(seats))
		for _, k := range seats {
			selected = append(selected, domain.Seat{
				Row:    k.Row,
				Column: k.Column,
				Status: domain.SeatFree,
			})
		}

		sess.Seats = selected
		sess.State = domain.StateSeatsSelected
		sess.Touch(s.clock.Now())

		return s.sessions.Save(ctx, sess)
	})

	s.metrics.ObserveStep(stepSelect, stepResult(available, err))

	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return available, nil
}

// LockSeats asks the sale authority to place a time-boxed lock on the
// session's selected seats. Authority refusals and communication failures
// both yield false with the session unchanged.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: ID of the purchasing user.
//
// Returns:
//   - bool: true if the authority locked the seats.
//   - error: reservation.ErrNoActiveSession if the user has no live session.
func (s *Service) LockSeats(ctx context.Context, userID int64) (bool, error) {
	const op = "service.reservation.LockSeats"

	var locked bool

	err := s.withUserLock(ctx, userID, func(ctx context.Context) error {
		sess, err := s.activeSession(ctx, userID)
		if err != nil {
			return err
		}

		ok, err := s.authority.LockSeats(ctx, sess.EventID, sess.Seats)
		if err != nil {
			s.logger.Warn("authority lock failed",
				"user_id", userID,
				"event_id", sess.EventID,
				"error", err,
			)
			return nil
		}

		if !ok {
			s.logger.Info("authority refused lock", "user_id", userID, "event_id", sess.EventID)
			return nil
		}

		for i := range sess.Seats {
			sess.Seats[i].Status = domain.SeatLocked
		}
		sess.State = domain.StateLocked
		sess.Touch(s.clock.Now())

		if err := s.sessions.Save(ctx, sess); err != nil {
			return err
		}

		locked = true

		return nil
	})

	s.metrics.ObserveStep(stepLock, stepResult(locked, err))

	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return locked, nil
}

// AssignOccupants attaches an occupant name to every selected seat.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: ID of the purchasing user.
//   - seats: the selected seats, in any order, each with an occupant name.
//
// Returns:
//   - bool: true when the names were stored.
//   - error: reservation.ErrNoActiveSession if the user has no live session.
//   - error: reservation.ErrCountMismatch if the number of seats differs from the selection.
//   - error: reservation.ErrSeatSetMismatch if the positions differ from the selection.
//   - error: reservation.ErrMissingOccupant if a name is blank.
func (s *Service) AssignOccupants(ctx context.Context, userID int64, seats []domain.Seat) (bool, error) {
	const op = "service.reservation.AssignOccupants"

	err := s.withUserLock(ctx, userID, func(ctx context.Context) error {
		sess, err := s.activeSession(ctx, userID)
		if err != nil {
			return err
		}

		if len(seats) != len(sess.Seats) {
			return CountMismatchError{Got: len(seats), Want: len(sess.Seats)}
		}

		if !sameKeySet(domain.KeySet(seats), sess.SeatKeys()) {
			return ErrSeatSetMismatch
		}

		for _, st := range seats {
			if !st.HasOccupant() {
				return MissingOccupantError{Seat: st.Key()}
			}
		}

		status := make(map[domain.SeatKey]domain.SeatStatus, len(sess.Seats))
		for _, st := range sess.Seats {
			status[st.Key()] = st.Status
		}

		named := make([]domain.Seat, 0, len(seats))
		for _, st := range seats {
			named = append(named, domain.Seat{
				Row:      st.Row,
				Column:   st.Column,
				Status:   status[st.Key()],
				Occupant: strings.TrimSpace(st.Occupant),
			})
		}

		sess.Seats = named
		sess.State = domain.StateAssigningOccupants
		sess.Touch(s.clock.Now())

		return s.sessions.Save(ctx, sess)
	})

	s.metrics.ObserveStep(stepAssign, stepResult(err == nil, err))

	if err != nil {
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return true, nil
}

// ConfirmSale executes the sale with the authority.
//
// A failed or unreachable authority yields a record with Outcome=false and
// the session is kept. Once the authority confirms, the sale stands: ledger
// or session cleanup failures are appended to the record's diagnostic note
// and the session is deleted regardless.
//
// Parameters:
//   - ctx: request-scoped context.
//   - userID: ID of the purchasing user.
//
// Returns:
//   - *domain.SaleRecord: the outcome of this attempt.
//   - error: reservation.ErrNoActiveSession if the user has no live session.
//   - error: reservation.ErrEventNotFound if the event price cannot be resolved.
func (s *Service) ConfirmSale(ctx context.Context, userID int64) (*domain.SaleRecord, error) {
	const op = "service.reservation.ConfirmSale"

	var rec *domain.SaleRecord

	err := s.withUserLock(ctx, userID, func(ctx context.Context) error {
		sess, err := s.activeSession(ctx, userID)
		if err != nil {
			return err
		}

		price, err := s.catalog.UnitPrice(ctx, sess.EventID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrEventNotFound, err)
		}

		result, err := s.authority.ExecuteSale(ctx, sess.EventID, price, sess.Seats)
		if err != nil {
			s.logger.Error("authority sale failed",
				"user_id", userID,
				"event_id", sess.EventID,
				"error", err,
			)
			result = domain.SaleRecord{Outcome: false}
			result.AppendNote(fmt.Sprintf("%v: %v", ErrAuthorityUnavailable, err))
		}

		s.completeRecord(&result, sess, price)

		if !result.Outcome {
			rec = &result
			return nil
		}

		// The sale is final from here on; do not let a cancelled request
		// abort local bookkeeping.
		bctx := context.WithoutCancel(ctx)

		if err := s.ledger.Save(bctx, &result); err != nil {
			s.metrics.ObserveLedgerFailure()
			s.logger.Error("ledger save failed after authority sale",
				"user_id", userID,
				"authority_id", authorityIDString(result.AuthorityID),
				"error", err,
			)
			result.AppendNote(fmt.Sprintf(
				"%v: authority sale %s succeeded but could not be recorded locally: %v",
				ErrLedgerPersistence, authorityIDString(result.AuthorityID), err,
			))
		}

		if err := s.sessions.DeleteByID(bctx, sess.ID); err != nil && !errors.Is(err, repository.ErrNotFound) {
			s.logger.Error("session delete failed after sale",
				"user_id", userID,
				"session_id", sess.ID,
				"error", err,
			)
			result.AppendNote(fmt.Sprintf("session %s could not be removed: %v", sess.ID, err))
		}

		rec = &result

		return nil
	})
	if err != nil {
		s.metrics.ObserveStep(stepConfirm, resultFailed)
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.ObserveStep(stepConfirm, stepResult(rec.Outcome, nil))
	s.metrics.ObserveSale(rec.Outcome)

	return rec, nil
}

// Cancel deletes the user's session. It is a no-op if there is none.
func (s *Service) Cancel(ctx context.Context, userID int64) error {
	const op = "service.reservation.Cancel"

	err := s.withUserLock(ctx, userID, func(ctx context.Context) error {
		sess, err := s.sessions.FindByUser(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil
			}
			return err
		}

		err = s.sessions.DeleteByID(ctx, sess.ID)
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}

		return err
	})

	s.metrics.ObserveStep(stepCancel, stepResult(err == nil, err))

	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

// GetCurrentSession returns the user's live session.
//
// Returns:
//   - *domain.Session: the session as stored.
//   - error: reservation.ErrNoActiveSession if there is none or it has expired.
func (s *Service) GetCurrentSession(ctx context.Context, userID int64) (*domain.Session, error) {
	const op = "service.reservation.GetCurrentSession"

	sess, err := s.activeSession(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return sess, nil
}

// IsExpired reports whether the user has no usable session. A missing
// session counts as expired.
func (s *Service) IsExpired(ctx context.Context, userID int64) (bool, error) {
	const op = "service.reservation.IsExpired"

	sess, err := s.sessions.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return true, nil
		}
		return false, fmt.Errorf("%s: %w", op, err)
	}

	return sess.ExpiredAt(s.clock.Now(), s.cfg.SessionTTL), nil
}

// SweepExpired deletes every session idle for longer than the TTL and
// returns how many were removed.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	const op = "service.reservation.SweepExpired"

	cutoff := s.clock.Now().Add(-s.cfg.SessionTTL)

	n, err := s.sessions.DeleteExpiredBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	s.metrics.ObserveSwept(n)

	return n, nil
}

func (s *Service) activeSession(ctx context.Context, userID int64) (*domain.Session, error) {
	sess, err := s.sessions.FindByUser(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNoActiveSession
		}
		return nil, err
	}

	if sess.ExpiredAt(s.clock.Now(), s.cfg.SessionTTL) {
		return nil, ErrNoActiveSession
	}

	return sess, nil
}

// verifyAvailability is true unless the oracle reports one of the seats.
// An oracle failure counts as nothing reported.
func (s *Service) verifyAvailability(ctx context.Context, eventID int64, seats []domain.SeatKey) bool {
	occupied, err := s.oracle.OccupiedSeats(ctx, eventID)
	if err != nil {
		s.logger.Warn("occupancy lookup failed, skipping availability check",
			"event_id", eventID,
			"error", err,
		)
		return true
	}

	taken := make(map[domain.SeatKey]struct{}, len(occupied))
	for _, o := range occupied {
		taken[o.Key()] = struct{}{}
	}

	for _, k := range seats {
		if _, ok := taken[k]; ok {
			return false
		}
	}

	return true
}

func (s *Service) completeRecord(rec *domain.SaleRecord, sess *domain.Session, price int64) {
	rec.LocalID = uuid.New()
	rec.UserID = sess.UserID

	if rec.EventID == 0 {
		rec.EventID = sess.EventID
	}

	if rec.PriceCents == 0 {
		rec.PriceCents = price
	}

	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.clock.Now()
	}

	if len(rec.Seats) == 0 {
		rec.Seats = make([]domain.Seat, len(sess.Seats))
		copy(rec.Seats, sess.Seats)
	}

	if rec.Outcome {
		for i := range rec.Seats {
			rec.Seats[i].Status = domain.SeatSold
		}
	}
}

func (s *Service) withUserLock(
	ctx context.Context,
	userID int64,
	fn func(ctx context.Context) error,
) error {
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.LockWait)
	defer cancel()

	unlock, err := s.locker.Lock(lockCtx, userID)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %w", ErrLockTimeout, err)
	}
	defer unlock()

	return fn(ctx)
}

func sameKeySet(a, b map[domain.SeatKey]struct{}) bool {
	if len(a) != len(b) {
		return false
	}

	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}

	return true
}

func stepResult(ok bool, err error) string {
	switch {
	case err != nil:
		return resultFailed
	case ok:
		return resultOK
	default:
		return resultFalse
	}
}

func authorityIDString(id *int64) string {
	if id == nil {
		return "<unknown>"
	}
	return strconv.FormatInt(*id, 10)
}
