package postgresrepo

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-checkout/internal/domain"
	"github.com/kirinyoku/tix-checkout/internal/repository"
)

type SessionRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *SessionRepo) With(db DB) *SessionRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *SessionRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Save upserts the session by id and rewrites its seats.
//
// Returns:
//   - error: repository.ErrConflict if the user already holds a different session.
func (r *SessionRepo) Save(ctx context.Context, s *domain.Session) error {
	const op = "postgresrepo.SessionRepo.Save"

	err := inTx(ctx, r.pool, r.db, func(db DB) error {
		return saveSession(ctx, db, s)
	})

	return wrapDBErr(op, err)
}

// ReplaceForUser deletes any session the user holds and saves s, in one
// transaction.
func (r *SessionRepo) ReplaceForUser(ctx context.Context, s *domain.Session) error {
	const op = "postgresrepo.SessionRepo.ReplaceForUser"

	err := inTx(ctx, r.pool, r.db, func(db DB) error {
		if _, err := db.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, s.UserID); err != nil {
			return err
		}
		return saveSession(ctx, db, s)
	})

	return wrapDBErr(op, err)
}

// FindByUser returns the user's session row regardless of expiry.
//
// Returns:
//   - error: repository.ErrNotFound if the user has no session.
func (r *SessionRepo) FindByUser(ctx context.Context, userID int64) (*domain.Session, error) {
	const op = "postgresrepo.SessionRepo.FindByUser"

	db := r.handle()

	var s domain.Session
	var state string
	err := db.QueryRow(ctx,
		`SELECT id, user_id, event_id, state, created_at, last_activity_at
		 FROM sessions WHERE user_id = $1`,
		userID,
	).Scan(&s.ID, &s.UserID, &s.EventID, &state, &s.CreatedAt, &s.LastActivityAt)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	s.State = domain.SessionState(state)

	rows, err := db.Query(ctx,
		`SELECT seat_row, seat_column, status, occupant
		 FROM session_seats WHERE session_id = $1
		 ORDER BY position`,
		s.ID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	s.Seats = []domain.Seat{}
	for rows.Next() {
		var st domain.Seat
		var status string
		if err := rows.Scan(&st.Row, &st.Column, &status, &st.Occupant); err != nil {
			return nil, wrapDBErr(op, err)
		}
		st.Status = domain.SeatStatus(status)
		s.Seats = append(s.Seats, st)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &s, nil
}

func (r *SessionRepo) DeleteByID(ctx context.Context, id uuid.UUID) error {
	const op = "postgresrepo.SessionRepo.DeleteByID"

	tag, err := r.handle().Exec(ctx, `DELETE FROM sessions WHERE id = $1`, id)
	if err != nil {
		return wrapDBErr(op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, repository.ErrNotFound)
	}

	return nil
}

// DeleteExpiredBefore removes sessions whose last activity is strictly
// before cutoff. Seats go with them via ON DELETE CASCADE.
func (r *SessionRepo) DeleteExpiredBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	const op = "postgresrepo.SessionRepo.DeleteExpiredBefore"

	tag, err := r.handle().Exec(ctx,
		`DELETE FROM sessions WHERE last_activity_at < $1`,
		cutoff,
	)
	if err != nil {
		return 0, wrapDBErr(op, err)
	}

	return tag.RowsAffected(), nil
}

func saveSession(ctx context.Context, db DB, s *domain.Session) error {
	_, err := db.Exec(ctx,
		`INSERT INTO sessions (id, user_id, event_id, state, created_at, last_activity_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET event_id = EXCLUDED.event_id,
		     state = EXCLUDED.state,
		     last_activity_at = EXCLUDED.last_activity_at`,
		s.ID, s.UserID, s.EventID, string(s.State), s.CreatedAt, s.LastActivityAt,
	)
	if err != nil {
		return err
	}

	if _, err := db.Exec(ctx, `DELETE FROM session_seats WHERE session_id = $1`, s.ID); err != nil {
		return err
	}

	if len(s.Seats) == 0 {
		return nil
	}

	b := &pgx.Batch{}
	for i, st := range s.Seats {
		b.Queue(
			`INSERT INTO session_seats (session_id, position, seat_row, seat_column, status, occupant)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			s.ID, i, st.Row, st.Column, string(st.Status), st.Occupant,
		)
	}

	return db.SendBatch(ctx, b).Close()
}
