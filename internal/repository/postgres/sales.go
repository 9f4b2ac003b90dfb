package postgresrepo

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kirinyoku/tix-checkout/internal/domain"
)

type SaleRepo struct {
	pool *pgxpool.Pool
	db   DB
}

func (r *SaleRepo) With(db DB) *SaleRepo {
	cp := *r
	cp.db = db
	return &cp
}

func (r *SaleRepo) handle() DB {
	if r.db != nil {
		return r.db
	}
	return r.pool
}

// Insert writes the sale and its seats.
//
// Parameters:
//   - rec: a completed record; LocalID must be set.
//
// Returns:
//   - error: repository.ErrConflict if LocalID already exists.
func (r *SaleRepo) Insert(ctx context.Context, rec *domain.SaleRecord) error {
	const op = "postgresrepo.SaleRepo.Insert"

	err := inTx(ctx, r.pool, r.db, func(db DB) error {
		_, err := db.Exec(ctx,
			`INSERT INTO sales (local_id, authority_id, event_id, user_id, price_cents,
			                    sold_at, outcome, authority_message, diagnostic_note)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			rec.LocalID, rec.AuthorityID, rec.EventID, rec.UserID, rec.PriceCents,
			rec.Timestamp, rec.Outcome, rec.AuthorityMessage, rec.DiagnosticNote,
		)
		if err != nil {
			return err
		}

		if len(rec.Seats) == 0 {
			return nil
		}

		b := &pgx.Batch{}
		for i, st := range rec.Seats {
			b.Queue(
				`INSERT INTO sale_seats (local_id, position, seat_row, seat_column, occupant)
				 VALUES ($1, $2, $3, $4, $5)`,
				rec.LocalID, i, st.Row, st.Column, st.Occupant,
			)
		}

		return db.SendBatch(ctx, b).Close()
	})

	return wrapDBErr(op, err)
}

// Get returns a sale owned by userID.
//
// Returns:
//   - error: repository.ErrNotFound if no such sale exists for the user.
func (r *SaleRepo) Get(ctx context.Context, userID int64, localID uuid.UUID) (*domain.SaleRecord, error) {
	const op = "postgresrepo.SaleRepo.Get"

	db := r.handle()

	var rec domain.SaleRecord
	err := db.QueryRow(ctx,
		`SELECT local_id, authority_id, event_id, user_id, price_cents,
		        sold_at, outcome, authority_message, diagnostic_note
		 FROM sales WHERE local_id = $1 AND user_id = $2`,
		localID, userID,
	).Scan(
		&rec.LocalID, &rec.AuthorityID, &rec.EventID, &rec.UserID, &rec.PriceCents,
		&rec.Timestamp, &rec.Outcome, &rec.AuthorityMessage, &rec.DiagnosticNote,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}

	seatStatus := domain.SeatLocked
	if rec.Outcome {
		seatStatus = domain.SeatSold
	}

	rows, err := db.Query(ctx,
		`SELECT seat_row, seat_column, occupant
		 FROM sale_seats WHERE local_id = $1
		 ORDER BY position`,
		rec.LocalID,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	rec.Seats = []domain.Seat{}
	for rows.Next() {
		st := domain.Seat{Status: seatStatus}
		if err := rows.Scan(&st.Row, &st.Column, &st.Occupant); err != nil {
			return nil, wrapDBErr(op, err)
		}
		rec.Seats = append(rec.Seats, st)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return &rec, nil
}

// ListByUser returns the user's sales, newest first.
func (r *SaleRepo) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]domain.SaleSummary, error) {
	const op = "postgresrepo.SaleRepo.ListByUser"

	rows, err := r.handle().Query(ctx,
		`SELECT s.local_id, s.authority_id, s.event_id, s.price_cents, s.sold_at,
		        (SELECT COUNT(*) FROM sale_seats ss WHERE ss.local_id = s.local_id)
		 FROM sales s
		 WHERE s.user_id = $1
		 ORDER BY s.sold_at DESC, s.local_id
		 LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, wrapDBErr(op, err)
	}
	defer rows.Close()

	out := make([]domain.SaleSummary, 0, limit)
	for rows.Next() {
		var s domain.SaleSummary
		if err := rows.Scan(&s.LocalID, &s.AuthorityID, &s.EventID, &s.PriceCents, &s.Timestamp, &s.SeatCount); err != nil {
			return nil, wrapDBErr(op, err)
		}
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(op, err)
	}

	return out, nil
}
