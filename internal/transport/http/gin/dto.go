package httpgin

import (
	"time"

	"github.com/kirinyoku/tix-checkout/internal/domain"
)

type StartSessionRequest struct {
	EventID int64 `json:"event_id" binding:"required,gt=0"`
}

// Seat coordinates are range-checked by the reservation service.
type SeatPosition struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

type SelectSeatsRequest struct {
	EventID int64          `json:"event_id" binding:"required,gt=0"`
	Seats   []SeatPosition `json:"seats"`
}

type OccupantInput struct {
	Row      int    `json:"row"`
	Column   int    `json:"column"`
	Occupant string `json:"occupant"`
}

type AssignOccupantsRequest struct {
	Seats []OccupantInput `json:"seats"`
}

type SyncRequest struct {
	EventID int64 `json:"event_id" binding:"gte=0"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type ExpiredResponse struct {
	Expired bool `json:"expired"`
}

type AvailableResponse struct {
	Available bool `json:"available"`
}

type LockedResponse struct {
	Locked bool `json:"locked"`
}

type AssignedResponse struct {
	Assigned bool `json:"assigned"`
}

type SessionResponse struct {
	ID             string        `json:"id"`
	EventID        int64         `json:"event_id"`
	State          string        `json:"state"`
	Seats          []domain.Seat `json:"seats"`
	CreatedAt      time.Time     `json:"created_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
	ExpiresAt      time.Time     `json:"expires_at"`
}

type SaleResponse struct {
	LocalID          string        `json:"local_id"`
	AuthorityID      *int64        `json:"authority_id,omitempty"`
	EventID          int64         `json:"event_id"`
	PriceCents       int64         `json:"price_cents"`
	Timestamp        time.Time     `json:"timestamp"`
	Outcome          bool          `json:"outcome"`
	AuthorityMessage string        `json:"authority_message,omitempty"`
	Seats            []domain.Seat `json:"seats"`
	DiagnosticNote   string        `json:"diagnostic_note,omitempty"`
}

type SalesPage struct {
	Items  []domain.SaleSummary `json:"items"`
	Limit  int                  `json:"limit"`
	Offset int                  `json:"offset"`
}

func toSessionResponse(s *domain.Session, ttl time.Duration) SessionResponse {
	return SessionResponse{
		ID:             s.ID.String(),
		EventID:        s.EventID,
		State:          string(s.State),
		Seats:          s.Seats,
		CreatedAt:      s.CreatedAt,
		LastActivityAt: s.LastActivityAt,
		ExpiresAt:      s.LastActivityAt.Add(ttl),
	}
}

func toSaleResponse(r *domain.SaleRecord) SaleResponse {
	return SaleResponse{
		LocalID:          r.LocalID.String(),
		AuthorityID:      r.AuthorityID,
		EventID:          r.EventID,
		PriceCents:       r.PriceCents,
		Timestamp:        r.Timestamp,
		Outcome:          r.Outcome,
		AuthorityMessage: r.AuthorityMessage,
		Seats:            r.Seats,
		DiagnosticNote:   r.DiagnosticNote,
	}
}

func toSeatKeys(in []SeatPosition) []domain.SeatKey {
	out := make([]domain.SeatKey, 0, len(in))
	for _, s := range in {
		out = append(out, domain.SeatKey{Row: s.Row, Column: s.Column})
	}
	return out
}

func toOccupiedSeats(in []OccupantInput) []domain.Seat {
	out := make([]domain.Seat, 0, len(in))
	for _, s := range in {
		out = append(out, domain.Seat{Row: s.Row, Column: s.Column, Occupant: s.Occupant})
	}
	return out
}
