package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type SeatStatus string

const (
	SeatFree   SeatStatus = "FREE"
	SeatLocked SeatStatus = "LOCKED"
	SeatSold   SeatStatus = "SOLD"
)

type SessionState string

const (
	StateEventSelected      SessionState = "EVENT_SELECTED"
	StateSeatsSelected      SessionState = "SEATS_SELECTED"
	StateLocked             SessionState = "LOCKED"
	StateAssigningOccupants SessionState = "ASSIGNING_OCCUPANTS"
)

// SeatKey identifies a seat within an event's grid.
type SeatKey struct {
	Row    int `json:"row"`
	Column int `json:"column"`
}

type Seat struct {
	Row      int        `json:"row"`
	Column   int        `json:"column"`
	Status   SeatStatus `json:"status"`
	Occupant string     `json:"occupant,omitempty"`
}

func (s Seat) Key() SeatKey {
	return SeatKey{Row: s.Row, Column: s.Column}
}

// HasOccupant reports whether a non-blank occupant name is set.
func (s Seat) HasOccupant() bool {
	return strings.TrimSpace(s.Occupant) != ""
}

type Session struct {
	ID             uuid.UUID    `json:"id"`
	UserID         int64        `json:"user_id"`
	EventID        int64        `json:"event_id"`
	State          SessionState `json:"state"`
	Seats          []Seat       `json:"seats"`
	CreatedAt      time.Time    `json:"created_at"`
	LastActivityAt time.Time    `json:"last_activity_at"`
}

// NewSession returns a session in EVENT_SELECTED with no seats.
func NewSession(userID, eventID int64, now time.Time) *Session {
	return &Session{
		ID:             uuid.New(),
		UserID:         userID,
		EventID:        eventID,
		State:          StateEventSelected,
		Seats:          []Seat{},
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

// ExpiredAt reports whether more than ttl has passed since the last activity.
func (s *Session) ExpiredAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastActivityAt) > ttl
}

func (s *Session) Touch(now time.Time) {
	s.LastActivityAt = now
}

func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Seats = make([]Seat, len(s.Seats))
	copy(cp.Seats, s.Seats)
	return &cp
}

// SeatKeys returns the set of (row, column) positions held by the session.
func (s *Session) SeatKeys() map[SeatKey]struct{} {
	return KeySet(s.Seats)
}

func KeySet(seats []Seat) map[SeatKey]struct{} {
	set := make(map[SeatKey]struct{}, len(seats))
	for _, st := range seats {
		set[st.Key()] = struct{}{}
	}
	return set
}

// EventGrid bounds valid seat positions to [1, MaxRows] x [1, MaxColumns].
type EventGrid struct {
	EventID    int64 `json:"event_id"`
	MaxRows    int   `json:"max_rows"`
	MaxColumns int   `json:"max_columns"`
}

func (g EventGrid) Contains(row, column int) bool {
	return row >= 1 && row <= g.MaxRows && column >= 1 && column <= g.MaxColumns
}

type EventInfo struct {
	EventID    int64  `json:"event_id"`
	Title      string `json:"title"`
	MaxRows    int    `json:"max_rows"`
	MaxColumns int    `json:"max_columns"`
	PriceCents int64  `json:"price_cents"`
}

func (e EventInfo) Grid() EventGrid {
	return EventGrid{EventID: e.EventID, MaxRows: e.MaxRows, MaxColumns: e.MaxColumns}
}

// OccupiedSeat is an entry of the occupancy view. Status is informational only.
type OccupiedSeat struct {
	Row       int        `json:"row"`
	Column    int        `json:"column"`
	Status    SeatStatus `json:"status"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

func (o OccupiedSeat) Key() SeatKey {
	return SeatKey{Row: o.Row, Column: o.Column}
}

type SaleRecord struct {
	LocalID          uuid.UUID `json:"local_id"`
	AuthorityID      *int64    `json:"authority_id,omitempty"`
	EventID          int64     `json:"event_id"`
	UserID           int64     `json:"user_id"`
	PriceCents       int64     `json:"price_cents"`
	Timestamp        time.Time `json:"timestamp"`
	Outcome          bool      `json:"outcome"`
	AuthorityMessage string    `json:"authority_message,omitempty"`
	Seats            []Seat    `json:"seats"`
	DiagnosticNote   string    `json:"diagnostic_note,omitempty"`
}

// AppendNote adds a line to the diagnostic note without discarding earlier lines.
func (r *SaleRecord) AppendNote(note string) {
	if r.DiagnosticNote == "" {
		r.DiagnosticNote = note
		return
	}
	r.DiagnosticNote += "; " + note
}

type SaleSummary struct {
	LocalID     uuid.UUID `json:"local_id"`
	AuthorityID *int64    `json:"authority_id,omitempty"`
	EventID     int64     `json:"event_id"`
	PriceCents  int64     `json:"price_cents"`
	SeatCount   int       `json:"seat_count"`
	Timestamp   time.Time `json:"timestamp"`
}
