package reservation

import (
	"errors"
	"fmt"

	"github.com/kirinyoku/tix-checkout/internal/domain"
)

var (
	ErrNoActiveSession      = errors.New("no active session")
	ErrEventMismatch        = errors.New("event does not match the session")
	ErrTooManySeats         = errors.New("too many seats")
	ErrSeatOutOfRange       = errors.New("seat out of range")
	ErrCountMismatch        = errors.New("seat count mismatch")
	ErrSeatSetMismatch      = errors.New("seat set mismatch")
	ErrMissingOccupant      = errors.New("missing occupant name")
	ErrEventNotFound        = errors.New("event not found")
	ErrAuthorityUnavailable = errors.New("sale authority unavailable")
	ErrLedgerPersistence    = errors.New("sale ledger persistence failed")
	ErrLockTimeout          = errors.New("timed out waiting for session lock")
)

type TooManySeatsError struct {
	Got int
	Max int
}

func (e TooManySeatsError) Error() string {
	return fmt.Sprintf("too many seats: got %d, max %d", e.Got, e.Max)
}

func (e TooManySeatsError) Unwrap() error { return ErrTooManySeats }

type SeatOutOfRangeError struct {
	Seat domain.SeatKey
	Grid domain.EventGrid
}

func (e SeatOutOfRangeError) Error() string {
	return fmt.Sprintf(
		"seat (%d,%d) out of range: grid is %dx%d",
		e.Seat.Row, e.Seat.Column, e.Grid.MaxRows, e.Grid.MaxColumns,
	)
}

func (e SeatOutOfRangeError) Unwrap() error { return ErrSeatOutOfRange }

type CountMismatchError struct {
	Got  int
	Want int
}

func (e CountMismatchError) Error() string {
	return fmt.Sprintf("seat count mismatch: got %d, session has %d", e.Got, e.Want)
}

func (e CountMismatchError) Unwrap() error { return ErrCountMismatch }

type MissingOccupantError struct {
	Seat domain.SeatKey
}

func (e MissingOccupantError) Error() string {
	return fmt.Sprintf("seat (%d,%d) has no occupant name", e.Seat.Row, e.Seat.Column)
}

func (e MissingOccupantError) Unwrap() error { return ErrMissingOccupant }
