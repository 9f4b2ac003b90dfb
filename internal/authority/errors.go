package authority

import "github.com/cockroachdb/errors"

var (
	// ErrUnavailable marks transport failures, timeouts and non-2xx replies.
	// The outcome of a sale hit by it is unknown.
	ErrUnavailable = errors.New("sale authority unavailable")

	ErrEventNotFound = errors.New("event not found at authority")
)

func unavailable(err error, msg string) error {
	return errors.Mark(errors.Wrap(err, msg), ErrUnavailable)
}
