package destinations

import (
	"errors"
	"fmt"
)

// ErrUnavailable indicates the destination could not be reached or rejected our credentials.
var ErrUnavailable = errors.New("destination unavailable")

// ErrRejected indicates the destination answered but did not apply the change.
var ErrRejected = errors.New("destination rejected update")

// PushError describes a failed progress push to a single destination.
type PushError struct {
	Destination string
	Op          string
	Err         error
}

func (e *PushError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Destination, e.Op, e.Err)
}

func (e *PushError) Unwrap() error {
	return e.Err
}
