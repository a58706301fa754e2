package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrBadAck    = errors.New("unexpected acknowledgment")
	ErrBadLength = errors.New("invalid length prefix")
)

// Error is a protocol violation by the peer, or a local sink failure, that aborts
// the current transfer. The connection itself is still usable.
type Error struct {
	State State
	Err   error
	Got   string
}

func (e *Error) Error() string {
	if e.Got != "" {
		return fmt.Sprintf("%s: %v (got %q)", e.State, e.Err, e.Got)
	}
	return fmt.Sprintf("%s: %v", e.State, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsProtocolError reports whether err aborted a transfer without breaking the connection.
func IsProtocolError(err error) bool {
	var pe *Error
	return errors.As(err, &pe)
}
