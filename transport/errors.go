package transport

import (
	"errors"
	"fmt"
)

var (
	// ErrRejected is returned by Run when the peer answers registration with REJ.
	ErrRejected = errors.New("registration rejected by peer")
	// ErrNotConnected is returned when sending before Connect.
	ErrNotConnected = errors.New("channel is not connected")
)

// TransportError is a connection-level failure. It is surfaced to the owning
// process, which decides whether to reconnect.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err is (or wraps) a *TransportError.
func IsTransportError(err error) bool {
	var transportErr *TransportError
	return errors.As(err, &transportErr)
}
