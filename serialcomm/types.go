// serialcomm/types.go
package serialcomm

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceUnavailable is returned by Open when the port cannot be
	// opened after the retry. It is fatal for the daemon.
	ErrDeviceUnavailable = errors.New("device unavailable")

	ErrWriteTimeout = errors.New("write timed out")
	ErrReadTimeout  = errors.New("read timed out")
	ErrClosed       = errors.New("transport closed")

	// ErrIO covers driver failures that are none of the above.
	ErrIO = errors.New("serial i/o error")
)

// TransportError records a failed transport operation. Err is one of the
// sentinel kinds above, Cause the driver error if any.
type TransportError struct {
	Op    string
	Port  string
	Err   error
	Cause error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("serialcomm: %s %s: %v", e.Op, e.Port, e.Err)
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.Cause}
}
