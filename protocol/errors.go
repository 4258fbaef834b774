package protocol

import (
	"errors"
	"fmt"
)

var (
	ErrPrematureEnd    = errors.New("unescaped end byte inside payload")
	ErrTruncatedEscape = errors.New("frame ends inside an escape sequence")
	ErrCRCMismatch     = errors.New("crc mismatch")
	ErrShortFrame      = errors.New("frame too short")
	ErrBadDelimiter    = errors.New("frame not delimited by header and end bytes")
)

// FrameError describes why a received frame was rejected. Err is one of the
// Err* values above.
type FrameError struct {
	Err error

	// Offset is the index into the raw frame where decoding stopped.
	Offset int

	// Expected and Received hold the computed and transmitted CRC when Err
	// is ErrCRCMismatch.
	Expected byte
	Received byte
}

func (e *FrameError) Error() string {
	if e.Err == ErrCRCMismatch {
		return fmt.Sprintf("%v: expected 0x%02X, received 0x%02X", e.Err, e.Expected, e.Received)
	}
	return fmt.Sprintf("%v (offset %d)", e.Err, e.Offset)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}
