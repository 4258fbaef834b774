// serialcomm/receiver.go
package serialcomm

import (
	"io"
	"time"
)

// ReadUntil reads one byte at a time so nothing past delim is consumed.
// With a zero ReadDeadline the driver blocks and a zero-length read means
// the device went away.
func (s *serialTransport) ReadUntil(delim byte) ([]byte, error) {
	if s.closed.Load() {
		return nil, s.fail("read", ErrClosed, nil)
	}
	if err := s.settle("read"); err != nil {
		return nil, err
	}

	var (
		buf   []byte
		one   = make([]byte, 1)
		start = time.Now()
	)
	for {
		n, err := s.port.Read(one)
		if n == 1 {
			buf = append(buf, one[0])
			if one[0] == delim {
				return buf, nil
			}
			continue
		}

		// tarm/serial reports an expired poll as io.EOF, go.bug.st/serial
		// as a nil error.
		if err != nil && err != io.EOF {
			return nil, s.wrap("read", err)
		}
		if s.closed.Load() {
			return nil, s.fail("read", ErrClosed, nil)
		}
		if s.cfg.ReadDeadline <= 0 {
			return nil, s.fail("read", ErrIO, io.ErrUnexpectedEOF)
		}
		if time.Since(start) >= s.cfg.ReadDeadline {
			return nil, s.fail("read", ErrReadTimeout, nil)
		}
	}
}
