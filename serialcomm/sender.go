// serialcomm/sender.go
package serialcomm

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

type serialTransport struct {
	cfg    SerialConfig
	port   port
	closed atomic.Bool

	mu       sync.Mutex
	inflight chan struct{} // closed when a timed-out write returns; nil when none
	quit     chan struct{} // closed by Close
}

func newSerialTransport(cfg SerialConfig, p port) *serialTransport {
	return &serialTransport{cfg: cfg, port: p, quit: make(chan struct{})}
}

func (s *serialTransport) Write(frame []byte) error {
	if s.closed.Load() {
		return s.fail("write", ErrClosed, nil)
	}
	if err := s.settle("write"); err != nil {
		return err
	}
	if s.cfg.WriteTimeout <= 0 {
		return s.write(frame)
	}

	var werr error
	done := make(chan struct{})
	go func() {
		werr = s.write(frame)
		close(done)
	}()

	timer := time.NewTimer(s.cfg.WriteTimeout)
	defer timer.Stop()
	select {
	case <-done:
		return werr
	case <-timer.C:
		s.mu.Lock()
		s.inflight = done
		s.mu.Unlock()
		return s.fail("write", ErrWriteTimeout, nil)
	}
}

// settle blocks until a write abandoned by a timeout has returned from the
// driver. Close releases the wait.
func (s *serialTransport) settle(op string) error {
	s.mu.Lock()
	done := s.inflight
	s.mu.Unlock()
	if done == nil {
		return nil
	}

	select {
	case <-done:
	case <-s.quit:
		return s.fail(op, ErrClosed, nil)
	}

	s.mu.Lock()
	if s.inflight == done {
		s.inflight = nil
	}
	s.mu.Unlock()
	return nil
}

func (s *serialTransport) write(frame []byte) error {
	for len(frame) > 0 {
		n, err := s.port.Write(frame)
		if err != nil {
			return s.wrap("write", err)
		}
		frame = frame[n:]
	}
	if err := s.port.Drain(); err != nil {
		return s.wrap("drain", err)
	}
	return nil
}

func (s *serialTransport) Flush() error {
	if s.closed.Load() {
		return s.fail("flush", ErrClosed, nil)
	}
	if err := s.settle("flush"); err != nil {
		return err
	}
	if err := s.port.Flush(); err != nil {
		return s.wrap("flush", err)
	}
	return nil
}

func (s *serialTransport) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	close(s.quit)
	return s.port.Close()
}

func (s *serialTransport) fail(op string, kind, cause error) error {
	return &TransportError{Op: op, Port: s.cfg.PortName, Err: kind, Cause: cause}
}

// wrap classifies a driver error.
func (s *serialTransport) wrap(op string, err error) error {
	if s.closed.Load() || errors.Is(err, os.ErrClosed) {
		return s.fail(op, ErrClosed, err)
	}
	return s.fail(op, ErrIO, err)
}
