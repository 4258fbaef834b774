// serialcomm/open.go
package serialcomm

import (
	"fmt"
	"io"
	"log"
	"time"
)

// port is the subset of a serial driver the transport needs.
type port interface {
	io.ReadWriteCloser

	// Flush discards unread input.
	Flush() error

	// Drain blocks until buffered output has been transmitted.
	Drain() error
}

type opener func(cfg SerialConfig) (port, error)

var drivers = map[string]opener{
	DriverTarm:  openTarm,
	DriverBugst: openBugst,
}

// sleep is replaced in tests.
var sleep = time.Sleep

// Open connects to the microcontroller described by cfg. A failed open is
// retried once after cfg.RetryDelay; a second failure yields
// ErrDeviceUnavailable. Once open, Open waits cfg.SettleDelay and discards
// anything the device printed while booting.
func Open(cfg SerialConfig) (Transport, error) {
	cfg = cfg.withDefaults()
	if cfg.Driver == DriverVirtual {
		log.Printf("serialcomm: using virtual device")
		return NewVirtualTransport(time.Now().UnixNano()), nil
	}

	open, ok := drivers[cfg.Driver]
	if !ok {
		return nil, fmt.Errorf("serialcomm: unknown driver %q", cfg.Driver)
	}

	p, err := open(cfg)
	if err != nil {
		log.Printf("serialcomm: cannot open %s: %v; retrying in %s", cfg.PortName, err, cfg.RetryDelay)
		sleep(cfg.RetryDelay)
		p, err = open(cfg)
		if err != nil {
			return nil, &TransportError{Op: "open", Port: cfg.PortName, Err: ErrDeviceUnavailable, Cause: err}
		}
	}

	log.Printf("serialcomm: opened %s at %d baud (%s), settling for %s", cfg.PortName, cfg.BaudRate, cfg.Driver, cfg.SettleDelay)
	sleep(cfg.SettleDelay)

	t := newSerialTransport(cfg, p)
	if err := t.Flush(); err != nil {
		p.Close()
		return nil, err
	}
	return t, nil
}
