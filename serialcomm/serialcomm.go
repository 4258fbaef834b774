// serialcomm/serialcomm.go
package serialcomm

import (
	"time"
)

// Drivers understood by Open.
const (
	DriverTarm    = "tarm"
	DriverBugst   = "bugst"
	DriverVirtual = "virtual"
)

const (
	DefaultBaudRate    = 115200
	DefaultRetryDelay  = 10 * time.Second
	DefaultSettleDelay = 2 * time.Second
)

type SerialConfig struct {
	PortName string
	BaudRate int

	// Driver selects the serial library backing the port. Empty means
	// DriverTarm.
	Driver string

	// ReadDeadline bounds a single ReadUntil call. Zero blocks until the
	// delimiter arrives.
	ReadDeadline time.Duration

	// WriteTimeout bounds a single Write call. Zero waits for the kernel.
	WriteTimeout time.Duration

	// RetryDelay is how long Open waits before its only retry.
	RetryDelay time.Duration

	// SettleDelay is how long Open waits after the port is up, giving the
	// microcontroller time to leave its bootloader.
	SettleDelay time.Duration
}

// DefaultConfig returns the settings used by the daemon for portName.
func DefaultConfig(portName string) SerialConfig {
	return SerialConfig{
		PortName:    portName,
		BaudRate:    DefaultBaudRate,
		Driver:      DriverTarm,
		RetryDelay:  DefaultRetryDelay,
		SettleDelay: DefaultSettleDelay,
	}
}

func (c SerialConfig) withDefaults() SerialConfig {
	if c.BaudRate == 0 {
		c.BaudRate = DefaultBaudRate
	}
	if c.Driver == "" {
		c.Driver = DriverTarm
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.SettleDelay == 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	return c
}

// pollInterval is the driver read timeout. Zero means a blocking read.
func (c SerialConfig) pollInterval() time.Duration {
	const maxPoll = 100 * time.Millisecond
	switch {
	case c.ReadDeadline <= 0:
		return 0
	case c.ReadDeadline < maxPoll:
		return c.ReadDeadline
	default:
		return maxPoll
	}
}

// Transport is a byte stream to the microcontroller. Implementations are
// not safe for concurrent use; the broker owns the only reference.
type Transport interface {
	// Write sends frame in full and waits for it to leave the host.
	Write(frame []byte) error

	// ReadUntil returns bytes up to and including delim.
	ReadUntil(delim byte) ([]byte, error)

	// Flush discards any unread input.
	Flush() error

	Close() error
}
