// serialcomm/driver_tarm.go
package serialcomm

import (
	"github.com/tarm/serial"
)

type tarmPort struct {
	*serial.Port
}

func openTarm(cfg SerialConfig) (port, error) {
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.PortName,
		Baud:        cfg.BaudRate,
		Parity:      serial.ParityNone,
		StopBits:    serial.Stop1,
		ReadTimeout: cfg.pollInterval(),
	})
	if err != nil {
		return nil, err
	}
	return tarmPort{p}, nil
}

// Drain is a no-op: tarm/serial has no tcdrain and Write returns once the
// kernel holds the bytes.
func (tarmPort) Drain() error {
	return nil
}
