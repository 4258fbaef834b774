// serialcomm/driver_bugst.go
package serialcomm

import (
	"go.bug.st/serial"
)

type bugstPort struct {
	serial.Port
}

func openBugst(cfg SerialConfig) (port, error) {
	p, err := serial.Open(cfg.PortName, &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, err
	}
	if d := cfg.pollInterval(); d > 0 {
		if err := p.SetReadTimeout(d); err != nil {
			p.Close()
			return nil, err
		}
	}
	return bugstPort{p}, nil
}

func (p bugstPort) Flush() error {
	return p.ResetInputBuffer()
}
