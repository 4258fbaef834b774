package main

import (
	"errors"
	"flag"
	"log"
	"time"

	"ammcon/protocol"
	"ammcon/serialcomm"
)

// receive plays the microcontroller on a serial port, e.g. one end of a
// socat pty pair, so the daemon can be run against it.

var (
	portName = flag.String("port", "/dev/ttyUSB1", "Serial port to answer on")
	baud     = flag.Int("baud", serialcomm.DefaultBaudRate, "Baud rate")
	driver   = flag.String("driver", serialcomm.DriverTarm, "Serial driver: tarm or bugst")
	seed     = flag.Int64("seed", 0, "Random seed for sensor readings (0 uses the clock)")
)

func main() {
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}

	cfg := serialcomm.DefaultConfig(*portName)
	cfg.BaudRate = *baud
	cfg.Driver = *driver
	cfg.SettleDelay = 200 * time.Millisecond

	t, err := serialcomm.Open(cfg)
	if err != nil {
		log.Fatalf("receive: %v", err)
	}
	defer t.Close()

	sim := serialcomm.NewSimulator(*seed)
	log.Printf("receive: answering on %s", *portName)

	for {
		frame, err := t.ReadUntil(protocol.End)
		if err != nil {
			if errors.Is(err, serialcomm.ErrClosed) {
				return
			}
			log.Fatalf("receive: %v", err)
		}
		log.Printf("receive: <- %s", serialcomm.Hex(frame))

		resp, err := sim.Respond(frame)
		if err != nil {
			log.Printf("receive: dropping request: %v", err)
			if err := t.Flush(); err != nil {
				log.Printf("receive: flush: %v", err)
			}
			continue
		}

		if err := t.Write(resp); err != nil {
			log.Fatalf("receive: %v", err)
		}
		log.Printf("receive: -> %s", serialcomm.Hex(resp))
	}
}
