// serialcomm/simulator.go
package serialcomm

import (
	"math/rand"
	"sync"

	"ammcon/protocol"
)

// Opcode ranges answered with ACK by the simulated microcontroller.
const (
	SensorOpcodeMin   = 0xD0
	SensorOpcodeMax   = 0xDF // exclusive
	LightingOpcodeMin = 0xB0
	LightingOpcodeMax = 0xBF // exclusive
)

// Ranges of a simulated sensor reading.
const (
	TempWholeMin = 1
	TempWholeMax = 37
	HumidityMin  = 10
	HumidityMax  = 75
)

// Simulator answers request frames the way the ammcon firmware does.
type Simulator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewSimulator(seed int64) *Simulator {
	return &Simulator{rng: rand.New(rand.NewSource(seed))}
}

// Respond decodes request and returns the response frame. Only malformed
// requests produce an error.
func (s *Simulator) Respond(request []byte) ([]byte, error) {
	payload, err := protocol.DecodeRequest(request)
	if err != nil {
		return nil, err
	}

	var op, sub byte
	if len(payload) > 0 {
		op = payload[0]
	}
	if len(payload) > 1 {
		sub = payload[1]
	}
	desc := [2]byte{op, sub}

	switch {
	case op >= SensorOpcodeMin && op < SensorOpcodeMax:
		return protocol.EncodeResponse(protocol.Ack, desc, s.reading()), nil
	case op >= LightingOpcodeMin && op < LightingOpcodeMax:
		return protocol.EncodeResponse(protocol.Ack, desc, []byte{^sub}), nil
	default:
		return protocol.EncodeResponse(protocol.Nak, desc, []byte{^sub}), nil
	}
}

// reading returns [temp whole, temp hundredths, humidity, 0]. Readings
// whose CRC equals End are drawn again, since the CRC is sent unescaped
// and the host reads up to the first End.
func (s *Simulator) reading() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		r := []byte{
			byte(TempWholeMin + s.rng.Intn(TempWholeMax-TempWholeMin+1)),
			byte(25 * s.rng.Intn(4)),
			byte(HumidityMin + 5*s.rng.Intn((HumidityMax-HumidityMin)/5+1)),
			0,
		}
		if protocol.Checksum(r) != protocol.End {
			return r
		}
	}
}
