package protocol

import "github.com/sigurn/crc8"

var crcTable = crc8.MakeTable(crc8.Params{
	Poly:   CRCPoly,
	Init:   CRCSeed,
	RefIn:  false,
	RefOut: false,
	XorOut: 0x00,
	Check:  0x3C,
	Name:   "CRC-8/AMMCON",
})

// Engine is a running CRC-8 computation. The zero value is not seeded; use
// NewEngine or call Reset before Update.
//
// An Engine must not be shared between goroutines.
type Engine struct {
	crc uint8
}

// NewEngine returns an Engine seeded with CRCSeed.
func NewEngine() *Engine {
	e := &Engine{}
	e.Reset(CRCSeed)
	return e
}

// Reset clears the register to seed.
func (e *Engine) Reset(seed byte) {
	e.crc = seed
}

// Update feeds p into the register.
func (e *Engine) Update(p []byte) *Engine {
	e.crc = crc8.Update(e.crc, p, crcTable)
	return e
}

// Finalize returns the checksum of everything fed since the last Reset.
func (e *Engine) Finalize() byte {
	return crc8.Complete(e.crc, crcTable)
}

// Checksum returns the protocol CRC-8 of p.
func Checksum(p []byte) byte {
	return NewEngine().Update(p).Finalize()
}
