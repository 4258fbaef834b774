// Package protocol implements the ammcon serial wire format: CRC-8 checksums,
// byte stuffing and request/response frame encoding.
//
// A request frame is
//
//	Hdr | stuffed payload | CRC | End
//
// and a response frame is
//
//	Hdr | Ack/Nak | Desc(2) | stuffed payload | CRC | End
//
// The CRC covers the unescaped payload only.
package protocol

// Framing control bytes.
const (
	Hdr byte = 0x3C
	End byte = 0x3E
	Esc byte = 0x7C
)

// Response flags carried in the byte after Hdr.
const (
	Ack byte = 0x06
	Nak byte = 0x15
)

// CRC-8 parameters. Input and output are not reflected and there is no final XOR.
const (
	CRCPoly byte = 0xE7
	CRCSeed byte = 0x5A
)

// MaxPayloadSize is the largest unescaped payload the microcontroller accepts.
const MaxPayloadSize = 18

const (
	responseHeaderSize = 4 // Hdr, flag, Desc
	trailerSize        = 2 // CRC, End
	minResponseSize    = responseHeaderSize + trailerSize
	minRequestSize     = 1 + trailerSize
)
