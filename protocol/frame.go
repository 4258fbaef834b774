package protocol

import "fmt"

// Response is a decoded microcontroller reply.
type Response struct {
	// Flag is Ack or Nak. Other values are passed through untouched.
	Flag byte

	// Desc echoes the opcode and sub-opcode of the command being answered.
	Desc [2]byte

	// Payload is the destuffed payload.
	Payload []byte

	// CRC is the checksum byte as received.
	CRC byte
}

// Acked reports whether the peer accepted the command.
func (r *Response) Acked() bool {
	return r.Flag == Ack
}

func (r *Response) String() string {
	flag := "NAK"
	if r.Acked() {
		flag = "ACK"
	} else if r.Flag != Nak {
		flag = fmt.Sprintf("0x%02X", r.Flag)
	}
	return fmt.Sprintf("%s desc=%02X%02X payload=%X", flag, r.Desc[0], r.Desc[1], r.Payload)
}

// IsSentinel reports whether b must be escaped inside a payload.
func IsSentinel(b byte) bool {
	return b == Hdr || b == End || b == Esc
}

// Encode builds a request frame around payload. Any byte sequence is
// encodable; payload bytes equal to Hdr, End or Esc are prefixed with Esc.
func Encode(payload []byte) []byte {
	out := make([]byte, 0, len(payload)*2+minRequestSize)
	out = append(out, Hdr)
	out = stuff(out, payload)
	out = append(out, Checksum(payload), End)
	return out
}

// EncodeResponse builds a response frame. The flag and Desc bytes are sent
// as-is; only the payload is stuffed.
func EncodeResponse(flag byte, desc [2]byte, payload []byte) []byte {
	out := make([]byte, 0, len(payload)*2+minResponseSize)
	out = append(out, Hdr, flag, desc[0], desc[1])
	out = stuff(out, payload)
	out = append(out, Checksum(payload), End)
	return out
}

// Decode validates a response frame read up to and including End and
// returns its fields. Failures are always *FrameError.
func Decode(frame []byte) (*Response, error) {
	if len(frame) < minResponseSize {
		return nil, &FrameError{Err: ErrShortFrame, Offset: len(frame)}
	}
	if err := checkDelimiters(frame); err != nil {
		return nil, err
	}

	payload, err := unstuff(frame, responseHeaderSize, len(frame)-trailerSize)
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Flag:    frame[1],
		Desc:    [2]byte{frame[2], frame[3]},
		Payload: payload,
		CRC:     frame[len(frame)-trailerSize],
	}
	if err := checkCRC(payload, resp.CRC, len(frame)-trailerSize); err != nil {
		return nil, err
	}
	return resp, nil
}

// DecodeRequest is the inverse of Encode.
func DecodeRequest(frame []byte) ([]byte, error) {
	if len(frame) < minRequestSize {
		return nil, &FrameError{Err: ErrShortFrame, Offset: len(frame)}
	}
	if err := checkDelimiters(frame); err != nil {
		return nil, err
	}

	payload, err := unstuff(frame, 1, len(frame)-trailerSize)
	if err != nil {
		return nil, err
	}
	if err := checkCRC(payload, frame[len(frame)-trailerSize], len(frame)-trailerSize); err != nil {
		return nil, err
	}
	return payload, nil
}

func checkDelimiters(frame []byte) error {
	if frame[0] != Hdr {
		return &FrameError{Err: ErrBadDelimiter, Offset: 0}
	}
	if frame[len(frame)-1] != End {
		return &FrameError{Err: ErrBadDelimiter, Offset: len(frame) - 1}
	}
	return nil
}

func checkCRC(payload []byte, received byte, offset int) error {
	expected := Checksum(payload)
	if expected != received {
		return &FrameError{
			Err:      ErrCRCMismatch,
			Offset:   offset,
			Expected: expected,
			Received: received,
		}
	}
	return nil
}

// stuff appends payload to dst, escaping sentinel bytes.
func stuff(dst, payload []byte) []byte {
	for _, b := range payload {
		if IsSentinel(b) {
			dst = append(dst, Esc)
		}
		dst = append(dst, b)
	}
	return dst
}

// unstuff destuffs frame[from:to]. The escape flag is local to one call.
func unstuff(frame []byte, from, to int) ([]byte, error) {
	out := make([]byte, 0, to-from)
	escaped := false
	for i := from; i < to; i++ {
		b := frame[i]
		switch {
		case escaped:
			out = append(out, b)
			escaped = false
		case b == Esc:
			escaped = true
		case b == End:
			return nil, &FrameError{Err: ErrPrematureEnd, Offset: i}
		default:
			out = append(out, b)
		}
	}
	if escaped {
		return nil, &FrameError{Err: ErrTruncatedEscape, Offset: to - 1}
	}
	return out, nil
}
