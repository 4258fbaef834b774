// Package gateway exposes the broker to the network. Every front end takes
// a Request naming a vocabulary command and answers with a Reply.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ammcon/broker"
	"ammcon/protocol"
	"ammcon/serialcomm"
	"ammcon/templog"
)

// DefaultTimeout bounds a request when none is configured.
const DefaultTimeout = 10 * time.Second

// Submitter is the part of the broker the gateways need.
type Submitter interface {
	SubmitContext(ctx context.Context, name string) (*protocol.Response, error)
}

type Request struct {
	ID      string `json:"id,omitempty"`
	Command string `json:"command"`
}

type Reply struct {
	ID      string `json:"id,omitempty"`
	Command string `json:"command"`
	Ack     bool   `json:"ack"`
	Flag    string `json:"flag,omitempty"`
	Desc    string `json:"desc,omitempty"`
	Payload string `json:"payload,omitempty"`

	// Reading is set for sensor commands.
	Reading string `json:"reading,omitempty"`

	Error string    `json:"error,omitempty"`
	Time  time.Time `json:"time"`
}

// execute runs req through sub and builds the reply. The error is the
// broker error, if any, for callers that map it to a status.
func execute(ctx context.Context, sub Submitter, timeout time.Duration, req Request) (Reply, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply := Reply{ID: req.ID, Command: req.Command}
	if req.Command == "" {
		err := &broker.Error{Command: "", Kind: broker.ErrUnknownCommand}
		reply.Error = "no command given"
		reply.Time = time.Now()
		return reply, err
	}

	resp, err := sub.SubmitContext(ctx, req.Command)
	reply.Time = time.Now()
	if err != nil {
		reply.Error = err.Error()
		return reply, err
	}

	reply.Ack = resp.Acked()
	reply.Flag = flagName(resp.Flag)
	reply.Desc = fmt.Sprintf("%02X%02X", resp.Desc[0], resp.Desc[1])
	reply.Payload = fmt.Sprintf("%X", resp.Payload)
	if op := resp.Desc[0]; op >= serialcomm.SensorOpcodeMin && op < serialcomm.SensorOpcodeMax {
		if r, err := templog.ParseReading(resp); err == nil {
			reply.Reading = r.String()
		}
	}
	return reply, nil
}

func flagName(flag byte) string {
	switch flag {
	case protocol.Ack:
		return "ACK"
	case protocol.Nak:
		return "NAK"
	default:
		return fmt.Sprintf("0x%02X", flag)
	}
}

// isClientError reports whether err was caused by the request itself.
func isClientError(err error) bool {
	return errors.Is(err, broker.ErrUnknownCommand) || errors.Is(err, broker.ErrInvalidPayload)
}
