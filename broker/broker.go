// Package broker serialises access to the microcontroller. Any number of
// goroutines may submit commands; a single worker performs the exchanges
// one at a time in arrival order.
package broker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"ammcon/commands"
	"ammcon/protocol"
	"ammcon/serialcomm"
)

// State of the worker.
type State int32

const (
	Idle State = iota
	Busy
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

type result struct {
	resp *protocol.Response
	err  error
}

type request struct {
	ctx     context.Context
	label   string
	payload []byte
	reply   chan result
}

// Broker owns a Transport. Nothing else may use the transport while the
// broker is running.
type Broker struct {
	t      serialcomm.Transport
	table  *commands.Table
	logger *log.Logger

	reqs  chan *request
	quit  chan struct{}
	done  chan struct{}
	state atomic.Int32

	closeOnce sync.Once
	closeErr  error
}

// New starts the worker. table may be nil when only SubmitRaw is used.
func New(t serialcomm.Transport, table *commands.Table, opts ...Option) *Broker {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	b := &Broker{
		t:      t,
		table:  table,
		logger: cfg.logger,
		reqs:   make(chan *request, cfg.queueSize),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

// Submit sends the named command and waits for its response.
func (b *Broker) Submit(name string) (*protocol.Response, error) {
	return b.SubmitContext(context.Background(), name)
}

// SubmitContext is Submit with cancellation. A request cancelled while it
// is still queued is dropped without touching the device.
func (b *Broker) SubmitContext(ctx context.Context, name string) (*protocol.Response, error) {
	var payload []byte
	ok := false
	if b.table != nil {
		payload, ok = b.table.Lookup(name)
	}
	if !ok {
		return nil, &Error{Command: name, Kind: ErrUnknownCommand}
	}
	return b.submit(ctx, name, payload)
}

// SubmitRaw sends an already resolved payload.
func (b *Broker) SubmitRaw(ctx context.Context, payload []byte) (*protocol.Response, error) {
	label := fmt.Sprintf("raw[% X]", payload)
	if len(payload) == 0 || len(payload) > protocol.MaxPayloadSize {
		return nil, &Error{
			Command: label,
			Kind:    ErrInvalidPayload,
			Err:     fmt.Errorf("payload must be 1-%d bytes, got %d", protocol.MaxPayloadSize, len(payload)),
		}
	}
	return b.submit(ctx, label, append([]byte(nil), payload...))
}

func (b *Broker) submit(ctx context.Context, label string, payload []byte) (*protocol.Response, error) {
	req := &request{
		ctx:     ctx,
		label:   label,
		payload: payload,
		reply:   make(chan result, 1),
	}

	select {
	case <-b.quit:
		return nil, &Error{Command: label, Kind: ErrClosed}
	default:
	}

	select {
	case b.reqs <- req:
	case <-b.quit:
		return nil, &Error{Command: label, Kind: ErrClosed}
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case r := <-req.reply:
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-b.done:
		select {
		case r := <-req.reply:
			return r.resp, r.err
		default:
			return nil, &Error{Command: label, Kind: ErrClosed}
		}
	}
}

// State reports whether an exchange is in flight.
func (b *Broker) State() State {
	return State(b.state.Load())
}

// Pending returns the number of queued requests, excluding the one in
// flight.
func (b *Broker) Pending() int {
	return len(b.reqs)
}

// Close stops accepting work, closes the transport and waits for the
// worker. Closing the transport aborts an exchange blocked on a silent
// device.
func (b *Broker) Close() error {
	b.closeOnce.Do(func() {
		close(b.quit)
		b.closeErr = b.t.Close()
		<-b.done
	})
	return b.closeErr
}

func (b *Broker) run() {
	defer close(b.done)
	for {
		select {
		case req := <-b.reqs:
			b.handle(req)
		case <-b.quit:
			b.drain()
			return
		}
	}
}

// drain answers requests that were queued when Close was called.
func (b *Broker) drain() {
	for {
		select {
		case req := <-b.reqs:
			req.reply <- result{err: &Error{Command: req.label, Kind: ErrClosed}}
		default:
			return
		}
	}
}

func (b *Broker) handle(req *request) {
	if err := req.ctx.Err(); err != nil {
		req.reply <- result{err: err}
		return
	}

	b.state.Store(int32(Busy))
	resp, err := b.exchange(req)
	b.state.Store(int32(Idle))
	req.reply <- result{resp: resp, err: err}
}

// exchange performs one write/read cycle. It always consumes the response
// to a frame it wrote, even if the caller has given up.
func (b *Broker) exchange(req *request) (*protocol.Response, error) {
	frame := protocol.Encode(req.payload)
	b.logger.Printf("broker: %s -> %s", req.label, serialcomm.Hex(frame))

	if err := b.t.Write(frame); err != nil {
		b.logger.Printf("broker: %s: write failed: %v", req.label, err)
		b.resync()
		return nil, &Error{Command: req.label, Kind: ErrTransport, Err: err}
	}

	raw, err := b.t.ReadUntil(protocol.End)
	if err != nil {
		b.logger.Printf("broker: %s: read failed: %v", req.label, err)
		b.resync()
		return nil, &Error{Command: req.label, Kind: ErrTransport, Err: err}
	}

	resp, err := protocol.Decode(raw)
	if err != nil {
		b.logger.Printf("broker: %s: discarding %s: %v", req.label, serialcomm.Hex(raw), err)
		b.resync()
		return nil, &Error{Command: req.label, Kind: ErrCorrupt, Err: err}
	}

	b.logger.Printf("broker: %s <- %s (%s)", req.label, serialcomm.Hex(raw), resp)
	return resp, nil
}

// resync drops whatever is left of a frame that failed to write, read or
// decode so the next exchange starts on a frame boundary.
func (b *Broker) resync() {
	if err := b.t.Flush(); err != nil {
		b.logger.Printf("broker: flush after failed exchange: %v", err)
	}
}
