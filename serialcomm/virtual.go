// serialcomm/virtual.go
package serialcomm

import (
	"bytes"
	"log"
	"sync"

	"ammcon/protocol"
)

// VirtualPortName is reported in errors from a VirtualTransport.
const VirtualPortName = "virtual"

// VirtualStats counts calls made against a VirtualTransport. Overlaps
// counts writes that arrived before the previous response was read.
type VirtualStats struct {
	Writes   int
	Reads    int
	Flushes  int
	Overlaps int
}

// VirtualTransport is an in-memory microcontroller. Every written frame is
// answered by a Simulator unless a canned frame was queued first.
type VirtualTransport struct {
	sim *Simulator

	mu       sync.Mutex
	cond     *sync.Cond
	pending  []byte
	queued   [][]byte
	written  [][]byte
	awaiting bool
	closed   bool
	stats    VirtualStats
}

var _ Transport = (*VirtualTransport)(nil)

func NewVirtualTransport(seed int64) *VirtualTransport {
	v := &VirtualTransport{sim: NewSimulator(seed)}
	v.cond = sync.NewCond(&v.mu)
	return v
}

// QueueResponse makes frame the answer to the next write in place of the
// simulated one. Queued frames are used in order.
func (v *VirtualTransport) QueueResponse(frame []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.queued = append(v.queued, append([]byte(nil), frame...))
}

func (v *VirtualTransport) Write(frame []byte) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return &TransportError{Op: "write", Port: VirtualPortName, Err: ErrClosed}
	}
	v.stats.Writes++
	if v.awaiting {
		v.stats.Overlaps++
	}
	v.awaiting = true
	v.written = append(v.written, append([]byte(nil), frame...))

	var resp []byte
	if len(v.queued) > 0 {
		resp, v.queued = v.queued[0], v.queued[1:]
	} else {
		var err error
		resp, err = v.sim.Respond(frame)
		if err != nil {
			log.Printf("serialcomm: virtual device rejected % X: %v", frame, err)
			resp = protocol.EncodeResponse(protocol.Nak, [2]byte{}, nil)
		}
	}

	v.pending = append(v.pending, resp...)
	v.cond.Broadcast()
	return nil
}

// ReadUntil blocks until delim is pending or the transport is closed.
func (v *VirtualTransport) ReadUntil(delim byte) ([]byte, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for {
		if v.closed {
			return nil, &TransportError{Op: "read", Port: VirtualPortName, Err: ErrClosed}
		}
		if i := bytes.IndexByte(v.pending, delim); i >= 0 {
			out := append([]byte(nil), v.pending[:i+1]...)
			v.pending = v.pending[i+1:]
			v.stats.Reads++
			v.awaiting = false
			return out, nil
		}
		v.cond.Wait()
	}
}

func (v *VirtualTransport) Flush() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return &TransportError{Op: "flush", Port: VirtualPortName, Err: ErrClosed}
	}
	v.pending = nil
	v.stats.Flushes++
	return nil
}

func (v *VirtualTransport) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.closed = true
	v.cond.Broadcast()
	return nil
}

func (v *VirtualTransport) Stats() VirtualStats {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stats
}

// Written returns copies of every frame written so far.
func (v *VirtualTransport) Written() [][]byte {
	v.mu.Lock()
	defer v.mu.Unlock()

	out := make([][]byte, len(v.written))
	for i, f := range v.written {
		out[i] = append([]byte(nil), f...)
	}
	return out
}
