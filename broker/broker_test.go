package broker

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"ammcon/commands"
	"ammcon/protocol"
	"ammcon/serialcomm"
)

var quiet = WithLogger(log.New(io.Discard, "", 0))

func newVirtualBroker(t *testing.T, seed int64, opts ...Option) (*Broker, *serialcomm.VirtualTransport) {
	t.Helper()
	v := serialcomm.NewVirtualTransport(seed)
	b := New(v, commands.Default(), append([]Option{quiet}, opts...)...)
	t.Cleanup(func() { b.Close() })
	return b, v
}

// mockTransport is a testify mock of serialcomm.Transport.
type mockTransport struct {
	mock.Mock
}

func (m *mockTransport) Write(frame []byte) error {
	return m.Called(frame).Error(0)
}

func (m *mockTransport) ReadUntil(delim byte) ([]byte, error) {
	args := m.Called(delim)
	frame, _ := args.Get(0).([]byte)
	return frame, args.Error(1)
}

func (m *mockTransport) Flush() error {
	return m.Called().Error(0)
}

func (m *mockTransport) Close() error {
	return m.Called().Error(0)
}

// gatedTransport holds the first ReadUntil until release is closed.
type gatedTransport struct {
	*serialcomm.VirtualTransport
	release chan struct{}
	once    sync.Once
}

func (g *gatedTransport) ReadUntil(delim byte) ([]byte, error) {
	g.once.Do(func() { <-g.release })
	return g.VirtualTransport.ReadUntil(delim)
}

func TestTemperatureQuery(t *testing.T) {
	b, v := newVirtualBroker(t, 1)

	resp, err := b.Submit("temp")
	require.NoError(t, err)
	assert.True(t, resp.Acked())
	assert.Equal(t, [2]byte{0xD1, 0x00}, resp.Desc)
	require.Len(t, resp.Payload, 4)
	assert.GreaterOrEqual(t, int(resp.Payload[0]), serialcomm.TempWholeMin)
	assert.LessOrEqual(t, int(resp.Payload[0]), serialcomm.TempWholeMax)
	assert.GreaterOrEqual(t, int(resp.Payload[2]), serialcomm.HumidityMin)
	assert.LessOrEqual(t, int(resp.Payload[2]), serialcomm.HumidityMax)

	assert.Equal(t, [][]byte{{protocol.Hdr, 0xD1, 0xA7, protocol.End}}, v.Written())
	assert.Equal(t, Idle, b.State())
}

func TestLightingCommand(t *testing.T) {
	b, _ := newVirtualBroker(t, 2)

	resp, err := b.Submit("bedroom on")
	require.NoError(t, err)
	assert.True(t, resp.Acked())
	assert.Equal(t, [2]byte{0xB1, 0x01}, resp.Desc)
	assert.Equal(t, []byte{0xFE}, resp.Payload)
	assert.Equal(t, byte(0x26), resp.CRC)
}

func TestNakIsAResponse(t *testing.T) {
	b, _ := newVirtualBroker(t, 3)

	resp, err := b.Submit("tv mute")
	require.NoError(t, err)
	assert.False(t, resp.Acked())
	assert.Equal(t, [2]byte{0xC1, 0x01}, resp.Desc)
}

func TestUnknownCommandSkipsTransport(t *testing.T) {
	b, v := newVirtualBroker(t, 4)

	resp, err := b.Submit("open the pod bay doors")
	assert.Nil(t, resp)
	require.ErrorIs(t, err, ErrUnknownCommand)

	var be *Error
	require.True(t, errors.As(err, &be))
	assert.Equal(t, "open the pod bay doors", be.Command)
	assert.Equal(t, serialcomm.VirtualStats{}, v.Stats())
}

func TestSubmitRaw(t *testing.T) {
	b, v := newVirtualBroker(t, 5)

	resp, err := b.SubmitRaw(context.Background(), []byte{0xB5, 0x06})
	require.NoError(t, err)
	assert.Equal(t, []byte{0xF9}, resp.Payload)

	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"too long", make([]byte, protocol.MaxPayloadSize+1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := b.SubmitRaw(context.Background(), tt.payload)
			assert.ErrorIs(t, err, ErrInvalidPayload)
		})
	}
	assert.Equal(t, 1, v.Stats().Writes)
}

func TestCorruptResponse(t *testing.T) {
	b, v := newVirtualBroker(t, 6)

	bad := protocol.EncodeResponse(protocol.Ack, [2]byte{0xB1, 0x01}, []byte{0xFE})
	bad[len(bad)-2] ^= 0x01
	v.QueueResponse(bad)

	_, err := b.Submit("bedroom on")
	require.ErrorIs(t, err, ErrCorrupt)
	assert.ErrorIs(t, err, protocol.ErrCRCMismatch)

	var fe *protocol.FrameError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, byte(0x26), fe.Expected)
	assert.Equal(t, byte(0x27), fe.Received)
	assert.Equal(t, 1, v.Stats().Flushes)

	// No retry was attempted, and the next exchange is unaffected.
	assert.Equal(t, 1, v.Stats().Writes)
	resp, err := b.Submit("bedroom on")
	require.NoError(t, err)
	assert.True(t, resp.Acked())
}

func TestConcurrentSubmitsAreSerialised(t *testing.T) {
	b, v := newVirtualBroker(t, 7)
	names := []string{"temp", "bedroom on", "living off", "tv switch", "tempbedroom3"}

	const n = 50
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := b.Submit(names[i%len(names)])
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	stats := v.Stats()
	assert.Equal(t, n, stats.Writes)
	assert.Equal(t, n, stats.Reads)
	assert.Zero(t, stats.Overlaps)
}

func TestRequestsAreServedInOrder(t *testing.T) {
	g := &gatedTransport{
		VirtualTransport: serialcomm.NewVirtualTransport(8),
		release:          make(chan struct{}),
	}
	b := New(g, commands.Default(), quiet)
	defer b.Close()

	first := make(chan error, 1)
	go func() {
		_, err := b.Submit("temp")
		first <- err
	}()
	require.Eventually(t, func() bool { return b.State() == Busy }, time.Second, time.Millisecond)

	order := []string{"bedroom off", "myroom on", "kayoroom up", "living2 mix"}
	var wg sync.WaitGroup
	for i, name := range order {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			_, err := b.Submit(name)
			assert.NoError(t, err)
		}(name)
		want := i + 1
		require.Eventually(t, func() bool { return b.Pending() == want }, time.Second, time.Millisecond)
	}

	close(g.release)
	require.NoError(t, <-first)
	wg.Wait()

	written := g.Written()
	require.Len(t, written, len(order)+1)
	for i, name := range order {
		payload, _ := commands.Default().Lookup(name)
		assert.Equal(t, protocol.Encode(payload), written[i+1], name)
	}
}

func TestCancelWhileQueued(t *testing.T) {
	g := &gatedTransport{
		VirtualTransport: serialcomm.NewVirtualTransport(9),
		release:          make(chan struct{}),
	}
	b := New(g, commands.Default(), quiet)
	defer b.Close()

	go b.Submit("temp")
	require.Eventually(t, func() bool { return b.State() == Busy }, time.Second, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := b.SubmitContext(ctx, "bedroom on")
		errc <- err
	}()
	require.Eventually(t, func() bool { return b.Pending() == 1 }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)

	close(g.release)
	require.Eventually(t, func() bool { return b.Pending() == 0 && b.State() == Idle }, time.Second, time.Millisecond)
	assert.Len(t, g.Written(), 1)
}

func TestCancelAfterWriteDrainsResponse(t *testing.T) {
	g := &gatedTransport{
		VirtualTransport: serialcomm.NewVirtualTransport(10),
		release:          make(chan struct{}),
	}
	b := New(g, commands.Default(), quiet)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := b.SubmitContext(ctx, "temp")
		first <- err
	}()
	require.Eventually(t, func() bool { return b.State() == Busy }, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	type result struct {
		resp *protocol.Response
		err  error
	}
	second := make(chan result, 1)
	go func() {
		resp, err := b.Submit("bedroom on")
		second <- result{resp, err}
	}()
	require.Eventually(t, func() bool { return b.Pending() == 1 }, time.Second, time.Millisecond)

	close(g.release)
	select {
	case r := <-second:
		require.NoError(t, r.err)
		assert.Equal(t, [2]byte{0xB1, 0x01}, r.resp.Desc)
	case <-time.After(2 * time.Second):
		t.Fatal("second command was not answered")
	}

	stats := g.Stats()
	assert.Equal(t, 2, stats.Writes)
	assert.Equal(t, 2, stats.Reads)
	assert.Zero(t, stats.Overlaps)
}

func TestWriteFailure(t *testing.T) {
	m := new(mockTransport)
	cause := errors.New("device disconnected")
	m.On("Write", mock.Anything).Return(cause).Once()
	m.On("Flush").Return(nil).Once()
	m.On("Close").Return(nil)

	b := New(m, commands.Default(), quiet)
	_, err := b.Submit("bedroom on")
	require.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, cause)
	require.NoError(t, b.Close())

	m.AssertExpectations(t)
	m.AssertNotCalled(t, "ReadUntil", mock.Anything)
}

func TestWriteTimeoutResyncsBeforeNextCommand(t *testing.T) {
	m := new(mockTransport)
	timedOut := &serialcomm.TransportError{Op: "write", Port: "/dev/ttyUSB0", Err: serialcomm.ErrWriteTimeout}
	tempFrame := protocol.Encode([]byte{0xD1})
	lightFrame := protocol.Encode([]byte{0xB1, 0x01})
	lightResp := protocol.EncodeResponse(protocol.Ack, [2]byte{0xB1, 0x01}, []byte{0xFE})

	m.On("Write", tempFrame).Return(timedOut).Once()
	flush := m.On("Flush").Return(nil).Once()
	write := m.On("Write", lightFrame).Return(nil).Once().NotBefore(flush)
	m.On("ReadUntil", protocol.End).Return(lightResp, nil).Once().NotBefore(write)
	m.On("Close").Return(nil)

	b := New(m, commands.Default(), quiet)
	_, err := b.Submit("temp")
	require.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, serialcomm.ErrWriteTimeout)

	resp, err := b.Submit("bedroom on")
	require.NoError(t, err)
	assert.Equal(t, [2]byte{0xB1, 0x01}, resp.Desc)
	require.NoError(t, b.Close())

	m.AssertExpectations(t)
}

func TestReadFailureFlushes(t *testing.T) {
	m := new(mockTransport)
	frame := protocol.Encode([]byte{0xD1})
	m.On("Write", frame).Return(nil).Once()
	m.On("ReadUntil", protocol.End).Return(nil, serialcomm.ErrReadTimeout).Once()
	m.On("Flush").Return(nil).Once()
	m.On("Close").Return(nil)

	b := New(m, commands.Default(), quiet)
	_, err := b.Submit("temp")
	require.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, serialcomm.ErrReadTimeout)
	require.NoError(t, b.Close())

	m.AssertExpectations(t)
}

func TestSubmitAfterClose(t *testing.T) {
	b, v := newVirtualBroker(t, 10)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	_, err := b.Submit("temp")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = b.SubmitRaw(context.Background(), []byte{0xD1})
	assert.ErrorIs(t, err, ErrClosed)
	assert.Zero(t, v.Stats().Writes)
}

func TestCloseAbortsSilentDevice(t *testing.T) {
	b, v := newVirtualBroker(t, 11)
	// A response without End never completes a read.
	v.QueueResponse([]byte{protocol.Hdr, protocol.Ack})

	errc := make(chan error, 1)
	go func() {
		_, err := b.Submit("bedroom on")
		errc <- err
	}()
	require.Eventually(t, func() bool { return b.State() == Busy }, time.Second, time.Millisecond)

	require.NoError(t, b.Close())
	select {
	case err := <-errc:
		assert.ErrorIs(t, err, ErrTransport)
		assert.ErrorIs(t, err, serialcomm.ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Submit still blocked after Close")
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "busy", Busy.String())
	assert.Equal(t, "State(7)", State(7).String())
}
