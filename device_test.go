package serial

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeTransport delivers chunks pushed with feed and records writes.
// When echo is set every write is fed back, like a loopback plug.
type fakeTransport struct {
	incoming  chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	echo      bool
	readErr   error

	mu       sync.Mutex
	written  [][]byte
	drains   int
	writeErr error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		incoming: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (f *fakeTransport) feed(p []byte) { f.incoming <- append([]byte(nil), p...) }

func (f *fakeTransport) Read(p []byte) (int, error) {
	select {
	case chunk := <-f.incoming:
		if chunk == nil {
			if f.readErr != nil {
				return 0, f.readErr
			}
			return 0, nil
		}
		return copy(p, chunk), nil
	case <-f.closed:
		return 0, io.EOF
	}
}

func (f *fakeTransport) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	f.written = append(f.written, append([]byte(nil), p...))
	if f.echo {
		f.incoming <- append([]byte(nil), p...)
	}
	return len(p), nil
}

func (f *fakeTransport) Drain() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drains++
	return nil
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestDevice(t *testing.T) (*Device, *fakeTransport) {
	t.Helper()
	ft := newFakeTransport()
	dev := NewDevice(ft, discardLogger())
	t.Cleanup(func() { dev.Close() })
	return dev, ft
}

// waitQueued blocks until the feeder has queued n bytes.
func waitQueued(t *testing.T, dev *Device, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return dev.queue.len() >= n }, time.Second, time.Millisecond)
}

func TestDevice_ReadSize(t *testing.T) {
	dev, ft := newTestDevice(t)
	ft.feed([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06})
	waitQueued(t, dev, 6)

	got, err := dev.Read(4, -1, 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01, 0x02, 0x03, 0x04}, got)

	// The rest stays queued for the next read.
	got, err = dev.Read(-1, -1, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{0x05, 0x06}, got)
}

func TestDevice_ReadTerminator(t *testing.T) {
	dev, ft := newTestDevice(t)
	ft.feed([]byte{0xAA, 0x00, 0xBB})
	waitQueued(t, dev, 3)

	got, err := dev.Read(-1, 0, time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0x00}, got)
}

func TestDevice_ReadTerminatorBeforeSize(t *testing.T) {
	dev, ft := newTestDevice(t)
	ft.feed([]byte("ab\ncdef"))
	waitQueued(t, dev, 7)

	got, err := dev.Read(5, '\n', time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte("ab\n"), got)
}

func TestDevice_ReadHugeSizeWithTerminator(t *testing.T) {
	dev, ft := newTestDevice(t)
	ft.feed([]byte{0x41, 0x0A})
	waitQueued(t, dev, 2)

	var got []byte
	var err error
	require.NotPanics(t, func() { got, err = dev.Read(1<<50, 0x0A, 10*time.Millisecond) })
	require.NoError(t, err)
	require.Equal(t, []byte{0x41, 0x0A}, got)
}

func TestDevice_ReadSizeBeforeTerminator(t *testing.T) {
	dev, ft := newTestDevice(t)
	ft.feed([]byte("abcdef\n"))
	waitQueued(t, dev, 7)

	got, err := dev.Read(3, '\n', time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), got)
}

func TestDevice_ReadSilentTimesOut(t *testing.T) {
	dev, _ := newTestDevice(t)

	start := time.Now()
	got, err := dev.Read(-1, -1, 50*time.Millisecond)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.NotNil(t, got)
	require.Empty(t, got)
	require.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	require.Less(t, elapsed, time.Second)
}

func TestDevice_ReadZeroTimeoutReturnsQueued(t *testing.T) {
	dev, ft := newTestDevice(t)

	got, err := dev.Read(-1, -1, 0)
	require.NoError(t, err)
	require.Empty(t, got)

	ft.feed([]byte{0x10, 0x20})
	waitQueued(t, dev, 2)

	start := time.Now()
	got, err = dev.Read(-1, -1, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{0x10, 0x20}, got)
	require.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestDevice_ReadZeroSizeConsumesNothing(t *testing.T) {
	dev, ft := newTestDevice(t)
	ft.feed([]byte{0x7E})
	waitQueued(t, dev, 1)

	got, err := dev.Read(0, -1, time.Second)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Equal(t, 1, dev.queue.len())
}

func TestDevice_ReadRollingDeadline(t *testing.T) {
	dev, ft := newTestDevice(t)

	const timeout = 100 * time.Millisecond
	go func() {
		for i := 0; i < 8; i++ {
			time.Sleep(20 * time.Millisecond)
			ft.feed([]byte{byte(i)})
		}
	}()

	start := time.Now()
	got, err := dev.Read(-1, -1, timeout)
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.Equal(t, []byte{0, 1, 2, 3, 4, 5, 6, 7}, got)
	// Eight bytes 20ms apart plus the trailing silence: well past one timeout.
	require.Greater(t, elapsed, 2*timeout)
}

func TestDevice_WriteDrains(t *testing.T) {
	dev, ft := newTestDevice(t)

	require.NoError(t, dev.Write([]byte{0x0A, 0x1B}))

	ft.mu.Lock()
	defer ft.mu.Unlock()
	require.Equal(t, [][]byte{{0x0A, 0x1B}}, ft.written)
	require.Equal(t, 1, ft.drains)
}

func TestDevice_WriteError(t *testing.T) {
	dev, ft := newTestDevice(t)
	ft.writeErr = errors.New("cable unplugged")

	err := dev.Write([]byte{0x01})
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorContains(t, err, "cable unplugged")
}

func TestDevice_Loopback(t *testing.T) {
	dev, ft := newTestDevice(t)
	ft.echo = true

	require.NoError(t, dev.Write([]byte("hello")))
	got, err := dev.Read(5, -1, 200*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)

	require.NoError(t, dev.Write([]byte{0xDE, 0xAD}))
	require.NoError(t, dev.Write([]byte{0xBE, 0xEF}))
	got, err = dev.Read(-1, -1, 50*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, got)
}

func TestDevice_FeederStopsOnZeroByteRead(t *testing.T) {
	dev, ft := newTestDevice(t)
	ft.feed([]byte{0x01})
	ft.incoming <- nil

	select {
	case <-dev.done:
	case <-time.After(time.Second):
		t.Fatal("feeder did not stop on zero-byte read")
	}

	// Nothing fed after closure is picked up.
	ft.feed([]byte{0x02})
	got, err := dev.Read(-1, -1, 20*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, []byte{0x01}, got)
}

func TestDevice_FeederSwallowsReadError(t *testing.T) {
	dev, ft := newTestDevice(t)
	ft.readErr = errors.New("framing error")
	ft.incoming <- nil

	select {
	case <-dev.done:
	case <-time.After(time.Second):
		t.Fatal("feeder did not stop on read error")
	}

	got, err := dev.Read(-1, -1, 10*time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestDevice_Close(t *testing.T) {
	dev, ft := newTestDevice(t)
	ft.feed([]byte{0x33})
	waitQueued(t, dev, 1)

	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())

	select {
	case <-dev.done:
	default:
		t.Fatal("feeder still running after Close")
	}

	// Buffered bytes remain readable, then the device reports closed.
	got, err := dev.Read(-1, -1, 0)
	require.NoError(t, err)
	require.Equal(t, []byte{0x33}, got)

	_, err = dev.Read(-1, -1, 0)
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, dev.Write([]byte{0x01}), ErrTransport)
}
