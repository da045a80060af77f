package serial

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"
)

const (
	readBufferSize = 256
	pollInterval   = time.Millisecond
	closeWait      = 500 * time.Millisecond
)

// Channel is the byte-level capability the command loop drives.
type Channel interface {
	// Write sends data and returns once it has been handed to the line.
	Write(data []byte) error

	// Read collects bytes until terminator is seen, size bytes are
	// collected, or no byte arrives for timeout. A negative size or
	// terminator disables that condition.
	Read(size, terminator int, timeout time.Duration) ([]byte, error)
}

// Device buffers everything a Transport receives and serves Reads from that
// buffer. Write and Read must be called from a single goroutine; the
// feeder goroutine is the only other party touching the queue.
type Device struct {
	transport Transport
	queue     *byteQueue
	logger    *slog.Logger
	done      chan struct{}

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
}

// Open opens the transport selected by s and starts buffering its input.
func Open(s Settings, logger *slog.Logger) (*Device, error) {
	t, err := OpenTransport(s)
	if err != nil {
		return nil, err
	}
	logger.Info("port opened",
		"port", s.PortName,
		"backend", s.Backend,
		"baud", s.BaudRate,
		"dataBits", s.DataBits,
		"parity", s.Parity.String(),
		"stopBits", s.StopBits.String(),
		"handshake", s.Handshake.String(),
	)
	return NewDevice(t, logger), nil
}

// NewDevice takes ownership of an open transport and starts the feeder.
func NewDevice(t Transport, logger *slog.Logger) *Device {
	d := &Device{
		transport: t,
		queue:     newByteQueue(readBufferSize),
		logger:    logger,
		done:      make(chan struct{}),
	}
	go d.feed()
	return d
}

// feed copies transport input into the queue until the transport reports
// closure or fails. Failures stay here: Reads simply stop seeing new bytes.
func (d *Device) feed() {
	defer close(d.done)
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("feeder panic", "panic", r)
		}
	}()

	buf := make([]byte, readBufferSize)
	for {
		n, err := d.transport.Read(buf)
		if n > 0 {
			d.queue.push(buf[:n])
		}
		if err != nil {
			if isClosure(err) {
				d.logger.Debug("feeder stopped: transport closed")
			} else {
				d.logger.Warn("feeder stopped", "err", err)
			}
			return
		}
		if n == 0 {
			d.logger.Debug("feeder stopped: zero-byte read")
			return
		}
	}
}

func isClosure(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed)
}

// Write sends data in a single call and drains the line before returning.
func (d *Device) Write(data []byte) error {
	if d.isClosed() {
		return ErrClosed
	}
	if _, err := d.transport.Write(data); err != nil {
		return fmt.Errorf("%w: write %d bytes: %w", ErrTransport, len(data), err)
	}
	if err := d.transport.Drain(); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrTransport, err)
	}
	d.logger.Debug("wrote", "bytes", len(data))
	return nil
}

// Read applies a rolling deadline: the wait restarts after every byte, so
// the call only gives up after timeout of silence. A zero timeout returns
// what is already buffered; a zero size returns nothing at once.
// On a closed device Read drains what is still buffered and then returns
// ErrClosed instead of waiting for the deadline.
func (d *Device) Read(size, terminator int, timeout time.Duration) ([]byte, error) {
	if d.isClosed() && d.queue.len() == 0 {
		return nil, ErrClosed
	}
	result := make([]byte, 0, min(max(size, 0), readBufferSize))
	if size == 0 {
		return result, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		b, ok := d.queue.pop()
		if !ok {
			if !time.Now().Before(deadline) {
				break
			}
			time.Sleep(pollInterval)
			continue
		}

		result = append(result, b)
		if terminator >= 0 && int(b) == terminator {
			break
		}
		if size >= 0 && len(result) >= size {
			break
		}
		deadline = time.Now().Add(timeout)
	}
	d.logger.Debug("read", "bytes", len(result), "size", size, "terminator", terminator, "timeout", timeout)
	return result, nil
}

// Close closes the transport and waits briefly for the feeder to stop.
// Safe to call multiple times; subsequent calls are no-ops.
func (d *Device) Close() error {
	var err error
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		d.mu.Unlock()

		if cerr := d.transport.Close(); cerr != nil {
			err = fmt.Errorf("%w: close: %w", ErrTransport, cerr)
		}
		select {
		case <-d.done:
		case <-time.After(closeWait):
			d.logger.Warn("feeder still running after close")
		}
		d.logger.Info("port closed")
	})
	return err
}

func (d *Device) isClosed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}
