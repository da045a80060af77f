//go:build linux

package serial

import (
	"fmt"
	"io"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

const defaultBackend = BackendTermios

// tcCMSPAR selects mark/space parity together with PARENB/PARODD.
const tcCMSPAR = 0x40000000

// termiosPort is a raw-mode tty driven with plain syscalls. A self-pipe
// wakes a Read blocked in poll when the port is closed.
type termiosPort struct {
	name      string
	fd        int
	pipeR     int // self-pipe read fd
	pipeW     int // self-pipe write fd
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func openTermios(s Settings) (Transport, error) {
	fd, err := unix.Open(s.PortName, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0666)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrTransport, s.PortName, err)
	}
	t, err := newTermiosPort(fd, s)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	return t, nil
}

func newTermiosPort(fd int, s Settings) (*termiosPort, error) {
	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return nil, fmt.Errorf("%w: get termios %s: %w", ErrTransport, s.PortName, err)
	}
	if err := applyTermios(termios, s); err != nil {
		return nil, err
	}
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		return nil, fmt.Errorf("%w: set termios %s: %w", ErrTransport, s.PortName, err)
	}

	// Back to blocking mode now that the line is configured.
	if err := unix.SetNonblock(fd, false); err != nil {
		return nil, fmt.Errorf("%w: set blocking %s: %w", ErrTransport, s.PortName, err)
	}

	pipeFds := make([]int, 2)
	if err := unix.Pipe2(pipeFds, unix.O_CLOEXEC); err != nil {
		return nil, fmt.Errorf("%w: pipe: %w", ErrTransport, err)
	}

	return &termiosPort{
		name:  s.PortName,
		fd:    fd,
		pipeR: pipeFds[0],
		pipeW: pipeFds[1],
	}, nil
}

// applyTermios maps Settings field by field onto a raw-mode termios.
func applyTermios(termios *unix.Termios, s Settings) error {
	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag |= unix.CREAD | unix.CLOCAL

	baud, ok := baudToUnix(s.BaudRate)
	if !ok {
		return fmt.Errorf("%w: unsupported BaudRate %d", ErrTransport, s.BaudRate)
	}
	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baud
	termios.Ispeed = baud
	termios.Ospeed = baud

	termios.Cflag &^= unix.CSIZE
	switch s.DataBits {
	case 5:
		termios.Cflag |= unix.CS5
	case 6:
		termios.Cflag |= unix.CS6
	case 7:
		termios.Cflag |= unix.CS7
	case 8:
		termios.Cflag |= unix.CS8
	default:
		return fmt.Errorf("%w: unsupported DataBits %d", ErrTransport, s.DataBits)
	}

	termios.Cflag &^= unix.PARENB | unix.PARODD | tcCMSPAR
	switch s.Parity {
	case ParityNone:
	case ParityOdd:
		termios.Cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		termios.Cflag |= unix.PARENB
	case ParityMark:
		termios.Cflag |= unix.PARENB | unix.PARODD | tcCMSPAR
	case ParitySpace:
		termios.Cflag |= unix.PARENB | tcCMSPAR
	default:
		return fmt.Errorf("%w: unsupported Parity %v", ErrTransport, s.Parity)
	}

	switch s.StopBits {
	case StopBitsOne:
		termios.Cflag &^= unix.CSTOPB
	case StopBitsTwo:
		termios.Cflag |= unix.CSTOPB
	default:
		return fmt.Errorf("%w: unsupported StopBits %v", ErrTransport, s.StopBits)
	}

	termios.Cflag &^= unix.CRTSCTS
	switch s.Handshake {
	case HandshakeNone:
	case HandshakeXOnXOff:
		termios.Iflag |= unix.IXON | unix.IXOFF
	case HandshakeRequestToSend:
		termios.Cflag |= unix.CRTSCTS
	case HandshakeRequestToSendXOnXOff:
		termios.Cflag |= unix.CRTSCTS
		termios.Iflag |= unix.IXON | unix.IXOFF
	default:
		return fmt.Errorf("%w: unsupported Handshake %v", ErrTransport, s.Handshake)
	}

	// VMIN=1, VTIME=0: a read returns as soon as one byte is there.
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0
	return nil
}

// Read waits for data or for Close. After Close it returns 0, io.EOF.
func (t *termiosPort) Read(p []byte) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return 0, io.EOF
	}
	for {
		pfd := []unix.PollFd{
			{Fd: int32(t.fd), Events: unix.POLLIN},
			{Fd: int32(t.pipeR), Events: unix.POLLIN},
		}
		if _, err := unix.Poll(pfd, -1); err != nil {
			if err == unix.EINTR {
				continue
			}
			return 0, fmt.Errorf("poll %s: %w", t.name, err)
		}
		// The wakeup byte is never drained, so every later poll sees it too.
		if pfd[1].Revents&unix.POLLIN != 0 {
			return 0, io.EOF
		}
		if pfd[0].Revents&unix.POLLNVAL != 0 {
			return 0, fmt.Errorf("poll %s: invalid descriptor", t.name)
		}
		if pfd[0].Revents&(unix.POLLIN|unix.POLLHUP|unix.POLLERR) != 0 {
			n, err := unix.Read(t.fd, p)
			if err == unix.EINTR || err == unix.EAGAIN {
				continue
			}
			if err != nil {
				return 0, fmt.Errorf("read %s: %w", t.name, err)
			}
			return n, nil
		}
	}
}

// Write hands p to the tty, looping over short writes.
func (t *termiosPort) Write(p []byte) (int, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return 0, os.ErrClosed
	}
	written := 0
	for written < len(p) {
		n, err := unix.Write(t.fd, p[written:])
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return written, fmt.Errorf("write %s: %w", t.name, err)
		}
		written += n
	}
	return written, nil
}

// Drain is tcdrain(3).
func (t *termiosPort) Drain() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return os.ErrClosed
	}
	if err := unix.IoctlSetInt(t.fd, unix.TCSBRK, 1); err != nil {
		return fmt.Errorf("drain %s: %w", t.name, err)
	}
	return nil
}

// Close wakes any blocked Read and releases the descriptors.
// Safe to call multiple times; subsequent calls are no-ops.
func (t *termiosPort) Close() error {
	var err error
	t.closeOnce.Do(func() {
		unix.Write(t.pipeW, []byte{1})

		t.mu.Lock()
		defer t.mu.Unlock()
		t.closed = true
		err = unix.Close(t.fd)
		unix.Close(t.pipeR)
		unix.Close(t.pipeW)
	})
	return err
}

func baudToUnix(baud int) (uint32, bool) {
	switch baud {
	case 110:
		return unix.B110, true
	case 300:
		return unix.B300, true
	case 600:
		return unix.B600, true
	case 1200:
		return unix.B1200, true
	case 2400:
		return unix.B2400, true
	case 4800:
		return unix.B4800, true
	case 9600:
		return unix.B9600, true
	case 19200:
		return unix.B19200, true
	case 38400:
		return unix.B38400, true
	case 57600:
		return unix.B57600, true
	case 115200:
		return unix.B115200, true
	case 230400:
		return unix.B230400, true
	case 460800:
		return unix.B460800, true
	case 921600:
		return unix.B921600, true
	default:
		return 0, false
	}
}
