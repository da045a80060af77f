// Package bridge turns protocol lines read from a text stream into serial
// writes and reads, answering reads with hex lines.
package bridge

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	serial "github.com/luhtfiimanal/go-serial-bridge"
)

const maxLineSize = 1 << 20

// Port is an open channel the loop can release at shutdown.
type Port interface {
	serial.Channel
	io.Closer
}

// Opener opens a Port with the settings gathered so far.
type Opener func(serial.Settings) (Port, error)

// DeviceOpener opens a serial.Device logging to logger.
func DeviceOpener(logger *slog.Logger) Opener {
	return func(s serial.Settings) (Port, error) {
		d, err := serial.Open(s, logger)
		if err != nil {
			return nil, err
		}
		return d, nil
	}
}

// Loop is the command interpreter. The port is opened on the first read or
// write command; settings are frozen from then on.
type Loop struct {
	settings serial.Settings
	open     Opener
	port     Port
	out      *bufio.Writer
	logger   *slog.Logger
}

// New returns a loop answering on out.
func New(settings serial.Settings, open Opener, out io.Writer, logger *slog.Logger) *Loop {
	return &Loop{
		settings: settings,
		open:     open,
		out:      bufio.NewWriter(out),
		logger:   logger,
	}
}

// Settings returns the current settings.
func (l *Loop) Settings() serial.Settings { return l.settings }

// Apply applies startup "prop=value" arguments.
func (l *Loop) Apply(args []string) error {
	for _, arg := range args {
		if err := l.setProperty(arg); err != nil {
			return fmt.Errorf("argument %q: %w", arg, err)
		}
	}
	return nil
}

// Run processes lines until a blank line or end of input, which return nil.
// The first failing line ends the run with its error.
func (l *Loop) Run(in io.Reader) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			l.logger.Debug("blank line, stopping")
			return nil
		}
		if err := l.Execute(line); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	l.logger.Debug("end of input, stopping")
	return nil
}

// Execute runs a single non-blank protocol line.
func (l *Loop) Execute(line string) error {
	l.logger.Debug("command", "line", line)
	switch {
	case strings.HasPrefix(line, "$"):
		if strings.Contains(line, "=") {
			return l.setProperty(line[1:])
		}
		return l.command(line)
	case strings.HasPrefix(line, ">"):
		data, err := serial.DecodeHex(line)
		if err != nil {
			return err
		}
		port, err := l.ensurePort()
		if err != nil {
			return err
		}
		return port.Write(data)
	default:
		return fmt.Errorf("%w: unknown command %q", serial.ErrProtocol, line)
	}
}

// Close releases the port if one was opened.
func (l *Loop) Close() error {
	if l.port == nil {
		return nil
	}
	err := l.port.Close()
	l.port = nil
	return err
}

func (l *Loop) command(line string) error {
	parts := strings.Split(line, ",")
	switch parts[0] {
	case "$r":
		if len(parts) != 4 {
			return fmt.Errorf("%w: expected 4 parts for %q", serial.ErrProtocol, line)
		}
		var params [3]int
		for i := range params {
			n, err := parseInt(line, parts[i+1], i+1)
			if err != nil {
				return err
			}
			params[i] = n
		}
		size, terminator, timeoutMs := params[0], params[1], params[2]
		if terminator > 0xFF {
			return fmt.Errorf("%w: terminator %d out of byte range in %q", serial.ErrArgument, terminator, line)
		}
		if timeoutMs < 0 {
			return fmt.Errorf("%w: negative timeout %d in %q", serial.ErrArgument, timeoutMs, line)
		}
		if int64(timeoutMs) > math.MaxInt64/int64(time.Millisecond) {
			return fmt.Errorf("%w: timeout %d out of range in %q", serial.ErrArgument, timeoutMs, line)
		}

		port, err := l.ensurePort()
		if err != nil {
			return err
		}
		data, err := port.Read(size, terminator, time.Duration(timeoutMs)*time.Millisecond)
		if err != nil {
			return err
		}
		return l.answer(data)
	default:
		return fmt.Errorf("%w: unknown command %q", serial.ErrProtocol, line)
	}
}

func (l *Loop) setProperty(assignment string) error {
	if l.port != nil {
		return fmt.Errorf("%w: settings are fixed once the port is open (%q)", serial.ErrProtocol, assignment)
	}
	if err := l.settings.Assign(assignment); err != nil {
		return err
	}
	l.logger.Debug("setting applied", "assignment", assignment)
	return nil
}

func (l *Loop) ensurePort() (Port, error) {
	if l.port != nil {
		return l.port, nil
	}
	port, err := l.open(l.settings)
	if err != nil {
		return nil, err
	}
	l.port = port
	return port, nil
}

func (l *Loop) answer(data []byte) error {
	if _, err := l.out.WriteString(serial.EncodeHex(data)); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if err := l.out.WriteByte('\n'); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	if err := l.out.Flush(); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

func parseInt(line, part string, index int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(part))
	if err != nil {
		return 0, fmt.Errorf("%w: invalid int at param %d of %q", serial.ErrArgument, index, line)
	}
	return n, nil
}
