package serial

import (
	"errors"
	"fmt"
)

// Error categories. Every error returned by this package and by the command
// loop wraps exactly one of them.
var (
	// ErrProtocol marks an unrecognized command or a malformed line.
	ErrProtocol = errors.New("protocol error")

	// ErrArgument marks a bad parameter: a non-integer token, an invalid hex
	// payload or an unacceptable setting value.
	ErrArgument = errors.New("invalid argument")

	// ErrTransport marks a failure opening, writing or draining the port.
	ErrTransport = errors.New("transport error")

	// ErrClosed is returned when a closed device is used.
	ErrClosed = fmt.Errorf("%w: device closed", ErrTransport)
)

// Kind classifies err for diagnostics: "protocol", "argument", "transport"
// or "unhandled".
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrProtocol):
		return "protocol"
	case errors.Is(err, ErrArgument):
		return "argument"
	case errors.Is(err, ErrTransport):
		return "transport"
	default:
		return "unhandled"
	}
}
