package serial

import (
	"fmt"
	"io"
)

// Transport is an open serial line as seen by a Device.
//
// Read blocks until at least one byte is available. Once the transport is
// closed, a pending or later Read must return 0 bytes, either with a nil
// error or with io.EOF.
type Transport interface {
	io.ReadWriteCloser

	// Drain blocks until everything written has been handed to the line.
	Drain() error
}

// OpenTransport opens the backend selected by s.Backend.
func OpenTransport(s Settings) (Transport, error) {
	switch s.Backend {
	case BackendTermios:
		return openTermios(s)
	case BackendBugst:
		return openBugst(s)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", ErrTransport, s.Backend)
	}
}
