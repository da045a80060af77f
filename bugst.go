package serial

import (
	"errors"
	"fmt"
	"io"

	bugst "go.bug.st/serial"
)

// bugstPort adapts a go.bug.st/serial port to Transport.
type bugstPort struct {
	bugst.Port
}

func openBugst(s Settings) (Transport, error) {
	mode, err := bugstMode(s)
	if err != nil {
		return nil, err
	}
	p, err := bugst.Open(s.PortName, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrTransport, s.PortName, err)
	}
	return &bugstPort{Port: p}, nil
}

// bugstMode maps Settings field by field onto a go.bug.st/serial Mode.
func bugstMode(s Settings) (*bugst.Mode, error) {
	mode := &bugst.Mode{
		BaudRate: s.BaudRate,
		DataBits: s.DataBits,
	}

	switch s.Parity {
	case ParityNone:
		mode.Parity = bugst.NoParity
	case ParityOdd:
		mode.Parity = bugst.OddParity
	case ParityEven:
		mode.Parity = bugst.EvenParity
	case ParityMark:
		mode.Parity = bugst.MarkParity
	case ParitySpace:
		mode.Parity = bugst.SpaceParity
	default:
		return nil, fmt.Errorf("%w: unsupported Parity %v", ErrTransport, s.Parity)
	}

	switch s.StopBits {
	case StopBitsOne:
		mode.StopBits = bugst.OneStopBit
	case StopBitsOnePointFive:
		mode.StopBits = bugst.OnePointFiveStopBits
	case StopBitsTwo:
		mode.StopBits = bugst.TwoStopBits
	default:
		return nil, fmt.Errorf("%w: unsupported StopBits %v", ErrTransport, s.StopBits)
	}

	if s.Handshake != HandshakeNone {
		return nil, fmt.Errorf("%w: Handshake %v is not supported by the %s backend", ErrTransport, s.Handshake, BackendBugst)
	}
	return mode, nil
}

// Read reports a closed port as io.EOF.
func (p *bugstPort) Read(b []byte) (int, error) {
	n, err := p.Port.Read(b)
	if err != nil {
		var pe *bugst.PortError
		if errors.As(err, &pe) && pe.Code() == bugst.PortClosed {
			return n, io.EOF
		}
	}
	return n, err
}
