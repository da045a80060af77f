package serial

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v2"
)

// Parity selects the parity bit mode.
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
	ParityMark
	ParitySpace
)

var parityNames = []string{"None", "Odd", "Even", "Mark", "Space"}

func (p Parity) String() string { return enumName(parityNames, int(p)) }

// Handshake selects the flow-control lines the port is opened with.
type Handshake int

const (
	HandshakeNone Handshake = iota
	HandshakeXOnXOff
	HandshakeRequestToSend
	HandshakeRequestToSendXOnXOff
)

var handshakeNames = []string{"None", "XOnXOff", "RequestToSend", "RequestToSendXOnXOff"}

func (h Handshake) String() string { return enumName(handshakeNames, int(h)) }

// StopBits selects the number of stop bits.
type StopBits int

const (
	StopBitsNone StopBits = iota
	StopBitsOne
	StopBitsTwo
	StopBitsOnePointFive
)

var stopBitsNames = []string{"None", "One", "Two", "OnePointFive"}

func (s StopBits) String() string { return enumName(stopBitsNames, int(s)) }

// Backend names accepted by the Backend property.
const (
	BackendTermios = "termios"
	BackendBugst   = "bugst"
)

// Settings is the plain set of line settings applied when a Device opens.
type Settings struct {
	PortName  string
	BaudRate  int
	DataBits  int
	Parity    Parity
	Handshake Handshake
	StopBits  StopBits
	Backend   string
}

// DefaultSettings returns 9600 8N1 without handshake on the first
// on-board port.
func DefaultSettings() Settings {
	return Settings{
		PortName:  "/dev/ttyS0",
		BaudRate:  9600,
		DataBits:  8,
		Parity:    ParityNone,
		Handshake: HandshakeNone,
		StopBits:  StopBitsOne,
		Backend:   defaultBackend,
	}
}

// Assign applies a "prop=value" assignment.
func (s *Settings) Assign(assignment string) error {
	name, value, ok := strings.Cut(assignment, "=")
	if !ok {
		return fmt.Errorf("%w: expected prop=value, got %q", ErrProtocol, assignment)
	}
	return s.Set(name, value)
}

// Set assigns a single property by name. Names are case-insensitive.
func (s *Settings) Set(name, value string) error {
	name = strings.TrimSpace(name)
	value = strings.TrimSpace(value)
	switch strings.ToLower(name) {
	case "portname":
		if value == "" {
			return fmt.Errorf("%w: empty PortName", ErrArgument)
		}
		s.PortName = value
	case "baudrate":
		n, err := parsePositive(name, value)
		if err != nil {
			return err
		}
		s.BaudRate = n
	case "databits":
		n, err := parsePositive(name, value)
		if err != nil {
			return err
		}
		if n < 5 || n > 8 {
			return fmt.Errorf("%w: DataBits must be 5..8, got %d", ErrArgument, n)
		}
		s.DataBits = n
	case "parity":
		i, err := parseEnum(name, parityNames, value)
		if err != nil {
			return err
		}
		s.Parity = Parity(i)
	case "handshake":
		i, err := parseEnum(name, handshakeNames, value)
		if err != nil {
			return err
		}
		s.Handshake = Handshake(i)
	case "stopbits":
		i, err := parseEnum(name, stopBitsNames, value)
		if err != nil {
			return err
		}
		s.StopBits = StopBits(i)
	case "backend":
		switch v := strings.ToLower(value); v {
		case BackendTermios, BackendBugst:
			s.Backend = v
		default:
			return fmt.Errorf("%w: unknown Backend %q", ErrArgument, value)
		}
	default:
		return fmt.Errorf("%w: unknown property %q", ErrProtocol, name)
	}
	return nil
}

// LoadSettingsFile applies the properties found in a YAML mapping on top of
// s. Keys are property names, as accepted by Set.
func (s *Settings) LoadSettingsFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings %s: %w", path, err)
	}
	var props map[string]interface{}
	if err := yaml.Unmarshal(data, &props); err != nil {
		return fmt.Errorf("%w: parse settings %s: %v", ErrArgument, path, err)
	}
	for name, value := range props {
		if value == nil {
			continue
		}
		if err := s.Set(name, fmt.Sprint(value)); err != nil {
			return fmt.Errorf("settings %s: %w", path, err)
		}
	}
	return nil
}

func parsePositive(name, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %q", ErrArgument, name, value)
	}
	return n, nil
}

func parseEnum(name string, names []string, value string) (int, error) {
	for i, n := range names {
		if strings.EqualFold(n, value) {
			return i, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown %s %q (want one of %s)", ErrArgument, name, value, strings.Join(names, ", "))
}

func enumName(names []string, i int) string {
	if i < 0 || i >= len(names) {
		return strconv.Itoa(i)
	}
	return names[i]
}
