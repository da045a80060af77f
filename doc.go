// Package serial provides a buffered serial device for scripted byte-level
// exchanges with embedded hardware.
//
// A Device continuously drains its transport into an in-memory FIFO from a
// background goroutine, so no byte is lost between commands. Reads are then
// served from that FIFO under a size/terminator/timeout policy where the
// timeout is a rolling deadline: it restarts every time a byte arrives.
//
// Features:
//   - Raw termios transport on Linux using plain syscalls, with a self-pipe
//     so Close unblocks the background reader
//   - Cross-platform transport backed by go.bug.st/serial
//   - Explicit settings mapping (baud, data bits, parity, stop bits, handshake)
//   - Hex codec used by the stdin/stdout bridge in cmd/serialbridge
//   - PTY-based tests for reliability
//
// Example usage:
//
//	s := serial.DefaultSettings()
//	s.PortName = "/dev/ttyUSB0"
//	s.BaudRate = 115200
//	dev, err := serial.Open(s, slog.Default())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer dev.Close()
//
//	if err := dev.Write([]byte("C,INFO\r\n")); err != nil {
//	    log.Println("Write failed:", err)
//	}
//
//	// Read one line, giving up after 200ms without a new byte.
//	line, err := dev.Read(-1, '\n', 200*time.Millisecond)
//	if err != nil {
//	    log.Println("Read failed:", err)
//	}
//	fmt.Printf("Received: %q\n", line)
package serial
