// Command serialbridge exposes a serial port on stdin/stdout.
//
// Each argument is a prop=value setting. Each input line is one command:
//
//	$BaudRate=115200     set a property before the port opens
//	>0A1B                write bytes 0x0A 0x1B
//	$r,4,-1,50           read up to 4 bytes, no terminator, 50 ms silence timeout
//
// A read answers with "<" and the hex of the bytes received. A blank line or
// end of input exits with status 0, any error with status 1.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime/debug"
	"strings"

	serial "github.com/luhtfiimanal/go-serial-bridge"
	"github.com/luhtfiimanal/go-serial-bridge/internal/bridge"
	"github.com/luhtfiimanal/go-serial-bridge/internal/logging"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr, bridge.DeviceOpener))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer, opener func(*slog.Logger) bridge.Opener) (code int) {
	sink := strings.ToLower(os.Getenv("SERIALBRIDGE_LOG"))
	level, err := logging.ParseLevel(os.Getenv("SERIALBRIDGE_LOG_LEVEL"))
	if err != nil {
		fmt.Fprintln(stderr, "serialbridge:", err)
		return 1
	}
	logger, closer, err := logging.New(logging.Options{
		Sink:   sink,
		Dir:    os.Getenv("SERIALBRIDGE_LOG_DIR"),
		Level:  level,
		Stderr: stderr,
	})
	if err != nil {
		fmt.Fprintln(stderr, "serialbridge:", err)
		return 1
	}
	defer closer.Close()

	fatal := func(err error, attrs ...any) int {
		logger.Error("fatal", append([]any{"kind", serial.Kind(err), "err", err}, attrs...)...)
		if sink != "" && sink != logging.SinkStderr {
			fmt.Fprintf(stderr, "serialbridge: %s: %v\n", serial.Kind(err), err)
		}
		return 1
	}

	settings := serial.DefaultSettings()
	if path := os.Getenv("SERIALBRIDGE_CONFIG"); path != "" {
		if err := settings.LoadSettingsFile(path); err != nil {
			return fatal(err)
		}
	}

	loop := bridge.New(settings, opener(logger), stdout, logger)
	defer func() {
		if err := loop.Close(); err != nil {
			logger.Warn("close failed", "err", err)
		}
	}()
	defer func() {
		if r := recover(); r != nil {
			code = fatal(fmt.Errorf("panic: %v", r), "stack", string(debug.Stack()))
		}
	}()

	if err := loop.Apply(args); err != nil {
		return fatal(err)
	}
	if err := loop.Run(stdin); err != nil {
		return fatal(err)
	}
	return 0
}
