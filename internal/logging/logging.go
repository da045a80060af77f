// Package logging builds the process logger from a sink kind chosen at
// startup. The result is passed explicitly to whatever needs to log.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Sink kinds.
const (
	SinkStderr = "stderr"
	SinkFile   = "file"
	SinkNone   = "none"
)

// Options selects and configures a sink.
type Options struct {
	Sink  string     // stderr (default), file or none
	Dir   string     // file sink directory; defaults to "serialbridge" next to the executable
	Level slog.Level // minimum level
	// Stderr is the writer used by the stderr sink; defaults to os.Stderr.
	Stderr io.Writer
}

// New returns a logger for opts and a closer releasing the sink.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	handlerOpts := &slog.HandlerOptions{Level: opts.Level}
	switch strings.ToLower(opts.Sink) {
	case "", SinkStderr:
		w := opts.Stderr
		if w == nil {
			w = os.Stderr
		}
		return slog.New(slog.NewTextHandler(w, handlerOpts)), nopCloser{}, nil
	case SinkFile:
		f, err := createLogFile(opts.Dir, time.Now())
		if err != nil {
			return nil, nil, err
		}
		return slog.New(slog.NewTextHandler(f, handlerOpts)), f, nil
	case SinkNone:
		return slog.New(slog.NewTextHandler(io.Discard, handlerOpts)), nopCloser{}, nil
	default:
		return nil, nil, fmt.Errorf("unknown log sink %q", opts.Sink)
	}
}

// ParseLevel accepts debug, info, warn or error; empty means info.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("bad log level %q: %w", s, err)
	}
	return level, nil
}

// FileName is the log file name for a run started at ts by process pid.
func FileName(ts time.Time, pid int) string {
	return fmt.Sprintf("serialbridge_%s_%03d_%06d.txt",
		ts.Format("20060102_150405"), ts.Nanosecond()/int(time.Millisecond), pid)
}

func createLogFile(dir string, ts time.Time) (*os.File, error) {
	if dir == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("locate executable: %w", err)
		}
		dir = filepath.Join(filepath.Dir(exe), "serialbridge")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, FileName(ts, os.Getpid()))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create log file: %w", err)
	}
	return f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
