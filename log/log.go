// Package log builds the slog.Logger instances used throughout ormconf.
//
// Loggers are configured with functional options. Log output goes to
// standard output unless redirected with WithWriter or WithFile, the latter
// writing to a size-rotated file:
//
//	logger := log.New(
//		log.WithLevel("debug"),
//		log.WithFormat("json"),
//		log.WithFile("/var/log/ormconf/db.log"),
//	)
//
// # Conventions
//
//   - Format attribute keys in lower camelCase.
//   - Prefer longer keys over abbreviations (e.g., "error" over "err").
//   - Capitalize the first letter of every log message.
//   - Do not end log messages with punctuation.
package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Default configuration values for a new logger.
const (
	DefaultLevel     = slog.LevelInfo
	DefaultAddSource = false
	DefaultFormat    = FormatText
	// DefaultMaxSize is the size in megabytes at which log files rotate.
	DefaultMaxSize = 10
	// DefaultMaxBackups is the number of rotated log files kept.
	DefaultMaxBackups = 3
)

// Format defines the log output format.
type Format uint8

const (
	FormatText Format = iota // Human-readable text format.
	FormatJSON               // JSON format.
)

// String returns the lower-case name of the format.
func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "text"
}

// New creates a slog.Logger. Without options it logs at slog.LevelInfo in
// plain text to os.Stdout, without source information.
func New(opts ...Option) *slog.Logger {
	c := config{
		level:     DefaultLevel,
		addSource: DefaultAddSource,
		format:    DefaultFormat,
		writer:    os.Stdout,
	}
	for _, opt := range opts {
		opt(&c)
	}

	o := &slog.HandlerOptions{
		Level:     c.level,
		AddSource: c.addSource,
	}
	if c.format == FormatJSON {
		return slog.New(slog.NewJSONHandler(c.writer, o))
	}
	return slog.New(slog.NewTextHandler(c.writer, o))
}

// Discard returns a logger that drops all records.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// File returns a writer appending to the file at path. The file is created
// on first write and rotated once it grows beyond DefaultMaxSize megabytes.
func File(path string) io.WriteCloser {
	return &lumberjack.Logger{
		Filename:   path,
		MaxSize:    DefaultMaxSize,
		MaxBackups: DefaultMaxBackups,
	}
}

type config struct {
	level     slog.Level
	addSource bool
	format    Format
	writer    io.Writer
}

// Option modifies the logger configuration.
type Option func(*config)

// WithLevel sets the minimum log level. It accepts a slog.Level or a string
// recognized by ParseLevel. Invalid values are ignored.
func WithLevel(v any) Option {
	return func(c *config) {
		switch t := v.(type) {
		case slog.Level:
			c.level = t
		case string:
			if level, err := ParseLevel(t); err == nil {
				c.level = level
			}
		}
	}
}

// WithFormat sets the output format. It accepts a Format or a string
// recognized by ParseFormat. Invalid values are ignored.
func WithFormat(v any) Option {
	return func(c *config) {
		switch t := v.(type) {
		case Format:
			c.format = t
		case string:
			if format, err := ParseFormat(t); err == nil {
				c.format = format
			}
		}
	}
}

// WithAddSource includes the source position in each record.
func WithAddSource(add bool) Option {
	return func(c *config) {
		c.addSource = add
	}
}

// WithWriter sets the output destination. A nil writer is ignored.
func WithWriter(w io.Writer) Option {
	return func(c *config) {
		if w != nil {
			c.writer = w
		}
	}
}

// WithFile directs the output to a rotated file, see File. An empty path is
// ignored.
func WithFile(path string) Option {
	return func(c *config) {
		if path != "" {
			c.writer = File(path)
		}
	}
}

// ParseLevel converts a string into a slog.Level, ignoring case. Numeric
// offsets such as "error-8" are accepted.
func ParseLevel(s string) (level slog.Level, err error) {
	if e := level.UnmarshalText([]byte(s)); e != nil {
		err = fmt.Errorf("invalid log level %q", s)
	}
	return
}

// ParseFormat converts "text" or "json" into a Format, ignoring case.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "text":
		return FormatText, nil
	default:
		return 0, fmt.Errorf("invalid log format %q", s)
	}
}
