// Package logging builds the slog logger shared by both binaries.
package logging

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// Options are the logging flags.
type Options struct {
	Level   string
	Format  string
	File    string
	Verbose bool
}

// AddFlags registers -log-level, -log-format, -log-file and -v on fs.
func AddFlags(fs *flag.FlagSet) *Options {
	o := &Options{}
	fs.StringVar(&o.Level, "log-level", "info", "Log level: debug, info, warn or error")
	fs.StringVar(&o.Format, "log-format", "json", "Log format: json or text")
	fs.StringVar(&o.File, "log-file", "", "Append logs to this file instead of stdout")
	fs.BoolVar(&o.Verbose, "v", false, "Shorthand for -log-level debug")
	return o
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// New returns a logger writing to output with RFC3339 timestamps.
func New(output io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				a.Value = slog.StringValue(a.Value.Time().Format(time.RFC3339))
			}
			return a
		},
	}

	var handler slog.Handler
	switch format {
	case "text":
		handler = slog.NewTextHandler(output, opts)
	default:
		handler = slog.NewJSONHandler(output, opts)
	}
	return slog.New(handler)
}

// Setup builds the logger described by o. When the log file cannot be
// opened it falls back to stderr. The returned closer releases the file.
func Setup(o Options) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(o.Level)
	if err != nil {
		return nil, nil, err
	}
	if o.Verbose {
		level = slog.LevelDebug
	}
	if o.Format != "" && o.Format != "json" && o.Format != "text" {
		return nil, nil, fmt.Errorf("unknown log format %q", o.Format)
	}

	if o.File == "" {
		return New(os.Stdout, level, o.Format), nopCloser{}, nil
	}
	file, err := os.OpenFile(o.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not open log file %s: %v. Logging to stderr.\n", o.File, err)
		return New(os.Stderr, level, o.Format), nopCloser{}, nil
	}
	return New(file, level, o.Format), file, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
