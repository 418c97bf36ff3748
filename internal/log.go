package internal

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents different logging verbosity levels
type LogLevel int

const (
	LogLevelError LogLevel = iota
	LogLevelWarn
	LogLevelInfo
	LogLevelDebug
	LogLevelTrace
)

// ParseLogLevel maps the LOG_LEVEL vocabulary (ERROR, WARN, INFO, DEBUG, TRACE) to a level.
// Unknown values fall back to INFO.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ERROR":
		return LogLevelError
	case "WARN", "WARNING":
		return LogLevelWarn
	case "DEBUG":
		return LogLevelDebug
	case "TRACE":
		return LogLevelTrace
	default:
		return LogLevelInfo
	}
}

// Zerolog returns the matching zerolog level
func (l LogLevel) Zerolog() zerolog.Level {
	switch l {
	case LogLevelError:
		return zerolog.ErrorLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelTrace:
		return zerolog.TraceLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a structured logger writing to w at the given level
func NewLogger(w io.Writer, level LogLevel) zerolog.Logger {
	return zerolog.New(w).Level(level.Zerolog()).With().Timestamp().Logger()
}

// NewConsoleLogger is NewLogger with human-readable output, used by the CLI
func NewConsoleLogger(level LogLevel) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return NewLogger(out, level)
}

// NewDefaultLogger creates a JSON logger on stderr based on LOG_LEVEL environment variable
func NewDefaultLogger() zerolog.Logger {
	return NewLogger(os.Stderr, ParseLogLevel(os.Getenv("LOG_LEVEL")))
}

// Global logger instance
var DefaultLogger = NewDefaultLogger()
