// Package logger is the tag-scoped logging facade used across hypercluster.
// It wraps the zerolog implementation in core/infrastructure/logging.
package logger

import (
	"fmt"

	"github.com/hyperterse/hypercluster/core/infrastructure/logging"
)

const (
	LogLevelError = logging.LogLevelError
	LogLevelWarn  = logging.LogLevelWarn
	LogLevelInfo  = logging.LogLevelInfo
	LogLevelDebug = logging.LogLevelDebug
)

// SetLogLevel sets the global log level
func SetLogLevel(level int) {
	logging.SetLogLevel(level)
}

// GetLogLevel returns the current global log level
func GetLogLevel() int {
	return logging.GetLogLevel()
}

// SetTagFilter sets the tag filter
func SetTagFilter(filterStr string) {
	logging.SetTagFilter(filterStr)
}

// SetRole tags every following log line with the process role.
func SetRole(role string) {
	logging.SetRole(role)
}

// SetLogFile enables log file streaming
func SetLogFile() (string, error) {
	return logging.SetLogFile()
}

// CloseLogFile closes the log file
func CloseLogFile() error {
	return logging.CloseLogFile()
}

// Logger is a tagged logger. Errorf both logs and returns the formatted
// error, tagged so the top-level boundary does not log it a second time.
type Logger struct {
	tag  string
	impl logging.Logger
}

// New creates a new logger instance with a tag
func New(tag string) *Logger {
	return &Logger{
		tag:  tag,
		impl: logging.New(tag),
	}
}

// Tag returns the logger tag.
func (l *Logger) Tag() string {
	return l.tag
}

func (l *Logger) Error(message string) {
	l.impl.Error(message)
}

// Errorf logs at ERROR level and returns the message as an error carrying
// this logger's tag. Wrapped errors (%w) stay reachable through errors.Is/As.
func (l *Logger) Errorf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	l.impl.Error(err.Error())
	return &TaggedError{tag: l.tag, err: err, logged: true}
}

func (l *Logger) Warnf(format string, args ...any) {
	l.impl.Warnf(format, args...)
}

func (l *Logger) Infof(format string, args ...any) {
	l.impl.Infof(format, args...)
}

func (l *Logger) Debugf(format string, args ...any) {
	l.impl.Debugf(format, args...)
}
