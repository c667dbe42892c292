// Package logger provides a simple logging interface for pgtop components.
// The terminal belongs to the screen renderer, so log output always goes to
// a file (or nowhere) and never to stdout.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"sync"
)

// Logger defines the interface for logging operations.
// All methods accept a format string and arguments, similar to fmt.Printf.
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
}

// fileLogger writes level tagged lines through a standard log.Logger.
type fileLogger struct {
	dest   *log.Logger
	debug  bool
	prefix string
}

// New creates a logger writing to w. Debug messages are dropped unless debug is set.
func New(w io.Writer, debug bool) Logger {
	return &fileLogger{
		dest:  log.New(w, "", log.LstdFlags|log.Lmicroseconds),
		debug: debug,
	}
}

// Open creates a logger appending to the file at path. An empty path discards
// everything. The returned closer releases the file.
func Open(path string, debug bool) (Logger, io.Closer, error) {
	if path == "" {
		return New(io.Discard, debug), io.NopCloser(nil), nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return New(f, debug), f, nil
}

// WithPrefix returns a logger that prepends prefix (e.g. "[reader]") to every message.
func WithPrefix(l Logger, prefix string) Logger {
	if fl, ok := l.(*fileLogger); ok {
		return &fileLogger{dest: fl.dest, debug: fl.debug, prefix: prefix + " "}
	}
	return l
}

func (l *fileLogger) print(level, format string, args ...interface{}) {
	l.dest.Printf(level+" "+l.prefix+format, args...)
}

func (l *fileLogger) Debug(format string, args ...interface{}) {
	if l.debug {
		l.print("D", format, args...)
	}
}

func (l *fileLogger) Info(format string, args ...interface{}) {
	l.print("I", format, args...)
}

func (l *fileLogger) Warn(format string, args ...interface{}) {
	l.print("W", format, args...)
}

func (l *fileLogger) Error(format string, args ...interface{}) {
	l.print("E", format, args...)
}

// noopLogger implements Logger but discards all messages.
type noopLogger struct{}

// Noop returns a logger that discards all messages.
func Noop() Logger {
	return &noopLogger{}
}

func (l *noopLogger) Debug(format string, args ...interface{}) {}
func (l *noopLogger) Info(format string, args ...interface{})  {}
func (l *noopLogger) Warn(format string, args ...interface{})  {}
func (l *noopLogger) Error(format string, args ...interface{}) {}

// LogMessage represents a captured log message.
type LogMessage struct {
	Level   string
	Message string
}

// BufferLogger captures log messages for testing. It is safe for concurrent use.
type BufferLogger struct {
	mu       sync.Mutex
	messages []LogMessage
}

// NewBufferLogger creates a logger that captures messages for inspection.
func NewBufferLogger() *BufferLogger {
	return &BufferLogger{}
}

func (l *BufferLogger) add(level, format string, args ...interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, LogMessage{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (l *BufferLogger) Debug(format string, args ...interface{}) { l.add("debug", format, args...) }
func (l *BufferLogger) Info(format string, args ...interface{})  { l.add("info", format, args...) }
func (l *BufferLogger) Warn(format string, args ...interface{})  { l.add("warn", format, args...) }
func (l *BufferLogger) Error(format string, args ...interface{}) { l.add("error", format, args...) }

// Messages returns a copy of the captured messages.
func (l *BufferLogger) Messages() []LogMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogMessage(nil), l.messages...)
}

// HasLevel returns true if any message was logged at the given level.
func (l *BufferLogger) HasLevel(level string) bool {
	for _, m := range l.Messages() {
		if m.Level == level {
			return true
		}
	}
	return false
}
