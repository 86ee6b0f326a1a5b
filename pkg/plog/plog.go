// Package plog is the application wide logger. It wraps a zerolog logger behind a
// small package-level API so callers never hold a logger instance.
package plog

import (
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Level is the minimum severity that gets written.
type Level int8

const (
	LevelDebug = Level(zerolog.DebugLevel)
	LevelInfo  = Level(zerolog.InfoLevel)
	LevelWarn  = Level(zerolog.WarnLevel)
	LevelError = Level(zerolog.ErrorLevel)
)

// levelDispatchWriter is a zerolog.LevelWriter that writes records to different
// writers based on the record's level. INFO and below go to one writer,
// while WARNING and above go to another.
type levelDispatchWriter struct {
	stdout io.Writer
	stderr io.Writer
}

func (w *levelDispatchWriter) Write(p []byte) (int, error) {
	return w.stdout.Write(p)
}

// WriteLevel dispatches the record to the appropriate writer.
func (w *levelDispatchWriter) WriteLevel(l zerolog.Level, p []byte) (int, error) {
	if l >= zerolog.WarnLevel {
		return w.stderr.Write(p)
	}
	return w.stdout.Write(p)
}

var (
	mu            sync.Mutex
	consoleWriter io.Writer
	fileWriter    *lumberjack.Logger

	defaultLogger atomic.Pointer[zerolog.Logger]
	level         atomic.Int32
	quietMode     atomic.Bool // Use an atomic bool for safe concurrent reads.
)

func init() {
	consoleWriter = &levelDispatchWriter{
		stdout: zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime},
		stderr: zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.DateTime},
	}
	level.Store(int32(LevelInfo))
	rebuild()
}

// rebuild swaps in a new logger for the current writers and level. Callers hold mu.
func rebuild() {
	var w io.Writer = consoleWriter
	if fileWriter != nil {
		w = zerolog.MultiLevelWriter(consoleWriter, fileWriter)
	}
	l := zerolog.New(w).With().Timestamp().Logger().Level(zerolog.Level(level.Load()))
	defaultLogger.Store(&l)
}

// SetOutput allows redirecting the logger's output, primarily for testing.
// Records are written as JSON lines so tests can match on fields.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	// When redirecting output for tests, ensure quiet mode is off
	// so that all levels are written to the provided writer.
	quietMode.Store(false)
	consoleWriter = w
	rebuild()
}

// SetLevel sets the minimum level written by the global logger.
func SetLevel(l Level) {
	mu.Lock()
	defer mu.Unlock()
	level.Store(int32(l))
	rebuild()
}

// LevelFromString maps 'debug', 'info', 'warn' and 'error' to a Level.
// Unknown values fall back to info.
func LevelFromString(s string) Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// SetLogFile mirrors every record into a size-rotated JSON log file.
// The returned closer detaches and closes the file.
func SetLogFile(path string, maxSizeMB, maxBackups int) io.Closer {
	mu.Lock()
	defer mu.Unlock()
	fileWriter = &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB,
		MaxBackups: maxBackups,
		LocalTime:  true,
	}
	rebuild()
	return closerFunc(func() error {
		mu.Lock()
		defer mu.Unlock()
		if fileWriter == nil {
			return nil
		}
		err := fileWriter.Close()
		fileWriter = nil
		rebuild()
		return err
	})
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// SetQuiet enables or disables quiet mode for the global logger.
// In quiet mode, INFO level logs are suppressed.
func SetQuiet(quiet bool) {
	quietMode.Store(quiet)
}

// IsQuiet returns true if the global logger is in quiet mode.
func IsQuiet() bool {
	return quietMode.Load()
}

func write(l zerolog.Level, msg string, args []any) {
	e := defaultLogger.Load().WithLevel(l)
	if len(args) > 0 {
		e = e.Fields(args)
	}
	e.Msg(msg)
}

// Debug logs a diagnostic message.
func Debug(msg string, args ...any) {
	write(zerolog.DebugLevel, msg, args)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	if quietMode.Load() {
		return
	}
	write(zerolog.InfoLevel, msg, args)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	write(zerolog.WarnLevel, msg, args)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	write(zerolog.ErrorLevel, msg, args)
}
