// Package logging provides the level-filtered logger every daemon
// package in this module uses, as a thin wrapper over the standard
// library's log package.
package logging

import (
	"io"
	"log"
	"os"
	"sync/atomic"
)

// Level filters which messages reach the underlying writer.
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

var (
	minLevel atomic.Int32
	std      = log.New(os.Stderr, "", log.LstdFlags|log.Lmicroseconds)
)

func init() {
	minLevel.Store(int32(LevelInfo))
}

// SetLevel changes the minimum level that will be written. Safe to
// call concurrently with logging calls.
func SetLevel(l Level) {
	minLevel.Store(int32(l))
}

// SetOutput redirects log output, primarily for tests.
func SetOutput(w io.Writer) {
	std.SetOutput(w)
}

func enabled(l Level) bool {
	return int32(l) >= minLevel.Load()
}

func logf(l Level, format string, args ...any) {
	if !enabled(l) {
		return
	}
	std.Printf("["+l.String()+"] "+format, args...)
}

func Debugf(format string, args ...any)   { logf(LevelDebug, format, args...) }
func Infof(format string, args ...any)    { logf(LevelInfo, format, args...) }
func Warnf(format string, args ...any)    { logf(LevelWarning, format, args...) }
func Errorf(format string, args ...any)   { logf(LevelError, format, args...) }

// Fatalf logs at error level and terminates the process, mirroring
// log.Fatalf but routed through the level filter's formatting.
func Fatalf(format string, args ...any) {
	logf(LevelError, format, args...)
	os.Exit(1)
}
