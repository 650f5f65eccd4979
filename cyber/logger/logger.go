// Package logger wires the module's structured logging: a logiface logger
// with the stumpy JSON backend, plus an asynchronous double-buffered writer
// for log-file fan-out.
package logger

import (
	"io"
	"os"
	"sync/atomic"

	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// Logger is the concrete logger type used throughout the module.
type Logger = logiface.Logger[*stumpy.Event]

var global atomic.Pointer[Logger]

func init() {
	global.Store(New(os.Stderr, logiface.LevelInformational))
}

// New builds a stumpy-backed logger writing JSON lines to w.
func New(w io.Writer, level logiface.Level) *Logger {
	return stumpy.L.New(
		stumpy.L.WithStumpy(stumpy.WithWriter(w), stumpy.WithTimeField(`ts`)),
		stumpy.L.WithLevel(level),
	)
}

// L returns the module logger.
func L() *Logger {
	return global.Load()
}

// SetLogger replaces the module logger. Components pick up the replacement
// on their next log call.
func SetLogger(l *Logger) {
	if l != nil {
		global.Store(l)
	}
}
