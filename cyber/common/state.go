package common

import "sync/atomic"

// The process shutdown latch. The data dispatcher short-circuits once it
// flips (the scheduler uses its own stop flag); flipping it twice is a no-op.
var shutdown atomic.Bool

// IsShutdown reports whether process shutdown has begun.
func IsShutdown() bool {
	return shutdown.Load()
}

// SetShutdown flips the shutdown latch. Idempotent.
func SetShutdown() {
	shutdown.Store(true)
}

// ResetShutdown clears the latch. Intended for tests that exercise the
// shutdown short-circuit paths.
func ResetShutdown() {
	shutdown.Store(false)
}
