// Package scheduler multiplexes cooperative routines over a fixed pool of
// pinned worker goroutines. The classic policy keeps per-group, per-priority
// run queues shared by the group's processors: strict priority at selection,
// FIFO within a priority, cooperative in execution.
package scheduler

import (
	"github.com/storypku/cyberrt-on-rpi/cyber/croutine"
)

// MaxPrio bounds routine priorities to [0, MaxPrio); MaxPrio-1 is highest.
const MaxPrio = 20

// DefaultGroupName is the scheduling group used when config names none.
const DefaultGroupName = "default_grp"

// ProcessorContext is the scheduling state a processor executes against:
// pick-next over the group's run queues and the group parking lot.
type ProcessorContext interface {
	// NextRoutine returns a ready routine with its acquire-lock held, or nil
	// when nothing is runnable. The caller resumes and then releases it.
	NextRoutine() *croutine.CRoutine
	// Wait parks the worker until a notify, a recorded sleep deadline, or
	// shutdown.
	Wait()
	// Shutdown unparks the worker permanently; NextRoutine returns nil from
	// then on. Idempotent.
	Shutdown()
}

// Scheduler is the dispatch facade shared by scheduling policies.
type Scheduler interface {
	DispatchTask(cr *croutine.CRoutine) bool
	NotifyProcessor(crID uint64) bool
	RemoveTask(name string) bool
	RemoveCRoutine(crID uint64) bool
	Shutdown()
}
