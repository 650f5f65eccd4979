// Package croutine implements the stackful cooperative task at the heart of
// the scheduler: a routine with its own execution context, a lifecycle state
// machine, and yield/resume primitives. Routines never run concurrently with
// themselves; the per-routine acquire lock makes resumption exclusive.
package croutine

import (
	"runtime"
	"sync/atomic"
	"time"

	"github.com/storypku/cyberrt-on-rpi/cyber/base"
)

// RoutineFunc is the entry closure of a routine, invoked exactly once.
type RoutineFunc func()

// RoutineState is the lifecycle state of a CRoutine.
//
// State machine:
//
//	StateReady -> (running) via Resume
//	(running)  -> StateSleep / StateIOWait / StateDataWait via Yield
//	(running)  -> StateFinished on return
//	StateSleep -> StateReady once the wake time passes
//	StateDataWait / StateIOWait -> StateReady once the update flag fires
//
// StateFinished is terminal.
type RoutineState int32

const (
	StateReady RoutineState = iota
	StateFinished
	StateSleep
	StateIOWait
	StateDataWait
)

func (s RoutineState) String() string {
	switch s {
	case StateReady:
		return "READY"
	case StateFinished:
		return "FINISHED"
	case StateSleep:
		return "SLEEP"
	case StateIOWait:
		return "IO_WAIT"
	case StateDataWait:
		return "DATA_WAIT"
	default:
		return "UNKNOWN"
	}
}

// currentRoutines maps a routine goroutine's id to its CRoutine for the
// lifetime of the trampoline, standing in for the thread-local bookkeeping
// of a stack-switching implementation.
var currentRoutines = base.NewConcurrentHashMap[uint64, *CRoutine]()

// goID returns the calling goroutine's id, parsed from the runtime stack
// header ("goroutine N [running]:"). Only consulted at suspension points,
// where a channel handoff dominates the cost anyway.
func goID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for _, c := range buf[len("goroutine "):n] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}

// Current returns the CRoutine executing on the calling goroutine, or nil
// when called from outside a routine.
func Current() *CRoutine {
	cr, _ := currentRoutines.Get(goID())
	return cr
}

// Yield suspends the current routine without changing its state, returning
// control to the worker that resumed it. Must be called from within a
// routine.
func Yield() {
	Current().ctx.swapOut()
}

// YieldWith writes state to the current routine, then suspends it.
func YieldWith(state RoutineState) {
	cr := Current()
	cr.SetState(state)
	cr.ctx.swapOut()
}

// CRoutine is a stackful cooperative task. The registry and the run queue it
// sits in share ownership; the acquire lock guarantees at most one worker
// resumes it at a time.
type CRoutine struct {
	fn  RoutineFunc
	ctx *routineContext

	state atomic.Int32

	// lock is the acquire-lock: test-and-set grants the exclusive right to
	// resume.
	lock atomic.Bool

	// updated is the one-shot asynchronous wake signal. A cleared flag means
	// a wake is pending; UpdateState consumes it by setting the flag back.
	// The flag starts cleared so the first scheduling pass of a fresh
	// routine consumes the initial signal while it is still READY.
	// Go's sync/atomic is sequentially consistent, which subsumes the
	// release(producer)/acquire(consumer) pairing this handoff needs: data
	// written before SetUpdateFlag is visible to the awakened routine.
	updated atomic.Bool

	forceStop atomic.Bool

	// wakeTime is written by the routine itself in Sleep and read by the
	// pick-next scan; both sides hold the acquire lock, so the plain field
	// is race-free.
	wakeTime time.Time

	processorID atomic.Int32
	priority    uint32
	id          uint64
	name        string
	groupName   string
}

// New creates a routine in StateReady. The entry function does not start
// executing until the first Resume.
func New(fn RoutineFunc) *CRoutine {
	return NewWithStackSize(fn, DefaultStackSize)
}

// NewWithStackSize creates a routine recording the given stack hint.
func NewWithStackSize(fn RoutineFunc, stackSize int) *CRoutine {
	cr := &CRoutine{fn: fn, wakeTime: time.Now()}
	cr.state.Store(int32(StateReady))
	cr.processorID.Store(-1)
	cr.ctx = makeContext(stackSize, cr.trampoline)
	return cr
}

// trampoline runs on the routine's own goroutine: it registers the routine
// for Current, invokes the entry closure, marks the routine finished, and
// performs the terminal yield. It never returns control any other way.
func (cr *CRoutine) trampoline() {
	gid := goID()
	currentRoutines.Set(gid, cr)
	defer func() {
		currentRoutines.Erase(gid)
		if r := recover(); r != nil {
			if _, ok := r.(killSignal); ok {
				cr.SetState(StateFinished)
				return
			}
			panic(r)
		}
		cr.SetState(StateFinished)
		cr.ctx.finish()
	}()
	cr.fn()
}

// Acquire test-and-sets the acquire-lock, returning whether the caller
// obtained the right to resume.
func (cr *CRoutine) Acquire() bool {
	return !cr.lock.Swap(true)
}

// Release clears the acquire-lock.
func (cr *CRoutine) Release() {
	cr.lock.Store(false)
}

// SetUpdateFlag clears the update flag, signalling that data has arrived.
// It is the caller's responsibility to check the routine's state first.
func (cr *CRoutine) SetUpdateFlag() {
	cr.updated.Store(false)
}

// Resume switches the calling worker onto the routine's context and blocks
// until it yields. Requires the acquire-lock; the caller releases it after
// Resume returns. The result is the routine's state at the moment of yield.
func (cr *CRoutine) Resume() RoutineState {
	if cr.forceStop.Load() {
		if cr.State() != StateFinished {
			// Never resumed again: unwind the parked (or unstarted) goroutine.
			cr.ctx.kill()
			cr.SetState(StateFinished)
		}
		return StateFinished
	}
	if s := cr.State(); s != StateReady {
		return s
	}
	cr.ctx.swapIn()
	return cr.State()
}

// UpdateState advances the synchronous (sleep) and asynchronous (update
// flag) wake mechanisms and returns the possibly-updated state. Callers must
// hold the acquire-lock.
func (cr *CRoutine) UpdateState() RoutineState {
	if cr.State() == StateSleep && time.Now().After(cr.wakeTime) {
		cr.SetState(StateReady)
		return StateReady
	}
	if !cr.updated.Swap(true) {
		if s := cr.State(); s == StateDataWait || s == StateIOWait {
			cr.SetState(StateReady)
		}
	}
	return cr.State()
}

// Stop marks the routine so the next scheduling pass refuses to resume it.
func (cr *CRoutine) Stop() {
	cr.forceStop.Store(true)
}

// Wake forces the routine back to StateReady.
func (cr *CRoutine) Wake() {
	cr.SetState(StateReady)
}

// HangUp suspends the current routine until a data notification arrives.
// Must be called from within the routine.
func (cr *CRoutine) HangUp() {
	YieldWith(StateDataWait)
}

// Sleep suspends the current routine for at least d. Must be called from
// within the routine.
func (cr *CRoutine) Sleep(d time.Duration) {
	cr.wakeTime = time.Now().Add(d)
	YieldWith(StateSleep)
}

// Close unwinds a routine that is parked at a yield point (or never
// started), releasing its goroutine. Safe only while no worker can resume
// it; the scheduler calls it after its workers have exited.
func (cr *CRoutine) Close() {
	if cr.State() == StateFinished {
		return
	}
	cr.Stop()
	cr.ctx.kill()
	cr.SetState(StateFinished)
}

// State returns the current lifecycle state.
func (cr *CRoutine) State() RoutineState { return RoutineState(cr.state.Load()) }

// SetState overwrites the lifecycle state.
func (cr *CRoutine) SetState(state RoutineState) { cr.state.Store(int32(state)) }

// ID returns the routine id (hash of its stable name).
func (cr *CRoutine) ID() uint64 { return cr.id }

// SetID sets the routine id.
func (cr *CRoutine) SetID(id uint64) { cr.id = id }

// Name returns the display name.
func (cr *CRoutine) Name() string { return cr.name }

// SetName sets the display name.
func (cr *CRoutine) SetName(name string) { cr.name = name }

// ProcessorID returns the processor hint.
func (cr *CRoutine) ProcessorID() int { return int(cr.processorID.Load()) }

// SetProcessorID sets the processor hint.
func (cr *CRoutine) SetProcessorID(id int) { cr.processorID.Store(int32(id)) }

// Priority returns the scheduling priority.
func (cr *CRoutine) Priority() uint32 { return cr.priority }

// SetPriority sets the scheduling priority.
func (cr *CRoutine) SetPriority(priority uint32) { cr.priority = priority }

// WakeTime returns the sleep deadline.
func (cr *CRoutine) WakeTime() time.Time { return cr.wakeTime }

// GroupName returns the scheduling group.
func (cr *CRoutine) GroupName() string { return cr.groupName }

// SetGroupName sets the scheduling group.
func (cr *CRoutine) SetGroupName(groupName string) { cr.groupName = groupName }
