package scheduler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/storypku/cyberrt-on-rpi/cyber/base"
	"github.com/storypku/cyberrt-on-rpi/cyber/croutine"
	"github.com/storypku/cyberrt-on-rpi/cyber/event"
)

// classicGroup is the process-wide state shared by every context of one
// scheduling group: MaxPrio run queues with their locks, plus the group
// parking lot. The wake channel has capacity one, so a notify releases
// exactly one parked worker and a notify with no one parked is remembered
// for the next Wait rather than lost.
type classicGroup struct {
	queues [MaxPrio][]*croutine.CRoutine
	locks  [MaxPrio]base.AtomicRWLock
	wake   chan struct{}
}

var classicGroups = struct {
	sync.Mutex
	m map[string]*classicGroup
}{m: make(map[string]*classicGroup)}

func classicGroupFor(name string) *classicGroup {
	classicGroups.Lock()
	defer classicGroups.Unlock()
	g, ok := classicGroups.m[name]
	if !ok {
		g = &classicGroup{wake: make(chan struct{}, 1)}
		classicGroups.m[name] = g
	}
	return g
}

// NotifyGroup unparks one worker of the named group.
func NotifyGroup(groupName string) {
	g := classicGroupFor(groupName)
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// ClassicContext is one processor's view of its group: the shared run
// queues plus per-worker sleep bookkeeping. needSleep/wakeTime are only
// touched by the owning worker, between its NextRoutine scan and the
// following Wait.
type ClassicContext struct {
	group     *classicGroup
	groupName string

	stop   atomic.Bool
	stopCh chan struct{}

	needSleep bool
	wakeTime  time.Time
}

// NewClassicContext binds a context to groupName, creating the group state
// on first use.
func NewClassicContext(groupName string) *ClassicContext {
	if groupName == "" {
		groupName = DefaultGroupName
	}
	return &ClassicContext{
		group:     classicGroupFor(groupName),
		groupName: groupName,
		stopCh:    make(chan struct{}),
	}
}

// GroupName returns the group this context schedules.
func (c *ClassicContext) GroupName() string { return c.groupName }

// NextRoutine scans priorities from highest to lowest, FIFO within each,
// and returns the first ready routine it can acquire, still holding its
// acquire-lock. Routines held by another worker are skipped silently. Sleep
// deadlines observed along the way bound the next Wait.
func (c *ClassicContext) NextRoutine() *croutine.CRoutine {
	if c.stop.Load() {
		return nil
	}
	for i := MaxPrio - 1; i >= 0; i-- {
		lk := &c.group.locks[i]
		lk.RLock()
		for _, cr := range c.group.queues[i] {
			if !cr.Acquire() {
				continue
			}
			if cr.UpdateState() == croutine.StateReady {
				event.PerfEventCacheInstance().AddSchedEvent(event.NextRt, cr.ID(), cr.ProcessorID())
				lk.RUnlock()
				return cr
			}
			if cr.State() == croutine.StateSleep {
				if !c.needSleep || c.wakeTime.After(cr.WakeTime()) {
					c.needSleep = true
					c.wakeTime = cr.WakeTime()
				}
			}
			cr.Release()
		}
		lk.RUnlock()
	}
	return nil
}

// Wait parks the worker until a group notify, the earliest sleep deadline
// recorded by the last scan, or shutdown.
func (c *ClassicContext) Wait() {
	if c.stop.Load() {
		return
	}
	if c.needSleep {
		timer := time.NewTimer(time.Until(c.wakeTime))
		select {
		case <-c.group.wake:
		case <-timer.C:
		case <-c.stopCh:
		}
		timer.Stop()
		c.needSleep = false
		return
	}
	select {
	case <-c.group.wake:
	case <-c.stopCh:
	}
}

// Shutdown releases the parked worker for good. Idempotent.
func (c *ClassicContext) Shutdown() {
	if !c.stop.Swap(true) {
		close(c.stopCh)
	}
}
