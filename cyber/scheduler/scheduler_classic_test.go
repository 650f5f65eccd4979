package scheduler

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storypku/cyberrt-on-rpi/cyber/common"
	"github.com/storypku/cyberrt-on-rpi/cyber/croutine"
)

// newTestScheduler builds a scheduler from an in-memory conf, bypassing the
// config file lookup.
func newTestScheduler(t *testing.T, conf ClassicConf) *SchedulerClassic {
	t.Helper()
	s := &SchedulerClassic{
		idCr:        make(map[uint64]*croutine.CRoutine),
		idMutexes:   make(map[uint64]*sync.Mutex),
		crConfs:     make(map[string]TaskConf),
		classicConf: conf,
	}
	for _, group := range conf.Groups {
		for _, task := range group.Tasks {
			task.GroupName = group.Name
			s.crConfs[task.Name] = task
		}
	}
	s.createProcessors()
	t.Cleanup(s.Shutdown)
	return s
}

func singleGroupConf(name string, processors uint32, tasks ...TaskConf) ClassicConf {
	return ClassicConf{Groups: []GroupConf{{
		Name:            name,
		ProcessorNum:    processors,
		ProcessorPolicy: "SCHED_OTHER",
		Tasks:           tasks,
	}}}
}

func newNamedRoutine(name string, fn croutine.RoutineFunc) *croutine.CRoutine {
	cr := croutine.New(fn)
	cr.SetID(common.GenerateHashID(name))
	cr.SetName(name)
	return cr
}

func waitFinished(t *testing.T, cr *croutine.CRoutine, timeout time.Duration) time.Duration {
	t.Helper()
	start := time.Now()
	deadline := time.After(timeout)
	for cr.State() != croutine.StateFinished {
		select {
		case <-deadline:
			t.Fatalf("routine %q did not finish within %v (state %v)",
				cr.Name(), timeout, cr.State())
		default:
			time.Sleep(time.Millisecond)
		}
	}
	return time.Since(start)
}

func TestDispatchAndRunToCompletion(t *testing.T) {
	s := newTestScheduler(t, singleGroupConf("sched_basic_grp", 1))

	var log []string
	var mu sync.Mutex
	cr := newNamedRoutine("basic_task", func() {
		mu.Lock()
		log = append(log, "A")
		mu.Unlock()
	})

	require.True(t, s.DispatchTask(cr))
	waitFinished(t, cr, 100*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"A"}, log)
}

func TestDispatchDuplicateIDFails(t *testing.T) {
	s := newTestScheduler(t, singleGroupConf("sched_dup_grp", 1))

	cr := newNamedRoutine("dup_task", func() {})
	require.True(t, s.DispatchTask(cr))

	again := newNamedRoutine("dup_task", func() {})
	defer again.Close()
	assert.False(t, s.DispatchTask(again))
}

func TestDispatchResolvesConfAndClampsPriority(t *testing.T) {
	s := newTestScheduler(t, singleGroupConf("sched_conf_grp", 1,
		TaskConf{Name: "configured", Prio: 12},
		TaskConf{Name: "over_prio", Prio: 99},
	))

	configured := newNamedRoutine("configured", func() {})
	require.True(t, s.DispatchTask(configured))
	assert.Equal(t, uint32(12), configured.Priority())
	assert.Equal(t, "sched_conf_grp", configured.GroupName())

	over := newNamedRoutine("over_prio", func() {})
	require.True(t, s.DispatchTask(over))
	assert.Equal(t, uint32(MaxPrio-1), over.Priority(), "priority must clamp to MAX_PRIO-1")

	unknown := newNamedRoutine("not_in_conf", func() {})
	require.True(t, s.DispatchTask(unknown))
	assert.Equal(t, "sched_conf_grp", unknown.GroupName(), "unknown tasks land in the first group")
}

func TestHangUpNotifyProcessor(t *testing.T) {
	s := newTestScheduler(t, singleGroupConf("sched_hangup_grp", 1))

	var resumed atomic.Bool
	cr := newNamedRoutine("hangup_task", func() {
		croutine.Current().HangUp()
		resumed.Store(true)
	})

	require.True(t, s.DispatchTask(cr))
	waitState(t, cr, croutine.StateDataWait)
	time.Sleep(10 * time.Millisecond)
	assert.False(t, resumed.Load())

	require.True(t, s.NotifyProcessor(cr.ID()))
	waitFinished(t, cr, time.Second)
	assert.True(t, resumed.Load())

	assert.False(t, s.NotifyProcessor(common.GenerateHashID("no_such_task")),
		"unknown id must report false")
}

func TestPrioritySelectionBeforeLowResumes(t *testing.T) {
	s := newTestScheduler(t, singleGroupConf("sched_prio_grp", 1,
		TaskConf{Name: "low_looper", Prio: 1},
		TaskConf{Name: "high_once", Prio: 10},
	))

	var highDone atomic.Bool
	low := newNamedRoutine("low_looper", func() {
		for !highDone.Load() {
			croutine.Yield()
		}
	})
	high := newNamedRoutine("high_once", func() {
		highDone.Store(true)
	})

	require.True(t, s.DispatchTask(low))
	time.Sleep(5 * time.Millisecond)
	require.True(t, s.DispatchTask(high))

	// The single processor must select high over the still-looping low
	// within one scan, which unblocks low's exit condition.
	waitFinished(t, high, time.Second)
	waitFinished(t, low, time.Second)
}

func TestSleepThenWake(t *testing.T) {
	s := newTestScheduler(t, singleGroupConf("sched_sleep_grp", 1))

	const d = 50 * time.Millisecond
	cr := newNamedRoutine("sleeper", func() {
		croutine.Current().Sleep(d)
	})

	start := time.Now()
	require.True(t, s.DispatchTask(cr))

	time.Sleep(40 * time.Millisecond)
	if time.Since(start) < d {
		assert.NotEqual(t, croutine.StateFinished, cr.State(),
			"sleeper must not complete before its deadline")
	}

	waitFinished(t, cr, time.Second)
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, d)
	assert.Less(t, elapsed, 500*time.Millisecond,
		"sleeper should complete shortly after its wake time")
}

func TestRemoveTask(t *testing.T) {
	s := newTestScheduler(t, singleGroupConf("sched_remove_grp", 1))

	cr := newNamedRoutine("removable", func() {
		croutine.Current().HangUp()
	})
	require.True(t, s.DispatchTask(cr))
	waitState(t, cr, croutine.StateDataWait)

	require.True(t, s.RemoveTask("removable"))

	// Registry and run queue are both cleared.
	s.idCrLock.RLock()
	_, registered := s.idCr[cr.ID()]
	s.idCrLock.RUnlock()
	assert.False(t, registered)
	assert.False(t, queueContains("sched_remove_grp", cr.ID()))

	assert.False(t, s.RemoveCRoutine(cr.ID()), "second removal must miss")
	cr.Close()
}

func TestRemoveUnknownCRoutine(t *testing.T) {
	s := newTestScheduler(t, singleGroupConf("sched_remove_miss_grp", 1))
	assert.False(t, s.RemoveCRoutine(12345))
}

func TestShutdownIdempotent(t *testing.T) {
	s := newTestScheduler(t, singleGroupConf("sched_shutdown_grp", 2))

	cr := newNamedRoutine("parked_forever", func() {
		croutine.Current().HangUp()
	})
	require.True(t, s.DispatchTask(cr))
	waitState(t, cr, croutine.StateDataWait)

	s.Shutdown()
	s.Shutdown()
	s.Shutdown()

	assert.Equal(t, croutine.StateFinished, cr.State(),
		"shutdown must unwind parked routines")

	// Post-shutdown operations are idempotent no-ops.
	assert.True(t, s.NotifyProcessor(cr.ID()))
	assert.True(t, s.RemoveTask("parked_forever"))
}

func waitState(t *testing.T, cr *croutine.CRoutine, want croutine.RoutineState) {
	t.Helper()
	deadline := time.After(time.Second)
	for cr.State() != want {
		select {
		case <-deadline:
			t.Fatalf("routine %q never reached %v (state %v)", cr.Name(), want, cr.State())
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func queueContains(groupName string, crID uint64) bool {
	g := classicGroupFor(groupName)
	for prio := 0; prio < MaxPrio; prio++ {
		g.locks[prio].RLock()
		for _, cr := range g.queues[prio] {
			if cr.ID() == crID {
				g.locks[prio].RUnlock()
				return true
			}
		}
		g.locks[prio].RUnlock()
	}
	return false
}
