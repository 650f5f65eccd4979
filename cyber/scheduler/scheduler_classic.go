package scheduler

import (
	"sync"
	"sync/atomic"

	"github.com/storypku/cyberrt-on-rpi/cyber/base"
	"github.com/storypku/cyberrt-on-rpi/cyber/common"
	"github.com/storypku/cyberrt-on-rpi/cyber/croutine"
	"github.com/storypku/cyberrt-on-rpi/cyber/event"
	"github.com/storypku/cyberrt-on-rpi/cyber/logger"
)

// SchedulerClassic is the classic-policy dispatch facade: it owns the id
// registry, resolves task priorities and groups from config, and feeds the
// per-group run queues the processors drain.
type SchedulerClassic struct {
	// idCrLock guards idCr, the id-indexed registry sharing ownership of
	// every dispatched routine with its run queue.
	idCrLock base.AtomicRWLock
	idCr     map[uint64]*croutine.CRoutine

	// idMutexes is the multi-key lock: concurrent dispatch/removal of the
	// same id serialize on the per-id mutex without serializing distinct
	// ids. The table itself is guarded by one short critical section.
	idMutexesMu sync.Mutex
	idMutexes   map[uint64]*sync.Mutex

	crConfs map[string]TaskConf

	classicConf ClassicConf
	processors  []*Processor
	pctxs       []*ClassicContext

	stop atomic.Bool
}

// NewSchedulerClassic builds the scheduler from conf/<process_group>.yaml,
// falling back to a single default group with a two-processor pool when the
// config is missing or malformed.
func NewSchedulerClassic() *SchedulerClassic {
	processGroup := common.Instance().ProcessGroup()
	conf, err := LoadClassicConf(processGroup)
	if err != nil {
		logger.L().Warning().Err(err).Str("process_group", processGroup).
			Log("scheduler config unavailable; falling back to default group")
		conf = defaultClassicConf()
	}

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
	return s
}

func (s *SchedulerClassic) createProcessors() {
	for _, group := range s.classicConf.Groups {
		cpus := ParseCpuset(group.Cpuset)
		for i := uint32(0); i < group.ProcessorNum; i++ {
			ctx := NewClassicContext(group.Name)
			s.pctxs = append(s.pctxs, ctx)

			proc := NewProcessor()
			proc.BindContext(ctx)
			proc.SetSchedAffinity(cpus, group.Affinity, int(i))
			proc.SetSchedPolicy(group.ProcessorPolicy, group.ProcessorPrio)
			s.processors = append(s.processors, proc)
		}
	}
}

// perIDMutex returns the mutex serializing operations on one routine id,
// creating it under the short table lock on first use.
func (s *SchedulerClassic) perIDMutex(crID uint64) *sync.Mutex {
	s.idMutexesMu.Lock()
	defer s.idMutexesMu.Unlock()
	m, ok := s.idMutexes[crID]
	if !ok {
		m = &sync.Mutex{}
		s.idMutexes[crID] = m
	}
	return m
}

// DispatchTask registers cr, resolves its priority and group from config,
// enqueues it, and wakes the group. Fails when the id is already
// registered.
func (s *SchedulerClassic) DispatchTask(cr *croutine.CRoutine) bool {
	m := s.perIDMutex(cr.ID())
	m.Lock()
	defer m.Unlock()

	s.idCrLock.Lock()
	if _, ok := s.idCr[cr.ID()]; ok {
		s.idCrLock.Unlock()
		return false
	}
	s.idCr[cr.ID()] = cr
	s.idCrLock.Unlock()

	if task, ok := s.crConfs[cr.Name()]; ok {
		cr.SetPriority(task.Prio)
		cr.SetGroupName(task.GroupName)
	} else {
		// Routines absent from config land in the first group.
		cr.SetGroupName(s.classicConf.Groups[0].Name)
	}

	if cr.Priority() >= MaxPrio {
		logger.L().Warning().Str("task", cr.Name()).Uint64("prio", uint64(cr.Priority())).
			Int("max_prio", MaxPrio).Log("priority exceeds MAX_PRIO; clamping")
		cr.SetPriority(MaxPrio - 1)
	}

	group := classicGroupFor(cr.GroupName())
	prio := cr.Priority()
	group.locks[prio].Lock()
	group.queues[prio] = append(group.queues[prio], cr)
	group.locks[prio].Unlock()

	event.PerfEventCacheInstance().AddSchedEvent(event.RtCreate, cr.ID(), cr.ProcessorID())
	NotifyGroup(cr.GroupName())
	return true
}

// NotifyProcessor wakes the routine's group, first firing the routine's
// update flag when it is data-waiting. IO_WAIT routines are deliberately
// not flagged here: the poller wakes them through its own callback path.
// Returns false for unknown ids; returns true unconditionally once shutdown
// has begun.
func (s *SchedulerClassic) NotifyProcessor(crID uint64) bool {
	if s.stop.Load() {
		return true
	}
	s.idCrLock.RLock()
	cr, ok := s.idCr[crID]
	if !ok {
		s.idCrLock.RUnlock()
		return false
	}
	if cr.State() == croutine.StateDataWait {
		cr.SetUpdateFlag()
	}
	groupName := cr.GroupName()
	s.idCrLock.RUnlock()

	NotifyGroup(groupName)
	return true
}

// RemoveTask removes the routine registered under name.
func (s *SchedulerClassic) RemoveTask(name string) bool {
	if s.stop.Load() {
		return true
	}
	return s.RemoveCRoutine(common.GenerateHashID(name))
}

// RemoveCRoutine erases the routine from the id registry and its run queue,
// force-stopping it on the way out. When the routine is registered but
// missing from its queue it is mid-resume on some worker; the force-stop
// mark already set makes that worker drop it on the next pass, so the
// method reports false without waiting rather than holding the per-id mutex
// across the routine's execution slice.
func (s *SchedulerClassic) RemoveCRoutine(crID uint64) bool {
	m := s.perIDMutex(crID)
	m.Lock()
	defer m.Unlock()

	var prio uint32
	var groupName string
	s.idCrLock.Lock()
	cr, ok := s.idCr[crID]
	if !ok {
		s.idCrLock.Unlock()
		return false
	}
	prio = cr.Priority()
	groupName = cr.GroupName()
	cr.Stop()
	delete(s.idCr, crID)
	s.idCrLock.Unlock()

	group := classicGroupFor(groupName)
	group.locks[prio].Lock()
	defer group.locks[prio].Unlock()
	queue := group.queues[prio]
	for i, queued := range queue {
		if queued.ID() == crID {
			queued.Stop()
			group.queues[prio] = append(queue[:i], queue[i+1:]...)
			queued.Release()
			return true
		}
	}
	return false
}

// Shutdown stops every processor, then unwinds the routines still
// registered so their goroutines exit. Idempotent.
func (s *SchedulerClassic) Shutdown() {
	if s.stop.Swap(true) {
		return
	}
	for _, proc := range s.processors {
		proc.Stop()
	}

	// Workers have joined; nothing can resume a routine anymore.
	s.idCrLock.Lock()
	for _, cr := range s.idCr {
		cr.Close()
	}
	s.idCr = make(map[uint64]*croutine.CRoutine)
	s.idCrLock.Unlock()

	for _, group := range s.classicConf.Groups {
		g := classicGroupFor(group.Name)
		for prio := 0; prio < MaxPrio; prio++ {
			g.locks[prio].Lock()
			g.queues[prio] = nil
			g.locks[prio].Unlock()
		}
	}
}
