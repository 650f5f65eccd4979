package scheduler

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/storypku/cyberrt-on-rpi/cyber/logger"
)

// Processor is a worker pinned to an OS thread, running the pick-next loop
// of the context it is bound to. One routine runs at a time on a processor;
// when nothing is runnable the worker parks in the context's Wait.
type Processor struct {
	ctx ProcessorContext

	running  atomic.Bool
	tid      atomic.Int32
	bindOnce sync.Once
	done     chan struct{}
}

// NewProcessor returns a processor ready to be bound.
func NewProcessor() *Processor {
	p := &Processor{done: make(chan struct{})}
	p.running.Store(true)
	p.tid.Store(-1)
	return p
}

// BindContext stores the context and launches the worker. Only the first
// call binds; later calls are no-ops.
func (p *Processor) BindContext(ctx ProcessorContext) {
	p.bindOnce.Do(func() {
		p.ctx = ctx
		go p.run()
	})
}

// Tid returns the worker's OS thread id, or -1 before the worker publishes
// it.
func (p *Processor) Tid() int {
	return int(p.tid.Load())
}

// waitTid spin-yields until the worker publishes its thread id.
func (p *Processor) waitTid() int {
	for {
		if tid := p.tid.Load(); tid != -1 {
			return int(tid)
		}
		runtime.Gosched()
	}
}

// SetSchedAffinity pins the worker. mode "range" pins to the whole cpuset;
// "1to1" pins to cpus[rank], the worker's index within its group. An empty
// cpuset is a no-op.
func (p *Processor) SetSchedAffinity(cpus []int, mode string, rank int) {
	if len(cpus) == 0 {
		return
	}
	tid := p.waitTid()
	var err error
	switch mode {
	case "range":
		err = setSchedAffinity(tid, cpus)
	case "1to1":
		if rank < 0 || rank >= len(cpus) {
			logger.L().Warning().Int("rank", rank).Int("cpus", len(cpus)).
				Log("1to1 affinity rank out of cpuset range")
			return
		}
		err = setSchedAffinity(tid, cpus[rank:rank+1])
	default:
		return
	}
	if err != nil {
		logger.L().Warning().Err(err).Int("tid", tid).Str("mode", mode).
			Log("sched affinity failed; keeping default placement")
	}
}

// SetSchedPolicy applies an OS scheduling policy to the worker.
// SCHED_FIFO/SCHED_RR select the real-time policy with the given priority;
// SCHED_OTHER waits for the worker's tid and applies a nice-style priority.
func (p *Processor) SetSchedPolicy(policy string, priority int) {
	var err error
	switch policy {
	case "SCHED_FIFO":
		err = setSchedPolicy(p.waitTid(), schedPolicyFIFO, priority)
	case "SCHED_RR":
		err = setSchedPolicy(p.waitTid(), schedPolicyRR, priority)
	case "SCHED_OTHER":
		err = setSchedNice(p.waitTid(), priority)
	default:
		return
	}
	if err != nil {
		logger.L().Warning().Err(err).Str("policy", policy).Int("priority", priority).
			Log("sched policy failed; continuing with default policy")
	}
}

func (p *Processor) run() {
	defer close(p.done)
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	p.tid.Store(int32(currentTid()))
	logger.L().Debug().Int("tid", p.Tid()).Log("processor started")

	if p.ctx == nil {
		return
	}
	for p.running.Load() {
		if cr := p.ctx.NextRoutine(); cr != nil {
			cr.Resume()
			cr.Release() // Acquire was done in NextRoutine.
		} else {
			p.ctx.Wait()
		}
	}
}

// Stop shuts the bound context down and joins the worker. Idempotent.
func (p *Processor) Stop() {
	if !p.running.Swap(false) {
		return
	}
	if p.ctx == nil {
		return
	}
	p.ctx.Shutdown()
	<-p.done
}
