package event

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/storypku/cyberrt-on-rpi/cyber/logger"
)

const (
	// Env switches; any value other than empty or "0" enables the sink.
	schedPerfEnv = "cyber_sched_perf"
	transPerfEnv = "cyber_trans_perf"

	eventQueueSize = 1024
)

// PerfEventCache buffers perf events through a bounded queue and a single
// flusher goroutine writing one cyber_perf_*.data file per process. Events
// are dropped rather than blocking the scheduling hot path when the queue is
// full. Shutdown is idempotent and flushes everything queued before it.
type PerfEventCache struct {
	enableSched bool
	enableTrans bool

	events chan PerfEvent
	stop   chan struct{}
	done   chan struct{}

	stopOnce sync.Once

	file   *os.File
	writer *bufio.Writer
}

var (
	perfOnce sync.Once
	perfInst *PerfEventCache
)

// PerfEventCacheInstance returns the process-wide cache, constructing it and
// starting its flusher on first use.
func PerfEventCacheInstance() *PerfEventCache {
	perfOnce.Do(func() {
		perfInst = newPerfEventCache()
	})
	return perfInst
}

func perfEnvEnabled(key string) bool {
	v := os.Getenv(key)
	return v != "" && v != "0"
}

func newPerfEventCache() *PerfEventCache {
	c := &PerfEventCache{
		enableSched: perfEnvEnabled(schedPerfEnv),
		enableTrans: perfEnvEnabled(transPerfEnv),
		events:      make(chan PerfEvent, eventQueueSize),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
	if !c.enableSched && !c.enableTrans {
		close(c.done)
		return c
	}
	name := fmt.Sprintf("cyber_perf_%s.data", time.Now().Format("2006-01-02_15-04-05"))
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		logger.L().Warning().Err(err).Str("file", name).Log("perf event file open failed; sink disabled")
		c.enableSched = false
		c.enableTrans = false
		close(c.done)
		return c
	}
	c.file = f
	c.writer = bufio.NewWriter(f)
	go c.run()
	return c
}

func nowStamp() string {
	return strconv.FormatInt(time.Now().UnixNano(), 10)
}

// AddSchedEvent records a scheduler event for the given routine/processor
// pair. The optional extra value lands in the record's last column.
func (c *PerfEventCache) AddSchedEvent(eventID SchedPerf, crID uint64, procID int, extra ...int64) {
	schedEventsTotal.WithLabelValues(eventID.String()).Inc()
	if !c.enableSched {
		return
	}
	e := &SchedEvent{EventID: eventID, Stamp: nowStamp(), CrID: crID, ProcID: procID}
	if len(extra) > 0 {
		e.Extra = extra[0]
	}
	c.push(e)
}

// AddTransportEvent records a transport event for a channel/message pair.
func (c *PerfEventCache) AddTransportEvent(eventID TransPerf, channelID uint64, msgSeq uint64) {
	transportEventsTotal.WithLabelValues(eventID.String()).Inc()
	if !c.enableTrans {
		return
	}
	c.push(&TransportEvent{EventID: eventID, Stamp: nowStamp(), ChannelID: channelID, MsgSeq: msgSeq})
}

func (c *PerfEventCache) push(e PerfEvent) {
	select {
	case c.events <- e:
	default:
		// Queue full: dropping beats stalling a processor.
	}
}

// Shutdown flushes queued events and closes the trace file. Idempotent.
func (c *PerfEventCache) Shutdown() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
	<-c.done
}

func (c *PerfEventCache) run() {
	defer close(c.done)
	for {
		select {
		case e := <-c.events:
			c.write(e)
		case <-c.stop:
			for {
				select {
				case e := <-c.events:
					c.write(e)
				default:
					_ = c.writer.Flush()
					_ = c.file.Close()
					return
				}
			}
		}
	}
}

func (c *PerfEventCache) write(e PerfEvent) {
	_, _ = c.writer.WriteString(e.SerializeToString())
	_ = c.writer.WriteByte('\n')
}
