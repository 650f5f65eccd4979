package logger

import (
	"io"
	"sync"
	"time"
)

const (
	// defaultMaxBufferBytes is split evenly across the two swap buffers.
	defaultMaxBufferBytes = 2 * 1024 * 1024

	// flushInterval bounds how stale a quiet buffer can get.
	flushInterval = 2 * time.Second
)

type asyncLoggerState int

const (
	loggerInitted asyncLoggerState = iota
	loggerRunning
	loggerStopped
)

type logBuffer struct {
	msgs  [][]byte
	bytes int
	flush bool
}

func (b *logBuffer) add(msg []byte, forceFlush bool) {
	b.msgs = append(b.msgs, msg)
	b.bytes += len(msg)
	b.flush = b.flush || forceFlush
}

func (b *logBuffer) needsFlushOrWrite() bool {
	return b.flush || len(b.msgs) > 0
}

func (b *logBuffer) reset() {
	b.msgs = b.msgs[:0]
	b.bytes = 0
	b.flush = false
}

// AsyncLogger decouples log production from sink latency with a pair of swap
// buffers: producers append to the active buffer and a single flusher
// goroutine drains the other into the wrapped writer. When the active buffer
// is full, messages are dropped rather than blocking the producer.
//
// It implements io.Writer, so it can sit under the stumpy backend:
//
//	al := logger.NewAsyncLogger(file, 0)
//	al.Start()
//	logger.SetLogger(logger.New(al, logiface.LevelInformational))
type AsyncLogger struct {
	mu        sync.Mutex
	flushCond *sync.Cond // signalled once per completed flush cycle

	active   *logBuffer
	flushing *logBuffer

	wrapped        io.Writer
	maxBufferBytes int
	state          asyncLoggerState
	flushCount     uint64

	wake chan struct{}
	done chan struct{}
}

// NewAsyncLogger wraps w. maxBufferBytes <= 0 selects the default budget.
func NewAsyncLogger(w io.Writer, maxBufferBytes int) *AsyncLogger {
	if maxBufferBytes <= 0 {
		maxBufferBytes = defaultMaxBufferBytes
	}
	l := &AsyncLogger{
		active:         &logBuffer{},
		flushing:       &logBuffer{},
		wrapped:        w,
		maxBufferBytes: maxBufferBytes,
		wake:           make(chan struct{}, 1),
		done:           make(chan struct{}),
	}
	l.flushCond = sync.NewCond(&l.mu)
	return l
}

// Start launches the flusher. Must be called exactly once, before any Write.
func (l *AsyncLogger) Start() {
	l.mu.Lock()
	if l.state != loggerInitted {
		l.mu.Unlock()
		return
	}
	l.state = loggerRunning
	l.mu.Unlock()
	go l.run()
}

// Stop drains both buffers and joins the flusher. Idempotent.
func (l *AsyncLogger) Stop() {
	l.mu.Lock()
	if l.state != loggerRunning {
		l.mu.Unlock()
		return
	}
	l.state = loggerStopped
	l.mu.Unlock()
	l.signal()
	<-l.done
}

// Write buffers one message. The message is dropped when the active buffer
// is over budget or the logger is not running; either way the producer never
// blocks. Always reports success to the caller.
func (l *AsyncLogger) Write(p []byte) (int, error) {
	l.mu.Lock()
	if l.state == loggerRunning && l.active.bytes <= l.maxBufferBytes/2 {
		msg := make([]byte, len(p))
		copy(msg, p)
		l.active.add(msg, false)
	}
	l.mu.Unlock()
	l.signal()
	return len(p), nil
}

// Flush blocks until both buffers have been written through: two complete
// flush cycles guarantee the buffer that was active at call time has been
// swapped out and drained.
func (l *AsyncLogger) Flush() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != loggerRunning {
		return
	}
	orig := l.flushCount
	for l.flushCount < orig+2 && l.state == loggerRunning {
		l.active.flush = true
		l.signal()
		l.flushCond.Wait()
	}
}

func (l *AsyncLogger) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *AsyncLogger) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		for !l.active.needsFlushOrWrite() && l.state == loggerRunning {
			l.mu.Unlock()
			select {
			case <-l.wake:
			case <-time.After(flushInterval):
				l.mu.Lock()
				l.active.flush = true
				l.mu.Unlock()
			}
			l.mu.Lock()
		}
		if !l.active.needsFlushOrWrite() && l.state != loggerRunning {
			l.flushCond.Broadcast()
			l.mu.Unlock()
			return
		}
		l.active, l.flushing = l.flushing, l.active
		l.mu.Unlock()

		for _, msg := range l.flushing.msgs {
			_, _ = l.wrapped.Write(msg)
		}
		if l.flushing.flush {
			if s, ok := l.wrapped.(interface{ Sync() error }); ok {
				_ = s.Sync()
			}
		}
		l.flushing.reset()

		l.mu.Lock()
		l.flushCount++
		l.flushCond.Broadcast()
		l.mu.Unlock()
	}
}
