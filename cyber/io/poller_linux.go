//go:build linux

package io

import (
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/storypku/cyberrt-on-rpi/cyber/logger"
)

const pollEventBufSize = 128

type pollEntry struct {
	request  PollRequest
	deadline time.Time // zero when the request has no timeout
}

// Poller multiplexes poll requests over one epoll instance and a single
// poll goroutine. An eventfd wakes the loop whenever the registration set
// changes so the computed wait timeout never goes stale.
type Poller struct {
	epfd   int
	wakeFd int

	mu      sync.Mutex
	entries map[int]*pollEntry

	stop     atomic.Bool
	stopOnce sync.Once
	done     chan struct{}
}

var (
	pollerOnce sync.Once
	poller     *Poller
)

// Instance returns the process-wide poller, creating it and starting its
// poll loop on first use. Returns nil when the platform poller cannot be
// created.
func Instance() *Poller {
	pollerOnce.Do(func() {
		p, err := newPoller()
		if err != nil {
			logger.L().Warning().Err(err).Log("poller init failed")
			return
		}
		poller = p
	})
	return poller
}

func newPoller() (*Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	p := &Poller{
		epfd:    epfd,
		wakeFd:  wakeFd,
		entries: make(map[int]*pollEntry),
		done:    make(chan struct{}),
	}
	ev := &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, ev); err != nil {
		_ = unix.Close(wakeFd)
		_ = unix.Close(epfd)
		return nil, err
	}
	go p.run()
	return p, nil
}

// Register watches request.Fd. Re-registering an fd replaces its pending
// request. Returns false on invalid requests or after shutdown.
func (p *Poller) Register(request PollRequest) bool {
	if p.stop.Load() {
		return false
	}
	if request.Fd < 0 || request.Callback == nil {
		return false
	}

	p.mu.Lock()
	_, existing := p.entries[request.Fd]
	entry := &pollEntry{request: request}
	if request.TimeoutMs >= 0 {
		entry.deadline = time.Now().Add(time.Duration(request.TimeoutMs) * time.Millisecond)
	}
	p.entries[request.Fd] = entry
	p.mu.Unlock()

	ev := &unix.EpollEvent{Events: request.Events, Fd: int32(request.Fd)}
	op := unix.EPOLL_CTL_ADD
	if existing {
		op = unix.EPOLL_CTL_MOD
	}
	if err := unix.EpollCtl(p.epfd, op, request.Fd, ev); err != nil {
		logger.L().Warning().Err(err).Int("fd", request.Fd).Log("epoll_ctl failed")
		p.mu.Lock()
		delete(p.entries, request.Fd)
		p.mu.Unlock()
		return false
	}
	p.wake()
	return true
}

// Unregister drops the pending request for request.Fd.
func (p *Poller) Unregister(request PollRequest) bool {
	if p.stop.Load() {
		return false
	}
	p.mu.Lock()
	_, ok := p.entries[request.Fd]
	delete(p.entries, request.Fd)
	p.mu.Unlock()
	if !ok {
		return false
	}
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, request.Fd, nil)
	return true
}

// Shutdown stops the poll loop and closes the poller fds. Idempotent.
func (p *Poller) Shutdown() {
	p.stopOnce.Do(func() {
		p.stop.Store(true)
		p.wake()
		<-p.done
		_ = unix.Close(p.wakeFd)
		_ = unix.Close(p.epfd)
	})
}

func (p *Poller) wake() {
	var one = [8]byte{7: 1}
	_, _ = unix.Write(p.wakeFd, one[:])
}

// nextTimeoutMs computes the epoll wait bound from the earliest pending
// deadline; -1 blocks indefinitely.
func (p *Poller) nextTimeoutMs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	timeout := -1
	now := time.Now()
	for _, entry := range p.entries {
		if entry.deadline.IsZero() {
			continue
		}
		ms := int(entry.deadline.Sub(now) / time.Millisecond)
		if ms < 0 {
			ms = 0
		}
		if timeout < 0 || ms < timeout {
			timeout = ms
		}
	}
	return timeout
}

func (p *Poller) run() {
	defer close(p.done)
	var events [pollEventBufSize]unix.EpollEvent
	for !p.stop.Load() {
		n, err := unix.EpollWait(p.epfd, events[:], p.nextTimeoutMs())
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			logger.L().Warning().Err(err).Log("epoll_wait failed")
			return
		}
		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)
			if fd == p.wakeFd {
				p.drainWake()
				continue
			}
			p.deliver(fd, events[i].Events)
		}
		p.expire()
	}
}

func (p *Poller) drainWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.wakeFd, buf[:]); err != nil {
			return
		}
	}
}

// deliver fires and consumes the request registered on fd.
func (p *Poller) deliver(fd int, events uint32) {
	p.mu.Lock()
	entry, ok := p.entries[fd]
	if ok {
		delete(p.entries, fd)
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	entry.request.Callback(PollResponse{Events: events})
}

// expire times out overdue requests with an empty response.
func (p *Poller) expire() {
	now := time.Now()
	var expired []*pollEntry
	p.mu.Lock()
	for fd, entry := range p.entries {
		if !entry.deadline.IsZero() && !entry.deadline.After(now) {
			delete(p.entries, fd)
			expired = append(expired, entry)
		}
	}
	p.mu.Unlock()
	for _, entry := range expired {
		_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, entry.request.Fd, nil)
		entry.request.Callback(PollResponse{})
	}
}
