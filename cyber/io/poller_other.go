//go:build !linux

package io

import (
	"sync"

	"github.com/storypku/cyberrt-on-rpi/cyber/logger"
)

// Poller is a stub off Linux: registrations are refused, so no poll
// callback ever wakes an IO_WAIT routine.
type Poller struct{}

var pollerOnce sync.Once

// Instance logs once and returns a non-functional poller.
func Instance() *Poller {
	pollerOnce.Do(func() {
		logger.L().Warning().Log("fd poller is only available on linux")
	})
	return &Poller{}
}

// Register always fails off Linux.
func (p *Poller) Register(PollRequest) bool { return false }

// Unregister always fails off Linux.
func (p *Poller) Unregister(PollRequest) bool { return false }

// Shutdown is a no-op off Linux.
func (p *Poller) Shutdown() {}
