package scheduler

import (
	"sync"
)

var (
	instanceMu sync.Mutex
	instance   Scheduler
)

// Instance returns the process-wide scheduler, constructing the classic
// variant from config on first use.
func Instance() Scheduler {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance == nil {
		instance = NewSchedulerClassic()
	}
	return instance
}

// CleanUp shuts the process scheduler down and forgets it. Safe to call
// repeatedly or without a prior Instance.
func CleanUp() {
	instanceMu.Lock()
	defer instanceMu.Unlock()
	if instance != nil {
		instance.Shutdown()
		instance = nil
	}
}
