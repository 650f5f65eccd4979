//go:build linux

package scheduler

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// sched.h policy values; x/sys exposes the affinity and priority calls but
// not the policy constants.
const (
	schedPolicyFIFO = 1
	schedPolicyRR   = 2
)

func currentTid() int {
	return unix.Gettid()
}

func setSchedAffinity(tid int, cpus []int) error {
	var set unix.CPUSet
	set.Zero()
	for _, cpu := range cpus {
		set.Set(cpu)
	}
	return unix.SchedSetaffinity(tid, &set)
}

// schedParam mirrors struct sched_param for sched_setscheduler, which x/sys
// wraps for affinity but not for policy selection.
type schedParam struct {
	priority int32
}

func setSchedPolicy(tid int, policy int, priority int) error {
	param := schedParam{priority: int32(priority)}
	_, _, errno := unix.Syscall(unix.SYS_SCHED_SETSCHEDULER,
		uintptr(tid), uintptr(policy), uintptr(unsafe.Pointer(&param)))
	if errno != 0 {
		return errno
	}
	return nil
}

func setSchedNice(tid int, priority int) error {
	return unix.Setpriority(unix.PRIO_PROCESS, tid, priority)
}
