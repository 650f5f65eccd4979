//go:build !linux

package scheduler

// OS scheduling integration is Linux-only; elsewhere the workers run with
// the runtime's default placement and policy.

const (
	schedPolicyFIFO = 1
	schedPolicyRR   = 2
)

func currentTid() int { return 0 }

func setSchedAffinity(int, []int) error { return nil }

func setSchedPolicy(int, int, int) error { return nil }

func setSchedNice(int, int) error { return nil }
