// Package io provides the file-descriptor poller that backs IO_WAIT
// routines: registered requests are watched via the platform poller, and
// readiness or timeout is delivered to the request callback, which
// typically fires the waiting routine's update flag and notifies its group.
package io

// PollRequest asks the poller to watch fd for events (epoll semantics).
// TimeoutMs < 0 watches until readiness or unregistration; otherwise the
// callback fires with zero events once the timeout elapses. Registrations
// are one-shot: a delivery or timeout consumes them.
type PollRequest struct {
	Fd        int
	Events    uint32
	TimeoutMs int32
	Callback  func(PollResponse)
}

// PollResponse reports the readiness events observed for a request; zero
// means the request timed out.
type PollResponse struct {
	Events uint32
}
