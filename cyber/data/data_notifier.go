package data

import (
	"sync"

	"github.com/storypku/cyberrt-on-rpi/cyber/base"
)

// Notifier is a wake callback registered against a channel. Callbacks
// typically capture a routine handle, set its update flag, and nudge the
// routine's scheduling group.
type Notifier struct {
	Callback func()
}

// DataNotifier fans channel arrival events out to registered callbacks. The
// map is read-mostly: registration takes the write side once per reader,
// while every publish takes the read side, copies the list, and invokes the
// callbacks outside the lock in registration order, on the publisher's
// goroutine.
type DataNotifier struct {
	mu       base.AtomicRWLock
	notifies map[uint64][]*Notifier
}

var (
	notifierOnce sync.Once
	notifier     *DataNotifier
)

// NotifierInstance returns the process-wide DataNotifier.
func NotifierInstance() *DataNotifier {
	notifierOnce.Do(func() {
		notifier = &DataNotifier{notifies: make(map[uint64][]*Notifier)}
	})
	return notifier
}

// AddNotifier appends n to channelID's callback list.
func (d *DataNotifier) AddNotifier(channelID uint64, n *Notifier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.notifies[channelID] = append(d.notifies[channelID], n)
}

// Notify invokes every callback registered on channelID, returning whether
// the channel had any registration.
func (d *DataNotifier) Notify(channelID uint64) bool {
	d.mu.RLock()
	registered, ok := d.notifies[channelID]
	if !ok {
		d.mu.RUnlock()
		return false
	}
	notifies := make([]*Notifier, len(registered))
	copy(notifies, registered)
	d.mu.RUnlock()

	for _, n := range notifies {
		if n != nil && n.Callback != nil {
			n.Callback()
		}
	}
	return true
}
