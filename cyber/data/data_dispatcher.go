package data

import (
	"reflect"
	"sync"

	"github.com/storypku/cyberrt-on-rpi/cyber/base"
	"github.com/storypku/cyberrt-on-rpi/cyber/common"
)

// DataDispatcher routes published messages of one payload type into every
// cache buffer registered for the message's channel, then asks the notifier
// to wake the channel's waiters. Buffers are held loosely: a consumer closes
// its buffer to drop out, and the dispatcher skips and opportunistically
// compacts dead entries instead of coordinating removal.
type DataDispatcher[T any] struct {
	notifier *DataNotifier
	mu       base.AtomicRWLock
	buffers  map[uint64][]*CacheBuffer[*T]
}

var (
	dispatcherMu    sync.Mutex
	dispatcherInsts = make(map[reflect.Type]any)
)

// DispatcherInstance returns the process-wide dispatcher for payload type T,
// constructing it on first use.
func DispatcherInstance[T any]() *DataDispatcher[T] {
	key := reflect.TypeOf((*T)(nil))
	dispatcherMu.Lock()
	defer dispatcherMu.Unlock()
	if inst, ok := dispatcherInsts[key]; ok {
		return inst.(*DataDispatcher[T])
	}
	d := &DataDispatcher[T]{
		notifier: NotifierInstance(),
		buffers:  make(map[uint64][]*CacheBuffer[*T]),
	}
	dispatcherInsts[key] = d
	return d
}

// AddBuffer registers a channel buffer for its channel. Dead buffers
// accumulated on the channel are compacted while the write lock is held.
func (d *DataDispatcher[T]) AddBuffer(channelBuffer ChannelBuffer[T]) {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := channelBuffer.ChannelID()
	alive := d.buffers[id][:0]
	for _, b := range d.buffers[id] {
		if !b.Closed() {
			alive = append(alive, b)
		}
	}
	d.buffers[id] = append(alive, channelBuffer.Buffer())
}

// Dispatch fans msg into channelID's live buffers and notifies the
// channel's waiters. Returns false when the process is shutting down or the
// channel has no registration.
func (d *DataDispatcher[T]) Dispatch(channelID uint64, msg *T) bool {
	if common.IsShutdown() {
		return false
	}
	d.mu.RLock()
	registered, ok := d.buffers[channelID]
	if !ok {
		d.mu.RUnlock()
		return false
	}
	buffers := make([]*CacheBuffer[*T], len(registered))
	copy(buffers, registered)
	d.mu.RUnlock()

	for _, buffer := range buffers {
		if buffer.Closed() {
			continue
		}
		buffer.Mutex().Lock()
		buffer.Fill(msg)
		buffer.Mutex().Unlock()
	}
	return d.notifier.Notify(channelID)
}
