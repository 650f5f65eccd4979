// Package data implements the notification fabric between message producers
// and data-waiting routines: bounded per-channel caches, a callback
// notifier, and the dispatcher that fans messages into both.
package data

import (
	"sync"
	"sync/atomic"
)

// CacheBuffer is a bounded ring holding the most recent messages of one
// channel. The oldest entry is overwritten once the ring is full. The
// buffer's own mutex serializes producers against the consumer; the
// dispatcher locks it around Fill, consumers lock it around Fetch.
type CacheBuffer[T any] struct {
	mu     sync.Mutex
	buffer []T
	head   uint64
	tail   uint64
	size   uint64
	closed atomic.Bool
}

// NewCacheBuffer creates a ring caching up to size messages.
func NewCacheBuffer[T any](size uint64) *CacheBuffer[T] {
	return &CacheBuffer[T]{
		buffer: make([]T, size+1),
		size:   size,
	}
}

// Mutex exposes the buffer lock; Fill and Fetch require it held.
func (b *CacheBuffer[T]) Mutex() *sync.Mutex { return &b.mu }

// Fill appends value, displacing the oldest entry when full.
func (b *CacheBuffer[T]) Fill(value T) {
	if b.full() {
		b.head++
	}
	b.tail++
	b.buffer[b.tail%uint64(len(b.buffer))] = value
}

// Fetch copies the entry at position pos (advancing pos past displaced
// history if needed) and reports whether one was available.
func (b *CacheBuffer[T]) Fetch(pos *uint64, out *T) bool {
	if b.empty() {
		return false
	}
	if *pos < b.head+1 {
		*pos = b.head + 1
	}
	if *pos > b.tail {
		return false
	}
	*out = b.buffer[*pos%uint64(len(b.buffer))]
	return true
}

// Latest copies the newest entry.
func (b *CacheBuffer[T]) Latest(out *T) bool {
	if b.empty() {
		return false
	}
	*out = b.buffer[b.tail%uint64(len(b.buffer))]
	return true
}

// Size returns the number of cached entries.
func (b *CacheBuffer[T]) Size() uint64 { return b.tail - b.head }

func (b *CacheBuffer[T]) empty() bool { return b.head == b.tail }
func (b *CacheBuffer[T]) full() bool  { return b.tail-b.head == b.size }

// Close marks the buffer dead: its consumer has gone away, and the
// dispatcher drops the reference opportunistically on later passes.
func (b *CacheBuffer[T]) Close() { b.closed.Store(true) }

// Closed reports whether the consumer released the buffer.
func (b *CacheBuffer[T]) Closed() bool { return b.closed.Load() }
