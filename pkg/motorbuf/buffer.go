// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

// Package motorbuf implements the single-producer single-consumer ring of
// pending motor activations that ferries buzz events from the pattern
// generator to the main-loop dispatcher.
package motorbuf

import (
	"fmt"
	"sync/atomic"

	"github.com/glovetact/vcrsync/pkg/clock"
)

// Event is one pending motor activation.
type Event struct {
	Finger     uint8 // 0..4
	Amplitude  uint8
	FireAt     clock.Micros
	DurationMs uint16
}

// DefaultCapacity is the ring capacity used by the device composition.
const DefaultCapacity = 32

// Buffer is a fixed-capacity lock-free ring. The producer (pattern generator
// or protocol receiver) is the only writer of tail; the consumer (main-loop
// dispatcher) is the only writer of head. Atomic loads/stores give the
// release/acquire ordering the handoff needs.
type Buffer struct {
	events  []Event
	mask    uint32
	head    atomic.Uint32 // consumer-owned
	tail    atomic.Uint32 // producer-owned
	dropped atomic.Uint32
}

// New creates a Buffer with the given capacity, which must be a power of two.
func New(capacity int) (*Buffer, error) {
	if capacity <= 0 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("motorbuf: capacity %d is not a power of two", capacity)
	}
	return &Buffer{
		events: make([]Event, capacity),
		mask:   uint32(capacity - 1),
	}, nil
}

// TryPush appends an event. Returns false and counts a drop when the ring is
// full; the producer never blocks.
func (b *Buffer) TryPush(e Event) bool {
	tail := b.tail.Load()
	head := b.head.Load()
	if tail-head >= uint32(len(b.events)) {
		b.dropped.Add(1)
		return false
	}
	b.events[tail&b.mask] = e
	b.tail.Store(tail + 1)
	return true
}

// TryPop removes and returns the oldest event. The second return is false
// when the ring is empty. Must only be called by the consumer.
func (b *Buffer) TryPop() (Event, bool) {
	head := b.head.Load()
	if head == b.tail.Load() {
		return Event{}, false
	}
	e := b.events[head&b.mask]
	b.head.Store(head + 1)
	return e, true
}

// Len returns the number of pending events.
func (b *Buffer) Len() int {
	return int(b.tail.Load() - b.head.Load())
}

// Cap returns the ring capacity.
func (b *Buffer) Cap() int { return len(b.events) }

// Dropped returns the number of events rejected because the ring was full.
func (b *Buffer) Dropped() uint32 { return b.dropped.Load() }

// Clear discards all pending events. Consumer-side only.
func (b *Buffer) Clear() {
	for {
		if _, ok := b.TryPop(); !ok {
			return
		}
	}
}
