// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package state

// ActionKind identifies a deferred action.
type ActionKind uint8

const (
	// EnterState fires a trigger on the machine.
	EnterState ActionKind = iota
	// SendResponse emits a queued reply on the console or link.
	SendResponse
	// ReloadProfile re-reads the active profile from storage.
	ReloadProfile
	// NotifyFault surfaces a fault to the operator surface.
	NotifyFault
)

// Action is a unit of work postponed until the end of the current tick.
// Observers enqueue actions instead of doing work that would re-enter the
// machine mid-transition.
type Action struct {
	Kind    ActionKind
	Trigger Trigger // EnterState
	Detail  string  // SendResponse, NotifyFault
}

// deferredCap bounds the queue. Overflow is a fault condition, not a
// backpressure mechanism; see Node's DEFERRED_OVERFLOW handling.
const deferredCap = 16

// DeferredQueue is a fixed-capacity FIFO of Actions drained once per main
// loop tick.
type DeferredQueue struct {
	items [deferredCap]Action
	head  int
	count int
}

// Enqueue appends an action. It returns false when the queue is full; the
// action is discarded.
func (q *DeferredQueue) Enqueue(a Action) bool {
	if q.count == deferredCap {
		return false
	}
	q.items[(q.head+q.count)%deferredCap] = a
	q.count++
	return true
}

// Len returns the number of queued actions.
func (q *DeferredQueue) Len() int { return q.count }

// Drain invokes apply for every queued action in FIFO order. Actions
// enqueued by apply itself are drained in the same call, so a transition
// chain settles within one tick.
func (q *DeferredQueue) Drain(apply func(Action)) {
	for q.count > 0 {
		a := q.items[q.head]
		q.head = (q.head + 1) % deferredCap
		q.count--
		apply(a)
	}
}

// Clear discards all queued actions.
func (q *DeferredQueue) Clear() {
	q.head = 0
	q.count = 0
}
