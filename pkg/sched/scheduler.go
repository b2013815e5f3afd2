// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package sched

import (
	"errors"

	"github.com/glovetact/vcrsync/pkg/clock"
)

// TimerID identifies a scheduled callback slot.
type TimerID uint8

// InvalidID is returned by Schedule when no slot is free.
const InvalidID TimerID = 255

// MaxTimers is the number of fixed callback slots.
const MaxTimers = 12

// ErrTimerArm is reported when the one-shot driver rejects arming after a retry.
var ErrTimerArm = errors.New("sched: timer arm failed")

// Callback is a scheduled function. Callbacks run in main-loop context; they
// may re-schedule themselves or enqueue deferred work, but must not re-enter
// the state machine directly.
type Callback func(ctx any)

type slot struct {
	fireAt clock.Millis
	cb     Callback
	ctx    any
	active bool
}

// Scheduler is a fixed-slot table of delayed callbacks with millisecond
// resolution. All methods are main-loop confined.
type Scheduler struct {
	clk   clock.Clock
	slots [MaxTimers]slot
}

// New creates a Scheduler on the given clock.
func New(clk clock.Clock) *Scheduler {
	return &Scheduler{clk: clk}
}

// Schedule registers cb to fire after delayMs milliseconds. Returns
// InvalidID when all slots are busy.
func (s *Scheduler) Schedule(delayMs uint32, cb Callback, ctx any) TimerID {
	now := s.clk.NowMillis()
	for i := range s.slots {
		if s.slots[i].active {
			continue
		}
		s.slots[i] = slot{
			fireAt: now + clock.Millis(delayMs),
			cb:     cb,
			ctx:    ctx,
			active: true,
		}
		return TimerID(i)
	}
	return InvalidID
}

// Cancel deactivates a pending slot. Unknown or inactive IDs are ignored.
func (s *Scheduler) Cancel(id TimerID) {
	if int(id) < len(s.slots) {
		s.slots[id].active = false
	}
}

// CancelAll deactivates every slot.
func (s *Scheduler) CancelAll() {
	for i := range s.slots {
		s.slots[i].active = false
	}
}

// Tick fires every due callback. A slot is deactivated before its callback
// runs, so callbacks may re-schedule without leaking slots. Returns the
// number of callbacks fired.
func (s *Scheduler) Tick() int {
	now := s.clk.NowMillis()
	fired := 0
	for i := range s.slots {
		if !s.slots[i].active || !clock.MillisDue(now, s.slots[i].fireAt) {
			continue
		}
		cb, ctx := s.slots[i].cb, s.slots[i].ctx
		s.slots[i].active = false
		fired++
		cb(ctx)
	}
	return fired
}

// Pending returns the number of active slots.
func (s *Scheduler) Pending() int {
	n := 0
	for i := range s.slots {
		if s.slots[i].active {
			n++
		}
	}
	return n
}

// IsActive reports whether the given timer is still pending.
func (s *Scheduler) IsActive(id TimerID) bool {
	return int(id) < len(s.slots) && s.slots[id].active
}
