// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package dispatch

import (
	"fmt"

	"github.com/glovetact/vcrsync/pkg/clock"
	"github.com/glovetact/vcrsync/pkg/haptic"
	"github.com/glovetact/vcrsync/pkg/motorbuf"
	"github.com/glovetact/vcrsync/pkg/sched"
)

const (
	// minDispatchUs is the dispatch granularity. Events due within twice
	// this window fire immediately instead of going through the one-shot
	// timer, whose arm latency would make them late.
	minDispatchUs = 150

	// drainCutoffUs bounds how far in the future a queued event may be
	// while draining after STOP. Anything beyond is discarded.
	drainCutoffUs = 500_000

	// maxDriverErrs is the consecutive haptic driver failure count that
	// escalates to onError. One NAK on a shared I2C bus is survivable;
	// a streak means the motor controller is gone.
	maxDriverErrs = 3
)

// Dispatcher moves events from the motor buffer into the microsecond
// one-shot (fire) and the millisecond scheduler (motor off). Main-loop
// confined, except for the one-shot ISR flag it services.
type Dispatcher struct {
	buf     *motorbuf.Buffer
	oneshot *sched.OneShot
	ms      *sched.Scheduler
	hap     haptic.Driver
	clk     clock.Clock
	onError func(error)
	onFire  func(finger, amplitude uint8, durationMs uint16)

	lastFireAt  [haptic.NumFingers]clock.Micros
	hasFired    [haptic.NumFingers]bool
	orderDrops  uint32
	cutoffDrops uint32
	fired       uint32
	driverErrs  uint32 // consecutive haptic driver failures
}

// NewDispatcher wires the dispatcher. onError receives timer arm failures;
// it may be nil.
func NewDispatcher(buf *motorbuf.Buffer, oneshot *sched.OneShot, ms *sched.Scheduler, hap haptic.Driver, clk clock.Clock, onError func(error)) *Dispatcher {
	return &Dispatcher{buf: buf, oneshot: oneshot, ms: ms, hap: hap, clk: clk, onError: onError}
}

// SetFireHook installs a callback invoked on every motor activation. Used
// for debug-mode fire tracing; may be nil.
func (d *Dispatcher) SetFireHook(fn func(finger, amplitude uint8, durationMs uint16)) {
	d.onFire = fn
}

// ServiceOneShot activates the motor for a fired one-shot, if its ISR flag
// is set. Must run first in every main-loop iteration so the latency
// between ISR and activation stays bounded.
func (d *Dispatcher) ServiceOneShot() bool {
	return d.oneshot.ServicePending(d.activate)
}

// Tick pops due work from the buffer. The single one-shot can hold only one
// armed event, so popping stops as soon as an event has been armed. With
// draining set, events past the cutoff are discarded instead of armed.
func (d *Dispatcher) Tick(draining bool) {
	for !d.oneshot.Armed() {
		ev, ok := d.buf.TryPop()
		if !ok {
			return
		}
		now := d.clk.NowMicros()

		if draining && ev.FireAt > now+drainCutoffUs {
			d.cutoffDrops++
			continue
		}
		// Per-finger monotonicity: never fire behind an already fired
		// event on the same motor.
		if d.hasFired[ev.Finger] && ev.FireAt < d.lastFireAt[ev.Finger] {
			d.orderDrops++
			continue
		}

		if ev.FireAt <= now+2*minDispatchUs {
			d.fireNow(ev)
			continue
		}
		if err := d.oneshot.Arm(uint32(ev.FireAt-now), ev.Finger, ev.Amplitude, ev.DurationMs); err != nil {
			if d.onError != nil {
				d.onError(err)
			}
			return
		}
		d.markFired(ev.Finger, ev.FireAt)
	}
}

// Idle reports whether nothing is buffered or armed. The STOPPING state
// drains until Idle.
func (d *Dispatcher) Idle() bool {
	return d.buf.Len() == 0 && !d.oneshot.Armed()
}

// CancelPending discards the armed event and everything buffered. Motors
// already on are shut off by their scheduled off callbacks.
func (d *Dispatcher) CancelPending() {
	d.oneshot.Cancel()
	d.buf.Clear()
}

// OrderDrops returns events discarded for violating per-finger ordering.
func (d *Dispatcher) OrderDrops() uint32 { return d.orderDrops }

// CutoffDrops returns events discarded past the drain cutoff.
func (d *Dispatcher) CutoffDrops() uint32 { return d.cutoffDrops }

// Fired returns the number of motor activations performed.
func (d *Dispatcher) Fired() uint32 { return d.fired }

func (d *Dispatcher) fireNow(ev motorbuf.Event) {
	d.markFired(ev.Finger, ev.FireAt)
	d.activate(ev.Finger, ev.Amplitude, ev.DurationMs)
}

// activate turns the motor on and schedules its off callback. Consecutive
// driver failures escalate through onError once they pass maxDriverErrs.
func (d *Dispatcher) activate(finger, amplitude uint8, durationMs uint16) {
	if err := d.hap.Activate(finger, amplitude); err != nil {
		d.noteDriverErr(err)
		return
	}
	d.driverErrs = 0
	d.fired++
	if d.onFire != nil {
		d.onFire(finger, amplitude, durationMs)
	}
	id := d.ms.Schedule(uint32(durationMs), func(ctx any) {
		if err := d.hap.Deactivate(ctx.(uint8)); err != nil {
			d.noteDriverErr(err)
		}
	}, finger)
	if id == sched.InvalidID && d.onError != nil {
		d.onError(sched.ErrTimerArm)
	}
}

func (d *Dispatcher) noteDriverErr(err error) {
	d.driverErrs++
	if d.driverErrs >= maxDriverErrs && d.onError != nil {
		d.onError(fmt.Errorf("%w (%d consecutive): %v", haptic.ErrHardware, d.driverErrs, err))
	}
}

func (d *Dispatcher) markFired(finger uint8, at clock.Micros) {
	if finger >= haptic.NumFingers {
		return
	}
	d.lastFireAt[finger] = at
	d.hasFired[finger] = true
}
