// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

// Package sched provides the two deadline mechanisms of the execution
// pipeline: a microsecond one-shot timer for motor activation and a
// fixed-slot millisecond scheduler for deactivation and housekeeping.
package sched

import "sync/atomic"

// Driver arms the underlying one-shot timer peripheral. The fire callback
// runs in interrupt context and must do nothing beyond setting a flag.
type Driver interface {
	// Arm programs the timer to invoke fire once after delayUs microseconds,
	// replacing any previous arming. Returns false if programming failed.
	Arm(delayUs uint32, fire func()) bool
	// Cancel disarms the timer. Safe to call when not armed. Main-loop only;
	// the stop path of the modeled peripheral is not interrupt-safe.
	Cancel()
}

// MinDelayUs is the shortest honored arming delay; shorter requests are
// clamped to cover timer programming overhead.
const MinDelayUs = 50

// OneShot wraps a Driver with the flag-handoff discipline: the interrupt
// sets one atomic flag, and all real work (disarm, motor activation over
// I2C) happens later in ServicePending on the main loop.
type OneShot struct {
	drv     Driver
	pending atomic.Bool
	armed   bool

	// Activation parameters, pre-filled before arming so the interrupt path
	// never touches them.
	finger     uint8
	amplitude  uint8
	durationMs uint16
}

// NewOneShot creates a OneShot over the given driver.
func NewOneShot(d Driver) *OneShot {
	return &OneShot{drv: d}
}

// Arm schedules an activation of finger at amplitude after delayUs. Any
// previous arming is cancelled. Retries once on driver failure before
// reporting ErrTimerArm.
func (o *OneShot) Arm(delayUs uint32, finger, amplitude uint8, durationMs uint16) error {
	o.drv.Cancel()
	o.pending.Store(false)

	o.finger = finger
	o.amplitude = amplitude
	o.durationMs = durationMs

	if delayUs < MinDelayUs {
		delayUs = MinDelayUs
	}
	if !o.drv.Arm(delayUs, o.fire) {
		if !o.drv.Arm(delayUs, o.fire) {
			o.armed = false
			return ErrTimerArm
		}
	}
	o.armed = true
	return nil
}

// fire is the interrupt handler: set one flag and return.
func (o *OneShot) fire() {
	o.pending.Store(true)
}

// Cancel disarms the timer and clears any pending activation.
func (o *OneShot) Cancel() {
	o.drv.Cancel()
	o.pending.Store(false)
	o.armed = false
}

// Armed reports whether an activation is scheduled or pending service.
func (o *OneShot) Armed() bool {
	return o.armed
}

// ServicePending executes a fired activation in main-loop context. The timer
// is disarmed here, not in the interrupt. Returns whether work was done.
func (o *OneShot) ServicePending(activate func(finger, amplitude uint8, durationMs uint16)) bool {
	if !o.pending.Load() {
		return false
	}
	// Disarm first so a repeating peripheral cannot re-set the flag.
	o.drv.Cancel()
	o.pending.Store(false)
	o.armed = false

	activate(o.finger, o.amplitude, o.durationMs)
	return true
}
