// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package sched

import (
	"sync"
	"time"

	"github.com/glovetact/vcrsync/pkg/clock"
)

// SimDriver is a Driver for tests and the bilateral simulator: the fire
// callback runs when Poll observes that the SimClock has passed the armed
// deadline. Poll must be called after each clock advance, before the
// one-shot is serviced.
type SimDriver struct {
	clk      *clock.SimClock
	deadline clock.Micros
	fire     func()
	armed    bool
	failArm  bool // test hook
}

// NewSimDriver creates a SimDriver on the given simulated clock.
func NewSimDriver(clk *clock.SimClock) *SimDriver {
	return &SimDriver{clk: clk}
}

// Arm programs the simulated deadline.
func (d *SimDriver) Arm(delayUs uint32, fire func()) bool {
	if d.failArm {
		return false
	}
	d.deadline = d.clk.NowMicros() + clock.Micros(delayUs)
	d.fire = fire
	d.armed = true
	return true
}

// Cancel disarms the simulated timer.
func (d *SimDriver) Cancel() {
	d.armed = false
}

// Poll fires the callback if the deadline has passed.
func (d *SimDriver) Poll() {
	if d.armed && d.clk.NowMicros() >= d.deadline {
		d.armed = false
		d.fire()
	}
}

// FailNextArm makes subsequent Arm calls fail until cleared. Test hook.
func (d *SimDriver) FailNextArm(fail bool) { d.failArm = fail }

// HostDriver is a Driver backed by the host timer wheel. The fire callback
// runs on a runtime timer goroutine and therefore must only set the
// one-shot's atomic flag, which is exactly what OneShot hands it.
type HostDriver struct {
	mu    sync.Mutex
	timer *time.Timer
}

// NewHostDriver creates a HostDriver.
func NewHostDriver() *HostDriver {
	return &HostDriver{}
}

// Arm schedules fire after delayUs on the host timer wheel.
func (d *HostDriver) Arm(delayUs uint32, fire func()) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(time.Duration(delayUs)*time.Microsecond, fire)
	return true
}

// Cancel stops any pending host timer.
func (d *HostDriver) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
