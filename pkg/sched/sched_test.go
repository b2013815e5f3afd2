// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package sched

import (
	"testing"

	"github.com/glovetact/vcrsync/pkg/clock"
)

func TestScheduler_FiresDueCallbacks(t *testing.T) {
	clk := clock.NewSimClock(0)
	s := New(clk)

	var fired []int
	id := s.Schedule(100, func(ctx any) { fired = append(fired, ctx.(int)) }, 1)
	if id == InvalidID {
		t.Fatal("Schedule returned InvalidID")
	}

	s.Tick()
	if len(fired) != 0 {
		t.Fatal("callback fired early")
	}

	clk.AdvanceMillis(99)
	s.Tick()
	if len(fired) != 0 {
		t.Fatal("callback fired at 99ms")
	}

	clk.AdvanceMillis(1)
	if n := s.Tick(); n != 1 {
		t.Fatalf("Tick() = %d, want 1", n)
	}
	if len(fired) != 1 || fired[0] != 1 {
		t.Fatalf("fired = %v", fired)
	}
	if s.IsActive(id) {
		t.Error("slot still active after firing")
	}
}

func TestScheduler_FullReturnsInvalidID(t *testing.T) {
	s := New(clock.NewSimClock(0))
	for i := 0; i < MaxTimers; i++ {
		if s.Schedule(10, func(any) {}, nil) == InvalidID {
			t.Fatalf("slot %d unexpectedly full", i)
		}
	}
	if s.Schedule(10, func(any) {}, nil) != InvalidID {
		t.Error("expected InvalidID when table is full")
	}
	if s.Pending() != MaxTimers {
		t.Errorf("Pending() = %d, want %d", s.Pending(), MaxTimers)
	}
}

func TestScheduler_Cancel(t *testing.T) {
	clk := clock.NewSimClock(0)
	s := New(clk)

	fired := false
	id := s.Schedule(10, func(any) { fired = true }, nil)
	s.Cancel(id)

	clk.AdvanceMillis(20)
	s.Tick()
	if fired {
		t.Error("cancelled callback fired")
	}
}

func TestScheduler_CallbackMayReschedule(t *testing.T) {
	clk := clock.NewSimClock(0)
	s := New(clk)

	count := 0
	var cb Callback
	cb = func(ctx any) {
		count++
		if count < 3 {
			if s.Schedule(10, cb, nil) == InvalidID {
				t.Error("reschedule from callback failed")
			}
		}
	}
	s.Schedule(10, cb, nil)

	for i := 0; i < 5; i++ {
		clk.AdvanceMillis(10)
		s.Tick()
	}
	if count != 3 {
		t.Errorf("count = %d, want 3", count)
	}
	if s.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0 (slot leak)", s.Pending())
	}
}

func TestOneShot_FlagHandoff(t *testing.T) {
	clk := clock.NewSimClock(0)
	drv := NewSimDriver(clk)
	os := NewOneShot(drv)

	if err := os.Arm(500, 2, 180, 100); err != nil {
		t.Fatal(err)
	}
	if !os.Armed() {
		t.Fatal("not armed")
	}

	// Not due yet.
	clk.Advance(400)
	drv.Poll()
	if os.ServicePending(func(f, a uint8, d uint16) { t.Error("fired early") }) {
		t.Error("serviced early")
	}

	clk.Advance(100)
	drv.Poll()
	var gotF, gotA uint8
	var gotD uint16
	if !os.ServicePending(func(f, a uint8, d uint16) { gotF, gotA, gotD = f, a, d }) {
		t.Fatal("pending activation not serviced")
	}
	if gotF != 2 || gotA != 180 || gotD != 100 {
		t.Errorf("activation = (%d, %d, %d), want (2, 180, 100)", gotF, gotA, gotD)
	}
	if os.Armed() {
		t.Error("still armed after service")
	}
}

func TestOneShot_MinDelayClamp(t *testing.T) {
	clk := clock.NewSimClock(0)
	drv := NewSimDriver(clk)
	os := NewOneShot(drv)

	if err := os.Arm(5, 0, 100, 50); err != nil {
		t.Fatal(err)
	}
	clk.Advance(10)
	drv.Poll()
	if os.ServicePending(func(uint8, uint8, uint16) {}) {
		t.Error("fired before the 50us clamp")
	}
	clk.Advance(40)
	drv.Poll()
	if !os.ServicePending(func(uint8, uint8, uint16) {}) {
		t.Error("did not fire at the clamped deadline")
	}
}

func TestOneShot_RearmCancelsPrevious(t *testing.T) {
	clk := clock.NewSimClock(0)
	drv := NewSimDriver(clk)
	os := NewOneShot(drv)

	os.Arm(100, 1, 10, 10)
	os.Arm(1000, 4, 20, 20) // replaces the first arming

	clk.Advance(500)
	drv.Poll()
	if os.ServicePending(func(uint8, uint8, uint16) {}) {
		t.Fatal("replaced arming fired")
	}

	clk.Advance(500)
	drv.Poll()
	var finger uint8
	os.ServicePending(func(f, a uint8, d uint16) { finger = f })
	if finger != 4 {
		t.Errorf("finger = %d, want 4", finger)
	}
}

func TestOneShot_ArmFailure(t *testing.T) {
	clk := clock.NewSimClock(0)
	drv := NewSimDriver(clk)
	drv.FailNextArm(true)
	os := NewOneShot(drv)

	if err := os.Arm(100, 0, 0, 0); err != ErrTimerArm {
		t.Errorf("err = %v, want ErrTimerArm", err)
	}
	if os.Armed() {
		t.Error("armed after failure")
	}
}

func TestOneShot_Cancel(t *testing.T) {
	clk := clock.NewSimClock(0)
	drv := NewSimDriver(clk)
	os := NewOneShot(drv)

	os.Arm(100, 1, 10, 10)
	os.Cancel()
	clk.Advance(200)
	drv.Poll()
	if os.ServicePending(func(uint8, uint8, uint16) {}) {
		t.Error("cancelled activation fired")
	}
}
