// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

// Package haptic abstracts the vibration motor array. The glove carries one
// eccentric-mass motor per finger, addressed 0 (thumb) through 4 (pinky).
package haptic

import (
	"errors"
	"log"

	"github.com/glovetact/vcrsync/pkg/clock"
)

// NumFingers is the number of motor channels per device.
const NumFingers = 5

// ErrHardware wraps motor driver failures (I2C NAK, mux fault). Repeated
// failures are escalated by the dispatcher.
var ErrHardware = errors.New("haptic: driver failure")

// Driver controls the motor array. Activate and Deactivate are called from
// the main loop and from the one-shot service path; implementations must be
// cheap and must not block.
type Driver interface {
	// Activate starts the motor at the given amplitude (0-255).
	Activate(finger uint8, amplitude uint8) error
	// Deactivate stops the motor.
	Deactivate(finger uint8) error
	// DeactivateAll stops every motor. Used on stop, fault and shutdown.
	DeactivateAll()
	// Enabled reports whether the finger's motor channel is usable.
	Enabled(finger uint8) bool
}

// Activation records one motor event for test inspection.
type Activation struct {
	Finger    uint8
	Amplitude uint8
	At        clock.Micros
}

// Recorder is a Driver test double that timestamps every call against a
// clock.
type Recorder struct {
	clk         clock.Clock
	activations []Activation
	stops       []Activation
	active      [NumFingers]bool
	disabled    [NumFingers]bool
	failErr     error
}

// NewRecorder returns a Recorder reading timestamps from clk.
func NewRecorder(clk clock.Clock) *Recorder {
	return &Recorder{clk: clk}
}

func (r *Recorder) Activate(finger uint8, amplitude uint8) error {
	if r.failErr != nil {
		return r.failErr
	}
	if finger >= NumFingers {
		return ErrHardware
	}
	r.active[finger] = true
	r.activations = append(r.activations, Activation{Finger: finger, Amplitude: amplitude, At: r.clk.NowMicros()})
	return nil
}

func (r *Recorder) Deactivate(finger uint8) error {
	if r.failErr != nil {
		return r.failErr
	}
	if finger >= NumFingers {
		return ErrHardware
	}
	r.active[finger] = false
	r.stops = append(r.stops, Activation{Finger: finger, At: r.clk.NowMicros()})
	return nil
}

func (r *Recorder) DeactivateAll() {
	for f := uint8(0); f < NumFingers; f++ {
		r.Deactivate(f)
	}
}

func (r *Recorder) Enabled(finger uint8) bool {
	return finger < NumFingers && !r.disabled[finger]
}

// FailWith makes subsequent Activate and Deactivate calls return err.
// Pass nil to restore normal operation. Test hook.
func (r *Recorder) FailWith(err error) { r.failErr = err }

// SetEnabled marks one motor channel usable or dead. Test hook.
func (r *Recorder) SetEnabled(finger uint8, up bool) {
	if finger < NumFingers {
		r.disabled[finger] = !up
	}
}

// Activations returns every recorded motor start in call order.
func (r *Recorder) Activations() []Activation { return r.activations }

// Stops returns every recorded motor stop in call order.
func (r *Recorder) Stops() []Activation { return r.stops }

// Active reports whether the finger's motor is currently on.
func (r *Recorder) Active(finger uint8) bool {
	if finger >= NumFingers {
		return false
	}
	return r.active[finger]
}

// Clear discards recorded history but keeps motor on/off state.
func (r *Recorder) Clear() {
	r.activations = nil
	r.stops = nil
}

// LogDriver prints motor activity to the process log. Used by the host-side
// simulator where no hardware is attached.
type LogDriver struct {
	clk clock.Clock
}

// NewLogDriver returns a LogDriver reading timestamps from clk.
func NewLogDriver(clk clock.Clock) *LogDriver {
	return &LogDriver{clk: clk}
}

func (d *LogDriver) Activate(finger uint8, amplitude uint8) error {
	log.Printf("[haptic] finger=%d amp=%d on t=%dus", finger, amplitude, d.clk.NowMicros())
	return nil
}

func (d *LogDriver) Deactivate(finger uint8) error {
	log.Printf("[haptic] finger=%d off t=%dus", finger, d.clk.NowMicros())
	return nil
}

func (d *LogDriver) DeactivateAll() {
	log.Printf("[haptic] all off t=%dus", d.clk.NowMicros())
}

func (d *LogDriver) Enabled(finger uint8) bool { return finger < NumFingers }
