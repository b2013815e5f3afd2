// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

// Package state implements the session lifecycle state machine and the
// deferred action queue that decouples observer work from transitions.
package state

import (
	"errors"
	"fmt"
)

// State is a session lifecycle state.
type State uint8

const (
	Idle State = iota
	Ready
	Running
	Paused
	Stopping
	Calibrating
	Fault
)

var stateNames = map[State]string{
	Idle:        "IDLE",
	Ready:       "READY",
	Running:     "RUNNING",
	Paused:      "PAUSED",
	Stopping:    "STOPPING",
	Calibrating: "CALIBRATING",
	Fault:       "FAULT",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return fmt.Sprintf("STATE(%d)", uint8(s))
}

// Trigger is an event that may cause a transition.
type Trigger uint8

const (
	ProfileLoaded Trigger = iota
	Start
	Pause
	Resume
	Stop
	Drained
	CalStart
	CalStop
	FaultRaised
	Restart
)

var triggerNames = map[Trigger]string{
	ProfileLoaded: "PROFILE_LOADED",
	Start:         "START",
	Pause:         "PAUSE",
	Resume:        "RESUME",
	Stop:          "STOP",
	Drained:       "DRAINED",
	CalStart:      "CAL_START",
	CalStop:       "CAL_STOP",
	FaultRaised:   "FAULT_RAISED",
	Restart:       "RESTART",
}

func (t Trigger) String() string {
	if n, ok := triggerNames[t]; ok {
		return n
	}
	return fmt.Sprintf("TRIGGER(%d)", uint8(t))
}

// ErrNoTransition is returned by Fire when the trigger is not valid in the
// current state.
var ErrNoTransition = errors.New("state: no transition")

// ErrReentrantFire is returned when Fire is called from inside an observer.
// Observers must enqueue follow-up work on the deferred queue instead.
var ErrReentrantFire = errors.New("state: reentrant fire")

// Observer is notified after a transition has been committed.
type Observer func(from, to State, trigger Trigger)

// Machine is a single-threaded state machine. All methods must be called
// from the main loop.
type Machine struct {
	current   State
	observers []Observer
	notifying bool
}

// NewMachine returns a Machine in Idle.
func NewMachine() *Machine {
	return &Machine{current: Idle}
}

// Current returns the committed state.
func (m *Machine) Current() State { return m.current }

// Observe registers an observer. Observers run in registration order after
// every committed transition.
func (m *Machine) Observe(o Observer) {
	m.observers = append(m.observers, o)
}

// nextState returns the target state for a trigger, or ok=false when the
// trigger is invalid in the given state.
func nextState(from State, t Trigger) (State, bool) {
	// FaultRaised is accepted from every state, including Fault itself.
	if t == FaultRaised {
		return Fault, true
	}

	switch from {
	case Idle:
		switch t {
		case ProfileLoaded:
			return Ready, true
		case CalStart:
			return Calibrating, true
		}
	case Ready:
		switch t {
		case Start:
			return Running, true
		case ProfileLoaded:
			return Ready, true
		case CalStart:
			return Calibrating, true
		}
	case Running:
		switch t {
		case Pause:
			return Paused, true
		case Stop:
			return Stopping, true
		}
	case Paused:
		switch t {
		case Resume:
			return Running, true
		case Stop:
			return Stopping, true
		}
	case Stopping:
		if t == Drained {
			return Idle, true
		}
	case Calibrating:
		if t == CalStop {
			return Idle, true
		}
	case Fault:
		if t == Restart {
			return Idle, true
		}
	}
	return from, false
}

// CanFire reports whether the trigger would cause a transition.
func (m *Machine) CanFire(t Trigger) bool {
	_, ok := nextState(m.current, t)
	return ok
}

// Fire applies a trigger. The state is committed before observers run, so
// an observer that reads Current sees the new state. Observers must not call
// Fire; follow-up transitions go through the deferred queue.
func (m *Machine) Fire(t Trigger) error {
	if m.notifying {
		return ErrReentrantFire
	}
	to, ok := nextState(m.current, t)
	if !ok {
		return fmt.Errorf("%w: %s in %s", ErrNoTransition, t, m.current)
	}
	from := m.current
	m.current = to

	m.notifying = true
	for _, o := range m.observers {
		o(from, to, t)
	}
	m.notifying = false
	return nil
}

// ForceState sets the state without consulting the transition table and
// without notifying observers. Used when restoring persisted state at boot.
func (m *Machine) ForceState(s State) {
	m.current = s
}
