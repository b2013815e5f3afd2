// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package therapy

import (
	"math"
	"math/rand"

	"github.com/glovetact/vcrsync/pkg/clock"
)

// MinLeadUs is the default lead given to remote events to cover transport
// latency.
const MinLeadUs = 8000

// Event is one generated buzz. LocalFinger and RemoteFinger differ only for
// the mirrored pattern.
type Event struct {
	LocalFinger  uint8
	RemoteFinger uint8
	Amplitude    uint8
	FireAt       clock.Micros
	DurationMs   uint16
}

// EmitFunc receives generated events. It is called from Tick on the main
// loop; the executor behind it pushes locally and transmits to the peer.
type EmitFunc func(Event)

// SessionContext is the bookkeeping for one session, exposed for status
// reporting.
type SessionContext struct {
	ProfileID     uint8
	StartedAt     clock.Micros
	PausedAccumUs uint64
	EventsEmitted uint32
	Seed          int64
}

// Engine owns the per-session tempo and pattern. All methods run on the
// main loop.
type Engine struct {
	emit      EmitFunc
	onExpire  func() // session_minutes reached
	profile   Profile
	ctx       SessionContext
	rng       *rand.Rand
	running     bool
	paused      bool
	pausedAt    clock.Micros
	expired     bool
	sessionEndF float64

	// Current period, precomputed at period start.
	periodStartF float64
	perm         []uint8
	fireTimes    []float64
	slotIdx      int
}

// NewEngine returns a stopped engine delivering events to emit.
func NewEngine(emit EmitFunc) *Engine {
	return &Engine{emit: emit}
}

// OnExpire registers a callback invoked once when the session reaches its
// configured length. The callback typically enqueues a STOP trigger.
func (e *Engine) OnExpire(fn func()) { e.onExpire = fn }

// Running reports whether a session is active (paused counts as active).
func (e *Engine) Running() bool { return e.running }

// Paused reports whether the active session is paused.
func (e *Engine) Paused() bool { return e.paused }

// Context returns a copy of the session bookkeeping.
func (e *Engine) Context() SessionContext { return e.ctx }

// Profile returns a copy of the profile the session runs with.
func (e *Engine) Profile() Profile { return e.profile }

// Start begins a session at now. seed fixes the random sequence; pass 0 to
// derive it from the session start time, which is the normal mode.
func (e *Engine) Start(p Profile, now clock.Micros, seed int64) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if seed == 0 {
		seed = int64(now)
	}
	e.profile = p
	e.ctx = SessionContext{ProfileID: p.ID, StartedAt: now, Seed: seed}
	e.rng = rand.New(rand.NewSource(seed))
	e.running = true
	e.paused = false
	e.expired = false
	e.periodStartF = float64(now)
	if p.SessionMinutes > 0 {
		e.sessionEndF = float64(now) + float64(p.SessionMinutes)*60e6
	} else {
		e.sessionEndF = 0
	}
	e.buildPeriod()
	return nil
}

// Stop ends the session. Events already emitted keep flowing through the
// dispatcher; the engine just stops producing.
func (e *Engine) Stop() {
	e.running = false
	e.paused = false
	e.perm = nil
	e.fireTimes = nil
}

// Pause freezes the schedule at now.
func (e *Engine) Pause(now clock.Micros) {
	if !e.running || e.paused {
		return
	}
	e.paused = true
	e.pausedAt = now
}

// Resume shifts the frozen schedule forward by the time spent paused, so
// the cadence continues as if no time had passed.
func (e *Engine) Resume(now clock.Micros) {
	if !e.running || !e.paused {
		return
	}
	gap := float64(now - e.pausedAt)
	e.ctx.PausedAccumUs += uint64(now - e.pausedAt)
	e.periodStartF += gap
	for i := range e.fireTimes {
		e.fireTimes[i] += gap
	}
	if e.sessionEndF != 0 {
		e.sessionEndF += gap
	}
	e.paused = false
}

// ApplyProfile swaps parameters mid-session. Callers gate this to the
// paused state; the next period picks up the new values.
func (e *Engine) ApplyProfile(p Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	e.profile = p
	return nil
}

// lookaheadUs returns how far ahead of now events are released. Far enough
// to absorb main-loop jitter, near enough that paused parameter changes do
// not race a long queue of in-flight events.
func (e *Engine) lookaheadUs() float64 {
	return MinLeadUs + e.profile.SlotDwellUs()/4
}

// Tick emits every event due within the lookahead window. Emission stops at
// the end of the current period; the next tick rolls the period over.
func (e *Engine) Tick(now clock.Micros) {
	if !e.running || e.paused {
		return
	}
	if e.sessionEndF != 0 && float64(now) >= e.sessionEndF && !e.expired {
		e.expired = true
		if e.onExpire != nil {
			e.onExpire()
		}
		return
	}
	if e.expired {
		return
	}

	if e.slotIdx == len(e.perm) {
		e.periodStartF += e.profile.PeriodUs()
		e.buildPeriod()
	}

	horizon := float64(now) + e.lookaheadUs()
	for e.slotIdx < len(e.perm) && e.fireTimes[e.slotIdx] <= horizon {
		k := e.slotIdx
		e.slotIdx++

		fire := clock.Micros(math.Round(e.fireTimes[k]))
		if fire < now {
			fire = now
		}
		local := e.perm[k]
		remote := local
		if e.profile.Pattern == Mirrored {
			remote = 4 - local
		}
		e.emit(Event{
			LocalFinger:  local,
			RemoteFinger: remote,
			Amplitude:    e.profile.Amplitude,
			FireAt:       fire,
			DurationMs:   e.profile.DurationMs,
		})
		e.ctx.EventsEmitted++
	}
}

// buildPeriod computes the finger order and fire times for the period
// starting at periodStartF.
func (e *Engine) buildPeriod() {
	fingers := e.profile.EnabledFingers()
	if e.profile.Pattern == RNDP {
		// Fisher-Yates over the enabled set.
		for i := len(fingers) - 1; i > 0; i-- {
			j := e.rng.Intn(i + 1)
			fingers[i], fingers[j] = fingers[j], fingers[i]
		}
	}
	e.perm = fingers
	e.slotIdx = 0

	dwell := e.profile.SlotDwellUs()
	durUs := float64(e.profile.DurationMs) * 1000
	jitterMax := float64(e.profile.JitterPct) / 100 * dwell

	e.fireTimes = e.fireTimes[:0]
	for k := range fingers {
		slotStart := e.periodStartF + float64(k)*dwell
		fire := slotStart
		if jitterMax > 0 {
			fire += (e.rng.Float64()*2 - 1) * jitterMax
		}
		// Keep the whole buzz inside its slot.
		if latest := slotStart + dwell - durUs; fire > latest {
			fire = latest
		}
		if fire < slotStart {
			fire = slotStart
		}
		e.fireTimes = append(e.fireTimes, fire)
	}
}
