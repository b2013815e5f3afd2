// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

// Package device composes the timing, wire, therapy and state components
// into one glove node driven by a single main loop.
package device

import (
	"errors"
	"fmt"
	"log"

	"github.com/glovetact/vcrsync/pkg/align"
	"github.com/glovetact/vcrsync/pkg/clock"
	"github.com/glovetact/vcrsync/pkg/dispatch"
	"github.com/glovetact/vcrsync/pkg/haptic"
	"github.com/glovetact/vcrsync/pkg/link"
	"github.com/glovetact/vcrsync/pkg/motorbuf"
	"github.com/glovetact/vcrsync/pkg/sched"
	"github.com/glovetact/vcrsync/pkg/state"
	"github.com/glovetact/vcrsync/pkg/store"
	"github.com/glovetact/vcrsync/pkg/syncwire"
	"github.com/glovetact/vcrsync/pkg/therapy"
)

const (
	// pingIntervalMs is the keepalive cadence on the primary.
	pingIntervalMs = 1000
	// pongTimeoutUs is how long an answered PING may take before it
	// counts as lost.
	pongTimeoutUs = 250_000
	// calBuzzDurationMs is the pulse length of a calibration buzz.
	calBuzzDurationMs = 200
)

// ErrWrongState is returned by operations not permitted in the current
// session state.
var ErrWrongState = errors.New("device: operation not valid in current state")

// Config assembles a Node from its collaborators. Link may be nil for an
// unpaired device; Seed pins the session RNG for reproduction and is
// normally zero.
type Config struct {
	Role          store.Role
	Clock         clock.Clock
	OneShotDriver sched.Driver
	Link          link.Link
	Haptic        haptic.Driver
	Store         store.ProfileStore
	Seed          int64
	OnFault       func(detail string)
}

// Node is one glove device. All methods are main-loop confined; Tick is the
// loop body.
type Node struct {
	role    store.Role
	clk     clock.Clock
	lnk     link.Link
	hap     haptic.Driver
	profs   store.ProfileStore
	seed    int64
	onFault func(string)

	buf      *motorbuf.Buffer
	oneshot  *sched.OneShot
	ms       *sched.Scheduler
	machine  *state.Machine
	deferred state.DeferredQueue
	aligner  *align.Aligner
	engine   *therapy.Engine
	exec     *dispatch.Executor
	disp     *dispatch.Dispatcher

	profile     therapy.Profile
	haveProfile bool

	pingOutstanding bool
	pingSentAt      clock.Micros
	lastSeen        clock.Micros

	lateDrops     uint32
	bufferDrops   uint32
	drainedQueued bool
	lastFault     string

	batteryMv func() uint16
}

// NewNode wires the components together. Construction cannot fail; Begin
// performs the fallible startup work.
func NewNode(cfg Config) *Node {
	n := &Node{
		role:      cfg.Role,
		clk:       cfg.Clock,
		lnk:       cfg.Link,
		hap:       cfg.Haptic,
		profs:     cfg.Store,
		seed:      cfg.Seed,
		onFault:   cfg.OnFault,
		machine:   state.NewMachine(),
		aligner:   align.NewAligner(),
		batteryMv: func() uint16 { return 3700 },
	}
	n.buf, _ = motorbuf.New(motorbuf.DefaultCapacity)
	n.oneshot = sched.NewOneShot(cfg.OneShotDriver)
	n.ms = sched.New(cfg.Clock)
	n.exec = dispatch.NewExecutor(n.buf, cfg.Link, n.aligner, cfg.Clock)
	n.disp = dispatch.NewDispatcher(n.buf, n.oneshot, n.ms, cfg.Haptic, cfg.Clock, n.onDispatchError)
	n.engine = therapy.NewEngine(n.emitEvent)
	n.engine.OnExpire(func() {
		n.enqueue(state.Action{Kind: state.EnterState, Trigger: state.Stop})
	})
	n.machine.Observe(n.onTransition)
	return n
}

// Begin attaches the link handler and starts the keepalive. Returns false
// if a collaborator refuses to start.
func (n *Node) Begin() bool {
	if n.hap != nil {
		for f := uint8(0); f < haptic.NumFingers; f++ {
			if !n.hap.Enabled(f) {
				n.lastFault = Errf(HardwareI2CError, "finger %d motor channel disabled", f).Error()
				return false
			}
		}
	}
	if n.profs != nil && n.profs.DebugMode() {
		n.disp.SetFireHook(func(finger, amplitude uint8, durationMs uint16) {
			log.Printf("[device] fire finger=%d amp=%d dur=%dms", finger, amplitude, durationMs)
		})
	}
	if n.lnk != nil {
		n.lnk.SetReceiveHandler(n.handleFrame)
		if n.role == store.RolePrimary {
			n.ms.Schedule(pingIntervalMs, n.keepaliveTick, nil)
		}
	}
	return true
}

// Tick runs one main-loop iteration: service the fired one-shot first, then
// the millisecond timers, the link, the engine, the dispatcher and finally
// the deferred actions.
func (n *Node) Tick() {
	n.disp.ServiceOneShot()
	n.ms.Tick()
	if n.lnk != nil {
		n.lnk.Pump()
	}
	n.checkPongTimeout()
	if n.role == store.RolePrimary {
		n.engine.Tick(n.clk.NowMicros())
	}
	draining := n.machine.Current() == state.Stopping
	n.disp.Tick(draining)
	if draining && n.disp.Idle() && !n.drainedQueued {
		n.drainedQueued = true
		n.enqueue(state.Action{Kind: state.EnterState, Trigger: state.Drained})
	}
	n.deferred.Drain(n.applyAction)
}

// ============================================================
// Engine plumbing
// ============================================================

func (n *Node) emitEvent(ev therapy.Event) {
	target := dispatch.TargetLocal
	if n.lnk != nil {
		target = dispatch.TargetBoth
	}
	n.exec.Play(ev, target)
}

// ============================================================
// State machine plumbing
// ============================================================

func (n *Node) onTransition(from, to state.State, trigger state.Trigger) {
	now := n.clk.NowMicros()
	switch to {
	case state.Running:
		if n.role != store.RolePrimary {
			return
		}
		if from == state.Paused {
			n.engine.Resume(now)
			return
		}
		if err := n.engine.Start(n.profile, now, n.seed); err != nil {
			n.enqueue(state.Action{Kind: state.NotifyFault, Detail: err.Error()})
			return
		}
		n.sendSimple(syncwire.TypeSessionStart)
	case state.Paused:
		n.engine.Pause(now)
	case state.Stopping:
		n.drainedQueued = false
		n.engine.Stop()
		if n.role == store.RolePrimary {
			n.sendSimple(syncwire.TypeSessionStop)
		}
	case state.Fault:
		n.faultActions()
	}
}

// faultActions is the emergency shutdown: no new events, all timers dead,
// all motors off, peer told to stop.
func (n *Node) faultActions() {
	n.engine.Stop()
	n.disp.CancelPending()
	n.ms.CancelAll()
	if n.hap != nil {
		n.hap.DeactivateAll()
	}
	n.sendSimple(syncwire.TypeExecuteStop)
	if n.onFault != nil {
		n.onFault(n.lastFault)
	}
}

func (n *Node) sendSimple(t syncwire.Type) {
	if n.lnk == nil {
		return
	}
	m := syncwire.New(t, n.exec.NextSeq(), n.clk.NowMicros())
	n.exec.Send(m)
}

func (n *Node) enqueue(a state.Action) {
	if !n.deferred.Enqueue(a) {
		n.raiseFault(Errf(DeferredOverflow, "queue full dropping %v", a.Kind))
	}
}

func (n *Node) applyAction(a state.Action) {
	switch a.Kind {
	case state.EnterState:
		if err := n.machine.Fire(a.Trigger); err != nil && !errors.Is(err, state.ErrNoTransition) {
			log.Printf("[device] deferred %s: %v", a.Trigger, err)
		}
	case state.ReloadProfile:
		if p, err := n.profs.Load(n.profile.ID); err == nil {
			n.profile = p
		}
	case state.NotifyFault:
		n.lastFault = a.Detail
		n.raiseFault(&Error{Kind: ConfigInvalid, Detail: a.Detail})
	case state.SendResponse:
		log.Printf("[device] %s", a.Detail)
	}
}

func (n *Node) raiseFault(e *Error) {
	n.lastFault = e.Error()
	log.Printf("[device] fault: %v", e)
	err := n.machine.Fire(state.FaultRaised)
	if errors.Is(err, state.ErrReentrantFire) {
		// Raised from inside an observer; commit directly.
		n.machine.ForceState(state.Fault)
		n.faultActions()
	}
}

func (n *Node) onDispatchError(err error) {
	if errors.Is(err, sched.ErrTimerArm) {
		n.raiseFault(Errf(TimerArmFailed, "%v", err))
		return
	}
	if errors.Is(err, haptic.ErrHardware) {
		n.raiseFault(Errf(HardwareI2CError, "%v", err))
		return
	}
	log.Printf("[device] dispatch: %v", err)
}

// ============================================================
// Wire handling
// ============================================================

func (n *Node) handleFrame(payload []byte) {
	if n.machine.Current() == state.Fault {
		return
	}
	m, err := syncwire.Decode(payload)
	n.exec.Stats().CountDecode(err)
	if err != nil {
		log.Printf("[device] %v", Errf(ParseError, "%v", err))
		return
	}
	n.lastSeen = n.clk.NowMicros()

	switch m.Type {
	case syncwire.TypePing:
		n.handlePing(m)
	case syncwire.TypePong:
		n.handlePong(m)
	case syncwire.TypeExecuteBuzz:
		n.handleExecuteBuzz(m)
	case syncwire.TypeExecuteStop:
		n.disp.CancelPending()
		if n.hap != nil {
			n.hap.DeactivateAll()
		}
	case syncwire.TypeSessionStart:
		n.enqueue(state.Action{Kind: state.EnterState, Trigger: state.ProfileLoaded})
		n.enqueue(state.Action{Kind: state.EnterState, Trigger: state.Start})
	case syncwire.TypeSessionStop:
		n.enqueue(state.Action{Kind: state.EnterState, Trigger: state.Stop})
	case syncwire.TypeAck:
		// lastSeen already refreshed
	}
}

func (n *Node) handlePing(m *syncwire.Message) {
	if n.lnk == nil {
		return
	}
	pong := syncwire.NewPong(n.exec.NextSeq(), n.clk.NowMicros(), m.Timestamp)
	n.exec.Send(pong)
}

func (n *Node) handlePong(m *syncwire.Message) {
	echo := m.GetUint(syncwire.KeyEcho, 0)
	if echo == 0 {
		return
	}
	t0 := clock.Micros(echo)
	t1 := m.Timestamp
	t2 := n.clk.NowMicros()
	n.aligner.AddSample(t0, t1, t2)
	if n.pingOutstanding && t0 == n.pingSentAt {
		n.pingOutstanding = false
	}
}

func (n *Node) handleExecuteBuzz(m *syncwire.Message) {
	cmd, err := m.BuzzCommand()
	if err != nil {
		log.Printf("[device] %v", Errf(ParseError, "execute_buzz: %v", err))
		return
	}
	// Translate the primary-clock deadline into local time.
	localFire := clock.Micros(int64(cmd.FireAt) + cmd.Offset)
	now := n.clk.NowMicros()
	if localFire < now {
		n.lateDrops++
		return
	}
	ok := n.buf.TryPush(motorbuf.Event{
		Finger:     cmd.Finger,
		Amplitude:  cmd.Amplitude,
		FireAt:     localFire,
		DurationMs: cmd.DurationMs,
	})
	if !ok {
		n.bufferDrops++
		log.Printf("[device] %v", Errf(BufferFull, "remote event finger %d", cmd.Finger))
	}
}

// ============================================================
// Keepalive
// ============================================================

// keepaliveTick sends the periodic PING and re-schedules itself. Offset
// sampling continues in every non-FAULT state so the estimate stays fresh
// through pauses.
func (n *Node) keepaliveTick(ctx any) {
	n.ms.Schedule(pingIntervalMs, n.keepaliveTick, nil)
	if n.machine.Current() == state.Fault || n.lnk == nil {
		return
	}
	if n.pingOutstanding {
		// Previous PING still unanswered at the next interval.
		n.aligner.PingLost()
		n.exec.Stats().PingLosses++
		n.pingOutstanding = false
	}
	now := n.clk.NowMicros()
	ping := syncwire.NewPing(n.exec.NextSeq(), now)
	if n.exec.Send(ping) == link.SendOk {
		n.pingOutstanding = true
		n.pingSentAt = now
	}
}

func (n *Node) checkPongTimeout() {
	if !n.pingOutstanding {
		return
	}
	if n.clk.NowMicros()-n.pingSentAt > pongTimeoutUs {
		log.Printf("[device] %v", Errf(TimeoutWaitingPong, "no pong in %dus", pongTimeoutUs))
		n.aligner.PingLost()
		n.exec.Stats().PingLosses++
		n.pingOutstanding = false
	}
}

// ============================================================
// Operator API, called by the console and the TUI
// ============================================================

// Role returns the device role.
func (n *Node) Role() store.Role { return n.role }

// State returns the committed session state.
func (n *Node) State() state.State { return n.machine.Current() }

// Profile returns the active profile.
func (n *Node) Profile() (therapy.Profile, bool) { return n.profile, n.haveProfile }

// Aligner exposes the clock alignment estimate for status surfaces.
func (n *Node) Aligner() *align.Aligner { return n.aligner }

// LoadProfile activates a stored profile.
func (n *Node) LoadProfile(id uint8) error {
	s := n.machine.Current()
	if s != state.Idle && s != state.Ready {
		return ErrWrongState
	}
	p, err := n.profs.Load(id)
	if err != nil {
		return err
	}
	n.profile = p
	n.haveProfile = true
	return n.machine.Fire(state.ProfileLoaded)
}

// SetCustomProfile activates an unsaved profile assembled on the console.
func (n *Node) SetCustomProfile(p therapy.Profile) error {
	s := n.machine.Current()
	if s != state.Idle && s != state.Ready {
		return ErrWrongState
	}
	if err := p.Validate(); err != nil {
		return err
	}
	n.profile = p
	n.haveProfile = true
	return n.machine.Fire(state.ProfileLoaded)
}

// StartSession begins therapy with the active profile.
func (n *Node) StartSession() error {
	if !n.haveProfile {
		return Errf(ConfigInvalid, "no profile loaded")
	}
	return n.machine.Fire(state.Start)
}

// PauseSession freezes the schedule.
func (n *Node) PauseSession() error { return n.machine.Fire(state.Pause) }

// ResumeSession continues a paused schedule.
func (n *Node) ResumeSession() error { return n.machine.Fire(state.Resume) }

// StopSession ends the session; queued events drain before the device
// returns to IDLE.
func (n *Node) StopSession() error { return n.machine.Fire(state.Stop) }

// SetParam changes one profile parameter. Allowed only while the session is
// paused or not running, so in-flight events never straddle two settings.
func (n *Node) SetParam(key, value string) error {
	s := n.machine.Current()
	if s != state.Idle && s != state.Ready && s != state.Paused {
		return ErrWrongState
	}
	p := n.profile
	if err := p.ApplyParam(key, value); err != nil {
		return err
	}
	n.profile = p
	if s == state.Paused {
		return n.engine.ApplyProfile(p)
	}
	return nil
}

// CalibrateStart enters calibration mode.
func (n *Node) CalibrateStart() error { return n.machine.Fire(state.CalStart) }

// CalibrateBuzz fires one immediate test pulse. Calibration mode only.
func (n *Node) CalibrateBuzz(finger, amplitude uint8) error {
	if n.machine.Current() != state.Calibrating {
		return ErrWrongState
	}
	if finger >= haptic.NumFingers {
		return Errf(ConfigInvalid, "finger %d out of range", finger)
	}
	ok := n.buf.TryPush(motorbuf.Event{
		Finger:     finger,
		Amplitude:  amplitude,
		FireAt:     n.clk.NowMicros(),
		DurationMs: calBuzzDurationMs,
	})
	if !ok {
		return Errf(BufferFull, "calibration buzz")
	}
	return nil
}

// CalibrateStop leaves calibration mode.
func (n *Node) CalibrateStop() error { return n.machine.Fire(state.CalStop) }

// Restart recovers from FAULT.
func (n *Node) Restart() error { return n.machine.Fire(state.Restart) }

// SetBatteryReader overrides the battery sampling hook.
func (n *Node) SetBatteryReader(fn func() uint16) { n.batteryMv = fn }

// BatteryMillivolts samples the battery rail.
func (n *Node) BatteryMillivolts() uint16 { return n.batteryMv() }

// Status summarizes the device for SESSION_STATUS and the monitor TUI.
type Status struct {
	Role          store.Role
	State         state.State
	ProfileID     uint8
	ProfileName   string
	EventsEmitted uint32
	Fired         uint32
	DroppedLocal  uint32
	DroppedRemote uint32
	Suppressed    uint32
	LateDrops     uint32
	OrderDrops    uint32
	BufferDrops   uint32
	OffsetMicros  int64
	OffsetLocked  bool
	PeerLost      bool
	Connected     bool
	LastFault     string
}

// Status gathers the counters.
func (n *Node) Status() Status {
	st := Status{
		Role:          n.role,
		State:         n.machine.Current(),
		EventsEmitted: n.engine.Context().EventsEmitted,
		Fired:         n.disp.Fired(),
		DroppedLocal:  n.exec.DroppedLocal(),
		DroppedRemote: n.exec.DroppedRemote(),
		Suppressed:    n.exec.Suppressed(),
		LateDrops:     n.lateDrops,
		OrderDrops:    n.disp.OrderDrops(),
		BufferDrops:   n.bufferDrops,
		OffsetMicros:  n.aligner.OffsetMicros(),
		OffsetLocked:  n.aligner.Locked(),
		PeerLost:      n.aligner.PeerLost(),
		LastFault:     n.lastFault,
	}
	if n.haveProfile {
		st.ProfileID = n.profile.ID
		st.ProfileName = n.profile.Name
	}
	if n.lnk != nil {
		st.Connected = n.lnk.Connected()
	}
	return st
}

// Info returns the one-line identity string for the INFO command.
func (n *Node) Info() string {
	return fmt.Sprintf("vcrsync %s state=%s", n.role, n.machine.Current())
}
