// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

// Package dispatch routes generated buzz events to the local motor array
// and to the peer device. The Executor fans an event out by target; the
// Dispatcher drains the motor-event buffer into the timers.
package dispatch

import (
	"log"

	"github.com/glovetact/vcrsync/pkg/align"
	"github.com/glovetact/vcrsync/pkg/clock"
	"github.com/glovetact/vcrsync/pkg/link"
	"github.com/glovetact/vcrsync/pkg/motorbuf"
	"github.com/glovetact/vcrsync/pkg/syncwire"
	"github.com/glovetact/vcrsync/pkg/therapy"
)

// Target selects which device(s) an event plays on.
type Target uint8

const (
	TargetLocal Target = iota
	TargetRemote
	TargetBoth
)

// unlockedLeadUs is the shortest remote deadline allowed before the clock
// alignment locks. 50ms comfortably exceeds worst-case transport latency.
const unlockedLeadUs = 50_000

// Executor fans buzz events out to the local buffer and the peer link. It
// owns the outgoing message sequence counter.
type Executor struct {
	buf     *motorbuf.Buffer
	lnk     link.Link
	clk     clock.Clock
	aligner *align.Aligner

	seq           uint32
	droppedLocal  uint32
	droppedRemote uint32
	suppressed    uint32
	stats         syncwire.Stats
}

// NewExecutor returns an Executor. lnk and aligner may be nil on a device
// without a peer; remote targets are then counted as dropped.
func NewExecutor(buf *motorbuf.Buffer, lnk link.Link, aligner *align.Aligner, clk clock.Clock) *Executor {
	return &Executor{buf: buf, lnk: lnk, clk: clk, aligner: aligner}
}

// NextSeq returns the next outgoing message sequence number.
func (x *Executor) NextSeq() uint32 {
	x.seq++
	return x.seq
}

// Play routes one event. Local pushes that find the buffer full are counted
// in DroppedLocal; remote sends that cannot be delivered are counted in
// DroppedRemote or Suppressed.
func (x *Executor) Play(ev therapy.Event, target Target) {
	if target == TargetLocal || target == TargetBoth {
		ok := x.buf.TryPush(motorbuf.Event{
			Finger:     ev.LocalFinger,
			Amplitude:  ev.Amplitude,
			FireAt:     ev.FireAt,
			DurationMs: ev.DurationMs,
		})
		if !ok {
			x.droppedLocal++
		}
	}
	if target == TargetRemote || target == TargetBoth {
		x.playRemote(ev)
	}
}

func (x *Executor) playRemote(ev therapy.Event) {
	if x.lnk == nil {
		x.droppedRemote++
		return
	}
	now := x.clk.NowMicros()

	if x.aligner != nil {
		if x.aligner.PeerLost() {
			x.suppressed++
			return
		}
		// Until the offset locks, only deadlines long enough to be
		// safe under an unknown offset may go out.
		if !x.aligner.Locked() && ev.FireAt < now+unlockedLeadUs {
			x.suppressed++
			return
		}
	}

	fireAt := ev.FireAt
	if earliest := now + therapy.MinLeadUs; fireAt < earliest {
		fireAt = earliest
	}
	var offset int64
	if x.aligner != nil {
		offset = x.aligner.OffsetMicros()
	}
	m := syncwire.NewExecuteBuzz(x.NextSeq(), now, ev.RemoteFinger, ev.Amplitude, fireAt, ev.DurationMs, offset)
	if x.Send(m) != link.SendOk {
		x.droppedRemote++
	}
}

// Send encodes and transmits one message, updating the wire statistics.
func (x *Executor) Send(m *syncwire.Message) link.SendResult {
	frame, err := syncwire.Encode(m)
	if err != nil {
		log.Printf("[dispatch] encode %s: %v", m.Type, err)
		return link.SendDisconnected
	}
	res := x.lnk.Send(frame)
	if res == link.SendOk {
		x.stats.Sent++
	}
	return res
}

// DroppedLocal returns events lost to a full local buffer.
func (x *Executor) DroppedLocal() uint32 { return x.droppedLocal }

// DroppedRemote returns events lost to a down or refusing link.
func (x *Executor) DroppedRemote() uint32 { return x.droppedRemote }

// Suppressed returns remote sends withheld while the alignment was not
// usable.
func (x *Executor) Suppressed() uint32 { return x.suppressed }

// Stats returns the wire counters.
func (x *Executor) Stats() *syncwire.Stats { return &x.stats }
