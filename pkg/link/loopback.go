// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package link

import (
	"github.com/glovetact/vcrsync/pkg/clock"
	"github.com/glovetact/vcrsync/pkg/syncwire"
)

type loopbackFrame struct {
	deliverAt clock.Micros
	payload   []byte
}

// Loopback is an in-process Link joined to a peer Loopback, with a
// configurable one-way delay measured on a shared clock. It drives the
// bilateral simulator and the package tests.
type Loopback struct {
	clk     clock.Clock
	delayUs uint32
	peer    *Loopback

	handler   ReceiveHandler
	framer    syncwire.Framer
	pending   []loopbackFrame
	connected bool
	loseNext  int
}

// NewLoopbackPair returns two joined loopback links sharing clk, each
// delivering frames to the other after delayUs.
func NewLoopbackPair(clk clock.Clock, delayUs uint32) (*Loopback, *Loopback) {
	a := &Loopback{clk: clk, delayUs: delayUs, connected: true}
	b := &Loopback{clk: clk, delayUs: delayUs, connected: true}
	a.peer = b
	b.peer = a
	return a, b
}

func (l *Loopback) Send(frame []byte) SendResult {
	if !l.connected || !l.peer.connected {
		return SendDisconnected
	}
	if l.loseNext > 0 {
		l.loseNext--
		return SendOk // lost in flight, sender none the wiser
	}
	buf := make([]byte, len(frame))
	copy(buf, frame)
	l.peer.pending = append(l.peer.pending, loopbackFrame{
		deliverAt: l.clk.NowMicros() + clock.Micros(l.delayUs),
		payload:   buf,
	})
	return SendOk
}

func (l *Loopback) SetReceiveHandler(h ReceiveHandler) { l.handler = h }

// Pump delivers every frame whose delay has elapsed.
func (l *Loopback) Pump() {
	now := l.clk.NowMicros()
	i := 0
	for ; i < len(l.pending); i++ {
		f := l.pending[i]
		if f.deliverAt > now {
			break
		}
		if l.handler != nil && l.connected {
			for _, payload := range l.framer.Push(f.payload) {
				l.handler(payload)
			}
		}
	}
	l.pending = l.pending[i:]
}

func (l *Loopback) Connected() bool { return l.connected && l.peer.connected }

// SetConnected simulates link loss and recovery.
func (l *Loopback) SetConnected(up bool) { l.connected = up }

// LoseNext silently drops the next n outgoing frames while still reporting
// SendOk, simulating radio loss.
func (l *Loopback) LoseNext(n int) { l.loseNext = n }

func (l *Loopback) Close() error {
	l.connected = false
	l.pending = nil
	return nil
}
