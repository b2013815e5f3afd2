// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package syncwire

// Command builder functions create Message values ready for encoding.
// These are convenience wrappers that ensure correct key usage per the
// sync protocol.

import (
	"fmt"

	"github.com/glovetact/vcrsync/pkg/clock"
)

// NewPing creates a PING. PING carries no kv pairs; the timestamp field is
// the originator clock sample the peer echoes back.
func NewPing(seq uint32, ts clock.Micros) *Message {
	return New(TypePing, seq, ts)
}

// NewPong creates a PONG echoing the originator's timestamp in "echo".
// ts is the responder's own clock at send time.
func NewPong(seq uint32, ts clock.Micros, echo clock.Micros) *Message {
	m := New(TypePong, seq, ts)
	m.SetUint(KeyEcho, uint64(echo))
	return m
}

// NewExecuteBuzz creates an EXECUTE_BUZZ commanding the peer to fire finger
// at amplitude when its translated clock reaches fireAt (sender clock).
// offset is the sender's current clock-offset estimate, carried so the peer
// can translate fireAt without its own alignment exchange.
func NewExecuteBuzz(seq uint32, ts clock.Micros, finger, amplitude uint8, fireAt clock.Micros, durationMs uint16, offset int64) *Message {
	m := New(TypeExecuteBuzz, seq, ts)
	m.SetUint(KeyFinger, uint64(finger))
	m.SetUint(KeyAmp, uint64(amplitude))
	m.SetUint(KeyFireAt, uint64(fireAt))
	m.SetUint(KeyDur, uint64(durationMs))
	m.SetInt(KeyOffset, offset)
	return m
}

// NewExecuteStop creates an EXECUTE_STOP commanding the peer to deactivate
// all motors and discard pending activations.
func NewExecuteStop(seq uint32, ts clock.Micros) *Message {
	return New(TypeExecuteStop, seq, ts)
}

// NewSessionStart creates a SESSION_START.
func NewSessionStart(seq uint32, ts clock.Micros) *Message {
	return New(TypeSessionStart, seq, ts)
}

// NewSessionStop creates a SESSION_STOP.
func NewSessionStop(seq uint32, ts clock.Micros) *Message {
	return New(TypeSessionStop, seq, ts)
}

// NewAck creates an ACK for the given peer sequence number.
func NewAck(seq uint32, ts clock.Micros, ackSeq uint32) *Message {
	m := New(TypeAck, seq, ts)
	m.SetUint(KeyAck, uint64(ackSeq))
	return m
}

// BuzzCommand is the decoded payload of an EXECUTE_BUZZ.
type BuzzCommand struct {
	Finger     uint8
	Amplitude  uint8
	FireAt     clock.Micros // sender clock
	DurationMs uint16
	Offset     int64 // sender's offset estimate, peer-minus-sender
	HasOffset  bool
}

// BuzzCommand extracts and range-checks the EXECUTE_BUZZ payload.
func (m *Message) BuzzCommand() (BuzzCommand, error) {
	var c BuzzCommand
	if m.Type != TypeExecuteBuzz {
		return c, fmt.Errorf("%w: not EXECUTE_BUZZ", ErrParse)
	}
	finger := m.GetInt(KeyFinger, -1)
	if finger < 0 || finger > 4 {
		return c, fmt.Errorf("%w: finger %d", ErrParse, finger)
	}
	amp := m.GetInt(KeyAmp, -1)
	if amp < 0 || amp > 255 {
		return c, fmt.Errorf("%w: amp %d", ErrParse, amp)
	}
	if !m.Has(KeyFireAt) {
		return c, fmt.Errorf("%w: missing fire_at", ErrParse)
	}
	dur := m.GetInt(KeyDur, -1)
	if dur < 0 || dur > 0xFFFF {
		return c, fmt.Errorf("%w: dur %d", ErrParse, dur)
	}

	c.Finger = uint8(finger)
	c.Amplitude = uint8(amp)
	c.FireAt = clock.Micros(m.GetUint(KeyFireAt, 0))
	c.DurationMs = uint16(dur)
	if m.Has(KeyOffset) {
		c.Offset = m.GetInt(KeyOffset, 0)
		c.HasOffset = true
	}
	return c, nil
}
