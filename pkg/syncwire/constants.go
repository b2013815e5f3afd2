// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

// Package syncwire implements the framed command protocol spoken between the
// two cooperating devices: ASCII payloads terminated by an EOT byte, carrying
// a type, sequence number, sender timestamp, and ordered key/value pairs.
package syncwire

// Framing and sizing.
const (
	// EOT terminates every message on the wire.
	EOT = 0x04

	// MaxPayloadSize is the largest accepted payload, excluding the EOT.
	MaxPayloadSize = 240

	// FieldSep separates the type, seq, ts and kv sections.
	FieldSep = ':'

	// PairSep separates keys and values inside the kv section.
	PairSep = '|'
)

// Type identifies a sync message.
type Type uint8

// Message types.
const (
	TypePing Type = iota
	TypePong
	TypeExecuteBuzz
	TypeExecuteStop
	TypeSessionStart
	TypeSessionStop
	TypeAck
)

var typeNames = map[Type]string{
	TypePing:         "PING",
	TypePong:         "PONG",
	TypeExecuteBuzz:  "EXECUTE_BUZZ",
	TypeExecuteStop:  "EXECUTE_STOP",
	TypeSessionStart: "SESSION_START",
	TypeSessionStop:  "SESSION_STOP",
	TypeAck:          "ACK",
}

var typesByName = func() map[string]Type {
	m := make(map[string]Type, len(typeNames))
	for t, n := range typeNames {
		m[n] = t
	}
	return m
}()

// String returns the wire name of the type.
func (t Type) String() string {
	if n, ok := typeNames[t]; ok {
		return n
	}
	return "UNKNOWN"
}

// ParseType maps a wire name back to its Type.
func ParseType(s string) (Type, bool) {
	t, ok := typesByName[s]
	return t, ok
}

// Well-known kv keys.
const (
	KeyEcho   = "echo"    // PONG: echoed originator timestamp
	KeyFinger = "finger"  // EXECUTE_BUZZ: finger index 0..4
	KeyAmp    = "amp"     // EXECUTE_BUZZ: amplitude 0..255
	KeyFireAt = "fire_at" // EXECUTE_BUZZ: deadline in sender-clock microseconds
	KeyDur    = "dur"     // EXECUTE_BUZZ: activation duration in ms
	KeyOffset = "off"     // EXECUTE_BUZZ: clock offset estimate in microseconds
	KeyAck    = "ack"     // ACK: acknowledged sequence number
)
