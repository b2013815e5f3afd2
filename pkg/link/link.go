// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

// Package link carries framed sync messages between the paired devices.
// Implementations own framing, reconnection and MTU concerns; the node sees
// complete payloads, delivered one per handler call on the main loop.
package link

// SendResult reports the outcome of a Send.
type SendResult uint8

const (
	// SendOk means the frame was accepted for transmission.
	SendOk SendResult = iota
	// SendBackpressure means the transmit queue is full; the caller may
	// retry on a later tick.
	SendBackpressure
	// SendDisconnected means no peer is reachable; the frame was dropped.
	SendDisconnected
)

func (r SendResult) String() string {
	switch r {
	case SendOk:
		return "ok"
	case SendBackpressure:
		return "backpressure"
	case SendDisconnected:
		return "disconnected"
	}
	return "unknown"
}

// ReceiveHandler is invoked once per complete EOT-framed message. The EOT
// terminator is stripped. Handlers run inside Pump, on the main loop.
type ReceiveHandler func(payload []byte)

// Link is a bidirectional frame transport to the peer device.
type Link interface {
	// Send queues one complete frame, including its EOT terminator.
	Send(frame []byte) SendResult
	// SetReceiveHandler registers the receive callback. Must be called
	// before the first Pump.
	SetReceiveHandler(h ReceiveHandler)
	// Pump delivers pending received payloads to the handler. Called
	// once per main-loop tick.
	Pump()
	// Connected reports whether a peer is currently reachable.
	Connected() bool
	// Close tears the transport down.
	Close() error
}
