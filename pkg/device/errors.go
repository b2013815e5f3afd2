// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package device

import "fmt"

// Kind classifies a device error for counters, logs and the ERR console
// responses.
type Kind uint8

const (
	ConfigInvalid Kind = iota
	BufferFull
	TransportDisconnected
	ParseError
	TimeoutWaitingPong
	TimerArmFailed
	DeferredOverflow
	StorageIOError
	HardwareI2CError
)

var kindNames = map[Kind]string{
	ConfigInvalid:         "CONFIG_INVALID",
	BufferFull:            "BUFFER_FULL",
	TransportDisconnected: "TRANSPORT_DISCONNECTED",
	ParseError:            "PARSE_ERROR",
	TimeoutWaitingPong:    "TIMEOUT_WAITING_PONG",
	TimerArmFailed:        "TIMER_ARM_FAILED",
	DeferredOverflow:      "DEFERRED_OVERFLOW",
	StorageIOError:        "STORAGE_IO_ERROR",
	HardwareI2CError:      "HARDWARE_I2C_ERROR",
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("KIND(%d)", uint8(k))
}

// Fatal reports whether this kind must move the device to FAULT rather than
// being counted and carried on.
func (k Kind) Fatal() bool {
	switch k {
	case DeferredOverflow, TimerArmFailed, HardwareI2CError:
		return true
	}
	return false
}

// Error is a classified device error with a short detail string.
type Error struct {
	Kind   Kind
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

// Errf builds an Error with a formatted detail.
func Errf(k Kind, format string, args ...any) *Error {
	return &Error{Kind: k, Detail: fmt.Sprintf(format, args...)}
}
