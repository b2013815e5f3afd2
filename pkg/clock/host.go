// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package clock

import "time"

// HostClock is a Clock backed by the host monotonic clock, zeroed at
// construction. Used by the host-side nodes and the bench tools.
type HostClock struct {
	start time.Time
}

// NewHostClock creates a HostClock starting at zero.
func NewHostClock() *HostClock {
	return &HostClock{start: time.Now()}
}

// NowMicros returns microseconds since construction.
func (h *HostClock) NowMicros() Micros {
	return Micros(time.Since(h.start).Microseconds())
}

// NowMillis returns milliseconds since construction.
func (h *HostClock) NowMillis() Millis {
	return Millis(time.Since(h.start).Milliseconds())
}
