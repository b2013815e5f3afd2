// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

// Package clock provides the monotonic microsecond/millisecond time base
// shared by the scheduling and alignment layers.
package clock

// Micros is a monotonic microsecond count since boot. 64 bits wide, so wrap
// is not a practical concern.
type Micros uint64

// Millis is a monotonic millisecond count since boot. 32 bits wide; wrap is
// handled by unsigned-difference comparisons, never direct ordering.
type Millis uint32

// MillisElapsed returns the number of milliseconds between since and now,
// correct across uint32 wrap.
func MillisElapsed(now, since Millis) uint32 {
	return uint32(now - since)
}

// MillisDue reports whether a deadline at fireAt has been reached at now,
// correct across uint32 wrap.
func MillisDue(now, fireAt Millis) bool {
	return int32(now-fireAt) >= 0
}

// Clock is the monotonic time source consumed by the core. Implementations
// must be non-blocking and allocation-free.
type Clock interface {
	NowMicros() Micros
	NowMillis() Millis
}
