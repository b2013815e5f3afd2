// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package clock

// SimClock is a manually advanced Clock for deterministic tests and the
// bilateral simulator. Not safe for concurrent use.
type SimClock struct {
	now Micros
}

// NewSimClock creates a SimClock starting at the given microsecond count.
func NewSimClock(start Micros) *SimClock {
	return &SimClock{now: start}
}

// NowMicros returns the current simulated time.
func (s *SimClock) NowMicros() Micros { return s.now }

// NowMillis returns the current simulated time in milliseconds.
func (s *SimClock) NowMillis() Millis { return Millis(uint64(s.now) / 1000) }

// Advance moves the simulated clock forward by us microseconds.
func (s *SimClock) Advance(us uint64) { s.now += Micros(us) }

// AdvanceMillis moves the simulated clock forward by ms milliseconds.
func (s *SimClock) AdvanceMillis(ms uint32) { s.now += Micros(uint64(ms) * 1000) }
