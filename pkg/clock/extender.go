// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package clock

// Counter is a free-running 32-bit microsecond counter, typically backed by
// a hardware timer peripheral.
type Counter interface {
	Read() uint32
}

// Extender synthesizes a 64-bit microsecond clock from a 32-bit Counter by
// tracking rollovers on each read. The extension is updated lazily, so the
// counter must be read at least once per wrap interval (~71 minutes).
//
// Extender is not safe for concurrent use; reads are confined to the main
// loop and the interrupt path, which never preempt each other mid-read on
// the single-core targets this models. A reader that races a rollover sees
// a value at most one re-read stale, which callers tolerate.
type Extender struct {
	ctr  Counter
	last uint32
	high uint64 // multiple of 1<<32
}

// NewExtender creates an Extender over the given counter.
func NewExtender(c Counter) *Extender {
	return &Extender{ctr: c}
}

// NowMicros returns the extended 64-bit microsecond count.
func (e *Extender) NowMicros() Micros {
	v := e.ctr.Read()
	if v < e.last {
		e.high += 1 << 32
	}
	e.last = v
	return Micros(e.high | uint64(v))
}

// NowMillis returns the extended count truncated to milliseconds.
func (e *Extender) NowMillis() Millis {
	return Millis(uint64(e.NowMicros()) / 1000)
}
