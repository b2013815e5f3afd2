// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

// Package align estimates the clock offset between the paired devices from
// PING/PONG exchanges. The PRIMARY timestamps a PING at t0, the SECONDARY
// answers with its own clock reading t1, and the PRIMARY receives the PONG
// at t2. Assuming a symmetric path, offset = t1 - (t0 + rtt/2), expressed
// as SECONDARY-minus-PRIMARY microseconds.
package align

import (
	"sync/atomic"

	"github.com/glovetact/vcrsync/pkg/clock"
)

const (
	// rttWindowSize is the number of recent round trips kept for the
	// median gate.
	rttWindowSize = 8

	// rttRejectFactor rejects a sample whose RTT exceeds this multiple
	// of the window median. Retries and radio stalls produce RTTs far
	// outside the normal band and would otherwise skew the estimate.
	rttRejectFactor = 3

	// emaShift gives the exponential moving average weight 1/8.
	emaShift = 3

	// lockThreshold is the number of accepted samples before the
	// estimate is considered usable.
	lockThreshold = 3

	// lossThreshold is the number of consecutive unanswered PINGs that
	// marks the peer as lost.
	lossThreshold = 3
)

// Aligner maintains a smoothed clock offset estimate. AddSample and PingLost
// are called from the main loop; OffsetMicros and Locked may be read from
// any goroutine.
type Aligner struct {
	offset atomic.Int64 // smoothed offset estimate, us
	locked atomic.Bool

	rtts     [rttWindowSize]uint64
	rttCount int
	rttNext  int

	accepted   uint32
	rejected   uint32
	lostPings  uint32
	peerLost   bool
	everLocked bool
}

// NewAligner returns an Aligner with no estimate.
func NewAligner() *Aligner {
	return &Aligner{}
}

// AddSample folds one PING/PONG exchange into the estimate. t0 is the local
// send time, t1 the peer timestamp from the PONG, t2 the local receive time.
// It returns false if the sample was rejected by the RTT gate.
func (a *Aligner) AddSample(t0, t1, t2 clock.Micros) bool {
	a.lostPings = 0
	a.peerLost = false

	if t2 < t0 {
		a.rejected++
		return false
	}
	rtt := uint64(t2 - t0)

	if a.rttCount == rttWindowSize {
		med := a.medianRTT()
		if med > 0 && rtt > med*rttRejectFactor {
			a.rejected++
			a.recordRTT(rtt)
			return false
		}
	}
	a.recordRTT(rtt)

	// Midpoint correction assumes the PONG spends rtt/2 in flight.
	sample := int64(t1) - int64(t0) - int64(rtt/2)

	if a.accepted == 0 {
		a.offset.Store(sample)
	} else {
		ema := a.offset.Load()
		ema += (sample - ema) >> emaShift
		a.offset.Store(ema)
	}
	a.accepted++

	if a.accepted >= lockThreshold {
		a.locked.Store(true)
		a.everLocked = true
	}
	return true
}

// PingLost records an unanswered PING. After lossThreshold consecutive
// losses the estimate unlocks and the peer is reported lost until the next
// accepted sample.
func (a *Aligner) PingLost() {
	a.lostPings++
	if a.lostPings >= lossThreshold {
		a.peerLost = true
		a.locked.Store(false)
		a.accepted = 0
	}
}

// OffsetMicros returns the current estimate as SECONDARY-minus-PRIMARY
// microseconds. Valid only while Locked reports true.
func (a *Aligner) OffsetMicros() int64 { return a.offset.Load() }

// Locked reports whether enough samples have been accepted for the offset
// to be trusted.
func (a *Aligner) Locked() bool { return a.locked.Load() }

// PeerLost reports whether the peer has missed lossThreshold consecutive
// PINGs and has not answered since.
func (a *Aligner) PeerLost() bool { return a.peerLost }

// Accepted returns the number of samples folded into the estimate since the
// last reset.
func (a *Aligner) Accepted() uint32 { return a.accepted }

// Rejected returns the number of samples discarded by the RTT gate.
func (a *Aligner) Rejected() uint32 { return a.rejected }

// Reset discards the estimate entirely.
func (a *Aligner) Reset() {
	a.offset.Store(0)
	a.locked.Store(false)
	a.rttCount = 0
	a.rttNext = 0
	a.accepted = 0
	a.rejected = 0
	a.lostPings = 0
	a.peerLost = false
}

func (a *Aligner) recordRTT(rtt uint64) {
	a.rtts[a.rttNext] = rtt
	a.rttNext = (a.rttNext + 1) % rttWindowSize
	if a.rttCount < rttWindowSize {
		a.rttCount++
	}
}

// medianRTT returns the median of the RTT window. The window is 8 entries,
// so an insertion sort of a stack copy is cheaper than sort.Slice.
func (a *Aligner) medianRTT() uint64 {
	var s [rttWindowSize]uint64
	n := a.rttCount
	copy(s[:], a.rtts[:n])
	for i := 1; i < n; i++ {
		v := s[i]
		j := i - 1
		for j >= 0 && s[j] > v {
			s[j+1] = s[j]
			j--
		}
		s[j+1] = v
	}
	if n%2 == 1 {
		return s[n/2]
	}
	return (s[n/2-1] + s[n/2]) / 2
}
