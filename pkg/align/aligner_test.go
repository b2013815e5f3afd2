// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package align

import (
	"math"
	"math/rand"
	"testing"

	"github.com/glovetact/vcrsync/pkg/clock"
)

// addExchange simulates one PING/PONG with the given true offset and one-way
// delays in microseconds.
func addExchange(a *Aligner, t0 clock.Micros, trueOffset int64, fwdUs, retUs uint64) bool {
	t1 := clock.Micros(int64(t0) + int64(fwdUs) + trueOffset)
	t2 := t0 + clock.Micros(fwdUs+retUs)
	return a.AddSample(t0, t1, t2)
}

func TestAligner_FirstSampleSeedsEstimate(t *testing.T) {
	a := NewAligner()
	if a.Locked() {
		t.Fatal("locked before any sample")
	}
	if !addExchange(a, 1_000_000, 5000, 2000, 2000) {
		t.Fatal("first sample rejected")
	}
	if got := a.OffsetMicros(); got != 5000 {
		t.Errorf("offset = %d, want 5000", got)
	}
}

func TestAligner_LocksAfterThreeSamples(t *testing.T) {
	a := NewAligner()
	for i := 0; i < 3; i++ {
		if a.Locked() {
			t.Fatalf("locked after %d samples", i)
		}
		addExchange(a, clock.Micros(1_000_000*(i+1)), -2500, 1500, 1500)
	}
	if !a.Locked() {
		t.Error("not locked after 3 accepted samples")
	}
	if got := a.OffsetMicros(); got != -2500 {
		t.Errorf("offset = %d, want -2500 with symmetric path", got)
	}
}

func TestAligner_AsymmetryBiasesByHalfDelta(t *testing.T) {
	// 1ms forward, 3ms return: midpoint correction over-subtracts by
	// (ret-fwd)/2 = 1ms.
	a := NewAligner()
	addExchange(a, 1_000_000, 0, 1000, 3000)
	if got := a.OffsetMicros(); got != -1000 {
		t.Errorf("offset = %d, want -1000", got)
	}
}

func TestAligner_RTTGateRejectsOutliers(t *testing.T) {
	a := NewAligner()
	t0 := clock.Micros(1_000_000)
	for i := 0; i < 8; i++ {
		addExchange(a, t0, 0, 2000, 2000) // rtt 4000
		t0 += 1_000_000
	}
	before := a.OffsetMicros()

	// 40ms RTT against a 4ms median: rejected, estimate untouched.
	if addExchange(a, t0, 90000, 20000, 20000) {
		t.Error("outlier sample accepted")
	}
	if a.Rejected() != 1 {
		t.Errorf("rejected = %d, want 1", a.Rejected())
	}
	if a.OffsetMicros() != before {
		t.Error("rejected sample moved the estimate")
	}
}

func TestAligner_GateInactiveUntilWindowPrimed(t *testing.T) {
	a := NewAligner()
	// Huge RTT on the second sample, window not yet primed: accepted.
	addExchange(a, 1_000_000, 0, 2000, 2000)
	if !addExchange(a, 2_000_000, 0, 50000, 50000) {
		t.Error("sample rejected before window primed")
	}
}

func TestAligner_PingLossUnlocks(t *testing.T) {
	a := NewAligner()
	for i := 0; i < 4; i++ {
		addExchange(a, clock.Micros(1_000_000*(i+1)), 100, 2000, 2000)
	}
	if !a.Locked() {
		t.Fatal("not locked")
	}

	a.PingLost()
	a.PingLost()
	if a.PeerLost() || !a.Locked() {
		t.Error("peer lost before third consecutive loss")
	}
	a.PingLost()
	if !a.PeerLost() {
		t.Error("peer not lost after 3 consecutive losses")
	}
	if a.Locked() {
		t.Error("still locked after peer lost")
	}

	// An answered PING clears the loss streak and relocking needs three
	// fresh samples.
	addExchange(a, 10_000_000, 100, 2000, 2000)
	if a.PeerLost() {
		t.Error("peer still lost after accepted sample")
	}
	if a.Locked() {
		t.Error("relocked after a single sample")
	}
	addExchange(a, 11_000_000, 100, 2000, 2000)
	addExchange(a, 12_000_000, 100, 2000, 2000)
	if !a.Locked() {
		t.Error("not relocked after three fresh samples")
	}
}

func TestAligner_LossStreakResetByPong(t *testing.T) {
	a := NewAligner()
	a.PingLost()
	a.PingLost()
	addExchange(a, 1_000_000, 0, 2000, 2000)
	a.PingLost()
	a.PingLost()
	if a.PeerLost() {
		t.Error("non-consecutive losses marked peer lost")
	}
}

func TestAligner_ConvergesUnderJitter(t *testing.T) {
	const (
		trueOffset = int64(12345)
		meanDelay  = 2000.0
		sigma      = 300.0
		samples    = 24
	)
	rng := rand.New(rand.NewSource(7))

	a := NewAligner()
	t0 := clock.Micros(1_000_000)
	for i := 0; i < samples; i++ {
		fwd := uint64(math.Max(100, meanDelay+rng.NormFloat64()*sigma))
		ret := uint64(math.Max(100, meanDelay+rng.NormFloat64()*sigma))
		addExchange(a, t0, trueOffset, fwd, ret)
		t0 += 1_000_000
	}

	if !a.Locked() {
		t.Fatal("not locked")
	}
	// The 1/8 EMA should have pulled the noise well inside one sigma.
	errUs := float64(a.OffsetMicros() - trueOffset)
	if math.Abs(errUs) > sigma {
		t.Errorf("offset error %.0fus exceeds %.0fus after %d samples", errUs, sigma, samples)
	}
}

func TestAligner_Reset(t *testing.T) {
	a := NewAligner()
	for i := 0; i < 4; i++ {
		addExchange(a, clock.Micros(1_000_000*(i+1)), 777, 2000, 2000)
	}
	a.Reset()
	if a.Locked() || a.OffsetMicros() != 0 || a.Accepted() != 0 {
		t.Error("reset left state behind")
	}
}
