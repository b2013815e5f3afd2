// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package therapy

import (
	"math"
	"testing"

	"github.com/glovetact/vcrsync/pkg/clock"
)

// runSession drives the engine with 1ms ticks from start until end and
// returns every emitted event.
func runSession(e *Engine, start, end clock.Micros) []Event {
	var out []Event
	e.emitInto(&out)
	for now := start; now < end; now += 1000 {
		e.Tick(now)
	}
	return out
}

// emitInto redirects the engine's emit callback into a slice. Test helper;
// engines in production are constructed with their callback up front.
func (e *Engine) emitInto(out *[]Event) {
	e.emit = func(ev Event) { *out = append(*out, ev) }
}

func TestEngine_SequentialCadence(t *testing.T) {
	p := Profile{
		ID: 1, Name: "seq4", Pattern: Sequential,
		TempoHz: 4, JitterPct: 0, Amplitude: 180, DurationMs: 50,
		EnabledMask: 0b00111, SessionMinutes: 0,
	}
	e := NewEngine(nil)
	start := clock.Micros(1_000_000)
	if err := e.Start(p, start, 1); err != nil {
		t.Fatal(err)
	}
	events := runSession(e, start, start+2_100_000)

	// Exactly 24 events fall inside the 2 second window: 8 periods at
	// 4 Hz, 3 fingers each.
	var inWindow []Event
	for _, ev := range events {
		if ev.FireAt >= start && ev.FireAt < start+2_000_000 {
			inWindow = append(inWindow, ev)
		}
	}
	if len(inWindow) != 24 {
		t.Fatalf("events in 2s window = %d, want 24", len(inWindow))
	}

	counts := map[uint8]int{}
	for _, ev := range inWindow {
		counts[ev.LocalFinger]++
	}
	for f := uint8(0); f < 3; f++ {
		if counts[f] != 8 {
			t.Errorf("finger %d fired %d times, want 8", f, counts[f])
		}
	}

	// No jitter: inter-event spacing is the slot dwell to within 1us of
	// rounding.
	for i := 1; i < len(inWindow); i++ {
		d := int64(inWindow[i].FireAt - inWindow[i-1].FireAt)
		if d < 83332 || d > 83334 {
			t.Errorf("inter-event %d-%d spacing %dus, want 83333 +/- 1", i-1, i, d)
		}
	}

	// Sequential order within each period.
	for i, ev := range inWindow {
		if want := uint8(i % 3); ev.LocalFinger != want {
			t.Errorf("event %d finger %d, want %d", i, ev.LocalFinger, want)
		}
	}
}

func TestEngine_RNDPPermutationCoverage(t *testing.T) {
	p := Profile{
		ID: 2, Name: "rndp", Pattern: RNDP,
		TempoHz: 2, JitterPct: 10, Amplitude: 200, DurationMs: 50,
		EnabledMask: 0b11111,
	}
	e := NewEngine(nil)
	start := clock.Micros(0)
	if err := e.Start(p, start, 1); err != nil {
		t.Fatal(err)
	}
	const periods = 100
	end := start + clock.Micros(periods*500_000)
	events := runSession(e, start, end)
	events = events[:periods*5]

	// Each finger exactly once per period.
	var hist [5][5]int // [slot][finger]
	for i := 0; i < periods; i++ {
		var seen [5]bool
		for k := 0; k < 5; k++ {
			f := events[i*5+k].LocalFinger
			if seen[f] {
				t.Fatalf("period %d: finger %d repeated", i, f)
			}
			seen[f] = true
			hist[k][f]++
		}
	}

	// Chi-squared against uniform slot occupancy, df = 16. 32.0 is the
	// p = 0.01 cutoff; a seeded uniform shuffle sits well below it.
	expected := float64(periods) / 5
	var chi2 float64
	for k := 0; k < 5; k++ {
		for f := 0; f < 5; f++ {
			d := float64(hist[k][f]) - expected
			chi2 += d * d / expected
		}
	}
	if chi2 > 32.0 {
		t.Errorf("slot histogram chi2 = %.1f, permutations not uniform", chi2)
	}
}

func TestEngine_JitterBounded(t *testing.T) {
	p := Profile{
		ID: 3, Name: "jit", Pattern: Sequential,
		TempoHz: 2, JitterPct: 25, Amplitude: 128, DurationMs: 40,
		EnabledMask: 0b11111,
	}
	e := NewEngine(nil)
	start := clock.Micros(500_000)
	if err := e.Start(p, start, 42); err != nil {
		t.Fatal(err)
	}
	events := runSession(e, start, start+10_000_000)

	dwell := p.SlotDwellUs()
	jitterMax := float64(p.JitterPct) / 100 * dwell
	durUs := float64(p.DurationMs) * 1000
	var jittered int
	for i, ev := range events {
		period := i / 5
		slot := i % 5
		slotStart := float64(start) + float64(period)*p.PeriodUs() + float64(slot)*dwell
		off := float64(ev.FireAt) - slotStart

		if off < -1 || off > jitterMax+1 {
			t.Errorf("event %d offset %.0fus outside [0, %.0f]", i, off, jitterMax)
		}
		// The buzz never crosses into the next slot.
		if float64(ev.FireAt)+durUs > slotStart+dwell+1 {
			t.Errorf("event %d runs past its slot", i)
		}
		if off > 1 {
			jittered++
		}
	}
	if jittered == 0 {
		t.Error("no event was jittered at 25%")
	}
}

func TestEngine_MirroredRemoteFinger(t *testing.T) {
	p := Profile{
		ID: 4, Name: "mir", Pattern: Mirrored,
		TempoHz: 2, JitterPct: 0, Amplitude: 255, DurationMs: 40,
		EnabledMask: 0b11111,
	}
	e := NewEngine(nil)
	if err := e.Start(p, 0, 1); err != nil {
		t.Fatal(err)
	}
	events := runSession(e, 0, 2_000_000)
	if len(events) == 0 {
		t.Fatal("no events")
	}
	for i, ev := range events {
		if ev.RemoteFinger != 4-ev.LocalFinger {
			t.Errorf("event %d: remote %d for local %d, want %d", i, ev.RemoteFinger, ev.LocalFinger, 4-ev.LocalFinger)
		}
	}
}

func TestEngine_NonMirroredRemoteMatchesLocal(t *testing.T) {
	p := Profile{
		ID: 5, Name: "rndp2", Pattern: RNDP,
		TempoHz: 2, JitterPct: 0, Amplitude: 255, DurationMs: 40,
		EnabledMask: 0b10101,
	}
	e := NewEngine(nil)
	if err := e.Start(p, 0, 9); err != nil {
		t.Fatal(err)
	}
	events := runSession(e, 0, 2_000_000)
	for i, ev := range events {
		if ev.RemoteFinger != ev.LocalFinger {
			t.Errorf("event %d: remote %d != local %d", i, ev.RemoteFinger, ev.LocalFinger)
		}
	}
}

func TestEngine_Deterministic(t *testing.T) {
	p := Profile{
		ID: 6, Name: "det", Pattern: RNDP,
		TempoHz: 3, JitterPct: 15, Amplitude: 100, DurationMs: 30,
		EnabledMask: 0b11111,
	}
	run := func() []Event {
		e := NewEngine(nil)
		if err := e.Start(p, 1_000_000, 1234); err != nil {
			t.Fatal(err)
		}
		return runSession(e, 1_000_000, 6_000_000)
	}
	a, b := run(), run()
	if len(a) != len(b) || len(a) == 0 {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("event %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestEngine_PauseResumeShiftsSchedule(t *testing.T) {
	p := Profile{
		ID: 7, Name: "pause", Pattern: RNDP,
		TempoHz: 2, JitterPct: 10, Amplitude: 100, DurationMs: 30,
		EnabledMask: 0b11111,
	}
	const (
		start    = clock.Micros(1_000_000)
		pauseAt  = clock.Micros(3_500_000)
		pauseDur = clock.Micros(2_000_000)
	)

	var ref []Event
	re := NewEngine(nil)
	re.emitInto(&ref)
	if err := re.Start(p, start, 77); err != nil {
		t.Fatal(err)
	}
	for now := start; now < start+12_000_000; now += 1000 {
		re.Tick(now)
	}

	var got []Event
	ge := NewEngine(nil)
	ge.emitInto(&got)
	if err := ge.Start(p, start, 77); err != nil {
		t.Fatal(err)
	}
	var nPre int
	for now := start; now < pauseAt; now += 1000 {
		ge.Tick(now)
	}
	nPre = len(got)
	ge.Pause(pauseAt)
	for now := pauseAt; now < pauseAt+pauseDur; now += 1000 {
		ge.Tick(now) // paused: must emit nothing
	}
	if len(got) != nPre {
		t.Fatalf("emitted %d events while paused", len(got)-nPre)
	}
	ge.Resume(pauseAt + pauseDur)
	for now := pauseAt + pauseDur; now < start+14_000_000; now += 1000 {
		ge.Tick(now)
	}

	if ge.Context().PausedAccumUs != uint64(pauseDur) {
		t.Errorf("paused accum = %d, want %d", ge.Context().PausedAccumUs, pauseDur)
	}

	n := len(ref)
	if len(got) < n {
		n = len(got)
	}
	if n <= nPre {
		t.Fatal("no post-resume events to compare")
	}
	for i := 0; i < n; i++ {
		want := ref[i]
		if i >= nPre {
			want.FireAt += pauseDur
		}
		if got[i] != want {
			t.Fatalf("event %d = %+v, want %+v (pre-pause count %d)", i, got[i], want, nPre)
		}
	}
}

func TestEngine_SessionExpiry(t *testing.T) {
	p := Profile{
		ID: 8, Name: "short", Pattern: Sequential,
		TempoHz: 2, JitterPct: 0, Amplitude: 100, DurationMs: 30,
		EnabledMask: 0b00001, SessionMinutes: 1,
	}
	e := NewEngine(nil)
	var out []Event
	e.emitInto(&out)
	expirations := 0
	e.OnExpire(func() { expirations++ })
	if err := e.Start(p, 0, 1); err != nil {
		t.Fatal(err)
	}
	for now := clock.Micros(0); now < 65_000_000; now += 1000 {
		e.Tick(now)
	}
	if expirations != 1 {
		t.Errorf("expire callback ran %d times, want 1", expirations)
	}
	emitted := len(out)
	// Ticking further emits nothing.
	for now := clock.Micros(65_000_000); now < 70_000_000; now += 1000 {
		e.Tick(now)
	}
	if len(out) != emitted {
		t.Errorf("events emitted after expiry")
	}
}

func TestEngine_StopHaltsEmission(t *testing.T) {
	p := DefaultProfile()
	p.DurationMs = 100 // fits the 1.5 Hz slot
	e := NewEngine(nil)
	var out []Event
	e.emitInto(&out)
	if err := e.Start(p, 0, 1); err != nil {
		t.Fatal(err)
	}
	e.Tick(0)
	if len(out) == 0 {
		t.Fatal("no events before stop")
	}
	n := len(out)
	e.Stop()
	if e.Running() {
		t.Error("running after stop")
	}
	for now := clock.Micros(0); now < 3_000_000; now += 1000 {
		e.Tick(now)
	}
	if len(out) != n {
		t.Error("events emitted after stop")
	}
}

func TestEngine_SeedDefaultsToStartTime(t *testing.T) {
	p := DefaultProfile()
	e := NewEngine(func(Event) {})
	if err := e.Start(p, 123_456_789, 0); err != nil {
		t.Fatal(err)
	}
	if got := e.Context().Seed; got != 123_456_789 {
		t.Errorf("seed = %d, want session start time", got)
	}
}

func TestEngine_EmittedFireAtNeverInPast(t *testing.T) {
	p := Profile{
		ID: 9, Name: "late", Pattern: Sequential,
		TempoHz: 4, JitterPct: 0, Amplitude: 100, DurationMs: 30,
		EnabledMask: 0b11111,
	}
	e := NewEngine(nil)
	var out []Event
	e.emitInto(&out)
	if err := e.Start(p, 1_000_000, 1); err != nil {
		t.Fatal(err)
	}
	// A stalled main loop ticks late; due events are clamped to now, not
	// emitted in the past.
	e.Tick(1_400_000)
	for _, ev := range out {
		if ev.FireAt < 1_400_000 {
			t.Errorf("event fires at %d, before tick time", ev.FireAt)
		}
	}
}

// ============================================================
// Profile
// ============================================================

func TestProfile_Validate(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Profile)
		ok   bool
	}{
		{"default", func(p *Profile) { p.DurationMs = 100 }, true},
		{"zero tempo", func(p *Profile) { p.TempoHz = 0 }, false},
		{"negative tempo", func(p *Profile) { p.TempoHz = -1 }, false},
		{"zero mask", func(p *Profile) { p.EnabledMask = 0 }, false},
		{"mask too wide", func(p *Profile) { p.EnabledMask = 0b100000 }, false},
		{"jitter over 100", func(p *Profile) { p.JitterPct = 101 }, false},
		{"duration exceeds slot", func(p *Profile) { p.TempoHz = 4; p.DurationMs = 60 }, false},
		{"duration fits slot", func(p *Profile) { p.TempoHz = 4; p.DurationMs = 30 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultProfile()
			tt.mut(&p)
			err := p.Validate()
			if tt.ok && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if !tt.ok && err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestProfile_SlotDwell(t *testing.T) {
	p := DefaultProfile()
	p.TempoHz = 4
	p.EnabledMask = 0b00111
	if got := p.SlotDwellUs(); math.Abs(got-83333.33) > 0.01 {
		t.Errorf("dwell = %v, want 83333.33", got)
	}
}

func TestProfile_ApplyParam(t *testing.T) {
	p := DefaultProfile()
	if err := p.ApplyParam("tempo_hz", "2.5"); err != nil {
		t.Fatal(err)
	}
	if p.TempoHz != 2.5 {
		t.Errorf("tempo = %v", p.TempoHz)
	}
	if err := p.ApplyParam("pattern", "sequential"); err != nil {
		t.Fatal(err)
	}
	if p.Pattern != Sequential {
		t.Errorf("pattern = %v", p.Pattern)
	}
	if err := p.ApplyParam("enabled_mask", "0b00111"); err != nil {
		t.Fatal(err)
	}
	if p.EnabledMask != 0b00111 {
		t.Errorf("mask = %#b", p.EnabledMask)
	}

	// Rejected values leave the profile untouched by the caller reverting;
	// ApplyParam itself reports the failure.
	if err := p.ApplyParam("tempo_hz", "0"); err == nil {
		t.Error("zero tempo accepted")
	}
	if err := p.ApplyParam("bogus", "1"); err == nil {
		t.Error("unknown key accepted")
	}
}

func TestParsePattern(t *testing.T) {
	for _, s := range []string{"rndp", "RNDP", "Sequential", "MIRRORED"} {
		if _, ok := ParsePattern(s); !ok {
			t.Errorf("ParsePattern(%q) failed", s)
		}
	}
	if _, ok := ParsePattern("waltz"); ok {
		t.Error("ParsePattern accepted unknown name")
	}
}
