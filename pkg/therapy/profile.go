// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

// Package therapy generates the buzz schedule for a session: which finger,
// when, how hard, on both devices.
package therapy

import (
	"errors"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Pattern selects the per-period finger ordering.
type Pattern uint8

const (
	// RNDP fires each enabled finger once per period in a fresh random
	// order (randomized permutation).
	RNDP Pattern = iota
	// Sequential fires the enabled fingers in ascending index order.
	Sequential
	// Mirrored is Sequential with the remote hand mirrored, so the same
	// physical finger buzzes on both hands in the same slot.
	Mirrored
)

var patternNames = map[Pattern]string{
	RNDP:       "RNDP",
	Sequential: "SEQUENTIAL",
	Mirrored:   "MIRRORED",
}

func (p Pattern) String() string {
	if n, ok := patternNames[p]; ok {
		return n
	}
	return fmt.Sprintf("PATTERN(%d)", uint8(p))
}

// ParsePattern parses a pattern name, case-insensitively.
func ParsePattern(s string) (Pattern, bool) {
	for p, n := range patternNames {
		if strings.EqualFold(s, n) {
			return p, true
		}
	}
	return 0, false
}

// ErrProfileInvalid wraps all profile validation failures.
var ErrProfileInvalid = errors.New("therapy: invalid profile")

// Profile is the typed parameter bundle a session runs with. It is copied
// into the engine at session start and immutable while running; PARAM_SET
// applies only while paused or before start.
type Profile struct {
	ID             uint8   `cbor:"1,keyasint" yaml:"id"`
	Name           string  `cbor:"2,keyasint" yaml:"name"`
	Pattern        Pattern `cbor:"3,keyasint" yaml:"pattern"`
	TempoHz        float32 `cbor:"4,keyasint" yaml:"tempo_hz"`
	JitterPct      uint8   `cbor:"5,keyasint" yaml:"jitter_pct"`
	Amplitude      uint8   `cbor:"6,keyasint" yaml:"amplitude"`
	DurationMs     uint16  `cbor:"7,keyasint" yaml:"duration_ms"`
	EnabledMask    uint8   `cbor:"8,keyasint" yaml:"enabled_mask"`
	SessionMinutes uint16  `cbor:"9,keyasint" yaml:"session_minutes"`
}

// DefaultProfile returns the factory therapy setting.
func DefaultProfile() Profile {
	return Profile{
		ID:             0,
		Name:           "default",
		Pattern:        RNDP,
		TempoHz:        1.5,
		JitterPct:      23,
		Amplitude:      200,
		DurationMs:     100,
		EnabledMask:    0b11111,
		SessionMinutes: 120,
	}
}

// EnabledFingers returns the enabled finger indices in ascending order.
func (p *Profile) EnabledFingers() []uint8 {
	out := make([]uint8, 0, 5)
	for f := uint8(0); f < 5; f++ {
		if p.EnabledMask&(1<<f) != 0 {
			out = append(out, f)
		}
	}
	return out
}

// EnabledCount returns the number of enabled fingers.
func (p *Profile) EnabledCount() int {
	return bits.OnesCount8(p.EnabledMask & 0b11111)
}

// PeriodUs returns the tempo period in microseconds.
func (p *Profile) PeriodUs() float64 {
	return 1e6 / float64(p.TempoHz)
}

// SlotDwellUs returns the per-finger slot width in microseconds.
func (p *Profile) SlotDwellUs() float64 {
	n := p.EnabledCount()
	if n == 0 {
		return 0
	}
	return p.PeriodUs() / float64(n)
}

// Validate checks the profile invariants. A profile must pass Validate
// before it can be loaded.
func (p *Profile) Validate() error {
	if p.TempoHz <= 0 {
		return fmt.Errorf("%w: tempo_hz %v must be > 0", ErrProfileInvalid, p.TempoHz)
	}
	if p.EnabledMask == 0 || p.EnabledMask >= 1<<5 {
		return fmt.Errorf("%w: enabled_mask %#b out of range", ErrProfileInvalid, p.EnabledMask)
	}
	if p.JitterPct > 100 {
		return fmt.Errorf("%w: jitter_pct %d exceeds 100", ErrProfileInvalid, p.JitterPct)
	}
	// A buzz must finish inside its slot; otherwise consecutive events on
	// the same motor overlap.
	if float64(p.DurationMs)*1000 >= p.SlotDwellUs() {
		return fmt.Errorf("%w: duration %dms does not fit the %dus slot",
			ErrProfileInvalid, p.DurationMs, int64(p.SlotDwellUs()))
	}
	return nil
}

// ApplyParam sets one named field from its console string form. The caller
// is responsible for re-validating and for only applying while the session
// is paused or not started.
func (p *Profile) ApplyParam(key, value string) error {
	switch strings.ToLower(key) {
	case "pattern":
		pat, ok := ParsePattern(value)
		if !ok {
			return fmt.Errorf("%w: unknown pattern %q", ErrProfileInvalid, value)
		}
		p.Pattern = pat
	case "tempo_hz":
		v, err := strconv.ParseFloat(value, 32)
		if err != nil {
			return fmt.Errorf("%w: tempo_hz: %v", ErrProfileInvalid, err)
		}
		p.TempoHz = float32(v)
	case "jitter_pct":
		v, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("%w: jitter_pct: %v", ErrProfileInvalid, err)
		}
		p.JitterPct = uint8(v)
	case "amplitude":
		v, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("%w: amplitude: %v", ErrProfileInvalid, err)
		}
		p.Amplitude = uint8(v)
	case "duration_ms":
		v, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return fmt.Errorf("%w: duration_ms: %v", ErrProfileInvalid, err)
		}
		p.DurationMs = uint16(v)
	case "enabled_mask":
		v, err := strconv.ParseUint(value, 0, 8)
		if err != nil {
			return fmt.Errorf("%w: enabled_mask: %v", ErrProfileInvalid, err)
		}
		p.EnabledMask = uint8(v)
	case "session_minutes":
		v, err := strconv.ParseUint(value, 10, 16)
		if err != nil {
			return fmt.Errorf("%w: session_minutes: %v", ErrProfileInvalid, err)
		}
		p.SessionMinutes = uint16(v)
	default:
		return fmt.Errorf("%w: unknown parameter %q", ErrProfileInvalid, key)
	}
	return p.Validate()
}
