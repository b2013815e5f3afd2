// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

// Package store persists device identity, settings and therapy profiles.
package store

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Role distinguishes the two devices of a pair.
type Role uint8

const (
	// RolePrimary runs the therapy engine and drives the schedule.
	RolePrimary Role = 0
	// RoleSecondary mirrors commands received from the primary.
	RoleSecondary Role = 1
)

func (r Role) String() string {
	switch r {
	case RolePrimary:
		return "PRIMARY"
	case RoleSecondary:
		return "SECONDARY"
	}
	return fmt.Sprintf("ROLE(%d)", uint8(r))
}

// ParseRole parses "primary" or "secondary".
func ParseRole(s string) (Role, error) {
	switch s {
	case "primary", "PRIMARY":
		return RolePrimary, nil
	case "secondary", "SECONDARY":
		return RoleSecondary, nil
	}
	return 0, fmt.Errorf("store: unknown role %q", s)
}

// settingsVersion is bumped whenever the record layout changes; records
// with a different version decode to defaults.
const settingsVersion = 2

// settingsSize is the fixed record length: version, role, debug, 2-byte
// profile id, peer address, CRC16.
const settingsSize = 13

// ErrSettingsCorrupt is returned when the CRC check fails.
var ErrSettingsCorrupt = errors.New("store: settings record corrupt")

// Settings is the persistent device configuration record, sized to fit one
// flash page slot.
type Settings struct {
	Role      Role
	Debug     bool
	ProfileID uint16
	PeerAddr  [6]byte
}

// DefaultSettings returns the factory record.
func DefaultSettings() Settings {
	return Settings{Role: RolePrimary, ProfileID: 0}
}

// MarshalBinary encodes the record with a trailing CRC.
func (s *Settings) MarshalBinary() ([]byte, error) {
	buf := make([]byte, settingsSize)
	buf[0] = settingsVersion
	buf[1] = byte(s.Role)
	if s.Debug {
		buf[2] = 1
	}
	binary.LittleEndian.PutUint16(buf[3:5], s.ProfileID)
	copy(buf[5:11], s.PeerAddr[:])
	binary.BigEndian.PutUint16(buf[11:], CalculateCRC(buf[:11]))
	return buf, nil
}

// UnmarshalBinary decodes a record. A version mismatch yields the defaults
// without error, so firmware updates that change the layout self-heal; a
// CRC mismatch is reported as ErrSettingsCorrupt.
func (s *Settings) UnmarshalBinary(data []byte) error {
	if len(data) != settingsSize {
		return fmt.Errorf("%w: length %d", ErrSettingsCorrupt, len(data))
	}
	if CalculateCRC(data[:11]) != binary.BigEndian.Uint16(data[11:]) {
		return ErrSettingsCorrupt
	}
	if data[0] != settingsVersion {
		*s = DefaultSettings()
		return nil
	}
	s.Role = Role(data[1])
	s.Debug = data[2] != 0
	s.ProfileID = binary.LittleEndian.Uint16(data[3:5])
	copy(s.PeerAddr[:], data[5:11])
	return nil
}
