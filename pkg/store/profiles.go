// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/glovetact/vcrsync/pkg/therapy"
)

// ErrProfileNotFound is returned by Load for an unknown profile id.
var ErrProfileNotFound = errors.New("store: profile not found")

// ErrStorageIO wraps filesystem failures from the backing flash.
var ErrStorageIO = errors.New("store: storage i/o")

// ProfileSummary is the listing entry for one stored profile.
type ProfileSummary struct {
	ID   uint8
	Name string
}

// ProfileStore is the persistence collaborator. Failures are error values;
// a device with a dead filesystem keeps running on defaults.
type ProfileStore interface {
	Load(id uint8) (therapy.Profile, error)
	Save(p therapy.Profile) error
	List() ([]ProfileSummary, error)
	DebugMode() bool
}

// FileStore keeps each profile as one CBOR file under dir, named by id.
// CBOR keeps the records compact on flash and tolerant of added fields.
type FileStore struct {
	dir   string
	debug bool
}

// NewFileStore creates dir if needed and returns the store.
func NewFileStore(dir string, debug bool) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	return &FileStore{dir: dir, debug: debug}, nil
}

func (s *FileStore) path(id uint8) string {
	return filepath.Join(s.dir, fmt.Sprintf("profile_%03d.cbor", id))
}

func (s *FileStore) Load(id uint8) (therapy.Profile, error) {
	var p therapy.Profile
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return p, fmt.Errorf("%w: id %d", ErrProfileNotFound, id)
		}
		return p, fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	if err := cbor.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("%w: decode profile %d: %v", ErrStorageIO, id, err)
	}
	if err := p.Validate(); err != nil {
		return therapy.Profile{}, err
	}
	return p, nil
}

func (s *FileStore) Save(p therapy.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	data, err := cbor.Marshal(&p)
	if err != nil {
		return fmt.Errorf("%w: encode profile %d: %v", ErrStorageIO, p.ID, err)
	}
	if err := os.WriteFile(s.path(p.ID), data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	return nil
}

func (s *FileStore) List() ([]ProfileSummary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	var out []ProfileSummary
	for _, e := range entries {
		var id uint8
		if _, err := fmt.Sscanf(e.Name(), "profile_%03d.cbor", &id); err != nil {
			continue
		}
		p, err := s.Load(id)
		if err != nil {
			continue // unreadable entries are skipped, not fatal
		}
		out = append(out, ProfileSummary{ID: p.ID, Name: p.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *FileStore) DebugMode() bool { return s.debug }

// LoadSettings reads the device settings record, returning defaults when
// the record is absent.
func (s *FileStore) LoadSettings() (Settings, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, "settings.bin"))
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultSettings(), nil
		}
		return DefaultSettings(), fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	var st Settings
	if err := st.UnmarshalBinary(data); err != nil {
		return DefaultSettings(), err
	}
	return st, nil
}

// SaveSettings writes the device settings record.
func (s *FileStore) SaveSettings(st Settings) error {
	data, err := st.MarshalBinary()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(s.dir, "settings.bin"), data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageIO, err)
	}
	return nil
}

// MemStore is an in-memory ProfileStore for tests and the simulator.
type MemStore struct {
	profiles map[uint8]therapy.Profile
	debug    bool
	failIO   bool
}

// NewMemStore returns a MemStore preloaded with the given profiles.
func NewMemStore(profiles ...therapy.Profile) *MemStore {
	m := &MemStore{profiles: make(map[uint8]therapy.Profile)}
	for _, p := range profiles {
		m.profiles[p.ID] = p
	}
	return m
}

func (m *MemStore) Load(id uint8) (therapy.Profile, error) {
	if m.failIO {
		return therapy.Profile{}, ErrStorageIO
	}
	p, ok := m.profiles[id]
	if !ok {
		return therapy.Profile{}, fmt.Errorf("%w: id %d", ErrProfileNotFound, id)
	}
	return p, nil
}

func (m *MemStore) Save(p therapy.Profile) error {
	if m.failIO {
		return ErrStorageIO
	}
	if err := p.Validate(); err != nil {
		return err
	}
	m.profiles[p.ID] = p
	return nil
}

func (m *MemStore) List() ([]ProfileSummary, error) {
	if m.failIO {
		return nil, ErrStorageIO
	}
	var out []ProfileSummary
	for _, p := range m.profiles {
		out = append(out, ProfileSummary{ID: p.ID, Name: p.Name})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemStore) DebugMode() bool { return m.debug }

// SetDebug toggles the debug flag.
func (m *MemStore) SetDebug(v bool) { m.debug = v }

// FailIO makes every operation return ErrStorageIO. Test hook.
func (m *MemStore) FailIO(v bool) { m.failIO = v }
