// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package dimmer

import (
	"errors"
	"fmt"
	"os"

	"github.com/fxamacker/cbor/v2"
)

// VersionErased marks a settings record that was never written.
const VersionErased = 0xFF

// Scratch defaults, inside both mains ranges
const (
	ScratchMainsHz  = 50
	ScratchRangeMin = 2000
	ScratchRangeMax = 18000
)

// Settings is the persisted calibration record.
type Settings struct {
	Version  uint8  `cbor:"0,keyasint"`
	MainsHz  uint8  `cbor:"1,keyasint"`
	RangeMin uint16 `cbor:"2,keyasint"`
	RangeMax uint16 `cbor:"3,keyasint"`
}

// ScratchSettings returns the built-in defaults.
func ScratchSettings() Settings {
	return Settings{
		Version:  FirmwareVersion,
		MainsHz:  ScratchMainsHz,
		RangeMin: ScratchRangeMin,
		RangeMax: ScratchRangeMax,
	}
}

// Validate repairs a freshly loaded record. An erased record or an unknown
// mains frequency falls back to scratch defaults; otherwise RangeMin is
// ClampToMin'd and RangeMax clipped into the mains range.
func (s *Settings) Validate() {
	if s.Version == VersionErased {
		*s = ScratchSettings()
		return
	}

	switch s.MainsHz {
	case 50, 60:
		min, max := MainsRange(s.MainsHz)
		s.RangeMin = ClampToMin(s.RangeMin, min, max)
		s.RangeMax = Clip(s.RangeMax, min, max)
	default:
		*s = ScratchSettings()
	}
}

// Store persists one Settings record, in the manner of an EEPROM cell.
type Store interface {
	// Load returns the stored record. A store that was never written
	// returns a record with Version == VersionErased.
	Load() (Settings, error)
	Save(Settings) error
}

// LoadSettings loads and validates a record. On a load error the scratch
// defaults are returned together with the error.
func LoadSettings(store Store) (Settings, error) {
	s, err := store.Load()
	if err != nil {
		return ScratchSettings(), err
	}
	s.Validate()
	return s, nil
}

// MemoryStore keeps the record in memory.
type MemoryStore struct {
	record Settings
	saves  int
}

// NewMemoryStore returns an erased in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{record: Settings{Version: VersionErased}}
}

// Load returns the stored record.
func (m *MemoryStore) Load() (Settings, error) {
	return m.record, nil
}

// Save replaces the stored record.
func (m *MemoryStore) Save(s Settings) error {
	m.record = s
	m.saves++
	return nil
}

// Saves returns how many times Save was called.
func (m *MemoryStore) Saves() int {
	return m.saves
}

// FileStore keeps the record as CBOR in a file.
type FileStore struct {
	path string
}

// NewFileStore returns a store backed by path. The file is created on the
// first Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the backing file path.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the record. A missing file reads as erased.
func (f *FileStore) Load() (Settings, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Version: VersionErased}, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read settings %s: %w", f.path, err)
	}

	var s Settings
	if err := cbor.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("failed to decode settings %s: %w", f.path, err)
	}
	return s, nil
}

// Save writes the record, replacing the file atomically.
func (f *FileStore) Save(s Settings) error {
	data, err := cbor.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write settings %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("failed to replace settings %s: %w", f.path, err)
	}
	return nil
}
