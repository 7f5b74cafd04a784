package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"
)

// DefaultSnapshot returns the state used when nothing has been persisted yet.
func DefaultSnapshot(defaultSessionTime int) Snapshot {
	if defaultSessionTime <= 0 {
		defaultSessionTime = DefaultSessionTime
	}

	return Snapshot{
		DefaultSessionTime: defaultSessionTime,
		PumpIntensity:      DefaultPumpIntensity,
	}
}

func NewStore(path string, defaultSessionTime int) *Store {
	defaults := DefaultSnapshot(defaultSessionTime)
	return &Store{
		path:     filepath.Clean(path),
		defaults: defaults,
		snap:     defaults.Clone(),
	}
}

func (s *Store) Path() string {
	return s.path
}

// Load reads the state file. A missing file is created with the defaults. A
// file that cannot be parsed is backed up and left in place while the
// defaults are used in memory; the returned error describes the problem.
func (s *Store) Load() error {
	slog.Debug(">>state.Load", "path", s.path)
	defer slog.Debug("<<state.Load")

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Warn("state file not found, initializing with defaults", "path", s.path)
			s.snap = s.defaults.Clone()
			if err := s.write(s.snap); err != nil {
				slog.Error("failed to create the default state file", "path", s.path, "error", err)
			}
			return nil
		}

		s.snap = s.defaults.Clone()
		return fmt.Errorf("read state file %q: %w", s.path, err)
	}

	loaded := s.defaults.Clone()
	if err := json.Unmarshal(data, &loaded); err != nil {
		s.snap = s.defaults.Clone()
		s.backupCorrupt(data)
		return fmt.Errorf("parse state file %q: %w", s.path, err)
	}

	s.snap = s.normalize(loaded)
	slog.Info("loaded state", "path", s.path)

	return nil
}

// Snapshot returns a copy of the current in-memory state.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.snap.Clone()
}

// Update applies mutate to a copy of the state. When mutate returns an error
// nothing changes. Otherwise the copy becomes current and is persisted before
// Update returns. A failed write is logged; memory stays authoritative.
func (s *Store) Update(mutate func(*Snapshot) error) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.snap.Clone()
	if err := mutate(&next); err != nil {
		return s.snap.Clone(), err
	}

	s.snap = next
	if err := s.write(s.snap); err != nil {
		slog.Error("failed to save state", "path", s.path, "error", err)
	}

	return s.snap.Clone(), nil
}

// Save persists the current state without changing it.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.write(s.snap)
}

func (s *Store) write(snap Snapshot) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	data, err := json.MarshalIndent(snap, "", "    ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	tmp, err := os.CreateTemp(dir, tempFilePattern)
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	cleanup := func() {
		if err := os.Remove(tmpPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Error("failed to remove temporary state file", "path", tmpPath, "error", err)
		}
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write temp state file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync temp state file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Chmod(tmpPath, stateFileMode); err != nil {
		cleanup()
		return fmt.Errorf("chmod temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		cleanup()
		return fmt.Errorf("replace state file: %w", err)
	}

	slog.Debug("saved state", "path", s.path)

	return nil
}

func (s *Store) backupCorrupt(data []byte) {
	backup := fmt.Sprintf("%s.corrupt-%d", s.path, time.Now().Unix())
	if err := os.WriteFile(backup, data, stateFileMode); err != nil {
		slog.Error("failed to back up unreadable state file", "path", s.path, "error", err)
		return
	}

	slog.Warn("state file could not be parsed, using defaults", "path", s.path, "backup", backup)
}

// normalize repairs values a hand-edited or older file may carry.
func (s *Store) normalize(snap Snapshot) Snapshot {
	if snap.DefaultSessionTime <= 0 {
		snap.DefaultSessionTime = s.defaults.DefaultSessionTime
	}

	if math.IsNaN(snap.PumpIntensity) || snap.PumpIntensity < 0 || snap.PumpIntensity > 1 {
		snap.PumpIntensity = DefaultPumpIntensity
	}

	if snap.SessionTimeRemaining < 0 {
		snap.SessionTimeRemaining = 0
	}

	if snap.BankedTime < 0 {
		snap.BankedTime = 0
	}

	if !snap.LatchActive {
		snap.LatchReason = nil
		snap.LatchEndTime = nil
	}

	return snap
}

// Clone copies the snapshot including the values behind its pointers.
func (snap Snapshot) Clone() Snapshot {
	c := snap
	c.SessionPumpStart = cloneTime(snap.SessionPumpStart)
	c.LastPumpTime = cloneTime(snap.LastPumpTime)
	c.LatchEndTime = cloneTime(snap.LatchEndTime)
	c.PumpTaskEndTime = cloneTime(snap.PumpTaskEndTime)
	if snap.LatchReason != nil {
		r := *snap.LatchReason
		c.LatchReason = &r
	}

	return c
}

// Reason returns the latch reason or an empty string.
func (snap Snapshot) Reason() string {
	if snap.LatchReason == nil {
		return ""
	}

	return *snap.LatchReason
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}

	c := *t
	return &c
}

// TimePtr returns a pointer to a UTC copy of t.
func TimePtr(t time.Time) *time.Time {
	u := t.UTC()
	return &u
}

func StringPtr(s string) *string {
	return &s
}
