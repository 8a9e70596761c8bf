// Package checkpoint records completed units of work as marker files.
//
// A marker's existence, never its content, means the unit is done. Absence
// always means the work must be (re)done, even if a partial output exists.
package checkpoint

import (
	"errors"
	"fmt"
	"os"

	"github.com/forPelevin/comcrop/internal/types"
)

// Store caches marker lookups for one run. The filesystem stays the source of
// truth across runs; a Store must not outlive the run that created it.
type Store struct {
	seen map[string]bool
}

func New() *Store {
	return &Store{seen: make(map[string]bool)}
}

func (s *Store) Done(marker string) bool {
	if v, ok := s.seen[marker]; ok {
		return v
	}
	v := Exists(marker)
	s.seen[marker] = v
	return v
}

func (s *Store) Mark(marker string) error {
	if err := touch(marker); err != nil {
		return err
	}
	s.seen[marker] = true
	return nil
}

// Commit verifies that output holds data, flushes it to stable storage and
// only then creates the marker.
func (s *Store) Commit(output, marker string) error {
	if !FileReady(output) {
		return &types.VerificationError{Path: output, Reason: "missing or empty after successful tool run"}
	}
	if err := syncFile(output); err != nil {
		return err
	}
	return s.Mark(marker)
}

func (s *Store) Clear(marker string) error {
	delete(s.seen, marker)
	if err := os.Remove(marker); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove marker %s: %w", marker, err)
	}
	return nil
}

// Forget drops every cached lookup, e.g. after files were purged behind the
// store's back.
func (s *Store) Forget() {
	clear(s.seen)
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// FileReady reports whether path is a regular file with at least one byte.
func FileReady(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		return false
	}
	return fi.Mode().IsRegular() && fi.Size() > 0
}

func touch(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create marker %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync marker %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close marker %s: %w", path, err)
	}
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	if err := f.Sync(); err != nil {
		return fmt.Errorf("sync %s: %w", path, err)
	}
	return nil
}
