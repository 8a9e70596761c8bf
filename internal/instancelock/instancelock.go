// Package instancelock keeps concurrent launches from working on the same
// recordings. The lock is a file created exclusively and removed on release;
// it records its owner so a lock left behind by a crashed process can be
// taken over.
package instancelock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var ErrLocked = errors.New("another instance is running")

type Owner struct {
	PID       int    `json:"pid"`
	CreatedAt string `json:"created_at"`
	Hostname  string `json:"hostname,omitempty"`
}

type LockedError struct {
	Path  string
	Owner Owner
}

func (e *LockedError) Error() string {
	if e.Owner.PID > 0 {
		return fmt.Sprintf("locked by %s (pid=%d created_at=%s host=%s)", e.Path, e.Owner.PID, e.Owner.CreatedAt, e.Owner.Hostname)
	}
	return fmt.Sprintf("locked by %s", e.Path)
}

func (e *LockedError) Is(target error) bool { return target == ErrLocked }

type Lock struct {
	path string
}

// Resolve turns the LockFile setting into a path. Empty disables locking and
// relative paths are placed next to the executable.
func Resolve(setting string) (string, error) {
	setting = strings.TrimSpace(setting)
	if setting == "" || filepath.IsAbs(setting) {
		return setting, nil
	}
	exe, err := os.Executable()
	if err != nil {
		return "", fmt.Errorf("locate executable: %w", err)
	}
	return filepath.Join(filepath.Dir(exe), setting), nil
}

// Acquire creates the lock file. An existing lock whose owner process is gone
// on this host is removed and acquisition is retried once.
func Acquire(path string) (*Lock, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("lock path is required")
	}
	l, err := create(path)
	if err == nil || !errors.Is(err, ErrLocked) {
		return l, err
	}

	var le *LockedError
	if errors.As(err, &le) && stale(le.Owner) {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			return nil, fmt.Errorf("remove stale lock %s: %w", path, rmErr)
		}
		return create(path)
	}
	return nil, err
}

func (l *Lock) Release() error {
	if l == nil || l.path == "" {
		return nil
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("release lock %s: %w", l.path, err)
	}
	return nil
}

func create(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, &LockedError{Path: path, Owner: readOwner(path)}
		}
		return nil, fmt.Errorf("acquire lock %s: %w", path, err)
	}
	owner := Owner{
		PID:       os.Getpid(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		Hostname:  hostnameOrUnknown(),
	}
	if err := json.NewEncoder(f).Encode(owner); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("write lock owner %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("write lock owner %s: %w", path, err)
	}
	return &Lock{path: path}, nil
}

func readOwner(path string) Owner {
	var o Owner
	b, err := os.ReadFile(path)
	if err != nil {
		return o
	}
	_ = json.Unmarshal(b, &o)
	return o
}

func stale(o Owner) bool {
	if o.PID <= 0 || o.Hostname != hostnameOrUnknown() {
		return false
	}
	return !processAlive(o.PID)
}

func hostnameOrUnknown() string {
	host, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	host = strings.TrimSpace(host)
	if host == "" {
		return "unknown"
	}
	return host
}
