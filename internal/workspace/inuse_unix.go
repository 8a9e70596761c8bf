//go:build linux || darwin || freebsd

package workspace

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// InUse reports whether another process holds an exclusive lock on path,
// which recorders use while a capture is still being written.
func InUse(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	fd := int(f.Fd())
	if err := unix.Flock(fd, unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return errors.Is(err, unix.EWOULDBLOCK)
	}
	_ = unix.Flock(fd, unix.LOCK_UN)
	return false
}
