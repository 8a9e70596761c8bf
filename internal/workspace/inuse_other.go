//go:build !(linux || darwin || freebsd)

package workspace

import (
	"errors"
	"os"
)

// InUse reports whether the file cannot be opened for writing, which on
// platforms with mandatory sharing modes means a recorder still holds it.
func InUse(path string) bool {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return !errors.Is(err, os.ErrNotExist) && !errors.Is(err, os.ErrPermission)
	}
	_ = f.Close()
	return false
}
