//go:build linux || darwin || freebsd || netbsd || openbsd

package proc

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Lock takes an exclusive flock of path, creating the file if needed. It does
// not block: a lock held elsewhere is ErrLocked.
func Lock(path string) (*FileLock, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	if err != nil {
		_ = f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return nil, fmt.Errorf("%s: %w", path, ErrLocked)
		}
		return nil, fmt.Errorf("flock %s: %w", path, err)
	}
	return &FileLock{
		path: path,
		unlock: func() error {
			return errors.Join(
				unix.Flock(int(f.Fd()), unix.LOCK_UN),
				f.Close(),
			)
		},
	}, nil
}
