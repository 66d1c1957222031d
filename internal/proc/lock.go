package proc

import "errors"

// ErrLocked is returned by Lock when another process holds the lock.
var ErrLocked = errors.New("locked by another process")

// FileLock is an exclusive advisory lock of a file.
type FileLock struct {
	path   string
	unlock func() error
}

func (l *FileLock) Path() string {
	return l.path
}

// Unlock releases the lock, the lock file itself stays.
func (l *FileLock) Unlock() error {
	if l == nil || l.unlock == nil {
		return nil
	}
	err := l.unlock()
	l.unlock = nil
	return err
}
