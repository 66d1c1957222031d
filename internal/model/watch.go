package model

import (
	"fmt"
	"os"
	"time"

	"github.com/zeebo/xxh3"
)

// FileWatch detects changes of a file between two calls of Changed. The
// cheap check is modification time and size, the content hash guards against
// touch-only updates.
type FileWatch struct {
	path    string
	modTime time.Time
	size    int64
	hash    uint64
	seen    bool
}

func NewFileWatch(path string) *FileWatch {
	return &FileWatch{path: path}
}

// Changed returns the new file content when the file differs from the one
// seen by the previous call. The first call always reports a change.
func (w *FileWatch) Changed() (bool, []byte, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return false, nil, fmt.Errorf("stat %s: %w", w.path, err)
	}
	if w.seen && info.ModTime().Equal(w.modTime) && info.Size() == w.size {
		return false, nil, nil
	}

	b, err := os.ReadFile(w.path)
	if err != nil {
		return false, nil, fmt.Errorf("read %s: %w", w.path, err)
	}
	hash := xxh3.Hash(b)
	changed := !w.seen || hash != w.hash

	w.modTime = info.ModTime()
	w.size = info.Size()
	w.hash = hash
	w.seen = true
	if !changed {
		return false, nil, nil
	}
	return true, b, nil
}

// Reset makes the next Changed call report a change.
func (w *FileWatch) Reset() {
	w.seen = false
}
