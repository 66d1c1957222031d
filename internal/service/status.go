package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/CZERTAINLY/Plotter/internal/model"
)

// StatusWriter persists the Store to the status file.
type StatusWriter struct {
	mx      sync.Mutex
	path    string
	store   *Store
	version int
}

// NewStatusWriter continues the version sequence of a previously read
// status document.
func NewStatusWriter(path string, store *Store, version int) *StatusWriter {
	return &StatusWriter{
		path:    path,
		store:   store,
		version: version,
	}
}

// Write copies the Store and replaces the whole status file with the copy.
// Monitors are blocked only while the Store entries are collected.
func (w *StatusWriter) Write(ctx context.Context) error {
	jobs := w.store.Snapshot()

	w.mx.Lock()
	defer w.mx.Unlock()
	doc := &model.StatusFile{
		Version: w.version,
		Jobs:    jobs,
	}
	if err := model.WriteStatus(w.path, doc); err != nil {
		return fmt.Errorf("writing status file: %w", err)
	}
	w.version = doc.Version
	slog.DebugContext(ctx, "status written", "path", w.path, "version", doc.Version, "jobs", len(jobs))
	return nil
}

// Version returns the version of the last written document.
func (w *StatusWriter) Version() int {
	w.mx.Lock()
	defer w.mx.Unlock()
	return w.version
}
