package service

import (
	"context"
	"errors"
	"log/slog"
	"maps"
	"slices"

	"github.com/CZERTAINLY/Plotter/internal/model"
)

// Diff is the outcome of one reconciliation pass.
type Diff struct {
	Added   []int
	Removed []int
}

// Empty reports whether the pass changed nothing.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// Reconciler keeps the supervised jobs in sync with the config file.
//
// Each pass compares the identifiers of the current config with the ones of
// the previous pass: new identifiers are added to the Store, missing ones are
// removed (disabled). The status file is written after every pass.
type Reconciler struct {
	watch   *model.FileWatch
	store   *Store
	status  *StatusWriter
	current map[int]model.Job
}

func NewReconciler(configPath string, store *Store, status *StatusWriter) *Reconciler {
	return &Reconciler{
		watch:   model.NewFileWatch(configPath),
		store:   store,
		status:  status,
		current: make(map[int]model.Job),
	}
}

// Pass runs a single reconciliation. An unreadable or malformed config file
// keeps the previous baseline, the status is written anyway.
func (r *Reconciler) Pass(ctx context.Context) (Diff, error) {
	diff, err := r.reconcile(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "reading job config failed: keeping previous jobs", "error", err)
	}
	if werr := r.status.Write(ctx); werr != nil {
		slog.ErrorContext(ctx, "status write failed", "error", werr)
		err = errors.Join(err, werr)
	}
	return diff, err
}

func (r *Reconciler) reconcile(ctx context.Context) (Diff, error) {
	var diff Diff
	changed, b, err := r.watch.Changed()
	if err != nil || !changed {
		return diff, err
	}
	cfg, err := model.ParseConfig(b)
	if err != nil {
		// a file caught mid-write may be completed without a visible mtime
		// or size change, so re-read it on the next pass
		r.watch.Reset()
		return diff, err
	}
	slog.DebugContext(ctx, "job config changed", "version", cfg.Version, "jobs", len(cfg.Jobs))

	for _, id := range slices.Sorted(maps.Keys(cfg.Jobs)) {
		if _, ok := r.current[id]; ok {
			continue
		}
		diff.Added = append(diff.Added, id)
		if err := r.store.Add(id, cfg.Jobs[id]); err != nil {
			slog.WarnContext(ctx, "job can't be added: ignoring", "job_id", id, "error", err)
			continue
		}
		slog.InfoContext(ctx, "job added", "job_id", id)
	}
	for _, id := range slices.Sorted(maps.Keys(r.current)) {
		if _, ok := cfg.Jobs[id]; ok {
			continue
		}
		diff.Removed = append(diff.Removed, id)
		if !r.store.Remove(id) {
			slog.WarnContext(ctx, "job to remove not known: ignoring", "job_id", id)
			continue
		}
		slog.InfoContext(ctx, "job removed: supervision stops, a running plot is left to finish", "job_id", id)
	}

	r.current = cfg.Jobs
	return diff, nil
}

// Jobs returns the identifiers of the current baseline.
func (r *Reconciler) Jobs() []int {
	return slices.Sorted(maps.Keys(r.current))
}
