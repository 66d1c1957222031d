package service

import (
	"context"
	"log/slog"

	"github.com/CZERTAINLY/Plotter/internal/model"
	"github.com/CZERTAINLY/Plotter/internal/parallel"
	"github.com/CZERTAINLY/Plotter/internal/proc"
)

const lookupWorkers = 8

// ProcessTable is a view of the OS process table.
type ProcessTable interface {
	Lookup(ctx context.Context, pid int) (proc.Info, bool)
	Attach(ctx context.Context, pid int) (proc.Process, error)
}

// Reattach recovers processes started by a previous supervisor instance. It
// must run after Restore and before any job is added. exeName returns the
// expected executable name of a job.
//
// Entries whose persisted pid still belongs to their plotter run get the
// process attached and keep their run count. The others lose their pid and
// wait in Pending for a new launch.
func (s *Store) Reattach(ctx context.Context, table ProcessTable, exeName func(id int) string) []int {
	type found struct {
		r *record
		p proc.Process
	}
	var candidates []*record
	for _, r := range s.records() {
		if r.enabled.Load() {
			candidates = append(candidates, r)
		}
	}

	// every lookup reads the process files, run them in parallel
	lookups := parallel.NewMap(ctx, lookupWorkers, func(ctx context.Context, r *record) (found, error) {
		return found{r: r, p: s.lookup(ctx, table, r.id, r.Status().ProcessID, exeName(r.id))}, nil
	})
	matches := make(map[int]proc.Process, len(candidates))
	for f := range lookups.Iter(parallel.Slice(candidates)) {
		if f.p != nil {
			matches[f.r.id] = f.p
		}
	}

	var attached []int
	for _, r := range candidates {
		p, ok := matches[r.id]
		if !ok {
			r.update(func(st *model.JobStatus) {
				st.Running = false
				st.ProcessID = model.NoPID
				st.OwnProcess = false
				st.ProgressPercentage = model.UnknownProgress
				if st.Status != model.StateDone {
					st.Status = model.StatePending
				}
			})
			continue
		}

		s.mx.Lock()
		r.proc = p
		s.mx.Unlock()
		st := r.update(func(st *model.JobStatus) {
			st.Status = model.StateRunning
			st.Running = true
			st.OwnProcess = false
			st.ProgressPercentage = model.UnknownProgress
		})
		attached = append(attached, r.id)
		slog.InfoContext(ctx, "re-attached to running plotter", "job_id", r.id, "pid", p.Pid(), "run_count", st.RunCount)
	}
	return attached
}

func (s *Store) lookup(ctx context.Context, table ProcessTable, id, pid int, exeName string) proc.Process {
	if pid <= 0 {
		return nil
	}
	info, ok := table.Lookup(ctx, pid)
	if !ok {
		slog.DebugContext(ctx, "persisted process is gone", "job_id", id, "pid", pid)
		return nil
	}
	if !info.Matches(id, exeName) {
		slog.WarnContext(ctx, "persisted pid belongs to another process: ignoring", "job_id", id, "pid", pid, "cmdline", info.Cmdline)
		return nil
	}
	p, err := table.Attach(ctx, pid)
	if err != nil {
		slog.WarnContext(ctx, "can't attach to process", "job_id", id, "pid", pid, "error", err)
		return nil
	}
	return p
}
