package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/CZERTAINLY/Plotter/internal/log"
	"github.com/CZERTAINLY/Plotter/internal/model"
	"github.com/CZERTAINLY/Plotter/internal/proc"
)

// Admission limits launches of external processes. Both fields are
// optional and shared by all monitors.
type Admission struct {
	// Slots caps the number of concurrently running processes.
	Slots *semaphore.Weighted
	// Stagger spaces consecutive launches.
	Stagger *rate.Limiter
}

// MonitorOptions configure a Monitor.
type MonitorOptions struct {
	Poll      time.Duration
	ChiaExe   string
	LogDir    string
	Launcher  proc.Launcher
	Admission Admission
	Now       func() time.Time
}

// Monitor supervises a single job: it launches the plotter, waits for it to
// exit and relaunches it until the job has reached its plot count.
//
// The Monitor is the only writer of its job status. It never kills the
// process: neither when the job gets disabled (the current run is allowed to
// finish and keeps its admission slot) nor on shutdown (a restarted
// supervisor re-attaches to it).
type Monitor struct {
	rec  *record
	job  model.Job
	opts MonitorOptions

	proc     proc.Process
	own      bool
	slot     bool
	stopping bool
}

func newMonitor(rec *record, job model.Job, attached proc.Process, opts MonitorOptions) *Monitor {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Launcher == nil {
		opts.Launcher = proc.Exec{}
	}
	return &Monitor{
		rec:  rec,
		job:  job,
		opts: opts,
		proc: attached,
	}
}

// Run polls the job until it reaches a terminal state or ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ctx = log.ContextAttrs(ctx, slog.Int("job_id", m.rec.id))
	slog.DebugContext(ctx, "monitor started", "plot_count", m.job.PlotCount, "attached", m.proc != nil)

	if m.proc != nil && m.opts.Admission.Slots != nil {
		// an attached process runs regardless of the limit
		m.slot = m.opts.Admission.Slots.TryAcquire(1)
	}
	defer m.releaseSlot()

	ticker := time.NewTicker(m.opts.Poll)
	defer ticker.Stop()
	for {
		if m.step(ctx) {
			return
		}
		select {
		case <-ctx.Done():
			slog.DebugContext(ctx, "monitor stopped", "reason", ctx.Err())
			return
		case <-ticker.C:
		}
	}
}

// step evaluates the job once and reports whether the Monitor is done.
func (m *Monitor) step(ctx context.Context) bool {
	if !m.rec.enabled.Load() {
		return m.disabled(ctx)
	}

	running := m.proc != nil && !m.proc.Exited()
	if running {
		progress := float64(model.UnknownProgress)
		if m.own {
			progress = m.proc.Progress()
		}
		m.rec.update(func(st *model.JobStatus) {
			st.Status = model.StateRunning
			st.Running = true
			st.ProgressPercentage = progress
		})
		return false
	}

	if m.proc != nil {
		m.finish(ctx)
	}

	st := m.rec.Status()
	if st.RunCount >= m.job.PlotCount {
		m.rec.update(func(st *model.JobStatus) {
			st.Status = model.StateDone
			st.Running = false
			st.ProcessID = model.NoPID
			st.ProgressPercentage = model.UnknownProgress
		})
		slog.InfoContext(ctx, "job done", "run_count", st.RunCount)
		return true
	}

	return m.launch(ctx, st)
}

// disabled handles a job removed from the config. A running process is never
// killed: the Monitor keeps watching it, holding its admission slot, until it
// exits. No new run is launched.
func (m *Monitor) disabled(ctx context.Context) bool {
	if !m.stopping {
		m.stopping = true
		st := m.rec.update(func(st *model.JobStatus) {
			if !st.Status.Terminal() {
				st.Status = model.StateDisabled
			}
			st.ProgressPercentage = model.UnknownProgress
		})
		slog.InfoContext(ctx, "job disabled: no more runs", "status", st.Status, "pid", st.ProcessID)
	}
	if m.proc == nil {
		return true
	}
	if !m.proc.Exited() {
		return false
	}
	m.finish(ctx)
	slog.InfoContext(ctx, "job disabled: supervision stopped")
	return true
}

// finish releases the handle of an exited process.
func (m *Monitor) finish(ctx context.Context) {
	now := m.opts.Now().UTC()
	pid := m.proc.Pid()
	var elapsed time.Duration
	if started := m.rec.Status().StartedAt; started != nil {
		elapsed = now.Sub(*started)
	}
	err := m.proc.Release()
	if err != nil {
		slog.WarnContext(ctx, "plotter exited with error", "pid", pid, "runtime", elapsed, "error", err)
	} else {
		slog.InfoContext(ctx, "plotter exited", "pid", pid, "runtime", elapsed)
	}
	m.proc = nil
	m.own = false
	m.releaseSlot()

	m.rec.update(func(st *model.JobStatus) {
		st.Running = false
		st.ProcessID = model.NoPID
		st.OwnProcess = false
		st.ProgressPercentage = model.UnknownProgress
		st.EndedAt = &now
		if st.RunCount < m.job.PlotCount && st.Status != model.StateDisabled {
			st.Status = model.StateRelaunching
		}
		if err != nil {
			st.LastError = err.Error()
		}
	})
}

// launch starts the next run once admission allows it. It returns true when
// the launch failed, which stops the automatic progression of the job.
func (m *Monitor) launch(ctx context.Context, st model.JobStatus) bool {
	if ctx.Err() != nil {
		return false
	}
	if st.Status == model.StatePending {
		m.rec.update(func(st *model.JobStatus) {
			st.Status = model.StateLaunching
			st.Running = false
			st.ProgressPercentage = model.UnknownProgress
		})
	}
	if !m.admit() {
		return false
	}

	exe := m.job.ChiaExe
	if exe == "" {
		exe = m.opts.ChiaExe
	}
	runID := uuid.NewString()
	cmd := proc.Command{
		Path:    exe,
		Args:    m.job.Args(),
		Env:     []string{proc.JobEnv(m.rec.id)},
		LogFile: filepath.Join(m.opts.LogDir, fmt.Sprintf("job-%d-run-%d-%s.log", m.rec.id, st.RunCount+1, runID[:8])),
	}

	p, err := m.opts.Launcher.Launch(ctx, cmd)
	if err == nil && p == nil {
		err = errors.New("launcher returned no process")
	}
	if err != nil {
		m.releaseSlot()
		m.rec.update(func(st *model.JobStatus) {
			st.Status = model.StateFailed
			st.Running = false
			st.ProcessID = model.NoPID
			st.LastError = err.Error()
		})
		slog.ErrorContext(ctx, "plotter launch failed: job needs manual intervention", "path", exe, "error", err)
		return true
	}

	m.proc = p
	m.own = true
	now := m.opts.Now().UTC()
	st = m.rec.update(func(st *model.JobStatus) {
		st.Status = model.StateRunning
		st.Running = true
		st.OwnProcess = true
		st.ProcessID = p.Pid()
		st.RunCount++
		st.LogFile = cmd.LogFile
		st.RunID = runID
		st.StartedAt = &now
		st.EndedAt = nil
		st.ProgressPercentage = model.UnknownProgress
		st.LastError = ""
	})
	slog.InfoContext(ctx, "plotter launched", "pid", st.ProcessID, "run", st.RunCount, "log_file", st.LogFile)
	return false
}

func (m *Monitor) admit() bool {
	adm := m.opts.Admission
	if adm.Slots != nil {
		if !adm.Slots.TryAcquire(1) {
			return false
		}
		m.slot = true
	}
	if adm.Stagger != nil && !adm.Stagger.Allow() {
		m.releaseSlot()
		return false
	}
	return true
}

func (m *Monitor) releaseSlot() {
	if m.slot {
		m.opts.Admission.Slots.Release(1)
		m.slot = false
	}
}
