package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	gocron "github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/CZERTAINLY/Plotter/internal/model"
	"github.com/CZERTAINLY/Plotter/internal/proc"
)

type Supervisor struct {
	cfg      Config
	launcher proc.Launcher
	table    func(context.Context) (ProcessTable, error)
	adm      Admission

	store  *Store
	status *StatusWriter

	mx    sync.Mutex
	group *errgroup.Group
	gctx  context.Context
}

func NewSupervisor(cfg Config) *Supervisor {
	s := &Supervisor{
		cfg:      cfg,
		launcher: proc.Exec{},
		table: func(ctx context.Context) (ProcessTable, error) {
			table, err := proc.ScanTable(ctx)
			if err != nil {
				return nil, err
			}
			slog.DebugContext(ctx, "process table scanned", "processes", table.Len())
			return table, nil
		},
	}
	if cfg.MaxParallel > 0 {
		s.adm.Slots = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}
	if cfg.LaunchStagger > 0 {
		s.adm.Stagger = rate.NewLimiter(rate.Every(cfg.LaunchStagger), 1)
	}
	s.store = NewStore(s.startMonitor)
	return s
}

// WithLauncher changes how external processes are started.
// This method exists for a unit testing only.
func (s *Supervisor) WithLauncher(l proc.Launcher) *Supervisor {
	s.launcher = l
	return s
}

// WithProcessTable changes the source of the OS process table.
// This method exists for a unit testing only.
func (s *Supervisor) WithProcessTable(fn func(context.Context) (ProcessTable, error)) *Supervisor {
	s.table = fn
	return s
}

// Store returns the job records of the supervisor.
func (s *Supervisor) Store() *Store {
	return s.store
}

// Do runs the supervisor until ctx is cancelled.
//
// Startup: the config file must exist, the status file is locked against other
// supervisors, restored and the
// persisted processes re-attached. The first reconciliation pass runs before
// any loop starts and adds every configured job, which starts its Monitor.
// Afterwards a pass runs every ConfigPollInterval.
//
// Shutdown: the scheduler waits for an in-flight pass, monitors return within
// one poll interval, then the status is written one last time.
func (s *Supervisor) Do(ctx context.Context) error {
	slog.DebugContext(ctx, "starting a supervisor")

	cfg, err := model.LoadConfig(s.cfg.ConfigFile)
	if err != nil {
		return err
	}
	if len(cfg.Jobs) == 0 {
		slog.WarnContext(ctx, "no jobs found", "path", s.cfg.ConfigFile)
	}
	lock, err := proc.Lock(s.cfg.StatusFile + ".lock")
	if err != nil {
		return fmt.Errorf("another supervisor uses the status file: %w", err)
	}
	defer func() {
		_ = lock.Unlock()
	}()
	slog.DebugContext(ctx, "status file locked", "lock", lock.Path())
	statusDoc, err := model.ReadStatus(s.cfg.StatusFile)
	if err != nil {
		return fmt.Errorf("restoring status: %w", err)
	}

	s.store.Restore(statusDoc)
	slog.DebugContext(ctx, "status restored", "version", statusDoc.Version, "job_ids", s.store.IDs())
	s.reattach(ctx, cfg)
	s.status = NewStatusWriter(s.cfg.StatusFile, s.store, statusDoc.Version)
	reconciler := NewReconciler(s.cfg.ConfigFile, s.store, s.status)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	s.mx.Lock()
	s.group, s.gctx = g, gctx
	s.mx.Unlock()

	diff, err := reconciler.Pass(gctx)
	if err != nil {
		cancel()
		return errors.Join(fmt.Errorf("initial reconciliation: %w", err), s.wait(ctx))
	}
	slog.InfoContext(ctx, "supervising jobs", "jobs", len(diff.Added), "job_ids", reconciler.Jobs())
	if ids := s.store.DisableUnsupervised(); len(ids) > 0 {
		slog.InfoContext(ctx, "jobs removed while stopped: disabled", "job_ids", ids)
	}

	scheduler, err := newScheduler(s.cfg, func() {
		_, _ = reconciler.Pass(gctx)
	})
	if err != nil {
		cancel()
		return errors.Join(err, s.wait(ctx))
	}
	scheduler.Start()

	<-gctx.Done()
	slog.InfoContext(ctx, "shutting down supervisor")

	var errs []error
	if err := scheduler.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("shutting down gocron: %w", err))
	}
	errs = append(errs, s.wait(ctx))
	return errors.Join(errs...)
}

// wait waits for all monitors and writes the final status.
func (s *Supervisor) wait(ctx context.Context) error {
	_ = s.group.Wait() // monitors do not return an error
	err := s.status.Write(context.WithoutCancel(ctx))
	if err != nil {
		slog.ErrorContext(ctx, "final status write failed", "error", err)
		return err
	}
	slog.InfoContext(ctx, "final status written", "path", s.cfg.StatusFile, "version", s.status.Version())
	return nil
}

func (s *Supervisor) reattach(ctx context.Context, cfg *model.ConfigFile) {
	table, err := s.table(ctx)
	if err != nil {
		slog.WarnContext(ctx, "can't read process table: skipping re-attachment", "error", err)
		return
	}
	exeName := func(id int) string {
		if job, ok := cfg.Jobs[id]; ok && job.ChiaExe != "" {
			return model.ExeName(job.ChiaExe)
		}
		return model.ExeName(s.cfg.ChiaExe)
	}
	ids := s.store.Reattach(ctx, table, exeName)
	slog.DebugContext(ctx, "re-attachment finished", "job_ids", ids)
}

func (s *Supervisor) startMonitor(r *record, attached proc.Process) {
	s.mx.Lock()
	g, ctx := s.group, s.gctx
	s.mx.Unlock()
	if g == nil {
		slog.Warn("supervisor not running: job not monitored", "job_id", r.id)
		return
	}

	m := newMonitor(r, r.job, attached, MonitorOptions{
		Poll:      s.cfg.MonitorPollInterval,
		ChiaExe:   s.cfg.ChiaExe,
		LogDir:    s.cfg.LogDir,
		Launcher:  s.launcher,
		Admission: s.adm,
	})
	g.Go(func() error {
		m.Run(ctx)
		return nil
	})
}

func newScheduler(cfg Config, pass func()) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(cfg.ConfigPollInterval),
		gocron.NewTask(pass),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return s, nil
}
