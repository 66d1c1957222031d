package proc

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/shirou/gopsutil/v4/process"
)

// Table is a snapshot of the OS process table.
type Table struct {
	procs map[int]*process.Process
}

// ScanTable enumerates all processes visible to the supervisor.
func ScanTable(ctx context.Context) (*Table, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}
	t := &Table{procs: make(map[int]*process.Process, len(procs))}
	for _, p := range procs {
		t.procs[int(p.Pid)] = p
	}
	return t, nil
}

// Len returns the number of processes in the snapshot.
func (t *Table) Len() int {
	return len(t.procs)
}

// Lookup returns what is known about a live process.
func (t *Table) Lookup(ctx context.Context, pid int) (Info, bool) {
	p, ok := t.procs[pid]
	if !ok {
		return Info{}, false
	}
	info := Info{Pid: pid}
	if cmdline, err := p.CmdlineSliceWithContext(ctx); err == nil {
		info.Cmdline = cmdline
	}
	if env, err := p.EnvironWithContext(ctx); err == nil {
		if env == nil {
			env = []string{}
		}
		info.Env = env
	}
	return info, true
}

// Attach returns a handle of a process from the snapshot.
func (t *Table) Attach(ctx context.Context, pid int) (Process, error) {
	p, ok := t.procs[pid]
	if !ok {
		return nil, fmt.Errorf("pid %d: %w", pid, ErrNotRunning)
	}
	running, err := p.IsRunningWithContext(ctx)
	if err != nil || !running {
		return nil, fmt.Errorf("pid %d: %w", pid, ErrNotRunning)
	}
	return &Attached{p: p}, nil
}

// Attached is a process this supervisor did not start. Nothing is known
// about its output, so it reports no progress.
type Attached struct {
	mx     sync.Mutex
	p      *process.Process
	exited bool
}

func (a *Attached) Pid() int {
	return int(a.p.Pid)
}

// Exited reports true once the pid is gone, reused by another process, or
// left as a zombie. The result is sticky.
func (a *Attached) Exited() bool {
	a.mx.Lock()
	defer a.mx.Unlock()
	if a.exited {
		return true
	}
	running, err := a.p.IsRunning()
	if err != nil || !running {
		a.exited = true
		return true
	}
	if status, err := a.p.Status(); err == nil && slices.Contains(status, process.Zombie) {
		a.exited = true
	}
	return a.exited
}

func (a *Attached) Progress() float64 {
	return -1
}

func (a *Attached) Release() error {
	return nil
}
