package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/CZERTAINLY/Plotter/internal/proc"
)

type fakeProc struct {
	pid      int
	exited   atomic.Bool
	released atomic.Bool
	err      error
}

func (p *fakeProc) Pid() int           { return p.pid }
func (p *fakeProc) Exited() bool       { return p.exited.Load() }
func (p *fakeProc) Progress() float64  { return 50 }
func (p *fakeProc) Release() error     { p.released.Store(true); return p.err }
func (p *fakeProc) exit()              { p.exited.Store(true) }
func (p *fakeProc) exitWith(err error) { p.err = err; p.exited.Store(true) }

type fakeLauncher struct {
	mx    sync.Mutex
	err   error
	next  int
	cmds  []proc.Command
	procs []*fakeProc
}

func newFakeLauncher() *fakeLauncher {
	return &fakeLauncher{next: 1000}
}

func (l *fakeLauncher) Launch(_ context.Context, cmd proc.Command) (proc.Process, error) {
	l.mx.Lock()
	defer l.mx.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	l.next++
	p := &fakeProc{pid: l.next}
	l.cmds = append(l.cmds, cmd)
	l.procs = append(l.procs, p)
	return p, nil
}

func (l *fakeLauncher) launched() int {
	l.mx.Lock()
	defer l.mx.Unlock()
	return len(l.procs)
}

func (l *fakeLauncher) last() *fakeProc {
	l.mx.Lock()
	defer l.mx.Unlock()
	if len(l.procs) == 0 {
		return nil
	}
	return l.procs[len(l.procs)-1]
}

type fakeTable struct {
	infos map[int]proc.Info
}

func (t fakeTable) Lookup(_ context.Context, pid int) (proc.Info, bool) {
	info, ok := t.infos[pid]
	return info, ok
}

func (t fakeTable) Attach(_ context.Context, pid int) (proc.Process, error) {
	if _, ok := t.infos[pid]; !ok {
		return nil, errors.New("no such process")
	}
	return &fakeProc{pid: pid}, nil
}
