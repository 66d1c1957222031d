package proc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// Exec launches processes with os/exec.
type Exec struct{}

func (Exec) Launch(ctx context.Context, cmd Command) (Process, error) {
	l, err := Launch(ctx, cmd)
	if err != nil {
		return nil, err
	}
	return l, nil
}

// Launched is a process started by this supervisor.
type Launched struct {
	mx       sync.RWMutex
	cmd      *exec.Cmd
	state    *os.ProcessState
	err      error
	done     chan struct{}
	progress *PhaseReader
}

// Launch starts the process with stdout and stderr appended to cmd.LogFile.
// The process gets its own process group and is not bound to ctx, so it
// survives both the cancellation and the exit of the supervisor.
// A wait goroutine reaps the process once it exits.
func Launch(ctx context.Context, proto Command) (*Launched, error) {
	if proto.Path == "" {
		return nil, errors.New("command path is empty")
	}
	if proto.LogFile == "" {
		return nil, errors.New("command log file is empty")
	}
	if err := os.MkdirAll(filepath.Dir(proto.LogFile), 0755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	logFile, err := os.OpenFile(proto.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	// the child holds its own descriptor once started
	defer func() {
		_ = logFile.Close()
	}()

	cmd := exec.Command(proto.Path, proto.Args...)
	cmd.Dir = proto.Dir
	cmd.Env = append(os.Environ(), proto.Env...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	detach(cmd)

	l := &Launched{
		cmd:      cmd,
		done:     make(chan struct{}),
		progress: NewPhaseReader(proto.LogFile),
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	slog.DebugContext(ctx, "process started", "path", proto.Path, "pid", cmd.Process.Pid, "log_file", proto.LogFile)

	go l.wait()
	return l, nil
}

func (l *Launched) wait() {
	err := l.cmd.Wait()

	l.mx.Lock()
	defer l.mx.Unlock()
	l.state = l.cmd.ProcessState
	l.err = err
	close(l.done)
}

func (l *Launched) Pid() int {
	return l.cmd.Process.Pid
}

func (l *Launched) Exited() bool {
	select {
	case <-l.done:
		return true
	default:
		return false
	}
}

func (l *Launched) Progress() float64 {
	return l.progress.Progress()
}

// Result returns the exit state, nil while the process runs.
func (l *Launched) Result() (*os.ProcessState, error) {
	l.mx.RLock()
	defer l.mx.RUnlock()
	return l.state, l.err
}

// Release returns the process exit error, if any. A running process is left
// alone.
func (l *Launched) Release() error {
	if !l.Exited() {
		return nil
	}
	_, err := l.Result()
	return err
}
