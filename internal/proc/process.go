package proc

import (
	"context"
	"errors"
	"slices"
	"strconv"
	"strings"
)

// JobIDEnv tags every launched process with the identifier of its job.
const JobIDEnv = "PLOTTER_JOB_ID"

var ErrNotRunning = errors.New("process is not running")

// Process is a handle of an external process.
type Process interface {
	Pid() int
	// Exited reports whether the process has terminated.
	Exited() bool
	// Progress returns a best-effort completion estimate in percent,
	// -1 when unknown.
	Progress() float64
	// Release frees resources held by the handle. It never kills the process.
	Release() error
}

// Launcher starts new external processes.
type Launcher interface {
	Launch(ctx context.Context, cmd Command) (Process, error)
}

// Command describes one run of the external executable.
type Command struct {
	Path    string
	Args    []string
	Env     []string
	Dir     string
	LogFile string
}

// JobEnv returns the environment entry tagging a process with jobID.
func JobEnv(jobID int) string {
	return JobIDEnv + "=" + strconv.Itoa(jobID)
}

// Info is what the process table knows about a live process.
type Info struct {
	Pid     int
	Cmdline []string
	// Env is nil when the environment of the process can't be read.
	Env []string
}

// Matches reports whether the process is the plotter run of jobID. The
// JobIDEnv tag decides when the environment is readable. Otherwise the
// command line has to contain the executable name and the create subcommand.
func (i Info) Matches(jobID int, exeName string) bool {
	if i.Env != nil {
		for _, e := range i.Env {
			if v, ok := strings.CutPrefix(e, JobIDEnv+"="); ok {
				return v == strconv.Itoa(jobID)
			}
		}
		// readable env without a tag: started by something else, or by
		// an older supervisor, so fall through to the command line
	}

	if exeName == "" || !slices.Contains(i.Cmdline, "create") {
		return false
	}
	for _, arg := range i.Cmdline {
		if strings.Contains(arg, exeName) {
			return true
		}
	}
	return false
}
