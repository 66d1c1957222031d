//go:build linux || darwin || freebsd || netbsd || openbsd

package proc

import (
	"os/exec"
	"syscall"
)

// detach moves the child into its own process group, so a Ctrl-C sent to the
// supervisor's terminal does not reach the plotter.
func detach(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
