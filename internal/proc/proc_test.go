package proc_test

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/CZERTAINLY/Plotter/internal/proc"

	"github.com/stretchr/testify/require"
)

func TestLaunch(t *testing.T) {
	t.Parallel()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skipf("skipped, binary sh not available: %v", err)
	}

	logFile := filepath.Join(t.TempDir(), "logs", "run.log")
	cmd := proc.Command{
		Path:    sh,
		Args:    []string{"-c", "echo job=$" + proc.JobIDEnv + "; echo oops 1>&2"},
		Env:     []string{proc.JobEnv(7)},
		LogFile: logFile,
	}

	l, err := proc.Launch(t.Context(), cmd)
	require.NoError(t, err)
	require.Greater(t, l.Pid(), 0)

	require.Eventually(t, l.Exited, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, l.Release())
	state, err := l.Result()
	require.NoError(t, err)
	require.Equal(t, 0, state.ExitCode())

	b, err := os.ReadFile(logFile)
	require.NoError(t, err)
	require.Contains(t, string(b), "job=7\n")
	require.Contains(t, string(b), "oops\n")
}

func TestLaunchErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	t.Run("exec error", func(t *testing.T) {
		_, err := proc.Launch(t.Context(), proc.Command{
			Path:    "does not exist",
			LogFile: filepath.Join(dir, "a.log"),
		})
		require.Error(t, err)
		var execErr *exec.Error
		require.ErrorAs(t, err, &execErr)
	})
	t.Run("no log file", func(t *testing.T) {
		_, err := proc.Launch(t.Context(), proc.Command{Path: "sh"})
		require.Error(t, err)
	})
	t.Run("exec launcher returns nil process", func(t *testing.T) {
		p, err := proc.Exec{}.Launch(t.Context(), proc.Command{
			Path:    "does not exist",
			LogFile: filepath.Join(dir, "b.log"),
		})
		require.Error(t, err)
		require.Nil(t, p)
	})
}

func TestReleaseKeepsRunningProcess(t *testing.T) {
	t.Parallel()
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skipf("skipped, binary sleep not available: %v", err)
	}

	l, err := proc.Launch(t.Context(), proc.Command{
		Path:    sleep,
		Args:    []string{"0.3"},
		LogFile: filepath.Join(t.TempDir(), "sleep.log"),
	})
	require.NoError(t, err)
	require.False(t, l.Exited())
	require.NoError(t, l.Release())
	require.False(t, l.Exited())
	require.Eventually(t, l.Exited, 5*time.Second, 20*time.Millisecond)
}

func TestInfoMatches(t *testing.T) {
	t.Parallel()
	type given struct {
		info  proc.Info
		jobID int
	}
	cases := []struct {
		scenario string
		given    given
		then     bool
	}{
		{"env_tag", given{proc.Info{Env: []string{"HOME=/root", "PLOTTER_JOB_ID=3"}}, 3}, true},
		{"env_tag_other_job", given{proc.Info{
			Env:     []string{"PLOTTER_JOB_ID=4"},
			Cmdline: []string{"/opt/chia", "plots", "create"},
		}, 3}, false},
		{"env_without_tag_cmdline", given{proc.Info{
			Env:     []string{"HOME=/root"},
			Cmdline: []string{"/opt/chia", "plots", "create"},
		}, 3}, true},
		{"no_env_cmdline", given{proc.Info{Cmdline: []string{"/opt/chia", "plots", "create", "-n", "1"}}, 3}, true},
		{"no_env_no_create", given{proc.Info{Cmdline: []string{"/opt/chia", "plots", "check"}}, 3}, false},
		{"no_env_other_exe", given{proc.Info{Cmdline: []string{"/usr/bin/vim", "create"}}, 3}, false},
		{"nothing", given{proc.Info{}, 3}, false},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			require.Equal(t, tc.then, tc.given.info.Matches(tc.given.jobID, "chia"))
		})
	}
}

func TestPhaseReader(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "plot.log")
	r := proc.NewPhaseReader(path)
	require.Equal(t, float64(-1), r.Progress())

	appendLog(t, path, "Starting plotting progress into temporary dirs\nStarting phase 1/4: Forward Propagation\n")
	require.Equal(t, float64(0), r.Progress())

	appendLog(t, path, "Computing table 2\nStarting phase 3/4: Compr")
	require.Equal(t, float64(0), r.Progress(), "partial line is not consumed")

	appendLog(t, path, "ession from tmp files into final file\n")
	require.Equal(t, float64(50), r.Progress())

	appendLog(t, path, "Starting phase 4/4: Write Checkpoint tables\nCopied final file from x to y\n")
	require.Equal(t, float64(100), r.Progress())
}

func appendLog(t *testing.T, path, s string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	_, err = f.WriteString(s)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}
