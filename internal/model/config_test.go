package model_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/CZERTAINLY/Plotter/internal/model"

	"github.com/stretchr/testify/require"
)

func TestAddJobScenario(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), model.DefaultConfigFile)
	require.NoError(t, os.WriteFile(path, []byte(`{"version":0,"nextId":0,"jobs":{}}`), 0644))

	cfg, err := model.LoadConfig(path)
	require.NoError(t, err)
	id := cfg.Add(model.Job{Temp1Dir: "/t", PlotDir: "/p", KeyFingerprint: 123}.WithDefaults())
	require.Equal(t, 1, id)
	require.NoError(t, model.WriteConfig(path, cfg))

	got, err := model.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 1, got.Version)
	require.Equal(t, 1, got.NextID)
	require.Len(t, got.Jobs, 1)
	job := got.Jobs[1]
	require.Equal(t, "/t", job.Temp1Dir)
	require.Equal(t, "/p", job.PlotDir)
	require.Equal(t, int64(123), job.KeyFingerprint)
	require.Equal(t, model.DefaultThreadCount, job.ThreadCount)
	require.Equal(t, model.DefaultMaxRAMMB, job.MaxRAMMB)
	require.Equal(t, model.DefaultBucketCount, job.BucketCount)
	require.Equal(t, model.DefaultPlotCount, job.PlotCount)
}

func TestIdentifiersNeverReused(t *testing.T) {
	t.Parallel()
	cfg := model.NewConfigFile()
	job := model.Job{Temp1Dir: "/t", PlotDir: "/p", KeyFingerprint: 1}

	seen := make(map[int]struct{})
	for range 3 {
		id := cfg.Add(job)
		require.NotContains(t, seen, id)
		seen[id] = struct{}{}
	}
	require.NoError(t, cfg.Remove(3))
	require.NoError(t, cfg.Remove(2))

	id := cfg.Add(job)
	require.Equal(t, 4, id)

	err := cfg.Remove(99)
	require.ErrorIs(t, err, model.ErrJobNotFound)
}

func TestConfigRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := model.NewConfigFile()
	cfg.Version = 41
	cfg.Add(model.Job{
		ChiaExe:         "/opt/chia/chia",
		FarmerPublicKey: "farmer",
		PoolPublicKey:   "pool",
		Temp1Dir:        "/t1",
		Temp2Dir:        "/t2",
		PlotDir:         "/p",
		ThreadCount:     4,
		MaxRAMMB:        6000,
		BucketCount:     64,
		PlotCount:       10,
		QueueName:       "ssd",
		PlotParallelism: 2,
	})
	want := cfg.Jobs[1]

	require.NoError(t, model.WriteConfig(path, cfg))
	got, err := model.LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 42, got.Version)
	require.Equal(t, cfg.NextID, got.NextID)
	require.Equal(t, want, got.Jobs[1])
}

func TestStatusRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "status.json")
	started := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)

	status := model.NewStatusFile()
	status.Jobs[1] = model.JobStatus{
		Status:             model.StateRunning,
		ProgressPercentage: 50,
		ProcessID:          4242,
		Running:            true,
		OwnProcess:         true,
		RunCount:           3,
		Enabled:            true,
		LogFile:            "logs/job-1.log",
		RunID:              "run",
		StartedAt:          &started,
	}
	status.Jobs[2] = model.JobStatus{Status: model.StateDone, ProcessID: model.NoPID, RunCount: 5}

	require.NoError(t, model.WriteStatus(path, status))
	require.NoError(t, model.WriteStatus(path, status))

	got, err := model.ReadStatus(path)
	require.NoError(t, err)
	require.Equal(t, 2, got.Version)
	require.Equal(t, status.Jobs, got.Jobs)
}

func TestParseDocuments(t *testing.T) {
	t.Parallel()
	type then struct {
		jobs int
		err  bool
	}
	cases := []struct {
		scenario string
		given    string
		then     then
	}{
		{"no_jobs_field", `{"version":3,"nextId":7}`, then{0, false}},
		{"null_jobs", `{"version":3,"nextId":7,"jobs":null}`, then{0, false}},
		{"one_job", `{"version":3,"nextId":7,"jobs":{"7":{"temp1Dir":"/t","plotDir":"/p"}}}`, then{1, false}},
		{"malformed", `{"version":3,"nextId":`, then{0, true}},
		{"empty", "  \n", then{0, true}},
		{"bad_key", `{"jobs":{"x":{}}}`, then{0, true}},
	}

	for _, tc := range cases {
		t.Run(tc.scenario, func(t *testing.T) {
			cfg, err := model.ParseConfig([]byte(tc.given))
			if tc.then.err {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Len(t, cfg.Jobs, tc.then.jobs)
		})
	}
}

func TestParseConfigDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := model.ParseConfig([]byte(`{"jobs":{"1":{"temp1Dir":"/t","plotDir":"/p","plotCount":3}}}`))
	require.NoError(t, err)
	job := cfg.Jobs[1]
	require.Equal(t, 3, job.PlotCount)
	require.Equal(t, 2, job.ThreadCount)
	require.Equal(t, 4096, job.MaxRAMMB)
	require.Equal(t, 128, job.BucketCount)
}

func TestLoadConfigNotFound(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "missing.json")
	_, err := model.LoadConfig(path)
	require.ErrorIs(t, err, model.ErrConfigNotFound)

	cfg, err := model.ReadConfig(path)
	require.NoError(t, err)
	require.Empty(t, cfg.Jobs)
	require.Zero(t, cfg.Version)
}

func TestReadStatusMalformed(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	status, err := model.ReadStatus(filepath.Join(dir, "missing.json"))
	require.NoError(t, err)
	require.Empty(t, status.Jobs)

	path := filepath.Join(dir, "status.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"jobs":[`), 0644))
	_, err = model.ReadStatus(path)
	require.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`{"version":9}`), 0644))
	status, err = model.ReadStatus(path)
	require.NoError(t, err)
	require.Equal(t, 9, status.Version)
	require.NotNil(t, status.Jobs)
}
