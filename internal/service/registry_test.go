package service

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CZERTAINLY/Plotter/internal/model"
	"github.com/CZERTAINLY/Plotter/internal/proc"
)

type startRecorder struct {
	mx       sync.Mutex
	ids      []int
	attached map[int]proc.Process
}

func (s *startRecorder) start(r *record, p proc.Process) {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.ids = append(s.ids, r.id)
	if s.attached == nil {
		s.attached = make(map[int]proc.Process)
	}
	s.attached[r.id] = p
}

func (s *startRecorder) started() []int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return append([]int(nil), s.ids...)
}

func TestStore(t *testing.T) {
	t.Parallel()
	var rec startRecorder
	store := NewStore(rec.start)

	require.NoError(t, store.Add(1, testJob(1)))
	require.NoError(t, store.Add(2, testJob(1)))
	err := store.Add(1, testJob(1))
	require.ErrorIs(t, err, model.ErrJobExists)
	require.Equal(t, []int{1, 2}, rec.started())
	require.Equal(t, []int{1, 2}, store.IDs())

	st, ok := store.Get(1)
	require.True(t, ok)
	require.Equal(t, model.NewJobStatus(), st)

	require.True(t, store.Remove(2))
	require.False(t, store.Remove(3))
	st, ok = store.Get(2)
	require.True(t, ok)
	require.False(t, st.Enabled)

	_, ok = store.Get(3)
	require.False(t, ok)

	snap := store.Snapshot()
	require.Len(t, snap, 2)
	require.True(t, snap[1].Enabled)
	require.False(t, snap[2].Enabled)
}

func TestStoreRestore(t *testing.T) {
	t.Parallel()
	var rec startRecorder
	store := NewStore(rec.start)

	doc := model.NewStatusFile()
	doc.Jobs[1] = model.JobStatus{
		Status:     model.StateRelaunching,
		ProcessID:  4242,
		Running:    true,
		OwnProcess: true,
		RunCount:   3,
		Enabled:    true,
		LastError:  "exit status 1",
	}
	doc.Jobs[2] = model.JobStatus{Status: model.StateDone, RunCount: 2, ProcessID: model.NoPID, Enabled: true}
	doc.Jobs[3] = model.JobStatus{Status: model.StateRunning, RunCount: 1, ProcessID: 77, Running: true, Enabled: true}
	doc.Jobs[4] = model.JobStatus{Status: model.StateDisabled, RunCount: 1, ProcessID: 88, Running: true, ProgressPercentage: 40}
	store.Restore(doc)

	st4, _ := store.Get(4)
	require.False(t, st4.Running, "a disabled job keeps no pid")
	require.Equal(t, model.NoPID, st4.ProcessID)
	require.Equal(t, float64(model.UnknownProgress), st4.ProgressPercentage)

	st, ok := store.Get(1)
	require.True(t, ok)
	require.False(t, st.OwnProcess)
	require.Empty(t, rec.started(), "restored jobs are not supervised")

	require.NoError(t, store.Add(1, testJob(5)))
	require.NoError(t, store.Add(2, testJob(2)))
	st, _ = store.Get(1)
	require.Equal(t, 3, st.RunCount)
	require.Equal(t, model.StatePending, st.Status)
	require.False(t, st.Running)
	require.Equal(t, model.NoPID, st.ProcessID)
	require.Empty(t, st.LastError)
	st, _ = store.Get(2)
	require.Equal(t, model.StateDone, st.Status)

	require.Equal(t, []int{3}, store.DisableUnsupervised())
	st, _ = store.Get(3)
	require.False(t, st.Enabled)
	require.Equal(t, model.StateDisabled, st.Status)
	require.Equal(t, 1, st.RunCount)
	require.False(t, st.Running)
	require.Equal(t, model.NoPID, st.ProcessID)
	require.Empty(t, store.DisableUnsupervised())
}

func TestStoreReattach(t *testing.T) {
	t.Parallel()
	var rec startRecorder
	store := NewStore(rec.start)

	doc := model.NewStatusFile()
	doc.Jobs[1] = model.JobStatus{Status: model.StateRunning, ProcessID: 100, Running: true, RunCount: 2, Enabled: true}
	doc.Jobs[2] = model.JobStatus{Status: model.StateRunning, ProcessID: 200, Running: true, RunCount: 1, Enabled: true}
	doc.Jobs[3] = model.JobStatus{Status: model.StateRunning, ProcessID: 300, Running: true, RunCount: 1, Enabled: true}
	doc.Jobs[4] = model.JobStatus{Status: model.StateDisabled, ProcessID: 400, Running: true, RunCount: 1, Enabled: false}
	doc.Jobs[5] = model.JobStatus{Status: model.StateRunning, ProcessID: 500, Running: true, RunCount: 1, Enabled: true}
	store.Restore(doc)

	table := fakeTable{infos: map[int]proc.Info{
		100: {Pid: 100, Cmdline: []string{"/usr/bin/chia", "plots", "create"}, Env: []string{"HOME=/root", proc.JobEnv(1)}},
		// pid reused by a different job
		200: {Pid: 200, Cmdline: []string{"/usr/bin/chia", "plots", "create"}, Env: []string{proc.JobEnv(9)}},
		400: {Pid: 400, Cmdline: []string{"/usr/bin/chia", "plots", "create"}, Env: []string{proc.JobEnv(4)}},
		500: {Pid: 500, Cmdline: []string{"/usr/bin/chia", "plots", "create"}, Env: []string{proc.JobEnv(5)}},
	}}
	exeName := func(int) string { return "chia" }

	attached := store.Reattach(context.Background(), table, exeName)
	require.Equal(t, []int{1, 5}, attached)

	st, _ := store.Get(1)
	require.Equal(t, model.StateRunning, st.Status)
	require.True(t, st.Running)
	require.False(t, st.OwnProcess)
	require.Equal(t, 100, st.ProcessID)
	require.Equal(t, 2, st.RunCount)

	for _, id := range []int{2, 3} {
		st, _ := store.Get(id)
		require.Equal(t, model.StatePending, st.Status)
		require.False(t, st.Running)
		require.Equal(t, model.NoPID, st.ProcessID)
		require.Equal(t, 1, st.RunCount)
	}
	st, _ = store.Get(4)
	require.Equal(t, model.StateDisabled, st.Status)
	require.False(t, st.Running, "disabled jobs are not re-attached")
	require.Equal(t, model.NoPID, st.ProcessID)
	require.Equal(t, 1, st.RunCount)

	require.NoError(t, store.Add(1, testJob(3)))
	require.NoError(t, store.Add(2, testJob(3)))
	require.NotNil(t, rec.attached[1])
	require.Equal(t, 100, rec.attached[1].Pid())
	require.Nil(t, rec.attached[2])

	st, _ = store.Get(1)
	require.Equal(t, model.StateRunning, st.Status)
	require.Equal(t, 100, st.ProcessID)

	// job 5 was removed from the config while the supervisor was down
	p5 := store.jobs[5].proc.(*fakeProc)
	require.Equal(t, []int{3, 5}, store.DisableUnsupervised())
	st, _ = store.Get(5)
	require.Equal(t, model.StateDisabled, st.Status)
	require.False(t, st.Running)
	require.Equal(t, model.NoPID, st.ProcessID)
	require.True(t, p5.released.Load())
	require.False(t, p5.Exited(), "process must not be touched")
}
