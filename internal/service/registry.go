package service

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/CZERTAINLY/Plotter/internal/model"
	"github.com/CZERTAINLY/Plotter/internal/proc"
)

// record is the Store entry of one job.
//
// The status is published as an immutable value: its Monitor is the only
// writer and replaces the whole value on every change, so readers never block
// it. Enabled lives outside of the value because the Reconciler clears it.
type record struct {
	id      int
	status  atomic.Pointer[model.JobStatus]
	enabled atomic.Bool

	// fields below are guarded by Store.mx
	job        model.Job
	supervised bool
	// proc is a re-attached process waiting to be handed over to the Monitor
	proc proc.Process
}

func newRecord(id int, status model.JobStatus) *record {
	r := &record{id: id}
	r.enabled.Store(status.Enabled)
	r.status.Store(&status)
	return r
}

// Status returns a copy of the current status.
func (r *record) Status() model.JobStatus {
	s := *r.status.Load()
	s.Enabled = r.enabled.Load()
	return s
}

// update must only be called by the owner of the record status: the Monitor,
// or the Supervisor before the Monitor starts.
func (r *record) update(fn func(*model.JobStatus)) model.JobStatus {
	s := *r.status.Load()
	fn(&s)
	r.status.Store(&s)
	s.Enabled = r.enabled.Load()
	return s
}

// Store keeps the status of every job ever seen, keyed by job identifier.
// The mutex guards the map structure only.
type Store struct {
	mx    sync.Mutex
	jobs  map[int]*record
	start startFunc
}

// startFunc starts supervision of an added job. attached is the process the
// job was re-attached to, nil when there is none.
type startFunc func(r *record, attached proc.Process)

// NewStore returns an empty Store. start is called for every added job, once
// the job is registered, and is expected to run a Monitor for it.
func NewStore(start startFunc) *Store {
	if start == nil {
		start = func(*record, proc.Process) {}
	}
	return &Store{
		jobs:  make(map[int]*record),
		start: start,
	}
}

// Restore seeds the Store from a persisted status document. Restored entries
// are not supervised until they are added again.
func (s *Store) Restore(status *model.StatusFile) {
	if status == nil {
		return
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	for id, st := range status.Jobs {
		if _, ok := s.jobs[id]; ok {
			continue
		}
		// a process handle is never persisted
		st.OwnProcess = false
		if !st.Enabled {
			// nobody watches the process of a disabled job any more
			st = unwatched(st)
		}
		s.jobs[id] = newRecord(id, st)
	}
}

// Add registers the job and starts its supervision. A restored entry keeps its
// history, a supervised one is an error.
func (s *Store) Add(id int, job model.Job) error {
	s.mx.Lock()
	r, ok := s.jobs[id]
	switch {
	case ok && r.supervised:
		s.mx.Unlock()
		return fmt.Errorf("job %d: %w", id, model.ErrJobExists)
	case ok:
		r.update(func(st *model.JobStatus) {
			st.LastError = ""
			if r.proc != nil {
				return
			}
			st.Running = false
			st.ProcessID = model.NoPID
			if st.Status != model.StateDone {
				st.Status = model.StatePending
			}
		})
	default:
		r = newRecord(id, model.NewJobStatus())
		s.jobs[id] = r
	}
	r.job = job
	r.supervised = true
	r.enabled.Store(true)
	attached := r.proc
	r.proc = nil
	s.mx.Unlock()

	s.start(r, attached)
	return nil
}

// Remove clears the Enabled flag of the job. The entry and its history stay,
// a running process is left alone.
func (s *Store) Remove(id int) bool {
	s.mx.Lock()
	defer s.mx.Unlock()
	r, ok := s.jobs[id]
	if !ok {
		return false
	}
	r.enabled.Store(false)
	return true
}

// DisableUnsupervised clears the Enabled flag of every entry which was
// restored but not added, i.e. jobs removed while the supervisor was down.
// Their process is not tracked any more, so the pid is dropped.
func (s *Store) DisableUnsupervised() []int {
	s.mx.Lock()
	defer s.mx.Unlock()
	var ids []int
	for id, r := range s.jobs {
		if r.supervised || !r.enabled.Load() {
			continue
		}
		r.enabled.Store(false)
		if r.proc != nil {
			_ = r.proc.Release()
			r.proc = nil
		}
		r.update(func(st *model.JobStatus) {
			if !st.Status.Terminal() {
				st.Status = model.StateDisabled
			}
			*st = unwatched(*st)
		})
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// unwatched clears the process fields of a job no Monitor will ever observe.
func unwatched(st model.JobStatus) model.JobStatus {
	st.Running = false
	st.ProcessID = model.NoPID
	st.ProgressPercentage = model.UnknownProgress
	return st
}

// Get returns the status of a job.
func (s *Store) Get(id int) (model.JobStatus, bool) {
	s.mx.Lock()
	r, ok := s.jobs[id]
	s.mx.Unlock()
	if !ok {
		return model.JobStatus{}, false
	}
	return r.Status(), true
}

// IDs returns the sorted identifiers of all entries.
func (s *Store) IDs() []int {
	s.mx.Lock()
	defer s.mx.Unlock()
	return slices.Sorted(maps.Keys(s.jobs))
}

// Snapshot returns a point-in-time copy of all statuses. The lock is held
// only while collecting the entries.
func (s *Store) Snapshot() map[int]model.JobStatus {
	s.mx.Lock()
	records := make([]*record, 0, len(s.jobs))
	for _, r := range s.jobs {
		records = append(records, r)
	}
	s.mx.Unlock()

	out := make(map[int]model.JobStatus, len(records))
	for _, r := range records {
		out[r.id] = r.Status()
	}
	return out
}

// records returns the entries, sorted by identifier.
func (s *Store) records() []*record {
	s.mx.Lock()
	defer s.mx.Unlock()
	out := make([]*record, 0, len(s.jobs))
	for _, id := range slices.Sorted(maps.Keys(s.jobs)) {
		out = append(out, s.jobs[id])
	}
	return out
}
