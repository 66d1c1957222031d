package model

import "time"

// State is the lifecycle state of a supervised job.
//
// NOTE: values are persisted in the status file.
type State string

const (
	StatePending     State = "Pending"
	StateLaunching   State = "Launching"
	StateRunning     State = "Running"
	StateRelaunching State = "Relaunching"
	StateDone        State = "Done"
	StateDisabled    State = "Disabled"
	StateFailed      State = "Failed"
)

// Terminal reports whether a Monitor stops supervising a job in this state.
func (s State) Terminal() bool {
	switch s {
	case StateDone, StateDisabled, StateFailed:
		return true
	default:
		return false
	}
}

const (
	NoPID           = -1
	UnknownProgress = -1
)

// JobStatus is the observed state of one job. The process handle itself is
// never a part of it.
type JobStatus struct {
	Status             State      `json:"status" yaml:"status"`
	ProgressPercentage float64    `json:"progressPercentage" yaml:"progressPercentage"`
	ProcessID          int        `json:"processId" yaml:"processId"`
	Running            bool       `json:"running" yaml:"running"`
	OwnProcess         bool       `json:"ownProcess" yaml:"ownProcess"`
	RunCount           int        `json:"runCount" yaml:"runCount"`
	Enabled            bool       `json:"enabled" yaml:"enabled"`
	LogFile            string     `json:"logFile,omitempty" yaml:"logFile,omitempty"`
	RunID              string     `json:"runId,omitempty" yaml:"runId,omitempty"`
	StartedAt          *time.Time `json:"startedAt,omitempty" yaml:"startedAt,omitempty"`
	EndedAt            *time.Time `json:"endedAt,omitempty" yaml:"endedAt,omitempty"`
	LastError          string     `json:"lastError,omitempty" yaml:"lastError,omitempty"`
}

// NewJobStatus returns the status of a freshly added job.
func NewJobStatus() JobStatus {
	return JobStatus{
		Status:             StatePending,
		ProgressPercentage: UnknownProgress,
		ProcessID:          NoPID,
		Enabled:            true,
	}
}
