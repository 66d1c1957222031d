package service

// Package service implements supervision of plotter jobs.
//
// Overview
// The Supervisor owns a Store of job records keyed by job identifier. The
// Reconciler polls the job config file and adds new jobs to the Store or
// disables removed ones. Every added job gets its own Monitor, which launches
// the plotter through a proc.Launcher, polls the process and relaunches it
// until the job plot count is reached.
//
// Data flow:
//
//   config file        Reconciler          Store              Monitor{id}
//       |                  |                 |                     |
//       |<-- poll ---------|                 |                     |
//       |                  | Add(id) ------->| start hook -------->| Run()
//       |                  | Remove(id) ---->| enabled=false       | launch/poll/relaunch
//       |                  |                 |<------ update ------|
//       |                  | StatusWriter <--| Snapshot            |
//   status file <----------|                 |                     |
//
// On startup the previous status file is restored and persisted pids are
// matched against the OS process table. A matching plotter is re-attached to
// its job without increasing the run count.
//
// Invariants:
//   - At most one Monitor per job identifier.
//   - A Monitor is the only writer of its job status, the Reconciler only
//     clears the Enabled flag.
//   - Run count grows by one per successful launch and never exceeds the
//     plot count.
//   - No plotter process is ever killed by the supervisor.
//   - The status file is replaced atomically and its version grows by one per
//     write.
//
// internal/service/supervisor_test.go is the best source about how to properly
// use the Supervisor struct.
