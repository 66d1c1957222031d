// Package proc implements handles of external plotter processes.
//
// A handle is either launched by this supervisor (Launch) or attached to a
// process found in the OS process table (Table.Attach), typically one started
// by a previous supervisor instance. Handles never kill processes: a plot run
// takes hours, and a restarted supervisor is expected to re-attach to it.
//
//	Monitor                     Launched                    OS
//	   |  Launch(cmd) ------------>| exec.Start --------------->| child (own process group)
//	   |                           | stdout+stderr -> log file  |
//	   |  Exited()/Progress() ---->| wait goroutine reaps ------|
//	   |  Release() -------------->|                            |
//
// Launched processes carry JobIDEnv in their environment, which is what
// Info.Matches looks for when correlating persisted pids after a restart.
package proc
