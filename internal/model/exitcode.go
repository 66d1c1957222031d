package model

import "fmt"

// ExitCode is a process exit code of the plotter CLI. The numeric values are
// part of the command line contract.
type ExitCode int

const (
	ExitSuccess ExitCode = iota
	ExitHelp
	ExitUnknownAction
	ExitJobNotFound
	ExitNoJobsInConfig
	ExitJobConfigFileNotFound
	ExitFailure
)

func (c ExitCode) String() string {
	switch c {
	case ExitSuccess:
		return "Success"
	case ExitHelp:
		return "Help"
	case ExitUnknownAction:
		return "UnknownAction"
	case ExitJobNotFound:
		return "JobNotFound"
	case ExitNoJobsInConfig:
		return "NoJobsInConfig"
	case ExitJobConfigFileNotFound:
		return "JobConfigFileNotFound"
	case ExitFailure:
		return "Failure"
	default:
		return fmt.Sprintf("ExitCode(%d)", int(c))
	}
}
