package main

import (
	"errors"
	"strings"

	"github.com/CZERTAINLY/Plotter/internal/model"
)

// ExitError sets the exit code of the process. Err is nil when the message
// was already reported.
type ExitError struct {
	Code model.ExitCode
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Code.String()
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func exitCode(err error) model.ExitCode {
	var ee *ExitError
	switch {
	case err == nil:
		return model.ExitSuccess
	case errors.As(err, &ee):
		return ee.Code
	case errors.Is(err, model.ErrConfigNotFound):
		return model.ExitJobConfigFileNotFound
	case errors.Is(err, model.ErrJobNotFound):
		return model.ExitJobNotFound
	case strings.HasPrefix(err.Error(), "unknown command"):
		// cobra has no typed error for it
		return model.ExitUnknownAction
	default:
		return model.ExitFailure
	}
}

func usageError(err error) error {
	return &ExitError{Code: model.ExitHelp, Err: err}
}
