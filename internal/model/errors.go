package model

import (
	"errors"
)

var (
	ErrConfigNotFound = errors.New("job config file not found")
	ErrJobNotFound    = errors.New("job not found")
	ErrJobExists      = errors.New("job already exists")
	ErrMissingKeys    = errors.New("key fingerprint or farmer and pool public keys are required")
)
