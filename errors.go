package jobrunner

import "errors"

var (
	// Configuration errors.
	ErrInvalidConfig     = errors.New("jobrunner: invalid configuration")
	ErrBrokerUnavailable = errors.New("jobrunner: broker unavailable")
	ErrTaskNotRegistered = errors.New("jobrunner: task not registered")
	ErrInvalidWorkDir    = errors.New("jobrunner: work directory outside base dir")

	// Not found errors.
	ErrJobNotFound = errors.New("jobrunner: job not found")

	// Conflict errors.
	ErrJobAlreadyExists = errors.New("jobrunner: job already exists")

	// State errors.
	ErrInvalidState = errors.New("jobrunner: invalid state transition")

	// Queue errors.
	ErrQueueClosed = errors.New("jobrunner: queue closed")
)
