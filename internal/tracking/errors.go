package tracking

import "errors"

var (
	// ErrBackendUnavailable means the storage target (filesystem root or
	// tracking server) is unreachable or unwritable.
	ErrBackendUnavailable = errors.New("tracking: backend unavailable")

	// ErrRunNotActive means a logging call was made without an active run.
	ErrRunNotActive = errors.New("tracking: no active run")

	// ErrRunAlreadyClosed means a closed run was asked to close again with a
	// different status.
	ErrRunAlreadyClosed = errors.New("tracking: run already closed")

	// ErrInvalidArgument means a logging or model call was malformed.
	ErrInvalidArgument = errors.New("tracking: invalid argument")
)
