package coordination

import "github.com/earn9/autopsy/internal/errors"

const (
	// Lock Errors
	ErrLockTimeout = errors.ErrLockTimeout
	ErrLockRelease = errors.ErrLockRelease

	// Service Errors
	ErrInvalidAddress = errors.ErrorCode("coordination_invalid_address")
	ErrSessionFailed  = errors.ErrorCode("coordination_session_failed")
	ErrUnavailable    = errors.ErrorCode("coordination_service_unavailable")
)
