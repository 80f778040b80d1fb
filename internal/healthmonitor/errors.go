package healthmonitor

import "github.com/earn9/autopsy/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig     = errors.ErrInvalidConfig
	ErrInvalidMetricName = errors.ErrorCode("healthmonitor_invalid_metric_name")

	// Activation Errors
	ErrPrecondition = errors.ErrPrecondition
	ErrLockTimeout  = errors.ErrLockTimeout
	ErrLockRelease  = errors.ErrLockRelease

	// Storage Errors
	ErrDatabaseConnect = errors.ErrDatabaseConnect
	ErrDatabaseCreate  = errors.ErrorCode("healthmonitor_database_create_failed")
	ErrSchemaInit      = errors.ErrSchemaInit
	ErrWriteFailed     = errors.ErrWriteFailed
)
