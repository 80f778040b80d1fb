package healthmonitor

import (
	"time"

	"github.com/earn9/autopsy/internal/errors"
)

const (
	// DefaultWriteInterval is the period between database writes.
	DefaultWriteInterval = 1 * time.Minute
	// DefaultLockTimeout bounds distributed lock acquisition.
	DefaultLockTimeout = 5 * time.Minute
)

// DatabaseConfig carries the connection settings for the shared
// PostgreSQL server. Name is the monitor's own database, created on
// first activation.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
}

type Config struct {
	Database      DatabaseConfig
	WriteInterval time.Duration
	LockTimeout   time.Duration

	// MultiInstance reports whether the deployment provides the shared
	// database and coordination service. Activation refuses to proceed
	// without it.
	MultiInstance bool
}

func DefaultConfig() Config {
	return Config{
		WriteInterval: DefaultWriteInterval,
		LockTimeout:   DefaultLockTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.WriteInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.WriteInterval)
	}
	if c.LockTimeout <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.LockTimeout)
	}
	if c.Database.Name == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "database name must not be empty")
	}
	// The user becomes the database owner on first activation, so a
	// server without credentials is misconfigured, not merely idle
	if c.Database.Host != "" && c.Database.User == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "database user must not be empty")
	}

	return nil
}
