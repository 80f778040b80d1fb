package coordination

import (
	"context"
	"time"
)

// Lock is a held distributed lock. Release must be called on every exit
// path; releasing twice is harmless.
type Lock interface {
	Release() error
}

// Coordinator hands out named locks that serialize access to shared
// resources across application instances. Exclusive locks admit a
// single holder; shared locks admit any number of holders but exclude
// exclusive ones.
type Coordinator interface {
	// TryExclusiveLock blocks up to timeout for the exclusive lock on
	// category/id and returns ErrLockTimeout when it cannot be obtained.
	TryExclusiveLock(ctx context.Context, category, id string, timeout time.Duration) (Lock, error)

	// TrySharedLock blocks up to timeout for a shared lock on
	// category/id and returns ErrLockTimeout when it cannot be obtained.
	TrySharedLock(ctx context.Context, category, id string, timeout time.Duration) (Lock, error)
}
