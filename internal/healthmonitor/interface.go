package healthmonitor

import (
	"context"
	"time"
)

// Gateway is the persistence layer for aggregated timing data. The
// PostgreSQL implementation lives in repository.go; tests substitute
// fakes.
type Gateway interface {
	// DatabaseExists checks the server catalog for the monitor database.
	// A missing database is (false, nil); transport or authentication
	// failures are returned as errors, never conflated with "not found".
	DatabaseExists(ctx context.Context) (bool, error)

	// CreateDatabase creates the monitor database.
	CreateDatabase(ctx context.Context) error

	// InitializeSchema creates the timing and metadata tables and seeds
	// the schema version rows. Safe to re-run (create if not exists).
	InitializeSchema(ctx context.Context) error

	// WriteTimings inserts one row per aggregate in a single batched
	// execution; the flush is all-or-nothing.
	WriteTimings(ctx context.Context, ts time.Time, stats []TimingSnapshot) error

	// Shutdown closes the connection pool. The next write re-provisions
	// it lazily.
	Shutdown()
}

// TimingSnapshot is one flushed aggregate row. Durations are
// nanoseconds; Average is integer division of the collected sum by
// Count.
type TimingSnapshot struct {
	Name    string
	Count   int64
	Average int64
	Max     int64
	Min     int64
}
