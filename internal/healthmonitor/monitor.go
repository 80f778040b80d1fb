package healthmonitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/earn9/autopsy/internal/coordination"
	"github.com/earn9/autopsy/internal/errors"
	"github.com/earn9/autopsy/internal/logger"
)

const (
	// Lock namespace shared by every process writing to the monitor
	// database
	lockCategory = "health_monitor"

	// Headroom on top of the lock timeout for the database write itself
	writeTimeout = 30 * time.Second
)

// Monitor collects timing metrics from the hosting application and
// periodically flushes aggregates to the shared database. The
// application owns exactly one Monitor and injects it at measurement
// sites.
//
// Callers obtain a TimingMetric with GetTimingMetric, run the timed
// work, then hand the metric to SubmitTimingMetric. The submission path
// never returns an error; monitor failures must not disturb the
// caller's own work.
type Monitor struct {
	cfg     Config
	coord   coordination.Coordinator
	gateway Gateway

	// enabled is read without the mutex on the hot submission path; see
	// SubmitTimingMetric for the tolerated window.
	enabled atomic.Bool

	// mu guards state transitions, so an enable cannot overlap a
	// still-shutting-down pool.
	mu    sync.Mutex
	agg   *aggregator
	sched *scheduler
}

// New creates a disabled Monitor. Call SetEnabled(ctx, true) to
// activate it.
func New(cfg Config, coord coordination.Coordinator, gateway Gateway) (*Monitor, error) {
	return newMonitor(cfg, coord, gateway, clock.New())
}

func newMonitor(cfg Config, coord coordination.Coordinator, gateway Gateway, clk clock.Clock) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Monitor{
		cfg:     cfg,
		coord:   coord,
		gateway: gateway,
		agg:     newAggregator(),
	}
	m.sched = newScheduler(clk, cfg.WriteInterval, m.scheduledWrite)

	return m, nil
}

// SetEnabled turns the monitor on or off. Enabling provisions the
// shared database (creating it on first activation anywhere), clears
// any stale in-memory aggregates and starts the write schedule.
// Disabling is a hard stop: collected aggregates are discarded, not
// flushed. Both directions are no-ops when the state already matches.
func (m *Monitor) SetEnabled(ctx context.Context, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if enabled == m.enabled.Load() {
		// The setting has not changed, so do nothing
		return nil
	}

	if enabled {
		if err := m.activate(ctx); err != nil {
			return err
		}
		m.enabled.Store(true)
		return nil
	}

	m.enabled.Store(false)
	m.deactivate()

	return nil
}

// IsEnabled reports the current state of the monitor.
func (m *Monitor) IsEnabled() bool {
	return m.enabled.Load()
}

// activate sets up the shared database under the exclusive lock, so
// instances racing through first-time setup serialize: exactly one
// creates the database, the rest observe it exists. Called with mu
// held.
func (m *Monitor) activate(ctx context.Context) error {
	errFactory := errors.New()

	logger.Info().Msg("Activating services health monitor")

	if !m.cfg.MultiInstance {
		return errFactory.WithMessage(ErrPrecondition,
			"multi-instance coordination is not configured - cannot activate services health monitor")
	}

	lock, err := m.coord.TryExclusiveLock(ctx, lockCategory, m.cfg.Database.Name, m.cfg.LockTimeout)
	if err != nil {
		return err
	}
	defer m.releaseLock(lock)

	exists, err := m.gateway.DatabaseExists(ctx)
	if err != nil {
		return err
	}
	if !exists {
		logger.Info().Msg("No health monitor database exists - setting up new one")
		if err := m.gateway.CreateDatabase(ctx); err != nil {
			return err
		}
		if err := m.gateway.InitializeSchema(ctx); err != nil {
			return err
		}
	}

	// Schema upgrades for later versions would run here, still under
	// the exclusive lock.

	m.agg.clear()
	m.sched.start()

	return nil
}

// deactivate discards collected data and tears the resources down.
// Called with mu held.
func (m *Monitor) deactivate() {
	logger.Info().Msg("Deactivating services health monitor")

	m.agg.clear()
	m.sched.stop()
	m.gateway.Shutdown()
}

// GetTimingMetric starts a timing measurement. Returns nil when the
// monitor is disabled or the name is empty; SubmitTimingMetric accepts
// nil, so call sites need no state checks of their own.
func (m *Monitor) GetTimingMetric(name string) *TimingMetric {
	if !m.enabled.Load() {
		return nil
	}

	metric, err := NewTimingMetric(name)
	if err != nil {
		logger.Error().Err(err).Msg("Error creating timing metric")
		return nil
	}

	return metric
}

// SubmitTimingMetric resolves the metric's duration and merges it into
// the in-memory aggregates. Never returns or panics to the caller;
// internal failures are logged only.
func (m *Monitor) SubmitTimingMetric(metric *TimingMetric) {
	if metric == nil || !m.enabled.Load() {
		return
	}

	metric.stopTiming()

	// The enabled flag may flip between the check above and this
	// record. That window is accepted: a metric recorded just after
	// disable is discarded by the next activation's reset, one recorded
	// just before disable is flushed. Either way no state is corrupted.
	m.agg.record(metric.name, metric.duration)
}

// WriteCurrentStateToDatabase flushes the collected aggregates: the
// live map is swapped out, and the snapshot is written under the shared
// lock so concurrent flushes from other processes proceed while schema
// mutations are excluded. An empty snapshot skips the lock and the
// write entirely.
func (m *Monitor) WriteCurrentStateToDatabase(ctx context.Context) error {
	if !m.enabled.Load() {
		return nil
	}

	snapshot := m.agg.snapshot()
	if len(snapshot) == 0 {
		return nil
	}

	logger.Debug().Int("metrics", len(snapshot)).Msg("Writing health monitor metrics to database")

	lock, err := m.coord.TrySharedLock(ctx, lockCategory, m.cfg.Database.Name, m.cfg.LockTimeout)
	if err != nil {
		return err
	}
	defer m.releaseLock(lock)

	stats := make([]TimingSnapshot, 0, len(snapshot))
	for name, info := range snapshot {
		stats = append(stats, TimingSnapshot{
			Name:    name,
			Count:   info.count,
			Average: int64(info.average()),
			Max:     int64(info.max),
			Min:     int64(info.min),
		})
	}

	return m.gateway.WriteTimings(ctx, time.Now(), stats)
}

// Close is the process shutdown path: stop the schedule, make a
// best-effort final flush and release the pool. Unlike disabling, the
// persisted enabled setting is untouched, so the monitor comes back on
// the next start.
func (m *Monitor) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.enabled.Load() {
		return
	}

	m.sched.stop()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.LockTimeout+writeTimeout)
	defer cancel()
	if err := m.WriteCurrentStateToDatabase(ctx); err != nil {
		logger.Error().Err(err).Msg("Error writing final metric data to database")
	}

	m.gateway.Shutdown()
	m.enabled.Store(false)
}

// scheduledWrite is the recurring task body. Failures are logged and
// the schedule keeps running; aggregates lost to a failed flush are
// accepted loss.
func (m *Monitor) scheduledWrite() {
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.LockTimeout+writeTimeout)
	defer cancel()

	if err := m.WriteCurrentStateToDatabase(ctx); err != nil {
		logger.Error().Err(err).Msg("Error writing current metrics to database")
	}
}

// releaseLock releases on every exit path. A release failure is logged
// under its own code so it never masks the guarded operation's error.
func (m *Monitor) releaseLock(lock coordination.Lock) {
	if err := lock.Release(); err != nil {
		logger.ErrorWithCode(errors.New().Wrap(ErrLockRelease, err)).
			Msg("Error releasing health monitor database lock")
	}
}
