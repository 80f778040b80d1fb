package healthmonitor

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/earn9/autopsy/internal/errors"
	"github.com/earn9/autopsy/internal/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// Connection pool bounds for the shared metrics database
	connPoolMaxConns = 10
	connPoolMinConns = 2

	// Maintenance database used for catalog queries and CREATE DATABASE
	adminDatabase = "postgres"
)

// postgresGateway persists timing aggregates to the shared PostgreSQL
// server. The pool is provisioned lazily on first use and torn down by
// Shutdown; catalog-level operations run over short-lived admin
// connections to the maintenance database.
type postgresGateway struct {
	cfg DatabaseConfig

	mu   sync.Mutex
	pool *pgxpool.Pool
}

// NewGateway creates the PostgreSQL persistence gateway. No connection
// is opened until the first operation needs one.
func NewGateway(cfg DatabaseConfig) (Gateway, error) {
	errFactory := errors.New()

	if cfg.Name == "" {
		return nil, errFactory.WithMessage(ErrInvalidConfig, "database name must not be empty")
	}

	return &postgresGateway{cfg: cfg}, nil
}

func (g *postgresGateway) DatabaseExists(ctx context.Context) (bool, error) {
	errFactory := errors.New()

	conn, err := pgx.Connect(ctx, connString(g.cfg, adminDatabase))
	if err != nil {
		return false, errFactory.Wrap(ErrDatabaseConnect, err)
	}
	defer conn.Close(ctx)

	var one int
	err = conn.QueryRow(ctx, databaseExistsSQL, g.cfg.Name).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, errFactory.Wrap(ErrDatabaseConnect, err)
	}

	logger.Info().Str("database", g.cfg.Name).Msg("Existing health monitor database found")

	return true, nil
}

func (g *postgresGateway) CreateDatabase(ctx context.Context) error {
	errFactory := errors.New()

	conn, err := pgx.Connect(ctx, connString(g.cfg, adminDatabase))
	if err != nil {
		return errFactory.Wrap(ErrDatabaseConnect, err)
	}
	defer conn.Close(ctx)

	// Identifiers cannot be bound as statement parameters
	createSQL := fmt.Sprintf("CREATE DATABASE %s OWNER %s", quoteIdent(g.cfg.Name), quoteIdent(g.cfg.User))
	if _, err := conn.Exec(ctx, createSQL); err != nil {
		return errFactory.Wrap(ErrDatabaseCreate, err)
	}

	logger.Info().Str("database", g.cfg.Name).Msg("Created new health monitor database")

	return nil
}

func (g *postgresGateway) InitializeSchema(ctx context.Context) error {
	errFactory := errors.New()

	pool, err := g.connect(ctx)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return errFactory.Wrap(ErrSchemaInit, err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
				logger.Debug().Err(err).Msg("Failed to rollback schema transaction")
			}
		}
	}()

	for _, ddl := range []string{createTimingTableSQL, createDBInfoTableSQL} {
		if _, err := tx.Exec(ctx, ddl); err != nil {
			return errFactory.Wrap(ErrSchemaInit, err)
		}
	}

	// Seed the schema version rows. This only runs right after the
	// database was created, under the exclusive activation lock.
	versions := map[string]int{
		schemaVersionKey:      SchemaVersionMajor,
		schemaMinorVersionKey: SchemaVersionMinor,
	}
	for name, value := range versions {
		if _, err := tx.Exec(ctx, insertDBInfoSQL, name, fmt.Sprintf("%d", value)); err != nil {
			return errFactory.Wrap(ErrSchemaInit, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errFactory.Wrap(ErrSchemaInit, err)
	}
	committed = true

	logger.Info().
		Int("version", SchemaVersionMajor).
		Int("minor_version", SchemaVersionMinor).
		Msg("Health monitor schema initialized")

	return nil
}

func (g *postgresGateway) WriteTimings(ctx context.Context, ts time.Time, stats []TimingSnapshot) error {
	errFactory := errors.New()

	pool, err := g.connect(ctx)
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
				logger.Debug().Err(err).Msg("Failed to rollback timing write")
			}
		}
	}()

	batch := &pgx.Batch{}
	for _, stat := range stats {
		batch.Queue(insertTimingSQL, stat.Name, ts.UnixMilli(), stat.Count, stat.Average, stat.Max, stat.Min)
	}

	results := tx.SendBatch(ctx, batch)
	for range stats {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return errFactory.Wrap(ErrWriteFailed, err)
		}
	}
	if err := results.Close(); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return errFactory.Wrap(ErrWriteFailed, err)
	}
	committed = true

	logger.Debug().Int("rows", len(stats)).Msg("Flushed timing aggregates to database")

	return nil
}

// Shutdown closes the pool and discards the handle so the next write
// provisions a fresh one.
func (g *postgresGateway) Shutdown() {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pool != nil {
		g.pool.Close()
		g.pool = nil
	}
}

// connect returns the pool, provisioning it on first use.
func (g *postgresGateway) connect(ctx context.Context) (*pgxpool.Pool, error) {
	errFactory := errors.New()

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pool != nil {
		return g.pool, nil
	}

	poolCfg, err := pgxpool.ParseConfig(connString(g.cfg, g.cfg.Name))
	if err != nil {
		return nil, errFactory.Wrap(ErrDatabaseConnect, err)
	}
	poolCfg.MaxConns = connPoolMaxConns
	poolCfg.MinConns = connPoolMinConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, errFactory.Wrap(ErrDatabaseConnect, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errFactory.Wrap(ErrDatabaseConnect, err)
	}

	g.pool = pool

	return g.pool, nil
}

// connString builds a pgx connection URL for the given database on the
// configured server.
func connString(cfg DatabaseConfig, database string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + database,
	}

	return u.String()
}

// quoteIdent quotes a SQL identifier for statements that cannot take
// bound parameters.
func quoteIdent(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
