package healthmonitor

const (
	// Current database schema version, stored in db_info
	SchemaVersionMajor = 1
	SchemaVersionMinor = 0

	schemaVersionKey      = "SCHEMA_VERSION"
	schemaMinorVersionKey = "SCHEMA_MINOR_VERSION"

	createTimingTableSQL = `
        CREATE TABLE IF NOT EXISTS timing_data (
            id        BIGSERIAL PRIMARY KEY,
            name      TEXT NOT NULL,
            timestamp BIGINT NOT NULL,
            count     BIGINT NOT NULL,
            average   BIGINT NOT NULL,
            max       BIGINT NOT NULL,
            min       BIGINT NOT NULL
        )`

	createDBInfoTableSQL = `
        CREATE TABLE IF NOT EXISTS db_info (
            id    BIGSERIAL PRIMARY KEY,
            name  TEXT NOT NULL,
            value TEXT NOT NULL
        )`

	insertTimingSQL = `
        INSERT INTO timing_data (name, timestamp, count, average, max, min)
        VALUES ($1, $2, $3, $4, $5, $6)`

	insertDBInfoSQL = `INSERT INTO db_info (name, value) VALUES ($1, $2)`

	databaseExistsSQL = `SELECT 1 FROM pg_database WHERE datname = $1`
)
