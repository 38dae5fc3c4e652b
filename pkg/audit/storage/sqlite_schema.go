package storage

// SchemaVersion is the current database schema version.
const SchemaVersion = 1

// Schema contains the SQL statements to create the audit database schema.
const Schema = `
-- Execution records table
CREATE TABLE IF NOT EXISTS executions (
    id TEXT PRIMARY KEY,
    correlation_id TEXT,

    -- Rule identity
    rule_package TEXT NOT NULL,
    rule_set_version TEXT NOT NULL,
    rule_name TEXT,

    -- Fact identity
    fact_type TEXT,

    -- Outcome
    result_summary TEXT,
    cache_hit BOOLEAN NOT NULL,
    successful BOOLEAN NOT NULL,
    failure_kind TEXT,
    error_message TEXT,

    -- Timing
    execution_time_ms INTEGER NOT NULL,
    execution_date TIMESTAMP NOT NULL
);

-- Schema version table
CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TIMESTAMP NOT NULL
);

-- Indexes for common queries
CREATE INDEX IF NOT EXISTS idx_executions_execution_date ON executions(execution_date);
CREATE INDEX IF NOT EXISTS idx_executions_rule_name ON executions(rule_name);
CREATE INDEX IF NOT EXISTS idx_executions_rule_package ON executions(rule_package);
CREATE INDEX IF NOT EXISTS idx_executions_fact_type ON executions(fact_type);
CREATE INDEX IF NOT EXISTS idx_executions_correlation_id ON executions(correlation_id);
CREATE INDEX IF NOT EXISTS idx_executions_successful ON executions(successful);
CREATE INDEX IF NOT EXISTS idx_executions_execution_time_ms ON executions(execution_time_ms);
`

// InsertSchemaVersion inserts the schema version into the schema_version table.
const InsertSchemaVersion = `
INSERT INTO schema_version (version, applied_at)
VALUES (?, datetime('now'))
ON CONFLICT(version) DO NOTHING;
`

// GetSchemaVersion retrieves the current schema version from the database.
const GetSchemaVersion = `
SELECT version FROM schema_version ORDER BY version DESC LIMIT 1;
`
