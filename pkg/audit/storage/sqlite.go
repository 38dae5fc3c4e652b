package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"mercator-hq/themis/pkg/audit"
)

// SQLiteConfig contains configuration for the SQLite storage backend.
type SQLiteConfig struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns is the maximum number of open connections to the database.
	// Default: 10
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	// Default: 5
	MaxIdleConns int

	// WALMode enables Write-Ahead Logging mode for better concurrency.
	// Default: true
	WALMode bool

	// BusyTimeout is the duration to wait when the database is locked.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// DefaultSQLiteConfig returns the default SQLite configuration.
func DefaultSQLiteConfig() *SQLiteConfig {
	return &SQLiteConfig{
		Path:         "data/audit.db",
		MaxOpenConns: 10,
		MaxIdleConns: 5,
		WALMode:      true,
		BusyTimeout:  5 * time.Second,
	}
}

// SQLiteStorage implements the audit.Storage interface using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	config *SQLiteConfig
	logger *slog.Logger
}

// NewSQLiteStorage creates a new SQLite storage backend.
// It initializes the database schema and enables WAL mode if configured.
func NewSQLiteStorage(config *SQLiteConfig) (*SQLiteStorage, error) {
	if config == nil {
		config = DefaultSQLiteConfig()
	}

	logger := slog.Default().With("component", "audit.storage.sqlite")

	db, err := sql.Open("sqlite3", config.Path)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "open", err)
	}

	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)

	s := &SQLiteStorage{
		db:     db,
		config: config,
		logger: logger,
	}

	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("SQLite storage initialized",
		"path", config.Path,
		"wal_mode", config.WALMode,
		"max_open_conns", config.MaxOpenConns,
	)

	return s, nil
}

// initialize sets up the database schema and enables WAL mode.
func (s *SQLiteStorage) initialize() error {
	if s.config.WALMode {
		_, err := s.db.Exec("PRAGMA journal_mode=WAL;")
		if err != nil {
			return audit.NewStorageError("sqlite", "enable_wal", err)
		}
		s.logger.Debug("WAL mode enabled")
	}

	busyTimeoutMs := s.config.BusyTimeout.Milliseconds()
	_, err := s.db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d;", busyTimeoutMs))
	if err != nil {
		return audit.NewStorageError("sqlite", "set_busy_timeout", err)
	}

	_, err = s.db.Exec(Schema)
	if err != nil {
		return audit.NewStorageError("sqlite", "create_schema", err)
	}
	s.logger.Debug("database schema created")

	_, err = s.db.Exec(InsertSchemaVersion, SchemaVersion)
	if err != nil {
		return audit.NewStorageError("sqlite", "insert_schema_version", err)
	}

	var version int
	err = s.db.QueryRow(GetSchemaVersion).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return audit.NewStorageError("sqlite", "get_schema_version", err)
	}

	if version != SchemaVersion {
		return audit.NewStorageError("sqlite", "schema_version_mismatch",
			fmt.Errorf("expected schema version %d, got %d", SchemaVersion, version))
	}

	s.logger.Debug("schema version verified", "version", version)

	return nil
}

// Append persists an execution record to the database.
func (s *SQLiteStorage) Append(ctx context.Context, record *audit.ExecutionRecord) error {
	query := `
		INSERT INTO executions (
			id, correlation_id,
			rule_package, rule_set_version, rule_name,
			fact_type,
			result_summary, cache_hit, successful, failure_kind, error_message,
			execution_time_ms, execution_date
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	// Convert empty strings to NULL for optional fields
	var ruleName, factType, failureKind, errorMessage interface{}
	if record.RuleName != "" {
		ruleName = record.RuleName
	}
	if record.FactType != "" {
		factType = record.FactType
	}
	if record.FailureKind != "" {
		failureKind = record.FailureKind
	}
	if record.ErrorMessage != "" {
		errorMessage = record.ErrorMessage
	}

	_, err := s.db.ExecContext(ctx, query,
		record.ID, record.CorrelationID,
		record.RulePackage, record.RuleSetVersion, ruleName,
		factType,
		record.ResultSummary, record.CacheHit, record.Successful, failureKind, errorMessage,
		record.ExecutionTimeMs, record.ExecutionDate,
	)

	if err != nil {
		return audit.NewStorageError("sqlite", "append", err)
	}

	return nil
}

// Query retrieves execution records matching the query filters, newest first.
func (s *SQLiteStorage) Query(ctx context.Context, query *audit.Query) ([]*audit.ExecutionRecord, error) {
	whereClause, args := s.buildWhereClause(query)

	sqlQuery := "SELECT * FROM executions"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	sqlQuery += " ORDER BY execution_date DESC"

	limit := 100
	if query.Limit > 0 {
		limit = query.Limit
	}
	sqlQuery += fmt.Sprintf(" LIMIT %d", limit)

	if query.Offset > 0 {
		sqlQuery += fmt.Sprintf(" OFFSET %d", query.Offset)
	}

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}
	defer rows.Close()

	records := []*audit.ExecutionRecord{}
	for rows.Next() {
		record, err := s.scanRow(rows)
		if err != nil {
			return nil, audit.NewStorageError("sqlite", "scan", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, audit.NewStorageError("sqlite", "query", err)
	}

	return records, nil
}

// Count returns the number of execution records matching the query filters.
func (s *SQLiteStorage) Count(ctx context.Context, query *audit.Query) (int64, error) {
	whereClause, args := s.buildWhereClause(query)

	sqlQuery := "SELECT COUNT(*) FROM executions"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	var count int64
	err := s.db.QueryRowContext(ctx, sqlQuery, args...).Scan(&count)
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "count", err)
	}

	return count, nil
}

// AverageTimeByRule aggregates average execution time per rule name across
// successful executions.
func (s *SQLiteStorage) AverageTimeByRule(ctx context.Context) ([]audit.RuleAverage, error) {
	sqlQuery := `
		SELECT rule_name, AVG(execution_time_ms), COUNT(*)
		FROM executions
		WHERE successful = 1 AND rule_name IS NOT NULL
		GROUP BY rule_name
		ORDER BY AVG(execution_time_ms) DESC
	`

	rows, err := s.db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "average_time_by_rule", err)
	}
	defer rows.Close()

	averages := []audit.RuleAverage{}
	for rows.Next() {
		var row audit.RuleAverage
		if err := rows.Scan(&row.RuleName, &row.AverageMs, &row.Count); err != nil {
			return nil, audit.NewStorageError("sqlite", "scan", err)
		}
		averages = append(averages, row)
	}

	if err := rows.Err(); err != nil {
		return nil, audit.NewStorageError("sqlite", "average_time_by_rule", err)
	}

	return averages, nil
}

// MostExecuted returns the most frequently executed rule names, descending.
func (s *SQLiteStorage) MostExecuted(ctx context.Context, limit int) ([]audit.RuleCount, error) {
	if limit <= 0 {
		limit = 10
	}

	sqlQuery := `
		SELECT rule_name, COUNT(*)
		FROM executions
		WHERE rule_name IS NOT NULL
		GROUP BY rule_name
		ORDER BY COUNT(*) DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, sqlQuery, limit)
	if err != nil {
		return nil, audit.NewStorageError("sqlite", "most_executed", err)
	}
	defer rows.Close()

	counts := []audit.RuleCount{}
	for rows.Next() {
		var row audit.RuleCount
		if err := rows.Scan(&row.RuleName, &row.Count); err != nil {
			return nil, audit.NewStorageError("sqlite", "scan", err)
		}
		counts = append(counts, row)
	}

	if err := rows.Err(); err != nil {
		return nil, audit.NewStorageError("sqlite", "most_executed", err)
	}

	return counts, nil
}

// Delete removes execution records matching the query filters.
// Returns the number of records deleted.
func (s *SQLiteStorage) Delete(ctx context.Context, query *audit.Query) (int64, error) {
	whereClause, args := s.buildWhereClause(query)

	sqlQuery := "DELETE FROM executions"
	if whereClause != "" {
		sqlQuery += " WHERE " + whereClause
	}

	result, err := s.db.ExecContext(ctx, sqlQuery, args...)
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete", err)
	}

	return count, nil
}

// DeleteOldest removes the n oldest execution records. Used by retention
// pruning when the record count cap is exceeded.
func (s *SQLiteStorage) DeleteOldest(ctx context.Context, n int64) (int64, error) {
	if n <= 0 {
		return 0, nil
	}

	sqlQuery := `
		DELETE FROM executions WHERE id IN (
			SELECT id FROM executions ORDER BY execution_date ASC LIMIT ?
		)
	`

	result, err := s.db.ExecContext(ctx, sqlQuery, n)
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete_oldest", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, audit.NewStorageError("sqlite", "delete_oldest", err)
	}

	return count, nil
}

// Close releases resources held by the storage backend.
func (s *SQLiteStorage) Close() error {
	if err := s.db.Close(); err != nil {
		return audit.NewStorageError("sqlite", "close", err)
	}

	s.logger.Info("SQLite storage closed")
	return nil
}

// buildWhereClause builds a SQL WHERE clause from query filters.
// Returns the WHERE clause (without "WHERE" keyword) and the query arguments.
func (s *SQLiteStorage) buildWhereClause(query *audit.Query) (string, []interface{}) {
	var conditions []string
	var args []interface{}

	if query.RuleName != "" {
		conditions = append(conditions, "rule_name = ?")
		args = append(args, query.RuleName)
	}
	if query.RulePackage != "" {
		conditions = append(conditions, "rule_package = ?")
		args = append(args, query.RulePackage)
	}
	if query.FactType != "" {
		conditions = append(conditions, "fact_type = ?")
		args = append(args, query.FactType)
	}
	if query.CorrelationID != "" {
		conditions = append(conditions, "correlation_id = ?")
		args = append(args, query.CorrelationID)
	}

	if query.Successful != nil {
		conditions = append(conditions, "successful = ?")
		args = append(args, *query.Successful)
	}

	// Date range filter
	if query.StartDate != nil {
		conditions = append(conditions, "execution_date >= ?")
		args = append(args, *query.StartDate)
	}
	if query.EndDate != nil {
		conditions = append(conditions, "execution_date <= ?")
		args = append(args, *query.EndDate)
	}

	// Slow execution threshold
	if query.MinExecutionTimeMs > 0 {
		conditions = append(conditions, "execution_time_ms >= ?")
		args = append(args, query.MinExecutionTimeMs)
	}

	whereClause := ""
	for i, condition := range conditions {
		if i > 0 {
			whereClause += " AND "
		}
		whereClause += condition
	}

	return whereClause, args
}

// scanRow scans a database row into an ExecutionRecord.
func (s *SQLiteStorage) scanRow(row *sql.Rows) (*audit.ExecutionRecord, error) {
	var record audit.ExecutionRecord
	var ruleName, factType, failureKind, errorMessage sql.NullString

	err := row.Scan(
		&record.ID, &record.CorrelationID,
		&record.RulePackage, &record.RuleSetVersion, &ruleName,
		&factType,
		&record.ResultSummary, &record.CacheHit, &record.Successful, &failureKind, &errorMessage,
		&record.ExecutionTimeMs, &record.ExecutionDate,
	)
	if err != nil {
		return nil, err
	}

	// Convert NULL strings back to empty strings
	if ruleName.Valid {
		record.RuleName = ruleName.String
	}
	if factType.Valid {
		record.FactType = factType.String
	}
	if failureKind.Valid {
		record.FailureKind = failureKind.String
	}
	if errorMessage.Valid {
		record.ErrorMessage = errorMessage.String
	}

	return &record, nil
}
