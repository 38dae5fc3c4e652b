package audit

import (
	"context"
	"time"
)

// ExecutionRecord is the audit trail for a single rule execution. It is
// created once by the execution coordinator when the execution completes
// (successfully or not) and never mutated afterwards.
type ExecutionRecord struct {
	// ID is the record's unique identifier (UUID v4).
	ID string `json:"id"`

	// CorrelationID ties the record to the caller's request.
	CorrelationID string `json:"correlation_id"`

	// RulePackage is the rule package that was executed.
	RulePackage string `json:"rule_package"`

	// RuleSetVersion is the version identity ("package@version") the
	// execution was bound to.
	RuleSetVersion string `json:"rule_set_version"`

	// RuleName is the rule that decided the outcome, empty when the
	// default outcome applied or the execution failed before evaluation.
	RuleName string `json:"rule_name,omitempty"`

	// FactType is the declared type of the submitted fact, empty when
	// validation failed before a type could be established.
	FactType string `json:"fact_type,omitempty"`

	// ResultSummary is a short human-readable description of the outcome.
	ResultSummary string `json:"result_summary,omitempty"`

	// CacheHit marks executions served from the result cache.
	CacheHit bool `json:"cache_hit"`

	// ExecutionTimeMs is the measured elapsed time in milliseconds. For
	// cache hits this covers only the lookup.
	ExecutionTimeMs int64 `json:"execution_time_ms"`

	// ExecutionDate is when the execution started.
	ExecutionDate time.Time `json:"execution_date"`

	// Successful reflects the execution outcome.
	Successful bool `json:"successful"`

	// FailureKind classifies failures ("validation", "pool_exhausted",
	// "timeout", "engine", ...). Empty for successful executions.
	FailureKind string `json:"failure_kind,omitempty"`

	// ErrorMessage carries the failure detail. Empty for successful
	// executions.
	ErrorMessage string `json:"error_message,omitempty"`
}

// Query defines filter parameters for querying execution records. Zero
// values mean "no filter" for that dimension.
type Query struct {
	RuleName      string `json:"rule_name,omitempty"`
	RulePackage   string `json:"rule_package,omitempty"`
	FactType      string `json:"fact_type,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`

	// Successful filters by outcome when non-nil.
	Successful *bool `json:"successful,omitempty"`

	// StartDate and EndDate bound ExecutionDate (inclusive).
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`

	// MinExecutionTimeMs returns only executions at least this slow.
	MinExecutionTimeMs int64 `json:"min_execution_time_ms,omitempty"`

	// Pagination. Records are returned newest first.
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// RuleAverage is one row of the average-time-by-rule-name aggregate.
type RuleAverage struct {
	RuleName  string  `json:"rule_name"`
	AverageMs float64 `json:"average_ms"`
	Count     int64   `json:"count"`
}

// RuleCount is one row of the most-frequently-executed aggregate.
type RuleCount struct {
	RuleName string `json:"rule_name"`
	Count    int64  `json:"count"`
}

// Sink is the narrow write contract the execution coordinator emits records
// through. The async recorder and every Storage implementation satisfy it.
type Sink interface {
	Append(ctx context.Context, record *ExecutionRecord) error
}

// Storage defines the interface for audit storage backends.
// Implementations must be safe for concurrent use.
type Storage interface {
	Sink

	// Query retrieves records matching the filters, newest first.
	Query(ctx context.Context, query *Query) ([]*ExecutionRecord, error)

	// Count returns the number of records matching the filters.
	Count(ctx context.Context, query *Query) (int64, error)

	// AverageTimeByRule aggregates average execution time per rule name
	// across successful executions.
	AverageTimeByRule(ctx context.Context) ([]RuleAverage, error)

	// MostExecuted returns the most frequently executed rule names,
	// descending, capped at limit.
	MostExecuted(ctx context.Context, limit int) ([]RuleCount, error)

	// Delete removes records matching the filters and returns how many
	// were removed. Used by retention pruning.
	Delete(ctx context.Context, query *Query) (int64, error)

	// Close releases backend resources.
	Close() error
}
