package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mercator-hq/themis/pkg/audit"
)

// backends returns each storage implementation under test.
func backends(t *testing.T) map[string]audit.Storage {
	t.Helper()

	sqlite, err := NewSQLiteStorage(&SQLiteConfig{
		Path:         filepath.Join(t.TempDir(), "audit.db"),
		MaxOpenConns: 2,
		MaxIdleConns: 1,
		WALMode:      true,
		BusyTimeout:  time.Second,
	})
	require.NoError(t, err)

	memory := NewMemoryStorage()

	t.Cleanup(func() {
		sqlite.Close()
		memory.Close()
	})

	return map[string]audit.Storage{
		"sqlite": sqlite,
		"memory": memory,
	}
}

func newRecord(mutate func(*audit.ExecutionRecord)) *audit.ExecutionRecord {
	r := &audit.ExecutionRecord{
		ID:              uuid.New().String(),
		CorrelationID:   "corr-1",
		RulePackage:     "pricing",
		RuleSetVersion:  "pricing@abc123",
		RuleName:        "vip-discount",
		FactType:        "Order",
		ResultSummary:   "outcome=discounted fired=[vip-discount]",
		CacheHit:        false,
		ExecutionTimeMs: 12,
		ExecutionDate:   time.Now().UTC().Truncate(time.Millisecond),
		Successful:      true,
	}
	if mutate != nil {
		mutate(r)
	}
	return r
}

// TestStorage_AppendAndQuery tests round-tripping a record through each
// backend.
func TestStorage_AppendAndQuery(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			record := newRecord(nil)

			require.NoError(t, store.Append(ctx, record))

			records, err := store.Query(ctx, &audit.Query{})
			require.NoError(t, err)
			require.Len(t, records, 1)

			got := records[0]
			assert.Equal(t, record.ID, got.ID)
			assert.Equal(t, record.CorrelationID, got.CorrelationID)
			assert.Equal(t, record.RulePackage, got.RulePackage)
			assert.Equal(t, record.RuleSetVersion, got.RuleSetVersion)
			assert.Equal(t, record.RuleName, got.RuleName)
			assert.Equal(t, record.FactType, got.FactType)
			assert.Equal(t, record.ResultSummary, got.ResultSummary)
			assert.Equal(t, record.ExecutionTimeMs, got.ExecutionTimeMs)
			assert.True(t, got.Successful)
		})
	}
}

// TestStorage_FailureRecord tests persisting a failed execution with its
// optional fields empty.
func TestStorage_FailureRecord(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			record := newRecord(func(r *audit.ExecutionRecord) {
				r.Successful = false
				r.RuleName = ""
				r.FactType = ""
				r.ResultSummary = ""
				r.FailureKind = "validation"
				r.ErrorMessage = `invalid fact: field "type": required field is missing`
			})

			require.NoError(t, store.Append(ctx, record))

			records, err := store.Query(ctx, &audit.Query{})
			require.NoError(t, err)
			require.Len(t, records, 1)

			got := records[0]
			assert.False(t, got.Successful)
			assert.Empty(t, got.RuleName)
			assert.Empty(t, got.FactType)
			assert.Equal(t, "validation", got.FailureKind)
			assert.Equal(t, record.ErrorMessage, got.ErrorMessage)
		})
	}
}

// TestStorage_QueryFilters tests each query dimension.
func TestStorage_QueryFilters(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC().Truncate(time.Millisecond)

			seed := []*audit.ExecutionRecord{
				newRecord(func(r *audit.ExecutionRecord) {
					r.ExecutionDate = base.Add(-2 * time.Hour)
				}),
				newRecord(func(r *audit.ExecutionRecord) {
					r.CorrelationID = "corr-2"
					r.RulePackage = "fraud"
					r.RuleName = "velocity-check"
					r.FactType = "Transaction"
					r.ExecutionTimeMs = 250
					r.ExecutionDate = base.Add(-time.Hour)
				}),
				newRecord(func(r *audit.ExecutionRecord) {
					r.Successful = false
					r.RuleName = ""
					r.FailureKind = "timeout"
					r.ExecutionDate = base
				}),
			}
			for _, r := range seed {
				require.NoError(t, store.Append(ctx, r))
			}

			// Newest first.
			records, err := store.Query(ctx, &audit.Query{})
			require.NoError(t, err)
			require.Len(t, records, 3)
			assert.Equal(t, seed[2].ID, records[0].ID)
			assert.Equal(t, seed[0].ID, records[2].ID)

			// By rule name.
			records, err = store.Query(ctx, &audit.Query{RuleName: "velocity-check"})
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, seed[1].ID, records[0].ID)

			// By package.
			records, err = store.Query(ctx, &audit.Query{RulePackage: "fraud"})
			require.NoError(t, err)
			assert.Len(t, records, 1)

			// By fact type.
			records, err = store.Query(ctx, &audit.Query{FactType: "Transaction"})
			require.NoError(t, err)
			assert.Len(t, records, 1)

			// By correlation id.
			records, err = store.Query(ctx, &audit.Query{CorrelationID: "corr-2"})
			require.NoError(t, err)
			assert.Len(t, records, 1)

			// By outcome.
			failed := false
			records, err = store.Query(ctx, &audit.Query{Successful: &failed})
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, "timeout", records[0].FailureKind)

			// By date range.
			start := base.Add(-90 * time.Minute)
			end := base.Add(-30 * time.Minute)
			records, err = store.Query(ctx, &audit.Query{StartDate: &start, EndDate: &end})
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, seed[1].ID, records[0].ID)

			// By minimum execution time.
			records, err = store.Query(ctx, &audit.Query{MinExecutionTimeMs: 100})
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, seed[1].ID, records[0].ID)

			// Count matches the same filters.
			count, err := store.Count(ctx, &audit.Query{RulePackage: "pricing"})
			require.NoError(t, err)
			assert.Equal(t, int64(2), count)
		})
	}
}

// TestStorage_Pagination tests limit and offset.
func TestStorage_Pagination(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC().Truncate(time.Millisecond)

			for i := 0; i < 5; i++ {
				r := newRecord(func(r *audit.ExecutionRecord) {
					r.CorrelationID = fmt.Sprintf("corr-%d", i)
					r.ExecutionDate = base.Add(time.Duration(i) * time.Minute)
				})
				require.NoError(t, store.Append(ctx, r))
			}

			records, err := store.Query(ctx, &audit.Query{Limit: 2})
			require.NoError(t, err)
			require.Len(t, records, 2)
			assert.Equal(t, "corr-4", records[0].CorrelationID)
			assert.Equal(t, "corr-3", records[1].CorrelationID)

			records, err = store.Query(ctx, &audit.Query{Limit: 2, Offset: 2})
			require.NoError(t, err)
			require.Len(t, records, 2)
			assert.Equal(t, "corr-2", records[0].CorrelationID)

			records, err = store.Query(ctx, &audit.Query{Limit: 2, Offset: 10})
			require.NoError(t, err)
			assert.Empty(t, records)
		})
	}
}

// TestStorage_Aggregates tests AverageTimeByRule and MostExecuted.
func TestStorage_Aggregates(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			// Three successful executions of rule a (10, 20, 30ms), one of
			// rule b (100ms), one failed execution of rule a (ignored by
			// the average), one with no rule name.
			for _, ms := range []int64{10, 20, 30} {
				r := newRecord(func(r *audit.ExecutionRecord) {
					r.RuleName = "a"
					r.ExecutionTimeMs = ms
				})
				require.NoError(t, store.Append(ctx, r))
			}
			require.NoError(t, store.Append(ctx, newRecord(func(r *audit.ExecutionRecord) {
				r.RuleName = "b"
				r.ExecutionTimeMs = 100
			})))
			require.NoError(t, store.Append(ctx, newRecord(func(r *audit.ExecutionRecord) {
				r.RuleName = "a"
				r.Successful = false
				r.FailureKind = "engine"
				r.ExecutionTimeMs = 9000
			})))
			require.NoError(t, store.Append(ctx, newRecord(func(r *audit.ExecutionRecord) {
				r.RuleName = ""
			})))

			averages, err := store.AverageTimeByRule(ctx)
			require.NoError(t, err)
			require.Len(t, averages, 2)

			byName := make(map[string]audit.RuleAverage)
			for _, row := range averages {
				byName[row.RuleName] = row
			}
			assert.InDelta(t, 20.0, byName["a"].AverageMs, 0.001)
			assert.Equal(t, int64(3), byName["a"].Count)
			assert.InDelta(t, 100.0, byName["b"].AverageMs, 0.001)

			top, err := store.MostExecuted(ctx, 10)
			require.NoError(t, err)
			require.Len(t, top, 2)
			assert.Equal(t, "a", top[0].RuleName)
			assert.Equal(t, int64(4), top[0].Count)
			assert.Equal(t, "b", top[1].RuleName)

			top, err = store.MostExecuted(ctx, 1)
			require.NoError(t, err)
			require.Len(t, top, 1)
			assert.Equal(t, "a", top[0].RuleName)
		})
	}
}

// TestStorage_Delete tests filtered deletion.
func TestStorage_Delete(t *testing.T) {
	for name, store := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			base := time.Now().UTC().Truncate(time.Millisecond)

			old := newRecord(func(r *audit.ExecutionRecord) {
				r.ExecutionDate = base.Add(-48 * time.Hour)
			})
			recent := newRecord(func(r *audit.ExecutionRecord) {
				r.ExecutionDate = base
			})
			require.NoError(t, store.Append(ctx, old))
			require.NoError(t, store.Append(ctx, recent))

			cutoff := base.Add(-24 * time.Hour)
			deleted, err := store.Delete(ctx, &audit.Query{EndDate: &cutoff})
			require.NoError(t, err)
			assert.Equal(t, int64(1), deleted)

			records, err := store.Query(ctx, &audit.Query{})
			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, recent.ID, records[0].ID)
		})
	}
}

// TestSQLiteStorage_DeleteOldest tests the count-pruning fast path.
func TestSQLiteStorage_DeleteOldest(t *testing.T) {
	store, err := NewSQLiteStorage(&SQLiteConfig{
		Path:        filepath.Join(t.TempDir(), "audit.db"),
		BusyTimeout: time.Second,
	})
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i := 0; i < 5; i++ {
		r := newRecord(func(r *audit.ExecutionRecord) {
			r.CorrelationID = fmt.Sprintf("corr-%d", i)
			r.ExecutionDate = base.Add(time.Duration(i) * time.Minute)
		})
		require.NoError(t, store.Append(ctx, r))
	}

	deleted, err := store.DeleteOldest(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	records, err := store.Query(ctx, &audit.Query{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "corr-4", records[0].CorrelationID)
	assert.Equal(t, "corr-3", records[1].CorrelationID)
}

// TestSQLiteStorage_Reopen tests that records survive close and reopen.
func TestSQLiteStorage_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	config := &SQLiteConfig{Path: path, BusyTimeout: time.Second}

	store, err := NewSQLiteStorage(config)
	require.NoError(t, err)

	ctx := context.Background()
	record := newRecord(nil)
	require.NoError(t, store.Append(ctx, record))
	require.NoError(t, store.Close())

	reopened, err := NewSQLiteStorage(config)
	require.NoError(t, err)
	defer reopened.Close()

	records, err := reopened.Query(ctx, &audit.Query{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)
}
