package storage

import (
	"context"
	"sort"
	"sync"

	"mercator-hq/themis/pkg/audit"
)

// MemoryStorage implements the audit.Storage interface using an in-memory
// map. This implementation is intended for testing and for deployments that
// do not need a persistent audit trail.
type MemoryStorage struct {
	records map[string]*audit.ExecutionRecord
	mu      sync.RWMutex
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: make(map[string]*audit.ExecutionRecord),
	}
}

// Append persists an execution record to memory.
func (s *MemoryStorage) Append(ctx context.Context, record *audit.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Copy to avoid mutation through the caller's pointer
	recordCopy := *record
	s.records[record.ID] = &recordCopy

	return nil
}

// Query retrieves execution records matching the query filters, newest first.
func (s *MemoryStorage) Query(ctx context.Context, query *audit.Query) ([]*audit.ExecutionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []*audit.ExecutionRecord

	for _, record := range s.records {
		if s.matchesQuery(record, query) {
			recordCopy := *record
			results = append(results, &recordCopy)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].ExecutionDate.After(results[j].ExecutionDate)
	})

	// Apply pagination
	start := query.Offset
	if start > len(results) {
		return []*audit.ExecutionRecord{}, nil
	}

	end := len(results)
	if query.Limit > 0 && start+query.Limit < end {
		end = start + query.Limit
	}

	return results[start:end], nil
}

// Count returns the number of execution records matching the query filters.
func (s *MemoryStorage) Count(ctx context.Context, query *audit.Query) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int64

	for _, record := range s.records {
		if s.matchesQuery(record, query) {
			count++
		}
	}

	return count, nil
}

// AverageTimeByRule aggregates average execution time per rule name across
// successful executions.
func (s *MemoryStorage) AverageTimeByRule(ctx context.Context) ([]audit.RuleAverage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[string]int64)
	counts := make(map[string]int64)

	for _, record := range s.records {
		if !record.Successful || record.RuleName == "" {
			continue
		}
		totals[record.RuleName] += record.ExecutionTimeMs
		counts[record.RuleName]++
	}

	averages := make([]audit.RuleAverage, 0, len(totals))
	for name, total := range totals {
		averages = append(averages, audit.RuleAverage{
			RuleName:  name,
			AverageMs: float64(total) / float64(counts[name]),
			Count:     counts[name],
		})
	}

	sort.Slice(averages, func(i, j int) bool {
		return averages[i].AverageMs > averages[j].AverageMs
	})

	return averages, nil
}

// MostExecuted returns the most frequently executed rule names, descending.
func (s *MemoryStorage) MostExecuted(ctx context.Context, limit int) ([]audit.RuleCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 10
	}

	byName := make(map[string]int64)
	for _, record := range s.records {
		if record.RuleName == "" {
			continue
		}
		byName[record.RuleName]++
	}

	counts := make([]audit.RuleCount, 0, len(byName))
	for name, count := range byName {
		counts = append(counts, audit.RuleCount{RuleName: name, Count: count})
	}

	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].RuleName < counts[j].RuleName
	})

	if len(counts) > limit {
		counts = counts[:limit]
	}

	return counts, nil
}

// Delete removes execution records matching the query filters.
func (s *MemoryStorage) Delete(ctx context.Context, query *audit.Query) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64

	toDelete := []string{}
	for id, record := range s.records {
		if s.matchesQuery(record, query) {
			toDelete = append(toDelete, id)
		}
	}

	for _, id := range toDelete {
		delete(s.records, id)
		deleted++
	}

	return deleted, nil
}

// Close releases resources held by the storage backend.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*audit.ExecutionRecord)
	return nil
}

// matchesQuery checks if a record matches the query filters.
func (s *MemoryStorage) matchesQuery(record *audit.ExecutionRecord, query *audit.Query) bool {
	if query.RuleName != "" && record.RuleName != query.RuleName {
		return false
	}
	if query.RulePackage != "" && record.RulePackage != query.RulePackage {
		return false
	}
	if query.FactType != "" && record.FactType != query.FactType {
		return false
	}
	if query.CorrelationID != "" && record.CorrelationID != query.CorrelationID {
		return false
	}

	if query.Successful != nil && record.Successful != *query.Successful {
		return false
	}

	// Date range filter
	if query.StartDate != nil && record.ExecutionDate.Before(*query.StartDate) {
		return false
	}
	if query.EndDate != nil && record.ExecutionDate.After(*query.EndDate) {
		return false
	}

	// Slow execution threshold
	if query.MinExecutionTimeMs > 0 && record.ExecutionTimeMs < query.MinExecutionTimeMs {
		return false
	}

	return true
}

// Clear removes all records from storage (for testing).
func (s *MemoryStorage) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = make(map[string]*audit.ExecutionRecord)
}

// GetByID retrieves a single execution record by ID (for testing).
func (s *MemoryStorage) GetByID(id string) *audit.ExecutionRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[id]
	if !ok {
		return nil
	}

	recordCopy := *record
	return &recordCopy
}

// Size returns the number of records in storage (for testing).
func (s *MemoryStorage) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.records)
}
