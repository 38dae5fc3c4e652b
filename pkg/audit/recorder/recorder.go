// Package recorder provides the asynchronous audit write path.
//
// The Recorder sits between the execution coordinator and an audit storage
// backend. Appends enqueue the record on a buffered channel and return
// immediately; a background worker drains the channel and writes each record
// with a bounded timeout. When the buffer is full the record is dropped with
// an error log line rather than blocking rule execution.
package recorder

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"mercator-hq/themis/pkg/audit"
)

// Config contains configuration for the audit recorder.
type Config struct {
	// AsyncBuffer is the size of the async write channel buffer.
	// Default: 1000
	AsyncBuffer int

	// WriteTimeout is the timeout for writing a record to storage.
	// Default: 5 seconds
	WriteTimeout time.Duration
}

// DefaultConfig returns the default recorder configuration.
func DefaultConfig() *Config {
	return &Config{
		AsyncBuffer:  1000,
		WriteTimeout: 5 * time.Second,
	}
}

// Recorder writes execution records to storage asynchronously so that rule
// execution never blocks on the audit backend. It implements audit.Sink.
type Recorder struct {
	storage    audit.Storage
	config     *Config
	recordChan chan *audit.ExecutionRecord
	wg         sync.WaitGroup
	done       chan struct{}
	logger     *slog.Logger
}

// NewRecorder creates a new audit recorder with the provided storage backend
// and configuration, and starts its background worker.
func NewRecorder(storage audit.Storage, config *Config) *Recorder {
	if config == nil {
		config = DefaultConfig()
	}

	r := &Recorder{
		storage:    storage,
		config:     config,
		recordChan: make(chan *audit.ExecutionRecord, config.AsyncBuffer),
		done:       make(chan struct{}),
		logger:     slog.Default().With("component", "audit.recorder"),
	}

	// Start background worker to drain channel
	r.wg.Add(1)
	go r.worker()

	r.logger.Info("audit recorder initialized",
		"async_buffer", config.AsyncBuffer,
		"write_timeout", config.WriteTimeout,
	)

	return r
}

// Append enqueues an execution record for async writing.
//
// This method returns immediately and does not block on storage writes. If
// the buffer is full the record is dropped and a RecorderError returned.
func (r *Recorder) Append(ctx context.Context, record *audit.ExecutionRecord) error {
	select {
	case <-r.done:
		r.logger.Warn("recorder shutting down, dropping record",
			"record_id", record.ID,
			"correlation_id", record.CorrelationID,
		)
		return &audit.RecorderError{RecordID: record.ID, Cause: context.Canceled}
	default:
	}

	select {
	case r.recordChan <- record:
		return nil
	default:
		r.logger.Error("audit record channel full, dropping record",
			"record_id", record.ID,
			"correlation_id", record.CorrelationID,
			"channel_capacity", r.config.AsyncBuffer,
		)
		return &audit.RecorderError{RecordID: record.ID, Cause: context.DeadlineExceeded}
	}
}

// Pending returns the number of records waiting to be written (for tests
// and metrics).
func (r *Recorder) Pending() int {
	return len(r.recordChan)
}

// Close gracefully shuts down the recorder by draining the async channel and
// waiting for all pending writes to complete.
func (r *Recorder) Close() error {
	r.logger.Info("shutting down audit recorder")

	// Signal shutdown
	close(r.done)

	// Wait for worker to finish draining channel
	r.wg.Wait()

	r.logger.Info("audit recorder shut down complete")
	return nil
}

// worker is the background goroutine that drains the record channel and
// writes records to storage.
func (r *Recorder) worker() {
	defer r.wg.Done()

	for {
		select {
		case record := <-r.recordChan:
			r.writeRecord(record)

		case <-r.done:
			// Drain remaining records from channel before exit
			r.logger.Info("draining audit channel before shutdown",
				"pending_count", len(r.recordChan),
			)

			for {
				select {
				case record := <-r.recordChan:
					r.writeRecord(record)
				default:
					// Channel is empty, we can exit
					r.logger.Info("audit channel drained")
					return
				}
			}
		}
	}
}

// writeRecord writes a single execution record to storage.
func (r *Recorder) writeRecord(record *audit.ExecutionRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout)
	defer cancel()

	start := time.Now()

	err := r.storage.Append(ctx, record)
	if err != nil {
		r.logger.Error("failed to store execution record",
			"record_id", record.ID,
			"correlation_id", record.CorrelationID,
			"error", err,
		)
		return
	}

	duration := time.Since(start)

	r.logger.Debug("execution recorded",
		"record_id", record.ID,
		"rule_package", record.RulePackage,
		"successful", record.Successful,
		"duration_ms", duration.Milliseconds(),
	)

	// Warn if write was slow
	if duration > r.config.WriteTimeout/2 {
		r.logger.Warn("slow audit write",
			"record_id", record.ID,
			"duration_ms", duration.Milliseconds(),
			"threshold_ms", (r.config.WriteTimeout / 2).Milliseconds(),
		)
	}
}
