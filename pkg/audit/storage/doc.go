// Package storage provides audit storage backends.
//
// Two implementations of the audit.Storage interface are available:
//
//   - SQLiteStorage: persistent storage backed by SQLite, the production
//     backend. Supports WAL mode, a configurable busy timeout, and indexed
//     queries over all record dimensions.
//   - MemoryStorage: an in-memory map intended for tests and for running
//     with auditing effectively disabled.
//
// Both backends are safe for concurrent use.
package storage
