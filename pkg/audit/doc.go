// Package audit defines the execution audit trail: the ExecutionRecord
// written once per rule execution, the write contract the coordinator emits
// through, and the query shapes reporting is built on.
//
// Exactly one record is produced per call to Execute, covering every exit
// path: validation failure, pool exhaustion, evaluation timeout, engine
// error, cache hit, and success. Records are immutable after creation.
// Persistence is asynchronous (see the recorder subpackage), so durability
// is best-effort under process crash; the runtime does not promise
// exactly-once persistence.
//
// Subpackages:
//
//   - recorder: async channel worker between the hot path and storage
//   - storage: memory and sqlite storage backends
//   - retention: scheduled pruning of aged records
package audit
