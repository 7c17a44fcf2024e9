// Package journal provides a SQLite-backed append-only log of evaluated
// rounds.
//
// Each entry records the net input deltas a round applied and the derived
// deltas it emitted. The log is a verification record, not a way to persist
// the fact store: replaying its inputs through a fresh engine must reproduce
// its outputs, and summing its outputs per triple must give the derived
// support of the last round (the conservation ledger, see Audit).
//
// # Database Configuration
//
//   - WAL mode: concurrent reads during writes
//   - synchronous=NORMAL: balance durability/performance
//   - busy_timeout=5000: wait for locks up to 5 seconds
//   - foreign_keys=ON: deltas must belong to a recorded round
//
// Rows are keyed by round and position, never by timestamps, so a replayed
// journal is byte-for-byte comparable with the original.
package journal
