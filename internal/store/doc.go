// Package store provides the SQLite-backed outage ledger.
//
// One table, events, is keyed by UID and holds the fingerprint, display
// fields, status and created/last-seen/removed timestamps of every event.
// A second table, cycles, logs each committed reconciliation cycle.
//
// # Invariants
//
//   - A UID is minted once, on first insert, and never reassigned.
//   - At most one active row exists per fingerprint (partial UNIQUE index).
//     A removed row and a later active row for the same fingerprint may
//     coexist until the removed row is purged.
//   - status = 'active' exactly when removed_at IS NULL (CHECK constraint).
//   - Reads order by group_code, starts_at, uid so results are deterministic.
//
// # Transactions
//
// All cycle writes run inside a CycleTx obtained from BeginCycle. Nothing a
// cycle writes is visible until Commit; any error, a cancelled context or a
// deferred Rollback discards the whole cycle. Purges run in their own
// transaction. Both use BEGIN IMMEDIATE, so cycles and purges never overlap.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON
package store
