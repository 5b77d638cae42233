// Package entitlement owns the local entitlement record: the three-tier plan
// state (free/basic/premium) that gates feature access, plus the persistence
// contract the synchronization engine depends on.
//
// The record is a local cache of a remote projection. User-initiated billing
// actions write it optimistically for responsive UI; the webhook processor in
// package billing is the authoritative writer and converges the record to the
// billing processor's ground truth. Records are never deleted, only degraded
// to LevelFree when the billing relationship ends.
//
// Two Store implementations are provided: MemoryStore for tests and
// single-instance development, and PGStore backed by a pgx connection pool.
package entitlement
