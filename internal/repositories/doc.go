// Package repositories implements SQLite persistence for transfer history and the match cache.
//
// Key Implementations:
//   - [TransferRepository] : archived transfer sessions with their reports, soft deleted
//   - [MatchRepository] : source id to destination id matches and failed-lookup backoff,
//     implementing [matcher.Cache] and [matcher.FailureCache]
//
// Sequence numbers provide stable, human-readable ordering (e.g., transfer #15) independent of
// UUIDs and creation timestamps. The [NextSequence] function atomically increments per-table
// sequence counters in dedicated sequence tables.
package repositories
