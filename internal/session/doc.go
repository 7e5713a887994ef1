// Package session tracks the run-time state of transfers.
//
// # Lifecycle
//
// A [Session] moves pending -> running -> completed | failed. Running is entered once and terminal
// phases are final. A session may fail straight from pending when its job is rejected before any
// work starts.
//
// # Progress
//
// Percent is floor(100 * completed / total), clamped to [0, 100]. It never decreases and is exactly
// 100 once the session completes. Callers read a [Snapshot] or [Session.Subscribe] to receive one
// per change; slow subscribers only ever see the latest snapshot.
//
// # Manager
//
// [Manager] holds sessions in process memory, allows one active session per key (user plus
// destination) and expires terminal sessions after a TTL.
package session
