// Package tasks runs transfer jobs against a destination catalog with real-time progress reporting.
//
// # Transfers
//
// [Engine.Run] executes the job held by a [session.Session]:
//
//  1. Standalone tracks, then standalone albums: matched concurrently and, when the destination
//     implements [services.LibraryWriter], saved in batches
//  2. Playlists: each is created on the destination, its tracks matched concurrently and added in
//     source order, in batches
//
// A destination without [services.PlaylistWriter] gets a migration guide instead: every item is
// matched and grouped by artist with links from [services.Linker].
//
// [Engine.Launch] registers the session with a [session.Manager] and runs it in the background.
//
// # Failure Handling
//
// Every outbound call passes through one gate holding the concurrency bound, the rate limiter and
// the per-call timeout. Retryable failures (429, transport) are retried with exponential backoff;
// a Retry-After hint overrides the computed wait. A rejected batch is retried one item at a time.
//
// Unmatched items never fail a job. A job fails when:
//   - the destination rejects the credentials
//   - more than [Options.RateLimitedAbortRatio] of all items stay rate limited after retries
//   - [Options.MaxConsecutiveTransportFailures] items in a row hit transport errors
//   - the session is cancelled ([shared.ErrCancelled])
//
// # Progress Reporting
//
// [ProgressUpdate] values are sent on the channel given to [WithProgress] using select with
// default, so a slow reader never stalls a transfer. Session subscribers receive snapshots
// independently.
//
// # Bulk Export
//
// [Engine.ExportPlaylists] writes source playlists to disk with a worker pool and a manifest.
package tasks
