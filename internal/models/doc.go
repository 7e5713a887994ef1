// Package models defines the normalized library model shared by every catalog, and the persistent
// models used to archive finished transfers.
//
// # Library Model
//
// [Track], [Album] and [Playlist] are catalog-agnostic records. Values are built once by a source
// reader and treated as immutable afterwards. A [Playlist] may be known by metadata alone until its
// tracks are resolved with [Playlist.WithTracks].
//
// # Matching
//
// A [MatchResult] is the outcome of looking up one source item in a destination catalog. Its
// [Confidence] ranks the evidence: [ConfidenceISRC] above [ConfidenceExact] above [ConfidenceFuzzy].
// [ConfidenceNone] is a normal result, not an error.
//
// # Transfers
//
// A [TransferJob] is the immutable unit of work. Finished jobs produce a [Report] (unmatched items
// grouped by category) or, for destinations without write access, a [Guide].
//
// # Persistence
//
// [Persistent] and [Store] describe rows stored by the repositories package. [TransferRecord] is the
// archived summary of one transfer.
package models
