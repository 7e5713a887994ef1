// Package matcher maps source-catalog tracks and albums to destination-catalog identifiers.
//
// # Strategy
//
// For tracks with an ISRC, destinations implementing [services.ISRCLookup] are asked first and a
// hit is classified isrc-exact. Otherwise the matcher searches "TITLE PRIMARY_ARTIST" for the top
// N candidates and compares normalized titles and artists ([shared.Normalize]):
//
//   - exact: a candidate's normalized title equals the source title and its primary artist is one
//     of the source artists; ties go to the closest duration
//   - fuzzy: no exact candidate, the destination's top-ranked result is used
//   - none: the destination returned nothing
//
// When the first query returns nothing and the item credits several artists, the remaining
// artists are tried in order with a simplified title.
//
// # Errors
//
// No match is never an error. Only [shared.ErrUnauthenticated], [shared.ErrRateLimited],
// [shared.ErrTransport] and context errors are returned; any other catalog error degrades to a
// none result.
//
// # Caching
//
// A [Cache] short-circuits repeated lookups of the same source item. A [FailureCache] remembers
// misses and suppresses new searches until the backoff computed by [FailureBackoff] has passed.
package matcher
