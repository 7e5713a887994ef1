// Package services defines the capability interfaces a music catalog exposes to the matcher and
// the transfer engine, and implements them for Spotify, TIDAL, YouTube Music and Apple Music.
//
// # Capabilities
//
// Every destination implements [Catalog] (ranked track and album search). Writes are optional and
// discovered with type assertions:
//   - [ISRCLookup]: exact recording lookup, preferred by the matcher
//   - [PlaylistWriter]: create and append; without it transfers run in guide mode
//   - [LibraryWriter]: likes/favorites for standalone tracks and albums
//   - [Linker]: artist and search links for migration guides
//
// [Capabilities] reports the set for a catalog.
//
// # Sources
//
// [Library] reads the user's saved items one fixed-size page at a time. [CollectAll] repeats a
// page request until a short page signals the end of the list.
//
// # Implementations
//
//   - [Spotify]: github.com/zmb3/spotify/v2, source and full destination
//   - [Tidal]: hardcoded v1 endpoint set, full destination with ISRC lookup
//   - [YouTube]: local ytmusicapi proxy, playlists only
//   - [AppleMusic]: iTunes Search API, search only (guide mode)
//
// # Error Handling
//
// HTTP failures are mapped by [StatusError]:
//   - 401: [shared.ErrUnauthenticated]
//   - 403: [shared.ErrForbidden], which fails only the item that hit it
//   - 429: [shared.RateLimitError] with the Retry-After hint
//   - 404: [shared.ErrNotFound]
//   - 5xx and network failures: [shared.ErrTransport]
package services
