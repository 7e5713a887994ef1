// Package auth owns the token lifecycle for every catalog.
//
// The rest of the module only asks a [Provider] for "a valid bearer token" and receives either a
// token or an error wrapping [shared.ErrUnauthenticated]. Token state is modeled explicitly as
// [Unauthenticated], [Authenticated] or [Expired] (see [Classify]) and every call site switches on
// it exhaustively.
//
// # Refresh
//
// Many in-flight requests may observe an expired token at once. [Provider.Token] funnels them
// through a [singleflight.Group] so exactly one refresh runs and the new token is written to the
// [TokenStore] once.
//
// # Login
//
// [PKCEFlow] implements the authorization-code grant with PKCE (Spotify). [DeviceLogin] implements
// the device authorization grant (TIDAL).
package auth
