package auth

import (
	"time"

	"golang.org/x/oauth2"
)

// expiryDelta treats tokens this close to expiry as expired so requests do not race the deadline.
const expiryDelta = 30 * time.Second

// State is the authentication state of one provider.
//
// Implemented by [Unauthenticated], [Authenticated] and [Expired] only.
type State interface {
	isState()
}

// Unauthenticated means no token has been stored.
type Unauthenticated struct{}

// Authenticated holds a usable token. Expiry is zero for tokens that never expire.
type Authenticated struct {
	Token  *oauth2.Token
	Expiry time.Time
}

// Expired holds a token that can no longer be sent; it may still carry a refresh token.
type Expired struct {
	Token *oauth2.Token
}

func (Unauthenticated) isState() {}
func (Authenticated) isState()   {}
func (Expired) isState()         {}

// Classify maps a stored token to its [State] at time now.
func Classify(tok *oauth2.Token, now time.Time) State {
	if tok == nil || tok.AccessToken == "" {
		return Unauthenticated{}
	}
	if !tok.Expiry.IsZero() && !now.Add(expiryDelta).Before(tok.Expiry) {
		return Expired{Token: tok}
	}
	return Authenticated{Token: tok, Expiry: tok.Expiry}
}

// Describe renders a state for CLI status output.
func Describe(s State, now time.Time) string {
	switch s := s.(type) {
	case Unauthenticated:
		return "not authenticated"
	case Authenticated:
		if s.Expiry.IsZero() {
			return "authenticated"
		}
		return "authenticated (expires in " + s.Expiry.Sub(now).Round(time.Second).String() + ")"
	case Expired:
		if s.Token.RefreshToken != "" {
			return "expired (refreshable)"
		}
		return "expired (login required)"
	default:
		return "unknown"
	}
}
