package auth

import (
	"fmt"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crate/internal/shared"
	"golang.org/x/oauth2"
)

const (
	ServiceSpotify = "spotify"
	ServiceTidal   = "tidal"
)

var SpotifyEndpoint = oauth2.Endpoint{
	AuthURL:  "https://accounts.spotify.com/authorize",
	TokenURL: "https://accounts.spotify.com/api/token",
}

var TidalEndpoint = oauth2.Endpoint{
	DeviceAuthURL: "https://auth.tidal.com/v1/oauth2/device_authorization",
	TokenURL:      "https://auth.tidal.com/v1/oauth2/token",
	AuthStyle:     oauth2.AuthStyleInParams,
}

var SpotifyScopes = []string{
	"user-read-private",
	"user-library-read",
	"user-library-modify",
	"playlist-read-private",
	"playlist-read-collaborative",
	"playlist-modify-private",
	"playlist-modify-public",
}

var TidalScopes = []string{"r_usr", "w_usr", "w_sub"}

func SpotifyOAuthConfig(c shared.SpotifyConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURI,
		Endpoint:     SpotifyEndpoint,
		Scopes:       SpotifyScopes,
	}
}

func TidalOAuthConfig(c shared.TidalConfig) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		Endpoint:     TidalEndpoint,
		Scopes:       TidalScopes,
	}
}

// OAuthConfig returns the client configuration for an OAuth-backed service.
func OAuthConfig(cfg *shared.Config, service string) (*oauth2.Config, error) {
	switch service {
	case ServiceSpotify:
		if cfg.Credentials.Spotify.ClientID == "" {
			return nil, fmt.Errorf("%w: credentials.spotify.client_id", shared.ErrMissingCredentials)
		}
		return SpotifyOAuthConfig(cfg.Credentials.Spotify), nil
	case ServiceTidal:
		if cfg.Credentials.Tidal.ClientID == "" {
			return nil, fmt.Errorf("%w: credentials.tidal.client_id", shared.ErrMissingCredentials)
		}
		return TidalOAuthConfig(cfg.Credentials.Tidal), nil
	default:
		return nil, fmt.Errorf("%w: %s does not use OAuth", shared.ErrUnsupported, service)
	}
}

// NewServiceProvider wires a file-backed [Provider] for service using the configured token dir.
func NewServiceProvider(cfg *shared.Config, service string, logger *log.Logger) (*Provider, error) {
	oc, err := OAuthConfig(cfg, service)
	if err != nil {
		return nil, err
	}
	store := NewFileStore(cfg.Auth.TokenPath(service))
	return NewProvider(service, store, ConfigRefresher(oc), WithLogger(logger)), nil
}
