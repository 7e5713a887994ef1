package services

import (
	"context"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/crate/internal/auth"
	"github.com/desertthunder/crate/internal/shared"
)

// SpotifyFromConfig builds the Spotify catalog with a file-backed token provider.
func SpotifyFromConfig(ctx context.Context, cfg *shared.Config, logger *log.Logger) (*Spotify, *auth.Provider, error) {
	provider, err := auth.NewServiceProvider(cfg, auth.ServiceSpotify, logger)
	if err != nil {
		return nil, nil, err
	}
	return NewSpotify(provider.Client(ctx)), provider, nil
}

// TidalFromConfig builds the TIDAL catalog with a file-backed token provider.
func TidalFromConfig(ctx context.Context, cfg *shared.Config, logger *log.Logger) (*Tidal, *auth.Provider, error) {
	provider, err := auth.NewServiceProvider(cfg, auth.ServiceTidal, logger)
	if err != nil {
		return nil, nil, err
	}
	return NewTidal(provider.Client(ctx), "", cfg.Credentials.Tidal.CountryCode), provider, nil
}

// RegistryFromConfig registers every catalog whose credentials are configured. Catalogs that
// cannot be built are skipped with a debug log; Get reports them as unknown.
func RegistryFromConfig(ctx context.Context, cfg *shared.Config, logger *log.Logger) *Registry {
	reg := NewRegistry()

	if sp, _, err := SpotifyFromConfig(ctx, cfg, logger); err == nil {
		reg.Register(sp)
	} else {
		logger.Debug("spotify unavailable", "error", err)
	}

	if td, _, err := TidalFromConfig(ctx, cfg, logger); err == nil {
		reg.Register(td)
	} else {
		logger.Debug("tidal unavailable", "error", err)
	}

	plain := &http.Client{Timeout: 30 * time.Second}
	yt := cfg.Credentials.YouTube
	if yt.ProxyURL != "" {
		reg.Register(NewYouTube(yt.ProxyURL, shared.ExpandHome(yt.HeadersPath), plain))
	}
	reg.Register(NewAppleMusic(plain, "", cfg.Credentials.AppleMusic.Storefront))

	return reg
}
